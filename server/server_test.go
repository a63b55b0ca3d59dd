package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hotfeed/db"
	"hotfeed/feeds"
	"hotfeed/models"
	"hotfeed/posts"
	"hotfeed/query"
	"hotfeed/server"
)

type fixture struct {
	app   *fiber.App
	store *db.MemoryStore
	alice string
	bob   string
}

func setup(t *testing.T) *fixture {
	t.Helper()
	return setupWith(t, db.NewMemoryStore(), nil)
}

func setupWith(t *testing.T, store *db.MemoryStore, postStore query.PostStore) *fixture {
	t.Helper()
	ctx := context.Background()
	alice := &models.User{UserName: "alice"}
	bob := &models.User{UserName: "bob"}
	require.NoError(t, store.CreateUser(ctx, alice))
	require.NoError(t, store.CreateUser(ctx, bob))

	if postStore == nil {
		postStore = store
	}
	app := server.Server(&server.ServerConfig{
		Hostname: "localhost",
		Planner:  feeds.NewPlanner(postStore, store, feeds.PlannerConfig{DefaultLimit: 5, MaxLimit: 20}),
		Posts:    posts.NewService(postStore, store, store),
	})
	return &fixture{app: app, store: store, alice: alice.Id, bob: bob.Id}
}

func (f *fixture) do(t *testing.T, method, path, user string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(encoded)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if user != "" {
		req.Header.Set("X-User-Id", user)
	}
	return f.send(t, req)
}

func (f *fixture) send(t *testing.T, req *http.Request) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := f.app.Test(req, -1)
	require.NoError(t, err)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var decoded map[string]any
	if len(raw) > 0 && raw[0] == '{' {
		require.NoError(t, json.Unmarshal(raw, &decoded))
	}
	return resp, decoded
}

func (f *fixture) create(t *testing.T, user, title string) string {
	t.Helper()
	resp, body := f.do(t, http.MethodPost, "/api/posts", user, map[string]string{"title": title, "body": "text"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return body["id"].(string)
}

func TestFeedEndpoint(t *testing.T) {
	f := setup(t)
	for _, title := range []string{"one", "two", "three", "four", "five", "six"} {
		f.create(t, f.alice, title)
	}

	resp, body := f.do(t, http.MethodGet, "/api/posts", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(2), body["totalPages"])
	require.Len(t, body["posts"], 5)

	first := body["posts"].([]any)[0].(map[string]any)
	assert.ElementsMatch(t,
		[]string{"id", "title", "link", "body", "createdAt", "updatedAt", "score", "commentCount", "author"},
		keys(first),
	)
	assert.Equal(t, map[string]any{"id": f.alice, "userName": "alice"}, first["author"])

	resp, body = f.do(t, http.MethodGet, "/api/posts?page=2&limit=5", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body["posts"], 1)
}

func TestFeedEndpointEmpty(t *testing.T) {
	f := setup(t)

	resp, body := f.do(t, http.MethodGet, "/api/posts", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []any{}, body["posts"])
	assert.Equal(t, float64(0), body["totalPages"])
}

func TestFeedEndpointErrors(t *testing.T) {
	tests := []struct {
		name   string
		path   string
		status int
	}{
		{name: "letters", path: "/api/posts?page=abc", status: http.StatusBadRequest},
		{name: "negative", path: "/api/posts?page=-1", status: http.StatusBadRequest},
		{name: "zero limit", path: "/api/posts?limit=0", status: http.StatusBadRequest},
		{name: "over max", path: "/api/posts?limit=21", status: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setup(t)
			resp, body := f.do(t, http.MethodGet, tt.path, "", nil)
			assert.Equal(t, tt.status, resp.StatusCode)
			assert.Contains(t, body["message"], "malformed query")
		})
	}
}

func TestFeedEndpointDanglingAuthor(t *testing.T) {
	f := setup(t)
	f.create(t, f.bob, "orphan")
	f.store.DeleteUser(context.Background(), f.bob)

	resp, body := f.do(t, http.MethodGet, "/api/posts", "", nil)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "data integrity error", body["message"])
}

// failingStore stands in for a database that went away
type failingStore struct {
	query.PostStore
}

func (s failingStore) RankedPage(context.Context, query.RankedQuery) ([]models.RankedRow, error) {
	return nil, errors.New("connection refused")
}

func TestFeedEndpointStoreUnavailable(t *testing.T) {
	store := db.NewMemoryStore()
	f := setupWith(t, store, failingStore{PostStore: store})

	resp, body := f.do(t, http.MethodGet, "/api/posts", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "store unavailable", body["message"])
}

func TestPostLifecycleEndpoints(t *testing.T) {
	f := setup(t)
	id := f.create(t, f.alice, "hello")

	resp, body := f.do(t, http.MethodPost, "/api/posts/"+id+"/comments", f.bob, map[string]string{"body": "nice"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, f.bob, body["author"])

	resp, body = f.do(t, http.MethodGet, "/api/posts/"+id, "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "hello", body["title"])
	assert.Equal(t, "alice", body["author"].(map[string]any)["userName"])
	comments := body["comments"].([]any)
	require.Len(t, comments, 1)
	assert.Equal(t, "bob", comments[0].(map[string]any)["author"].(map[string]any)["userName"])

	resp, body = f.do(t, http.MethodPatch, "/api/posts/"+id, f.alice, map[string]string{"title": "edited", "body": "new"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "edited", body["title"])

	resp, body = f.do(t, http.MethodDelete, "/api/posts/"+id, f.alice, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "post deleted", body["message"])

	resp, _ = f.do(t, http.MethodGet, "/api/posts/"+id, "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestWriteEndpointErrors(t *testing.T) {
	f := setup(t)
	id := f.create(t, f.alice, "hello")

	tests := []struct {
		name   string
		method string
		path   string
		user   string
		body   any
		status int
	}{
		{name: "create anonymous", method: http.MethodPost, path: "/api/posts", body: map[string]string{"title": "x"}, status: http.StatusUnauthorized},
		{name: "create unknown user", method: http.MethodPost, path: "/api/posts", user: "ghost", body: map[string]string{"title": "x"}, status: http.StatusUnauthorized},
		{name: "create without title", method: http.MethodPost, path: "/api/posts", user: f.alice, body: map[string]string{"body": "x"}, status: http.StatusBadRequest},
		{name: "edit by other user", method: http.MethodPatch, path: "/api/posts/" + id, user: f.bob, body: map[string]string{"title": "x"}, status: http.StatusForbidden},
		{name: "edit missing post", method: http.MethodPatch, path: "/api/posts/missing", user: f.bob, body: map[string]string{"title": "x"}, status: http.StatusNotFound},
		{name: "delete by other user", method: http.MethodDelete, path: "/api/posts/" + id, user: f.bob, status: http.StatusForbidden},
		{name: "delete anonymous", method: http.MethodDelete, path: "/api/posts/" + id, status: http.StatusUnauthorized},
		{name: "delete missing post", method: http.MethodDelete, path: "/api/posts/missing", user: f.alice, status: http.StatusNotFound},
		{name: "comment on missing post", method: http.MethodPost, path: "/api/posts/missing/comments", user: f.bob, body: map[string]string{"body": "x"}, status: http.StatusNotFound},
		{name: "empty comment", method: http.MethodPost, path: "/api/posts/" + id + "/comments", user: f.bob, body: map[string]string{"body": ""}, status: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := f.do(t, tt.method, tt.path, tt.user, tt.body)
			assert.Equal(t, tt.status, resp.StatusCode)
			assert.NotEmpty(t, body["message"])
		})
	}

	post, err := f.store.GetPost(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "hello", post.Title)
}

func TestCreateWithImage(t *testing.T) {
	f := setup(t)

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	require.NoError(t, w.WriteField("title", "cat"))
	part, err := w.CreatePart(textproto.MIMEHeader{
		"Content-Disposition": {`form-data; name="image"; filename="cat.png"`},
		"Content-Type":        {"image/png"},
	})
	require.NoError(t, err)
	_, err = part.Write([]byte{0x89, 'P', 'N', 'G'})
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/posts", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("X-User-Id", f.alice)

	resp, body := f.send(t, req)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "cat", body["title"])

	image := body["image"].(map[string]any)
	assert.Equal(t, "image/png", image["mimeType"])
	assert.Equal(t, float64(4), image["size"])

	data, _, ok := f.store.Blob(image["id"].(string))
	require.True(t, ok)
	assert.Equal(t, []byte{0x89, 'P', 'N', 'G'}, data)
}

func TestMetricsEndpoint(t *testing.T) {
	f := setup(t)
	f.do(t, http.MethodGet, "/api/posts", "", nil)

	resp, err := f.app.Test(httptest.NewRequest(http.MethodGet, "/metrics", nil), int(time.Second.Milliseconds()))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(raw), "hotfeed_feed_queries_total"))
	assert.True(t, strings.Contains(string(raw), "hotfeed_http_requests_total"))
}

func keys(m map[string]any) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
