package feeds_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hotfeed/db"
	"hotfeed/feeds"
	"hotfeed/models"
	"hotfeed/query"
)

// countingStore records how often the planner reaches the stores
type countingStore struct {
	*db.MemoryStore
	ranked   atomic.Int32
	counts   atomic.Int32
	lookups  atomic.Int32
	rankErr  error
	countErr error
	usersErr error
}

func (s *countingStore) RankedPage(ctx context.Context, q query.RankedQuery) ([]models.RankedRow, error) {
	s.ranked.Add(1)
	if s.rankErr != nil {
		return nil, s.rankErr
	}
	return s.MemoryStore.RankedPage(ctx, q)
}

func (s *countingStore) CountPosts(ctx context.Context) (int64, error) {
	s.counts.Add(1)
	if s.countErr != nil {
		return 0, s.countErr
	}
	return s.MemoryStore.CountPosts(ctx)
}

func (s *countingStore) GetUsers(ctx context.Context, ids []string) (map[string]models.User, error) {
	s.lookups.Add(1)
	if s.usersErr != nil {
		return nil, s.usersErr
	}
	return s.MemoryStore.GetUsers(ctx, ids)
}

func (s *countingStore) calls() int32 {
	return s.ranked.Load() + s.counts.Load() + s.lookups.Load()
}

// newFeed seeds seven posts by two authors; ranked at now they order
// a, e, b, c, g, d, f
func newFeed(t *testing.T) (*feeds.Planner, *countingStore) {
	t.Helper()
	ctx := context.Background()
	store := &countingStore{MemoryStore: db.NewMemoryStore()}

	require.NoError(t, store.CreateUser(ctx, &models.User{Id: "u1", UserName: "alice", Email: "alice@example.com"}))
	require.NoError(t, store.CreateUser(ctx, &models.User{Id: "u2", UserName: "bob"}))

	seed := []struct {
		id       string
		author   string
		score    int
		age      time.Duration
		comments int
	}{
		{id: "a", author: "u1", score: 10, age: time.Hour, comments: 3},
		{id: "b", author: "u2", score: 5, age: 2 * time.Hour},
		{id: "c", author: "u1", score: 0, age: 0, comments: 1},
		{id: "d", author: "u2", score: 0, age: 10 * time.Hour, comments: 2},
		{id: "e", author: "u2", score: 20, age: 5 * time.Hour},
		{id: "f", author: "u1", score: 1, age: 50 * time.Hour},
		{id: "g", author: "u1", score: 3, age: 3 * time.Hour},
	}
	for _, s := range seed {
		post := &models.Post{
			Id:        s.id,
			Title:     "post " + s.id,
			Body:      "body " + s.id,
			AuthorId:  s.author,
			Score:     s.score,
			CreatedAt: now.Add(-s.age),
			UpdatedAt: now.Add(-s.age),
		}
		for range s.comments {
			post.Comments = append(post.Comments, models.Comment{AuthorId: "u2", Body: "hi", CreatedAt: now})
		}
		require.NoError(t, store.InsertPost(ctx, post))
	}

	return feeds.NewPlanner(store, store, feeds.PlannerConfig{DefaultLimit: 5, MaxLimit: 50}), store
}

// newUnboundedFeed is newFeed without a limit cap
func newUnboundedFeed(t *testing.T) (*feeds.Planner, *countingStore) {
	t.Helper()
	_, store := newFeed(t)
	return feeds.NewPlanner(store, store, feeds.PlannerConfig{DefaultLimit: 5}), store
}

func postIds(resp *models.FeedResponse) []string {
	return lo.Map(resp.Posts, func(p models.RankedPost, _ int) string { return p.Id })
}

func TestFeedRanksByHotScore(t *testing.T) {
	planner, _ := newFeed(t)

	resp, err := planner.Feed(context.Background(), "", "", now)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "e", "b", "c", "g"}, postIds(resp))
	assert.Equal(t, 2, resp.TotalPages)

	resp, err = planner.Feed(context.Background(), "2", "5", now)
	require.NoError(t, err)
	assert.Equal(t, []string{"d", "f"}, postIds(resp))
	assert.Equal(t, 2, resp.TotalPages)
}

func TestFeedShapesPosts(t *testing.T) {
	planner, _ := newFeed(t)

	resp, err := planner.Feed(context.Background(), "1", "1", now)
	require.NoError(t, err)
	require.Len(t, resp.Posts, 1)
	assert.Equal(t, 7, resp.TotalPages)

	post := resp.Posts[0]
	assert.Equal(t, "a", post.Id)
	assert.Equal(t, "post a", post.Title)
	assert.Equal(t, "body a", post.Body)
	assert.Equal(t, 10, post.Score)
	assert.Equal(t, 3, post.CommentCount)
	assert.Equal(t, models.Author{Id: "u1", UserName: "alice"}, post.Author)
	assert.Equal(t, now.Add(-time.Hour), post.CreatedAt)
	assert.InDelta(t, 3.8891, post.SortValue, 1e-4)
}

func TestFeedCommentCounts(t *testing.T) {
	planner, _ := newFeed(t)

	resp, err := planner.Feed(context.Background(), "1", "7", now)
	require.NoError(t, err)

	counts := lo.SliceToMap(resp.Posts, func(p models.RankedPost) (string, int) { return p.Id, p.CommentCount })
	assert.Equal(t, map[string]int{"a": 3, "b": 0, "c": 1, "d": 2, "e": 0, "f": 0, "g": 0}, counts)
}

func TestFeedIsIdempotent(t *testing.T) {
	planner, _ := newFeed(t)

	first, err := planner.Feed(context.Background(), "1", "3", now)
	require.NoError(t, err)
	second, err := planner.Feed(context.Background(), "1", "3", now)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestFeedPagesPartitionTheRanking(t *testing.T) {
	planner, _ := newFeed(t)

	var seen []string
	for page := 1; page <= 4; page++ {
		resp, err := planner.Rank(context.Background(), query.Page{Number: page, Limit: 2}, now)
		require.NoError(t, err)
		assert.LessOrEqual(t, len(resp.Posts), 2)
		assert.Equal(t, 4, resp.TotalPages)
		seen = append(seen, postIds(resp)...)
	}
	assert.Equal(t, []string{"a", "e", "b", "c", "g", "d", "f"}, seen)
}

func TestFeedPastLastPage(t *testing.T) {
	planner, store := newFeed(t)

	resp, err := planner.Feed(context.Background(), "9", "5", now)
	require.NoError(t, err)
	assert.Empty(t, resp.Posts)
	assert.NotNil(t, resp.Posts)
	assert.Equal(t, 2, resp.TotalPages)
	assert.Equal(t, int32(0), store.lookups.Load(), "empty pages skip the author lookup")
}

func TestFeedHugePageNumbers(t *testing.T) {
	tests := []struct {
		name       string
		page       string
		limit      string
		totalPages int
	}{
		{name: "offset wraps negative", page: "4611686018427387905", limit: "3", totalPages: 3},
		{name: "offset wraps to zero", page: "4611686018427387905", limit: "4", totalPages: 2},
		{name: "largest page number", page: "9223372036854775807", limit: "1", totalPages: 7},
		{name: "largest limit", page: "2", limit: "9223372036854775807", totalPages: 1},
		{name: "largest limit past the end", page: "3", limit: "9223372036854775807", totalPages: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			planner, _ := newUnboundedFeed(t)

			resp, err := planner.Feed(context.Background(), tt.page, tt.limit, now)
			require.NoError(t, err)
			assert.NotNil(t, resp.Posts)
			assert.Empty(t, resp.Posts)
			assert.Equal(t, tt.totalPages, resp.TotalPages)
		})
	}

	planner, _ := newUnboundedFeed(t)
	resp, err := planner.Feed(context.Background(), "1", "9223372036854775807", now)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "e", "b", "c", "g", "d", "f"}, postIds(resp))
	assert.Equal(t, 1, resp.TotalPages)
}

func TestFeedEmptyCollection(t *testing.T) {
	store := db.NewMemoryStore()
	planner := feeds.NewPlanner(store, store, feeds.PlannerConfig{})

	resp, err := planner.Feed(context.Background(), "", "", now)
	require.NoError(t, err)
	assert.Empty(t, resp.Posts)
	assert.Equal(t, 0, resp.TotalPages)
}

func TestFeedRankingMovesWithNow(t *testing.T) {
	planner, _ := newFeed(t)

	// two days later every post has aged and vote counts dominate
	resp, err := planner.Feed(context.Background(), "1", "3", now.Add(48*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, []string{"e", "a", "b"}, postIds(resp))
}

func TestFeedMalformedNeverTouchesStore(t *testing.T) {
	tests := []struct {
		name  string
		page  string
		limit string
	}{
		{name: "letters", page: "abc"},
		{name: "negative page", page: "-1"},
		{name: "zero limit", limit: "0"},
		{name: "over max limit", limit: "51"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			planner, store := newFeed(t)

			_, err := planner.Feed(context.Background(), tt.page, tt.limit, now)
			assert.ErrorIs(t, err, models.ErrMalformedQuery)
			assert.Equal(t, int32(0), store.calls())
		})
	}

	planner, store := newFeed(t)
	_, err := planner.Rank(context.Background(), query.Page{Number: 0, Limit: 5}, now)
	assert.ErrorIs(t, err, models.ErrMalformedQuery)
	assert.Equal(t, int32(0), store.calls())
}

func TestFeedDanglingAuthor(t *testing.T) {
	planner, store := newFeed(t)
	store.DeleteUser(context.Background(), "u2")

	// page 1 of size 1 holds only post a by u1
	resp, err := planner.Feed(context.Background(), "1", "1", now)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, postIds(resp))

	_, err = planner.Feed(context.Background(), "1", "2", now)
	var dangling *models.DanglingAuthorError
	require.True(t, errors.As(err, &dangling))
	assert.Equal(t, "e", dangling.PostId)
	assert.Equal(t, "u2", dangling.AuthorId)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestFeedBatchesAuthorLookup(t *testing.T) {
	planner, store := newFeed(t)

	_, err := planner.Feed(context.Background(), "1", "7", now)
	require.NoError(t, err)
	assert.Equal(t, int32(1), store.lookups.Load())
	assert.Equal(t, int32(1), store.ranked.Load())
	assert.Equal(t, int32(1), store.counts.Load())
}

func TestFeedStoreFailures(t *testing.T) {
	boom := errors.New("connection reset")

	tests := []struct {
		name   string
		inject func(s *countingStore)
	}{
		{name: "ranked page", inject: func(s *countingStore) { s.rankErr = boom }},
		{name: "count", inject: func(s *countingStore) { s.countErr = boom }},
		{name: "author lookup", inject: func(s *countingStore) { s.usersErr = boom }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			planner, store := newFeed(t)
			tt.inject(store)

			resp, err := planner.Feed(context.Background(), "", "", now)
			assert.Nil(t, resp)
			assert.ErrorIs(t, err, models.ErrStoreUnavailable)
			assert.ErrorIs(t, err, boom)
		})
	}
}

func TestEnrichAuthorsEmpty(t *testing.T) {
	store := &countingStore{MemoryStore: db.NewMemoryStore()}

	posts, err := feeds.EnrichAuthors(context.Background(), store, nil)
	require.NoError(t, err)
	assert.Empty(t, posts)
	assert.Equal(t, int32(0), store.lookups.Load())
}
