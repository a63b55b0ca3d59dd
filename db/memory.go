package db

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"hotfeed/feeds"
	"hotfeed/models"
	"hotfeed/query"
)

type memoryBlob struct {
	name string
	meta models.BlobMeta
	data []byte
}

// MemoryStore keeps everything in process. Used for development and tests.
type MemoryStore struct {
	posts map[string]models.Post
	users map[string]models.User
	blobs map[string]memoryBlob
	mutex sync.RWMutex
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		posts: make(map[string]models.Post),
		users: make(map[string]models.User),
		blobs: make(map[string]memoryBlob),
	}
}

func (s *MemoryStore) RankedPage(ctx context.Context, q query.RankedQuery) ([]models.RankedRow, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	rows := make([]models.RankedRow, 0, len(s.posts))
	for _, post := range s.posts {
		rows = append(rows, models.RankedRow{
			Id:        post.Id,
			Title:     post.Title,
			Link:      post.Link,
			Body:      post.Body,
			AuthorId:  post.AuthorId,
			Score:     post.Score,
			CreatedAt: post.CreatedAt,
			UpdatedAt: post.UpdatedAt,
			SortValue: feeds.Score(post.Score, post.CreatedAt, q.Now),
		})
	}

	sort.Slice(rows, func(i, j int) bool {
		if rows[i].SortValue != rows[j].SortValue {
			return rows[i].SortValue > rows[j].SortValue
		}
		return rows[i].Id < rows[j].Id
	})

	if q.OffsetOverflows() {
		return []models.RankedRow{}, nil
	}
	from := q.Offset()
	if from < 0 || from >= len(rows) {
		return []models.RankedRow{}, nil
	}
	to := len(rows)
	if q.Limit < to-from {
		to = from + q.Limit
	}

	page := rows[from:to]
	for i := range page {
		page[i].CommentCount = len(s.posts[page[i].Id].Comments)
	}
	return page, nil
}

func (s *MemoryStore) CountPosts(ctx context.Context) (int64, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	return int64(len(s.posts)), nil
}

func (s *MemoryStore) GetPost(ctx context.Context, id string) (*models.Post, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	post, ok := s.posts[id]
	if !ok {
		return nil, fmt.Errorf("post %s: %w", id, models.ErrNotFound)
	}
	return clonePost(post), nil
}

func (s *MemoryStore) InsertPost(ctx context.Context, post *models.Post) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if post.Id == "" {
		post.Id = uuid.NewString()
	}
	for i := range post.Comments {
		if post.Comments[i].Id == "" {
			post.Comments[i].Id = uuid.NewString()
		}
	}
	s.posts[post.Id] = *clonePost(*post)
	return nil
}

func (s *MemoryStore) UpdatePost(ctx context.Context, id string, edit models.PostEdit, at time.Time) (*models.Post, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	post, ok := s.posts[id]
	if !ok {
		return nil, fmt.Errorf("post %s: %w", id, models.ErrNotFound)
	}
	post.Title = edit.Title
	post.Link = edit.Link
	post.Body = edit.Body
	post.UpdatedAt = at
	s.posts[id] = post

	return clonePost(post), nil
}

func (s *MemoryStore) DeletePost(ctx context.Context, id string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, ok := s.posts[id]; !ok {
		return fmt.Errorf("post %s: %w", id, models.ErrNotFound)
	}
	delete(s.posts, id)
	return nil
}

func (s *MemoryStore) AddComment(ctx context.Context, postId string, comment *models.Comment) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	post, ok := s.posts[postId]
	if !ok {
		return fmt.Errorf("post %s: %w", postId, models.ErrNotFound)
	}
	if comment.Id == "" {
		comment.Id = uuid.NewString()
	}
	post.Comments = append(post.Comments, *comment)
	s.posts[postId] = post
	return nil
}

func (s *MemoryStore) GetUsers(ctx context.Context, ids []string) (map[string]models.User, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	users := make(map[string]models.User, len(ids))
	for _, id := range ids {
		if user, ok := s.users[id]; ok {
			users[id] = user
		}
	}
	return users, nil
}

func (s *MemoryStore) CreateUser(ctx context.Context, user *models.User) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if user.Id == "" {
		user.Id = uuid.NewString()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	for _, existing := range s.users {
		if existing.UserName == user.UserName && existing.Id != user.Id {
			return fmt.Errorf("%w: user name %q taken", models.ErrPersistFailure, user.UserName)
		}
	}
	s.users[user.Id] = *user
	return nil
}

// DeleteUser removes a user without touching the posts that reference it
func (s *MemoryStore) DeleteUser(ctx context.Context, id string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	delete(s.users, id)
}

func (s *MemoryStore) Put(ctx context.Context, name string, data []byte, meta models.BlobMeta) (string, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	id := uuid.NewString()
	s.blobs[id] = memoryBlob{name: name, meta: meta, data: append([]byte(nil), data...)}
	return id, nil
}

// Blob returns a stored blob's bytes and metadata
func (s *MemoryStore) Blob(id string) ([]byte, models.BlobMeta, bool) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	blob, ok := s.blobs[id]
	return blob.data, blob.meta, ok
}

func clonePost(post models.Post) *models.Post {
	post.Comments = append([]models.Comment(nil), post.Comments...)
	if post.Image != nil {
		image := *post.Image
		post.Image = &image
	}
	return &post
}

var _ query.PostStore = (*MemoryStore)(nil)
var _ query.UserStore = (*MemoryStore)(nil)
var _ query.BlobStore = (*MemoryStore)(nil)
