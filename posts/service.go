// Package posts handles single post lookups and the author-only write paths
package posts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/samber/lo"
	log "github.com/sirupsen/logrus"

	"hotfeed/models"
	"hotfeed/query"
)

type Service struct {
	posts query.PostStore
	users query.UserStore
	blobs query.BlobStore
	clock func() time.Time
}

func NewService(posts query.PostStore, users query.UserStore, blobs query.BlobStore) *Service {
	return &Service{
		posts: posts,
		users: users,
		blobs: blobs,
		clock: func() time.Time { return time.Now().UTC() },
	}
}

// WithClock replaces the clock used for createdAt and updatedAt
func (s *Service) WithClock(clock func() time.Time) *Service {
	s.clock = clock
	return s
}

// Authorize allows a write only when userId is the post's author
func Authorize(post *models.Post, userId string) error {
	if userId == "" {
		return models.ErrUnauthorized
	}
	if post.AuthorId != userId {
		return fmt.Errorf("user %s on post %s: %w", userId, post.Id, models.ErrForbidden)
	}
	return nil
}

// Get returns a post with its author and every comment author resolved
func (s *Service) Get(ctx context.Context, id string) (*models.PostDetail, error) {
	post, err := s.posts.GetPost(ctx, id)
	if err != nil {
		return nil, err
	}

	ids := lo.Uniq(append(
		[]string{post.AuthorId},
		lo.Map(post.Comments, func(c models.Comment, _ int) string { return c.AuthorId })...,
	))
	users, err := s.users.GetUsers(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("%w: lookup users: %w", models.ErrStoreUnavailable, err)
	}

	author, ok := users[post.AuthorId]
	if !ok {
		return nil, &models.DanglingAuthorError{PostId: post.Id, AuthorId: post.AuthorId}
	}

	detail := &models.PostDetail{
		Id:        post.Id,
		Title:     post.Title,
		Link:      post.Link,
		Body:      post.Body,
		Author:    author,
		Score:     post.Score,
		CreatedAt: post.CreatedAt,
		UpdatedAt: post.UpdatedAt,
		Comments:  make([]models.CommentDetail, 0, len(post.Comments)),
		Image:     post.Image,
	}
	for _, c := range post.Comments {
		commenter, ok := users[c.AuthorId]
		if !ok {
			return nil, &models.DanglingAuthorError{PostId: post.Id, AuthorId: c.AuthorId}
		}
		detail.Comments = append(detail.Comments, models.CommentDetail{
			Id:        c.Id,
			Author:    commenter,
			Body:      c.Body,
			CreatedAt: c.CreatedAt,
		})
	}

	return detail, nil
}

// Create stores a new post by userId. An attached image is stored first and
// referenced from the post.
func (s *Service) Create(ctx context.Context, userId string, input models.NewPost, upload *models.Upload) (*models.Post, error) {
	if err := s.requireUser(ctx, userId); err != nil {
		return nil, err
	}
	if strings.TrimSpace(input.Title) == "" {
		return nil, fmt.Errorf("%w: title is required", models.ErrInvalidPost)
	}

	now := s.clock()
	post := &models.Post{
		Title:     input.Title,
		Link:      input.Link,
		Body:      input.Body,
		AuthorId:  userId,
		Score:     0,
		CreatedAt: now,
		UpdatedAt: now,
		Comments:  []models.Comment{},
	}

	if upload != nil {
		image, err := s.storeImage(ctx, upload)
		if err != nil {
			return nil, err
		}
		post.Image = image
	}

	if err := s.posts.InsertPost(ctx, post); err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"id":     post.Id,
		"author": userId,
		"image":  post.Image != nil,
	}).Info("Created post")

	return post, nil
}

func (s *Service) storeImage(ctx context.Context, upload *models.Upload) (*models.Image, error) {
	if !strings.HasPrefix(upload.MimeType, "image/") {
		return nil, fmt.Errorf("%w: attachment type %q is not an image", models.ErrInvalidPost, upload.MimeType)
	}
	if len(upload.Data) == 0 {
		return nil, fmt.Errorf("%w: attachment is empty", models.ErrInvalidPost)
	}

	meta := models.BlobMeta{MimeType: upload.MimeType, Size: int64(len(upload.Data))}
	id, err := s.blobs.Put(ctx, upload.Name, upload.Data, meta)
	if err != nil {
		return nil, err
	}
	return &models.Image{MimeType: meta.MimeType, Size: meta.Size, Id: id}, nil
}

// Edit changes title, link and body of a post owned by userId
func (s *Service) Edit(ctx context.Context, userId, id string, edit models.PostEdit) (*models.Post, error) {
	if strings.TrimSpace(edit.Title) == "" {
		return nil, fmt.Errorf("%w: title is required", models.ErrInvalidPost)
	}
	if _, err := s.owned(ctx, userId, id); err != nil {
		return nil, err
	}
	return s.posts.UpdatePost(ctx, id, edit, s.clock())
}

// Delete removes a post owned by userId together with its comments
func (s *Service) Delete(ctx context.Context, userId, id string) error {
	if _, err := s.owned(ctx, userId, id); err != nil {
		return err
	}
	if err := s.posts.DeletePost(ctx, id); err != nil {
		return err
	}

	log.WithFields(log.Fields{
		"id":     id,
		"author": userId,
	}).Info("Deleted post")
	return nil
}

// Comment appends a comment by userId to a post
func (s *Service) Comment(ctx context.Context, userId, postId, body string) (*models.Comment, error) {
	if err := s.requireUser(ctx, userId); err != nil {
		return nil, err
	}
	if strings.TrimSpace(body) == "" {
		return nil, fmt.Errorf("%w: comment body is required", models.ErrInvalidPost)
	}

	comment := &models.Comment{
		AuthorId:  userId,
		Body:      body,
		CreatedAt: s.clock(),
	}
	if err := s.posts.AddComment(ctx, postId, comment); err != nil {
		return nil, err
	}
	return comment, nil
}

// owned looks the post up before checking ownership, so a missing post is
// reported as not found rather than forbidden
func (s *Service) owned(ctx context.Context, userId, id string) (*models.Post, error) {
	if userId == "" {
		return nil, models.ErrUnauthorized
	}
	post, err := s.posts.GetPost(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := Authorize(post, userId); err != nil {
		return nil, err
	}
	return post, nil
}

func (s *Service) requireUser(ctx context.Context, userId string) error {
	if userId == "" {
		return models.ErrUnauthorized
	}
	users, err := s.users.GetUsers(ctx, []string{userId})
	if err != nil {
		if errors.Is(err, models.ErrStoreUnavailable) {
			return err
		}
		return fmt.Errorf("%w: lookup user: %w", models.ErrStoreUnavailable, err)
	}
	if _, ok := users[userId]; !ok {
		return fmt.Errorf("user %s: %w", userId, models.ErrUnauthorized)
	}
	return nil
}
