package db

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"

	"hotfeed/models"
)

// Tidier removes posts created at or before a cutoff together with their comments
type Tidier interface {
	Tidy(ctx context.Context, before time.Time) (int64, error)
}

// Tidy removes posts that are older than before from the database
func (s *SQLStore) Tidy(ctx context.Context, before time.Time) (int64, error) {
	cutoff := before.UnixMilli()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: begin: %w", models.ErrStoreUnavailable, err)
	}
	defer tx.Rollback()

	old := s.flavor.NewSelectBuilder()
	old.Select("id").From("posts").Where(old.LessEqualThan("created_at", cutoff))

	deleteComments := s.flavor.NewDeleteBuilder()
	deleteComments.DeleteFrom("comments").Where(deleteComments.In("post_id", old))
	sql, args := deleteComments.Build()

	log.WithFields(log.Fields{
		"sql":  sql,
		"args": args,
	}).Info("Tidying database")

	if _, err := tx.ExecContext(ctx, sql, args...); err != nil {
		return 0, fmt.Errorf("%w: tidy comments: %w", models.ErrPersistFailure, err)
	}

	deletePosts := s.flavor.NewDeleteBuilder()
	sql, args = deletePosts.DeleteFrom("posts").Where(deletePosts.LessEqualThan("created_at", cutoff)).Build()
	res, err := tx.ExecContext(ctx, sql, args...)
	if err != nil {
		return 0, fmt.Errorf("%w: tidy posts: %w", models.ErrPersistFailure, err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("%w: commit tidy: %w", models.ErrPersistFailure, err)
	}
	return res.RowsAffected()
}

func (s *MemoryStore) Tidy(ctx context.Context, before time.Time) (int64, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	var removed int64
	for id, post := range s.posts {
		if !post.CreatedAt.After(before) {
			delete(s.posts, id)
			removed++
		}
	}
	return removed, nil
}

// Tidy on Mongo drops the embedded comments with their posts
func (s *MongoStore) Tidy(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.posts.DeleteMany(ctx, bson.D{{Key: "createdAt", Value: bson.D{{Key: "$lte", Value: before}}}})
	if err != nil {
		return 0, fmt.Errorf("%w: tidy posts: %w", models.ErrPersistFailure, err)
	}
	return res.DeletedCount, nil
}

var _ Tidier = (*SQLStore)(nil)
var _ Tidier = (*MemoryStore)(nil)
var _ Tidier = (*MongoStore)(nil)
