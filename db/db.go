package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	sqlbuilder "github.com/huandu/go-sqlbuilder"
	log "github.com/sirupsen/logrus"

	"hotfeed/feeds"
	"hotfeed/models"
	"hotfeed/query"
)

const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
)

// SQLStore keeps posts, comments, users and blobs in SQLite or PostgreSQL
type SQLStore struct {
	db     *sql.DB
	flavor sqlbuilder.Flavor
	ranked *feeds.RankedQueryBuilder
}

func NewSQLStore(db *sql.DB, flavor sqlbuilder.Flavor) *SQLStore {
	return &SQLStore{
		db:     db,
		flavor: flavor,
		ranked: feeds.NewRankedQueryBuilder(flavor, feeds.ScoringFor(flavor)),
	}
}

// OpenSQLite opens the SQLite database at path
func OpenSQLite(path string) (*SQLStore, error) {
	db, err := connection(path)
	if err != nil {
		return nil, err
	}
	return NewSQLStore(db, sqlbuilder.SQLite), nil
}

// OpenPostgres opens a PostgreSQL database through pgx
func OpenPostgres(dsn string) (*SQLStore, error) {
	db, err := postgresConnection(dsn)
	if err != nil {
		return nil, err
	}
	return NewSQLStore(db, sqlbuilder.PostgreSQL), nil
}

func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

// Write operations

func (s *SQLStore) InsertPost(ctx context.Context, post *models.Post) error {
	if post.Id == "" {
		post.Id = uuid.NewString()
	}

	log.WithFields(log.Fields{
		"id":     post.Id,
		"author": post.AuthorId,
	}).Info("Creating post")

	ib := s.flavor.NewInsertBuilder()
	ib.InsertInto("posts").Cols(
		"id", "title", "link", "body", "author_id", "score",
		"created_at", "updated_at", "image_id", "image_mime_type", "image_size",
	)
	var imageId, imageMime sql.NullString
	var imageSize sql.NullInt64
	if post.Image != nil {
		imageId = sql.NullString{String: post.Image.Id, Valid: true}
		imageMime = sql.NullString{String: post.Image.MimeType, Valid: true}
		imageSize = sql.NullInt64{Int64: post.Image.Size, Valid: true}
	}
	ib.Values(
		post.Id, post.Title, post.Link, post.Body, post.AuthorId, post.Score,
		post.CreatedAt.UnixMilli(), post.UpdatedAt.UnixMilli(), imageId, imageMime, imageSize,
	)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin: %w", models.ErrStoreUnavailable, err)
	}
	defer tx.Rollback()

	stmt, args := ib.Build()
	if _, err := tx.ExecContext(ctx, stmt, args...); err != nil {
		return fmt.Errorf("%w: insert post: %w", models.ErrPersistFailure, err)
	}

	for i := range post.Comments {
		if err := s.insertComment(ctx, tx, post.Id, &post.Comments[i], i); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit post: %w", models.ErrPersistFailure, err)
	}
	return nil
}

func (s *SQLStore) UpdatePost(ctx context.Context, id string, edit models.PostEdit, at time.Time) (*models.Post, error) {
	ub := s.flavor.NewUpdateBuilder()
	ub.Update("posts").Set(
		ub.Assign("title", edit.Title),
		ub.Assign("link", edit.Link),
		ub.Assign("body", edit.Body),
		ub.Assign("updated_at", at.UnixMilli()),
	).Where(ub.Equal("id", id))

	stmt, args := ub.Build()
	res, err := s.db.ExecContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: update post: %w", models.ErrPersistFailure, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, fmt.Errorf("post %s: %w", id, models.ErrNotFound)
	}

	return s.GetPost(ctx, id)
}

func (s *SQLStore) DeletePost(ctx context.Context, id string) error {
	log.WithFields(log.Fields{
		"id": id,
	}).Info("Deleting post")

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin: %w", models.ErrStoreUnavailable, err)
	}
	defer tx.Rollback()

	// Comments go first so the delete does not depend on foreign key enforcement
	dc := s.flavor.NewDeleteBuilder()
	dc.DeleteFrom("comments").Where(dc.Equal("post_id", id))
	stmt, args := dc.Build()
	if _, err := tx.ExecContext(ctx, stmt, args...); err != nil {
		return fmt.Errorf("%w: delete comments: %w", models.ErrPersistFailure, err)
	}

	dp := s.flavor.NewDeleteBuilder()
	dp.DeleteFrom("posts").Where(dp.Equal("id", id))
	stmt, args = dp.Build()
	res, err := tx.ExecContext(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("%w: delete post: %w", models.ErrPersistFailure, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("post %s: %w", id, models.ErrNotFound)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit delete: %w", models.ErrPersistFailure, err)
	}
	return nil
}

func (s *SQLStore) AddComment(ctx context.Context, postId string, comment *models.Comment) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin: %w", models.ErrStoreUnavailable, err)
	}
	defer tx.Rollback()

	exists := s.flavor.NewSelectBuilder()
	exists.Select("COUNT(*)").From("posts").Where(exists.Equal("id", postId))
	stmt, args := exists.Build()
	var found int
	if err := tx.QueryRowContext(ctx, stmt, args...).Scan(&found); err != nil {
		return fmt.Errorf("%w: find post: %w", models.ErrStoreUnavailable, err)
	}
	if found == 0 {
		return fmt.Errorf("post %s: %w", postId, models.ErrNotFound)
	}

	count := s.flavor.NewSelectBuilder()
	count.Select("COUNT(*)").From("comments").Where(count.Equal("post_id", postId))
	stmt, args = count.Build()
	var position int
	if err := tx.QueryRowContext(ctx, stmt, args...).Scan(&position); err != nil {
		return fmt.Errorf("%w: count comments: %w", models.ErrStoreUnavailable, err)
	}

	if err := s.insertComment(ctx, tx, postId, comment, position); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit comment: %w", models.ErrPersistFailure, err)
	}
	return nil
}

func (s *SQLStore) insertComment(ctx context.Context, tx *sql.Tx, postId string, comment *models.Comment, position int) error {
	if comment.Id == "" {
		comment.Id = uuid.NewString()
	}

	ib := s.flavor.NewInsertBuilder()
	ib.InsertInto("comments").
		Cols("id", "post_id", "author_id", "body", "created_at", "position").
		Values(comment.Id, postId, comment.AuthorId, comment.Body, comment.CreatedAt.UnixMilli(), position)

	stmt, args := ib.Build()
	if _, err := tx.ExecContext(ctx, stmt, args...); err != nil {
		return fmt.Errorf("%w: insert comment: %w", models.ErrPersistFailure, err)
	}
	return nil
}

var _ query.PostStore = (*SQLStore)(nil)
var _ query.UserStore = (*SQLStore)(nil)
var _ query.BlobStore = (*SQLStore)(nil)
