package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/samber/lo"
	log "github.com/sirupsen/logrus"

	"hotfeed/models"
	"hotfeed/query"
)

// RankedPage ranks every post at q.Now inside the database and returns the
// requested page with comment counts for the retained rows only.
func (s *SQLStore) RankedPage(ctx context.Context, q query.RankedQuery) ([]models.RankedRow, error) {
	if q.OffsetOverflows() {
		return []models.RankedRow{}, nil
	}
	stmt, args := s.ranked.Build(q)
	log.WithFields(log.Fields{
		"sql":  stmt,
		"args": args,
	}).Debug("Generated SQL query")

	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: query error: %w", models.ErrStoreUnavailable, err)
	}
	defer rows.Close()

	posts := []models.RankedRow{}
	for rows.Next() {
		var row models.RankedRow
		var createdAt, updatedAt int64
		if err := rows.Scan(
			&row.Id, &row.Title, &row.Link, &row.Body, &row.AuthorId, &row.Score,
			&createdAt, &updatedAt, &row.SortValue, &row.CommentCount,
		); err != nil {
			return nil, fmt.Errorf("%w: scan error: %w", models.ErrStoreUnavailable, err)
		}
		row.CreatedAt = time.UnixMilli(createdAt).UTC()
		row.UpdatedAt = time.UnixMilli(updatedAt).UTC()
		posts = append(posts, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: rows error: %w", models.ErrStoreUnavailable, err)
	}

	return posts, nil
}

func (s *SQLStore) CountPosts(ctx context.Context) (int64, error) {
	sb := s.flavor.NewSelectBuilder()
	sb.Select("COUNT(*)").From("posts")
	stmt, args := sb.Build()

	var count int64
	if err := s.db.QueryRowContext(ctx, stmt, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("%w: count error: %w", models.ErrStoreUnavailable, err)
	}
	return count, nil
}

func (s *SQLStore) GetPost(ctx context.Context, id string) (*models.Post, error) {
	sb := s.flavor.NewSelectBuilder()
	sb.Select(
		"id", "title", "link", "body", "author_id", "COALESCE(score, 0)",
		"created_at", "updated_at", "image_id", "image_mime_type", "image_size",
	).From("posts").Where(sb.Equal("id", id))
	stmt, args := sb.Build()

	var post models.Post
	var createdAt, updatedAt int64
	var imageId, imageMime sql.NullString
	var imageSize sql.NullInt64
	err := s.db.QueryRowContext(ctx, stmt, args...).Scan(
		&post.Id, &post.Title, &post.Link, &post.Body, &post.AuthorId, &post.Score,
		&createdAt, &updatedAt, &imageId, &imageMime, &imageSize,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("post %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: query error: %w", models.ErrStoreUnavailable, err)
	}
	post.CreatedAt = time.UnixMilli(createdAt).UTC()
	post.UpdatedAt = time.UnixMilli(updatedAt).UTC()
	if imageId.Valid {
		post.Image = &models.Image{Id: imageId.String, MimeType: imageMime.String, Size: imageSize.Int64}
	}

	comments, err := s.comments(ctx, id)
	if err != nil {
		return nil, err
	}
	post.Comments = comments

	return &post, nil
}

func (s *SQLStore) comments(ctx context.Context, postId string) ([]models.Comment, error) {
	sb := s.flavor.NewSelectBuilder()
	sb.Select("id", "author_id", "body", "created_at").
		From("comments").
		Where(sb.Equal("post_id", postId)).
		OrderBy("position ASC", "id ASC")
	stmt, args := sb.Build()

	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: query error: %w", models.ErrStoreUnavailable, err)
	}
	defer rows.Close()

	comments := make([]models.Comment, 0)
	for rows.Next() {
		var comment models.Comment
		var createdAt int64
		if err := rows.Scan(&comment.Id, &comment.AuthorId, &comment.Body, &createdAt); err != nil {
			return nil, fmt.Errorf("%w: scan error: %w", models.ErrStoreUnavailable, err)
		}
		comment.CreatedAt = time.UnixMilli(createdAt).UTC()
		comments = append(comments, comment)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: rows error: %w", models.ErrStoreUnavailable, err)
	}
	return comments, nil
}

func (s *SQLStore) GetUsers(ctx context.Context, ids []string) (map[string]models.User, error) {
	users := make(map[string]models.User, len(ids))
	if len(ids) == 0 {
		return users, nil
	}

	sb := s.flavor.NewSelectBuilder()
	sb.Select("id", "user_name", "email", "created_at").
		From("users").
		Where(sb.In("id", lo.ToAnySlice(lo.Uniq(ids))...))
	stmt, args := sb.Build()

	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: query error: %w", models.ErrStoreUnavailable, err)
	}
	defer rows.Close()

	for rows.Next() {
		var user models.User
		var createdAt int64
		if err := rows.Scan(&user.Id, &user.UserName, &user.Email, &createdAt); err != nil {
			return nil, fmt.Errorf("%w: scan error: %w", models.ErrStoreUnavailable, err)
		}
		user.CreatedAt = time.UnixMilli(createdAt).UTC()
		users[user.Id] = user
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: rows error: %w", models.ErrStoreUnavailable, err)
	}

	return users, nil
}
