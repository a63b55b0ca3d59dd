package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"hotfeed/models"
)

func (s *SQLStore) CreateUser(ctx context.Context, user *models.User) error {
	if user.Id == "" {
		user.Id = uuid.NewString()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	log.WithFields(log.Fields{
		"id":       user.Id,
		"userName": user.UserName,
	}).Info("Creating user")

	ib := s.flavor.NewInsertBuilder()
	ib.InsertInto("users").
		Cols("id", "user_name", "email", "created_at").
		Values(user.Id, user.UserName, user.Email, user.CreatedAt.UnixMilli())

	stmt, args := ib.Build()
	if _, err := s.db.ExecContext(ctx, stmt, args...); err != nil {
		return fmt.Errorf("%w: insert user: %w", models.ErrPersistFailure, err)
	}
	return nil
}

// Put stores an image blob and returns its id
func (s *SQLStore) Put(ctx context.Context, name string, data []byte, meta models.BlobMeta) (string, error) {
	id := uuid.NewString()

	log.WithFields(log.Fields{
		"id":       id,
		"name":     name,
		"mimeType": meta.MimeType,
		"size":     meta.Size,
	}).Info("Storing blob")

	ib := s.flavor.NewInsertBuilder()
	ib.InsertInto("blobs").
		Cols("id", "name", "mime_type", "size", "data", "created_at").
		Values(id, name, meta.MimeType, meta.Size, data, time.Now().UnixMilli())

	stmt, args := ib.Build()
	if _, err := s.db.ExecContext(ctx, stmt, args...); err != nil {
		return "", fmt.Errorf("%w: insert blob: %w", models.ErrPersistFailure, err)
	}
	return id, nil
}
