package query

import (
	"context"
	"math"
	"time"

	"github.com/huandu/go-sqlbuilder"

	"hotfeed/models"
)

// Page is a validated offset pagination request. Number and Limit are >= 1.
type Page struct {
	Number int
	Limit  int
}

// Offset is the number of ranked records skipped before this page. It is
// only meaningful when OffsetOverflows is false.
func (p Page) Offset() int {
	return p.Limit * (p.Number - 1)
}

// OffsetOverflows reports whether the page starts beyond any int offset.
// Such a page lies past the end of every collection.
func (p Page) OffsetOverflows() bool {
	return p.Limit > 0 && p.Number > 1 && p.Number-1 > math.MaxInt/p.Limit
}

// RankedQuery asks a store for one page of posts ranked at instant Now
type RankedQuery struct {
	Page
	Now time.Time
}

// ScoringStrategy defines how posts should be scored/ranked inside SQL
type ScoringStrategy interface {
	// ApplyScoring returns the sort value expression, adding any args to sb
	ApplyScoring(sb *sqlbuilder.SelectBuilder, now time.Time) string
	// GetSort returns the ORDER BY clause
	GetSort() []string
}

// PostStore is the document persistence boundary for posts and their comments.
// RankedPage runs the ranking aggregation server-side: score every post at
// q.Now, sort by sort value descending then id ascending, skip q.Offset(),
// take q.Limit and count comments of the retained rows only.
type PostStore interface {
	RankedPage(ctx context.Context, q RankedQuery) ([]models.RankedRow, error)
	CountPosts(ctx context.Context) (int64, error)
	GetPost(ctx context.Context, id string) (*models.Post, error)
	InsertPost(ctx context.Context, post *models.Post) error
	UpdatePost(ctx context.Context, id string, edit models.PostEdit, at time.Time) (*models.Post, error)
	DeletePost(ctx context.Context, id string) error
	AddComment(ctx context.Context, postId string, comment *models.Comment) error
}

// UserStore resolves user references. GetUsers omits ids it cannot find.
type UserStore interface {
	GetUsers(ctx context.Context, ids []string) (map[string]models.User, error)
	CreateUser(ctx context.Context, user *models.User) error
}

// BlobStore holds image attachments
type BlobStore interface {
	Put(ctx context.Context, name string, data []byte, meta models.BlobMeta) (string, error)
}
