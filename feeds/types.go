// Package feeds ranks, paginates and enriches the post feed
package feeds

import (
	"time"

	"hotfeed/query"
)

// PlannerConfig holds the pagination limits for the feed
type PlannerConfig struct {
	DefaultLimit int
	// MaxLimit caps the page size, 0 disables the cap
	MaxLimit int
}

// Planner runs ranked feed queries against a post store and joins authors
type Planner struct {
	posts  query.PostStore
	users  query.UserStore
	config PlannerConfig
	clock  func() time.Time
}
