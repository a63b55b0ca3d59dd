package feeds

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"hotfeed/models"
	"hotfeed/query"
)

func NewPlanner(posts query.PostStore, users query.UserStore, config PlannerConfig) *Planner {
	if config.DefaultLimit < 1 {
		config.DefaultLimit = DefaultLimit
	}
	return &Planner{
		posts:  posts,
		users:  users,
		config: config,
		clock:  time.Now,
	}
}

// Feed parses raw page and limit parameters and returns the ranked page at
// instant now. Malformed parameters fail before the store is contacted.
func (p *Planner) Feed(ctx context.Context, rawPage, rawLimit string, now time.Time) (*models.FeedResponse, error) {
	page, err := ParsePage(rawPage, rawLimit, p.config.DefaultLimit, p.config.MaxLimit)
	if err != nil {
		feedQueries.WithLabelValues(outcome(err)).Inc()
		return nil, err
	}
	return p.Rank(ctx, page, now)
}

// FeedNow is Feed evaluated at the planner clock
func (p *Planner) FeedNow(ctx context.Context, rawPage, rawLimit string) (*models.FeedResponse, error) {
	return p.Feed(ctx, rawPage, rawLimit, p.clock())
}

// Rank returns one page of ranked, enriched posts and the total page count.
// The ranked query and the count run concurrently and are not coordinated,
// so a concurrent insert may skew totalPages against the page contents.
func (p *Planner) Rank(ctx context.Context, page query.Page, now time.Time) (resp *models.FeedResponse, err error) {
	start := time.Now()
	defer func() {
		feedQueries.WithLabelValues(outcome(err)).Inc()
		feedQueryDuration.Observe(time.Since(start).Seconds())
	}()

	if err := ValidatePage(page); err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"page":  page.Number,
		"limit": page.Limit,
		"now":   now.Format(time.RFC3339),
	}).Info("Ranking feed")

	var (
		rows  []models.RankedRow
		total int64
	)

	g, gctx := errgroup.WithContext(ctx)
	if page.OffsetOverflows() {
		// nothing can rank that far down, only the page count is needed
		rows = []models.RankedRow{}
	} else {
		g.Go(func() error {
			var err error
			rows, err = p.posts.RankedPage(gctx, query.RankedQuery{Page: page, Now: now})
			if err != nil {
				return unavailable("rank posts", err)
			}
			return nil
		})
	}
	g.Go(func() error {
		var err error
		total, err = p.posts.CountPosts(gctx)
		if err != nil {
			return unavailable("count posts", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		log.WithFields(log.Fields{
			"page":  page.Number,
			"limit": page.Limit,
			"error": err,
		}).Error("Error ranking feed")
		return nil, err
	}

	posts, err := EnrichAuthors(ctx, p.users, rows)
	if err != nil {
		log.WithFields(log.Fields{
			"page":  page.Number,
			"error": err,
		}).Error("Error joining authors")
		return nil, err
	}

	feedPageSize.Observe(float64(len(posts)))

	return &models.FeedResponse{
		Posts:      posts,
		TotalPages: TotalPages(total, page.Limit),
	}, nil
}

// unavailable tags a store failure unless the store already classified it
func unavailable(op string, err error) error {
	if errors.Is(err, models.ErrStoreUnavailable) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%w: %s: %w", models.ErrStoreUnavailable, op, err)
}
