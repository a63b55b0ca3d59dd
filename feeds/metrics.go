package feeds

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"hotfeed/models"
)

var (
	feedQueries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hotfeed_feed_queries_total",
		Help: "Ranked feed queries by outcome",
	}, []string{"outcome"})

	feedQueryDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "hotfeed_feed_query_duration_seconds",
		Help:    "Duration of ranked feed queries including the count and author join",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms up to ~2s
	})

	feedPageSize = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "hotfeed_feed_page_size",
		Help:    "Number of posts returned per feed page",
		Buckets: prometheus.LinearBuckets(0, 5, 10),
	})
)

func outcome(err error) string {
	var dangling *models.DanglingAuthorError
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, models.ErrMalformedQuery):
		return "malformed"
	case errors.As(err, &dangling):
		return "dangling_author"
	case errors.Is(err, models.ErrStoreUnavailable):
		return "store_unavailable"
	default:
		return "error"
	}
}
