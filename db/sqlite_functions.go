package db

import (
	"database/sql/driver"
	"fmt"

	"modernc.org/sqlite"

	"hotfeed/feeds"
)

func init() {
	// hot_rank(score, created_at_ms, now_ms) keeps SQLite ranking on the same
	// code path as the in-memory store.
	sqlite.MustRegisterDeterministicScalarFunction(feeds.HotRankFunc, 3, hotRank)
}

func hotRank(ctx *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
	score, err := int64Arg(args[0], 0)
	if err != nil {
		return nil, fmt.Errorf("%s score: %w", feeds.HotRankFunc, err)
	}
	// timestamps before 1970 are negative and still rank
	if args[1] == nil {
		return nil, fmt.Errorf("%s created_at: NULL", feeds.HotRankFunc)
	}
	createdAt, err := int64Arg(args[1], 0)
	if err != nil {
		return nil, fmt.Errorf("%s created_at: %w", feeds.HotRankFunc, err)
	}
	if args[2] == nil {
		return nil, fmt.Errorf("%s now: NULL", feeds.HotRankFunc)
	}
	now, err := int64Arg(args[2], 0)
	if err != nil {
		return nil, fmt.Errorf("%s now: %w", feeds.HotRankFunc, err)
	}
	return feeds.ScoreMillis(score, createdAt, now), nil
}

// int64Arg converts a SQLite value, returning fallback for NULL
func int64Arg(v driver.Value, fallback int64) (int64, error) {
	switch v := v.(type) {
	case nil:
		return fallback, nil
	case int64:
		return v, nil
	case float64:
		return int64(v), nil
	default:
		return 0, fmt.Errorf("unexpected type %T", v)
	}
}
