package feeds

import (
	"fmt"
	"math"
	"time"

	"github.com/huandu/go-sqlbuilder"

	"hotfeed/query"
)

const (
	// DecayExponent controls how steeply a post's rank falls with age
	DecayExponent = 1.5
	// MillisPerHour converts the millisecond age into hours
	MillisPerHour = 1000 * 60 * 60
	// HotRankFunc is the SQLite scalar function computing Score
	HotRankFunc = "hot_rank"
)

// Score returns the time-decayed rank of a post:
//
//	(rawScore + 1) / (1 + ageHours)^1.5
//
// Age is measured in whole milliseconds between createdAt and now, the same
// resolution the document and SQL stores work with. A createdAt after now is
// treated as age zero.
func Score(rawScore int, createdAt, now time.Time) float64 {
	return ScoreMillis(int64(rawScore), createdAt.UnixMilli(), now.UnixMilli())
}

// ScoreMillis is Score over unix millisecond timestamps
func ScoreMillis(rawScore, createdAtMs, nowMs int64) float64 {
	return float64(rawScore+1) / math.Pow(1+AgeHours(createdAtMs, nowMs), DecayExponent)
}

// AgeHours returns the age in hours, clamped at zero
func AgeHours(createdAtMs, nowMs int64) float64 {
	age := nowMs - createdAtMs
	if age < 0 {
		return 0
	}
	return float64(age) / MillisPerHour
}

// SQLiteHotScoring ranks with the hot_rank function registered by the db package
type SQLiteHotScoring struct{}

func (s *SQLiteHotScoring) ApplyScoring(sb *sqlbuilder.SelectBuilder, now time.Time) string {
	return fmt.Sprintf("%s(posts.score, posts.created_at, %s)", HotRankFunc, sb.Var(now.UnixMilli()))
}

func (s *SQLiteHotScoring) GetSort() []string {
	return []string{"sort_value DESC", "posts.id ASC"}
}

// PostgresHotScoring inlines the formula since Postgres has POWER and GREATEST
type PostgresHotScoring struct{}

func (s *PostgresHotScoring) ApplyScoring(sb *sqlbuilder.SelectBuilder, now time.Time) string {
	return fmt.Sprintf(
		"(COALESCE(posts.score, 0) + 1)::double precision / POWER(1 + GREATEST(%s::bigint - posts.created_at, 0)::double precision / %d, %.1f)",
		sb.Var(now.UnixMilli()),
		MillisPerHour,
		DecayExponent,
	)
}

func (s *PostgresHotScoring) GetSort() []string {
	return []string{"sort_value DESC", "posts.id ASC"}
}

var _ query.ScoringStrategy = (*SQLiteHotScoring)(nil)
var _ query.ScoringStrategy = (*PostgresHotScoring)(nil)
