package feeds

import (
	"fmt"
	"strings"

	"github.com/huandu/go-sqlbuilder"

	"hotfeed/query"
)

// RankedQueryBuilder builds the ranked page query: rank and paginate every
// post in an inner select, then count comments only for the retained rows.
type RankedQueryBuilder struct {
	flavor  sqlbuilder.Flavor
	scoring query.ScoringStrategy
}

func NewRankedQueryBuilder(flavor sqlbuilder.Flavor, scoring query.ScoringStrategy) *RankedQueryBuilder {
	return &RankedQueryBuilder{
		flavor:  flavor,
		scoring: scoring,
	}
}

// ScoringFor picks the scoring strategy matching the SQL flavor
func ScoringFor(flavor sqlbuilder.Flavor) query.ScoringStrategy {
	if flavor == sqlbuilder.PostgreSQL {
		return &PostgresHotScoring{}
	}
	return &SQLiteHotScoring{}
}

// Build returns the SQL and args. Selected columns, in order: id, title, link,
// body, author_id, score, created_at, updated_at, sort_value, comment_count.
func (b *RankedQueryBuilder) Build(q query.RankedQuery) (string, []interface{}) {
	inner := b.flavor.NewSelectBuilder()
	inner.Select(
		"posts.id",
		"posts.title",
		"posts.link",
		"posts.body",
		"posts.author_id",
		"COALESCE(posts.score, 0) AS score",
		"posts.created_at",
		"posts.updated_at",
	)
	inner.SelectMore(fmt.Sprintf("%s AS sort_value", b.scoring.ApplyScoring(inner, q.Now)))
	inner.From("posts")
	inner.OrderBy(b.scoring.GetSort()...)
	inner.Limit(q.Limit)
	inner.Offset(q.Offset())

	outer := b.flavor.NewSelectBuilder()
	outer.Select(
		"p.id",
		"p.title",
		"p.link",
		"p.body",
		"p.author_id",
		"p.score",
		"p.created_at",
		"p.updated_at",
		"p.sort_value",
		"(SELECT COUNT(*) FROM comments WHERE comments.post_id = p.id) AS comment_count",
	)
	outer.From(outer.BuilderAs(inner, "p"))
	outer.OrderBy(outerSort(b.scoring.GetSort())...)

	return outer.Build()
}

// outerSort rewrites the inner ORDER BY terms onto the "p" alias
func outerSort(terms []string) []string {
	out := make([]string, len(terms))
	for i, term := range terms {
		term = strings.TrimPrefix(term, "posts.")
		out[i] = "p." + term
	}
	return out
}
