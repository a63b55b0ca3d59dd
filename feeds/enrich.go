package feeds

import (
	"context"
	"fmt"

	"github.com/samber/lo"

	"hotfeed/models"
	"hotfeed/query"
)

// EnrichAuthors joins the {id, userName} projection of each row's author
// with a single batched user lookup. A row whose author does not resolve
// fails the whole page with a DanglingAuthorError.
func EnrichAuthors(ctx context.Context, users query.UserStore, rows []models.RankedRow) ([]models.RankedPost, error) {
	posts := make([]models.RankedPost, 0, len(rows))
	if len(rows) == 0 {
		return posts, nil
	}

	ids := lo.Uniq(lo.Map(rows, func(row models.RankedRow, _ int) string {
		return row.AuthorId
	}))

	found, err := users.GetUsers(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("%w: lookup authors: %w", models.ErrStoreUnavailable, err)
	}

	for _, row := range rows {
		user, ok := found[row.AuthorId]
		if !ok {
			return nil, &models.DanglingAuthorError{PostId: row.Id, AuthorId: row.AuthorId}
		}
		posts = append(posts, shape(row, models.Author{Id: user.Id, UserName: user.UserName}))
	}

	return posts, nil
}

func shape(row models.RankedRow, author models.Author) models.RankedPost {
	return models.RankedPost{
		Id:           row.Id,
		Title:        row.Title,
		Link:         row.Link,
		Body:         row.Body,
		CreatedAt:    row.CreatedAt,
		UpdatedAt:    row.UpdatedAt,
		Score:        row.Score,
		CommentCount: row.CommentCount,
		Author:       author,
		SortValue:    row.SortValue,
	}
}
