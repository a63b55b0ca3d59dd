package feeds

import (
	"fmt"
	"strconv"
	"strings"

	"hotfeed/models"
	"hotfeed/query"
)

const (
	DefaultPage  = 1
	DefaultLimit = 5
)

// ParsePage parses raw page and limit query parameters. An empty value takes
// the default; anything else must be a base-10 integer >= 1. maxLimit of 0
// leaves the limit unbounded.
func ParsePage(rawPage, rawLimit string, defaultLimit, maxLimit int) (query.Page, error) {
	if defaultLimit < 1 {
		defaultLimit = DefaultLimit
	}

	page, err := parsePositive("page", rawPage, DefaultPage)
	if err != nil {
		return query.Page{}, err
	}
	limit, err := parsePositive("limit", rawLimit, defaultLimit)
	if err != nil {
		return query.Page{}, err
	}
	if maxLimit > 0 && limit > maxLimit {
		return query.Page{}, fmt.Errorf("%w: limit %d exceeds %d", models.ErrMalformedQuery, limit, maxLimit)
	}

	return query.Page{Number: page, Limit: limit}, nil
}

func parsePositive(name, raw string, fallback int) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s %q is not a number", models.ErrMalformedQuery, name, raw)
	}
	if n < 1 {
		return 0, fmt.Errorf("%w: %s must be at least 1, got %d", models.ErrMalformedQuery, name, n)
	}
	return n, nil
}

// ValidatePage rejects pages a caller built by hand
func ValidatePage(p query.Page) error {
	if p.Number < 1 || p.Limit < 1 {
		return fmt.Errorf("%w: page %d limit %d", models.ErrMalformedQuery, p.Number, p.Limit)
	}
	return nil
}

// TotalPages is ceil(total / limit)
func TotalPages(total int64, limit int) int {
	if total <= 0 || limit < 1 {
		return 0
	}
	pages := total / int64(limit)
	if total%int64(limit) != 0 {
		pages++
	}
	return int(pages)
}
