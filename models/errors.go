package models

import (
	"errors"
	"fmt"
)

var ErrMalformedQuery = errors.New("malformed query")
var ErrNotFound = errors.New("not found")
var ErrForbidden = errors.New("not authorized")
var ErrUnauthorized = errors.New("no authenticated user")
var ErrInvalidPost = errors.New("invalid post")
var ErrStoreUnavailable = errors.New("store unavailable")
var ErrPersistFailure = errors.New("failed to persist")

// DanglingAuthorError reports a post whose author reference does not resolve
// to a user. It matches ErrNotFound but is a data-integrity fault, not a
// missing resource the client asked for.
type DanglingAuthorError struct {
	PostId   string
	AuthorId string
}

func (e *DanglingAuthorError) Error() string {
	return fmt.Sprintf("post %s references unknown author %s", e.PostId, e.AuthorId)
}

func (e *DanglingAuthorError) Is(target error) bool {
	return target == ErrNotFound
}
