// Package db error types. Sentinels are checked with errors.Is in calling
// code; wrapQueryError translates backend failures into them.
package db

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/surrealdb/surrealdb.go"
)

var (
	// ErrNotFound indicates the requested record does not exist (or is
	// soft-deleted). Recoverable by the caller; never logged as an error.
	ErrNotFound = errors.New("record not found")

	// ErrConcurrentModification indicates two writers raced on the same
	// record or unique index (e.g. competing moment builds hitting the same
	// chunk index). Callers retry once, then surface.
	ErrConcurrentModification = errors.New("concurrent modification")

	// ErrMalformedInput indicates a bad identifier, date or cursor supplied
	// by the caller. Surfaced as a client error, never silently coerced.
	ErrMalformedInput = errors.New("malformed input")

	// ErrUpstreamTimeout indicates a storage or KMS call exceeded its
	// deadline. Distinct from ErrNotFound; retryable at the caller's
	// discretion with bounded backoff.
	ErrUpstreamTimeout = errors.New("upstream timeout")
)

// wrapQueryError inspects a SurrealDB error and wraps it with the matching
// sentinel. Returns the original error when it matches nothing known.
func wrapQueryError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrUpstreamTimeout, err)
	}

	var queryErr *surrealdb.QueryError
	if errors.As(err, &queryErr) {
		msg := queryErr.Message
		if strings.Contains(msg, "already exists") {
			return fmt.Errorf("%w: %s", ErrConcurrentModification, msg)
		}
		if strings.Contains(msg, "Transaction conflict") {
			return fmt.Errorf("%w: %s", ErrConcurrentModification, msg)
		}
	}
	return err
}
