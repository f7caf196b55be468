package service

import (
	"errors"
	"fmt"
)

var (
	// ErrServiceUnavailable marks a failed call to the completion or embedding service
	ErrServiceUnavailable = errors.New("service unavailable")
	// ErrExtractionDegraded marks a query that fell back to pure semantic search.
	// Search never returns it; it is surfaced through the response instead.
	ErrExtractionDegraded = errors.New("filter extraction degraded")
	// ErrRetrievalFailed is matched by every RetrievalError
	ErrRetrievalFailed = errors.New("retrieval failed")
	// ErrEmptyQuery is returned for blank queries
	ErrEmptyQuery = errors.New("query must not be empty")
)

// RetrievalError is a failure in encoding or index querying. No partial
// results accompany it.
type RetrievalError struct {
	Stage string
	Err   error
}

func (e *RetrievalError) Error() string {
	return fmt.Sprintf("retrieval failed at %s: %v", e.Stage, e.Err)
}

func (e *RetrievalError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrRetrievalFailed) true for any RetrievalError.
func (e *RetrievalError) Is(target error) bool {
	return target == ErrRetrievalFailed
}
