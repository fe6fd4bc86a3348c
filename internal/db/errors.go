package db

import "errors"

// Sentinel errors for backend operations.
var (
	ErrKeyNotFound   = errors.New("db: key not found")
	ErrIndexNotFound = errors.New("db: index not found")
	ErrBadQuery      = errors.New("db: query rejected")
)

// Op names used for error context.
const (
	OpSearch       = "FT.SEARCH"
	OpGet          = "GET"
	OpSet          = "SET"
	OpPing         = "PING"
	OpHTTPSearch   = "POST _search"
	OpClusterState = "GET _cluster/health"
)

// Error wraps an underlying error with the operation name for diagnostics.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string { return e.Op + ": " + e.Err.Error() }
func (e *Error) Unwrap() error { return e.Err }
