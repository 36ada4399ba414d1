package errorutil

import "errors"

// ErrDataIntegrity is a base error type to use for failures that are due to
// unrecoverable data integrity issues.
var ErrDataIntegrity = errors.New("data integrity error")

// ErrNotFound represents lookups of documents, processes, nodes or functions
// that do not exist.
var ErrNotFound = errors.New("not found")

// ErrInvalidRequest represents requests with missing or malformed parameters.
var ErrInvalidRequest = errors.New("invalid request")
