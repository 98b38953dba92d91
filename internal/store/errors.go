package store

import "errors"

// ErrNotFound is returned when a record does not exist or is not visible to
// the requesting owner.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when a write would violate a uniqueness rule.
var ErrConflict = errors.New("conflict")

// ErrStatusMismatch is returned by a conditional update when the record
// exists but its status no longer matches the expected one.
var ErrStatusMismatch = errors.New("status mismatch")
