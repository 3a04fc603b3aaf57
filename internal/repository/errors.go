package repository

import "errors"

// ErrNotFound signals a missing record regardless of backing store.
var ErrNotFound = errors.New("record not found")
