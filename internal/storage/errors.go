package storage

import "errors"

// ErrPositionNotFound is returned when no ledger entry has the requested ID
var ErrPositionNotFound = errors.New("position not found")
