package storage

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound means the snapshot or event does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateKey means a snapshot id or event sequence was written twice.
	// Journals and checkpoints are append-only.
	ErrDuplicateKey = errors.New("duplicate key: append-only store does not allow updates")

	ErrInvalidInput = errors.New("invalid input")

	// ErrUnsupportedSchema is returned for snapshots written by a newer
	// schema version than this build understands.
	ErrUnsupportedSchema = fmt.Errorf("%w: unsupported snapshot schema", ErrInvalidInput)
)
