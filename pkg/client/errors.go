package client

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a referenced resource does not exist.
var ErrNotFound = errors.New("resource not found")

// KeyError is returned when a named item is missing from a collection.
type KeyError struct {
	Collection string
	Key        string
}

func (e *KeyError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Collection, e.Key)
}

// IndexError is returned when a positional lookup falls outside a
// collection, typically the first element of an empty result.
type IndexError struct {
	Collection string
	Index      int
	Len        int
}

func (e *IndexError) Error() string {
	return fmt.Sprintf("%s index %d out of range [0:%d]", e.Collection, e.Index, e.Len)
}

// first returns items[0] or an IndexError naming collection.
func first[T any](collection string, items []T) (T, error) {
	if len(items) == 0 {
		var zero T
		return zero, &IndexError{Collection: collection, Index: 0, Len: 0}
	}
	return items[0], nil
}
