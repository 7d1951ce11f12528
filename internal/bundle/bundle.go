// Package bundle exposes compressed multi-file containers as keyed
// collections of extractable, replaceable Flash payloads. A bundle indexes
// the container's entry directory, filters entry names against the set of
// recognized payload extensions, and lets callers pull any payload out as a
// detached in-memory reader or swap the bytes of an existing payload while
// leaving every other entry untouched.
package bundle

import (
	"bytes"
	"io"
	"strings"
)

// payloadExtensions lists the entry name suffixes that count as bundle
// members. Matching is case-insensitive; entries with other names are left
// intact inside the container but never indexed.
var payloadExtensions = []string{".swf", ".spl", ".gfx", ".abc"}

// IsPayloadName reports whether name carries a recognized payload extension.
func IsPayloadName(name string) bool {
	lower := strings.ToLower(name)
	for _, ext := range payloadExtensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

// Bundle is a keyed collection of binary payloads backed by a container.
// Implementations are not safe for concurrent use; callers serialize access.
type Bundle interface {
	// Len returns the number of currently indexed keys.
	Len() int

	// Keys returns a sorted snapshot of the current key set. The slice is
	// owned by the caller and not invalidated by later mutations.
	Keys() []string

	// Openable extracts the payload stored under key into memory and
	// returns it as a detached random-access reader. It returns
	// (nil, false, nil) when the key is not a member of the key set;
	// errors are reserved for I/O failures.
	Openable(key string) (*bytes.Reader, bool, error)

	// All extracts every payload, one lookup per key.
	All() (map[string]*bytes.Reader, error)

	// Extension identifies the backing container format.
	Extension() string

	// ReadOnly reports whether the backing storage rejects replacement.
	ReadOnly() bool

	// Put replaces the payload of an existing key, rewriting the whole
	// container transactionally. It returns (false, nil) when the bundle
	// is read-only, the key is empty, or the key is not a member of the
	// key set; Put never adds new keys. Errors are I/O failures only, and
	// leave the original container in place.
	Put(key string, payload io.Reader) (bool, error)

	// Close releases any handle the bundle owns. Bundles built from a
	// caller-supplied stream own nothing and Close is a no-op.
	Close() error
}
