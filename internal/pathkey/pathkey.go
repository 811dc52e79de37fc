// Package pathkey converts between hierarchical page addresses and the flat
// document IDs used by the storage layer.
//
// A Key is a normalized slash-delimited path with no leading or trailing
// slash and no empty segments ("prg/arrays/my-file"). The storage layer
// addresses documents by the same path with every slash replaced by '|'
// ("prg|arrays|my-file"), which keeps one-lookup addressing while remaining
// reversible. The substitution is only bijective while no segment itself
// contains the separator character; segments are not validated against it,
// so callers that accept arbitrary segment text inherit that collision.
package pathkey

import (
	"errors"
	"fmt"
	"strings"
)

// Separator replaces slashes in storage document IDs.
const Separator = "|"

// MaxDepth bounds the number of path segments accepted by Decompose.
// Keeps tree construction depth bounded.
const MaxDepth = 16

var (
	// ErrEmptyName is returned when an input has no page name segment.
	ErrEmptyName = errors.New("page name cannot be empty")
	// ErrTooDeep is returned when an input exceeds MaxDepth segments.
	ErrTooDeep = errors.New("path exceeds maximum depth")
)

// Key is a normalized hierarchical page address. The zero value ("") is the
// root folder.
type Key string

// Root is the folder of pages that live at the top level.
const Root Key = ""

// IsRoot reports whether k addresses the root folder.
func (k Key) IsRoot() bool { return k == Root }

// Segments returns the path segments of k, or nil for the root.
func (k Key) Segments() []string {
	if k == Root {
		return nil
	}
	return strings.Split(string(k), "/")
}

// Name returns the last segment of k, or "" for the root.
func (k Key) Name() string {
	if i := strings.LastIndex(string(k), "/"); i >= 0 {
		return string(k[i+1:])
	}
	return string(k)
}

// Folder returns k with its last segment removed.
func (k Key) Folder() Key {
	if i := strings.LastIndex(string(k), "/"); i >= 0 {
		return k[:i]
	}
	return Root
}

// Decompose splits a user-entered path into its folder and page name.
//
// Leading and trailing whitespace is trimmed and a single trailing slash is
// dropped, so "folder/" decomposes to folder=Root, name="folder". A single
// leading slash is accepted ("/my-page" is a root-level page). The name is
// the text after the last slash and must be non-empty.
func Decompose(raw string) (Key, string, error) {
	s := strings.TrimSpace(raw)
	s = strings.TrimSuffix(s, "/")

	i := strings.LastIndex(s, "/")
	var folder Key
	var name string
	switch {
	case i == -1:
		folder, name = Root, s
	case i == 0:
		folder, name = Root, s[1:]
	default:
		folder, name = normalize(s[:i]), s[i+1:]
	}
	if name == "" {
		return Root, "", ErrEmptyName
	}
	full := Join(folder, name)
	if len(full.Segments()) > MaxDepth {
		return Root, "", fmt.Errorf("%w (%d segments, max %d)", ErrTooDeep, len(full.Segments()), MaxDepth)
	}
	return folder, name, nil
}

// Parse normalizes a raw full path into a Key and validates it has at least
// one non-empty segment.
func Parse(raw string) (Key, error) {
	folder, name, err := Decompose(raw)
	if err != nil {
		return Root, err
	}
	return Join(folder, name), nil
}

// Join appends name to folder. The root folder contributes nothing.
func Join(folder Key, name string) Key {
	if folder.IsRoot() {
		return Key(name)
	}
	return folder + Key("/") + Key(name)
}

// StorageKey returns the flat document ID for k.
func (k Key) StorageKey() string {
	return strings.ReplaceAll(strings.TrimLeft(string(k), "/"), "/", Separator)
}

// FromStorageKey reverses the separator substitution of a document ID.
func FromStorageKey(id string) Key {
	return Key(strings.ReplaceAll(id, Separator, "/"))
}

// DisplayPath formats a folder for display: always wrapped in slashes, so
// Root renders as "/" and "a/b" renders as "/a/b/".
func DisplayPath(folder Key) string {
	s := strings.Trim(string(folder), "/")
	if s == "" {
		return "/"
	}
	return "/" + s + "/"
}

// normalize strips leading and trailing slashes and collapses repeated
// slashes inside a folder path.
func normalize(s string) Key {
	parts := strings.FieldsFunc(s, func(r rune) bool { return r == '/' })
	return Key(strings.Join(parts, "/"))
}
