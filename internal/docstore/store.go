// Package docstore defines the document database abstraction the services
// are written against.
//
// All persistence is delegated to a hosted document database; this package
// specifies the small slice of its surface the application uses and ships an
// in-memory implementation for tests and local development. The hosted
// implementation lives in the surreal subpackage.
package docstore

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a document does not exist.
var ErrNotFound = errors.New("document not found")

// ErrExists is returned by conditional writes when the document already
// exists.
var ErrExists = errors.New("document already exists")

// Document is one stored record with its storage-layer ID.
type Document struct {
	ID     string
	Fields map[string]any
}

// Filter selects documents whose field equals a literal value. The zero
// value matches everything.
type Filter struct {
	Field  string
	Equals any
}

// Order sorts query results by a field.
type Order struct {
	Field string
	Desc  bool
}

// Store is the document database collaborator.
//
// Implementations must return ErrNotFound from Get, Update and Delete when
// the document does not exist. Query with a zero Filter behaves like
// ListAll with ordering applied.
type Store interface {
	// Get fetches a single document by ID.
	Get(ctx context.Context, collection, id string) (Document, error)
	// Set writes a full document, creating or replacing it.
	Set(ctx context.Context, collection, id string, fields map[string]any) error
	// Update merges patch into an existing document.
	Update(ctx context.Context, collection, id string, patch map[string]any) error
	// Delete removes a document.
	Delete(ctx context.Context, collection, id string) error
	// Query returns documents matching filter, sorted by order.
	Query(ctx context.Context, collection string, filter Filter, order Order) ([]Document, error)
	// ListAll returns every document in a collection in storage order.
	ListAll(ctx context.Context, collection string) ([]Document, error)
}
