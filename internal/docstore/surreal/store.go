// Package surreal implements the docstore.Store interface on top of the
// SurrealDB client SDK, the hosted document database used in production.
package surreal

import (
	"context"
	"fmt"
	"strings"

	surrealdb "github.com/surrealdb/surrealdb.go"
	"github.com/surrealdb/surrealdb.go/pkg/marshal"

	"github.com/sposlearning/sposwiki/internal/docstore"
)

// Config holds SurrealDB connection settings.
type Config struct {
	// URL is the websocket endpoint, e.g. ws://localhost:8000/rpc.
	URL string `yaml:"url"`
	// Namespace and Database select the target keyspace.
	Namespace string `yaml:"namespace"`
	Database  string `yaml:"database"`
	// User and Pass authenticate the connection.
	User string `yaml:"user"`
	Pass string `yaml:"pass"`
}

// Store is a docstore.Store backed by SurrealDB.
type Store struct {
	db *surrealdb.DB
}

// Open connects and signs in to SurrealDB.
func Open(cfg Config) (*Store, error) {
	db, err := surrealdb.New(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to surrealdb: %w", err)
	}
	if _, err := db.Signin(map[string]any{"user": cfg.User, "pass": cfg.Pass}); err != nil {
		db.Close()
		return nil, fmt.Errorf("surrealdb signin failed: %w", err)
	}
	if _, err := db.Use(cfg.Namespace, cfg.Database); err != nil {
		db.Close()
		return nil, fmt.Errorf("surrealdb use failed: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying connection.
func (s *Store) Close() {
	s.db.Close()
}

// thing formats a record pointer for a document ID. IDs may contain
// characters outside SurrealDB's plain-identifier set (the path separator
// in particular), so the ID part is always angle-quoted.
func thing(collection, id string) string {
	return collection + ":⟨" + id + "⟩"
}

// parseID strips the collection prefix and angle quotes from a SurrealDB
// record pointer.
func parseID(raw, collection string) string {
	id := strings.TrimPrefix(raw, collection+":")
	id = strings.TrimPrefix(id, "⟨")
	return strings.TrimSuffix(id, "⟩")
}

// Get fetches a single document by ID.
func (s *Store) Get(_ context.Context, collection, id string) (docstore.Document, error) {
	res, err := s.db.Select(thing(collection, id))
	if err != nil {
		return docstore.Document{}, fmt.Errorf("surrealdb select failed: %w", err)
	}
	fields, err := decodeOne(res)
	if err != nil {
		return docstore.Document{}, err
	}
	if fields == nil {
		return docstore.Document{}, docstore.ErrNotFound
	}
	return toDocument(fields, collection), nil
}

// Set writes a full document, creating or replacing it.
func (s *Store) Set(_ context.Context, collection, id string, fields map[string]any) error {
	// Update on a record pointer replaces the whole content and creates
	// the record when absent.
	if _, err := s.db.Update(thing(collection, id), fields); err != nil {
		return fmt.Errorf("surrealdb update failed: %w", err)
	}
	return nil
}

// Update merges patch into an existing document.
func (s *Store) Update(ctx context.Context, collection, id string, patch map[string]any) error {
	if _, err := s.Get(ctx, collection, id); err != nil {
		return err
	}
	if _, err := s.db.Change(thing(collection, id), patch); err != nil {
		return fmt.Errorf("surrealdb change failed: %w", err)
	}
	return nil
}

// Delete removes a document.
func (s *Store) Delete(ctx context.Context, collection, id string) error {
	if _, err := s.Get(ctx, collection, id); err != nil {
		return err
	}
	if _, err := s.db.Delete(thing(collection, id)); err != nil {
		return fmt.Errorf("surrealdb delete failed: %w", err)
	}
	return nil
}

// Query returns documents matching filter, sorted by order. Field names are
// supplied by the application, never by end users, so they are interpolated
// directly into the statement; values go through $vars.
func (s *Store) Query(_ context.Context, collection string, filter docstore.Filter, order docstore.Order) ([]docstore.Document, error) {
	sql := "SELECT * FROM type::table($tb)"
	vars := map[string]any{"tb": collection}
	if filter.Field != "" {
		sql += " WHERE " + filter.Field + " = $val"
		vars["val"] = filter.Equals
	}
	if order.Field != "" {
		dir := "ASC"
		if order.Desc {
			dir = "DESC"
		}
		sql += " ORDER BY " + order.Field + " " + dir
	}
	res, err := s.db.Query(sql, vars)
	if err != nil {
		return nil, fmt.Errorf("surrealdb query failed: %w", err)
	}
	var rows []marshal.RawQuery[[]map[string]any]
	if err := marshal.UnmarshalRaw(res, &rows); err != nil {
		return nil, fmt.Errorf("failed to decode surrealdb response: %w", err)
	}
	var docs []docstore.Document
	for _, row := range rows {
		for _, fields := range row.Result {
			docs = append(docs, toDocument(fields, collection))
		}
	}
	return docs, nil
}

// ListAll returns every document in a collection in storage order.
func (s *Store) ListAll(ctx context.Context, collection string) ([]docstore.Document, error) {
	return s.Query(ctx, collection, docstore.Filter{}, docstore.Order{})
}

// decodeOne normalizes a Select result, which the SDK may return as a bare
// object or a single-element list, into one field map. nil means no record.
func decodeOne(res any) (map[string]any, error) {
	if res == nil {
		return nil, nil
	}
	if list, ok := res.([]any); ok {
		if len(list) == 0 {
			return nil, nil
		}
		res = list[0]
	}
	var fields map[string]any
	if err := marshal.Unmarshal(res, &fields); err != nil {
		return nil, fmt.Errorf("failed to decode surrealdb record: %w", err)
	}
	if len(fields) == 0 {
		return nil, nil
	}
	return fields, nil
}

// toDocument lifts the SurrealDB id field out of the record body.
func toDocument(fields map[string]any, collection string) docstore.Document {
	id, _ := fields["id"].(string)
	delete(fields, "id")
	return docstore.Document{ID: parseID(id, collection), Fields: fields}
}
