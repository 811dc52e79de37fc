package docstore

import (
	"context"
	"maps"
	"sort"
	"sync"
	"time"
)

// MemStore is an in-memory Store. It preserves insertion order for
// unordered queries, which stands in for the arbitrary but stable order a
// hosted database returns.
type MemStore struct {
	mu          sync.RWMutex
	collections map[string]*memCollection
}

type memCollection struct {
	docs  map[string]map[string]any
	order []string
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{collections: make(map[string]*memCollection)}
}

func (s *MemStore) collection(name string) *memCollection {
	c, ok := s.collections[name]
	if !ok {
		c = &memCollection{docs: make(map[string]map[string]any)}
		s.collections[name] = c
	}
	return c
}

// Get fetches a single document by ID.
func (s *MemStore) Get(_ context.Context, collection, id string) (Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.collections[collection]
	if !ok {
		return Document{}, ErrNotFound
	}
	fields, ok := c.docs[id]
	if !ok {
		return Document{}, ErrNotFound
	}
	return Document{ID: id, Fields: maps.Clone(fields)}, nil
}

// Set writes a full document, creating or replacing it.
func (s *MemStore) Set(_ context.Context, collection, id string, fields map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.collection(collection)
	if _, exists := c.docs[id]; !exists {
		c.order = append(c.order, id)
	}
	c.docs[id] = maps.Clone(fields)
	return nil
}

// Update merges patch into an existing document.
func (s *MemStore) Update(_ context.Context, collection, id string, patch map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.collections[collection]
	if !ok {
		return ErrNotFound
	}
	fields, ok := c.docs[id]
	if !ok {
		return ErrNotFound
	}
	maps.Copy(fields, patch)
	return nil
}

// Delete removes a document.
func (s *MemStore) Delete(_ context.Context, collection, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.collections[collection]
	if !ok {
		return ErrNotFound
	}
	if _, ok := c.docs[id]; !ok {
		return ErrNotFound
	}
	delete(c.docs, id)
	for i, docID := range c.order {
		if docID == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	return nil
}

// Query returns documents matching filter, sorted by order.
func (s *MemStore) Query(ctx context.Context, collection string, filter Filter, order Order) ([]Document, error) {
	docs, err := s.ListAll(ctx, collection)
	if err != nil {
		return nil, err
	}
	if filter.Field != "" {
		matched := docs[:0]
		for _, d := range docs {
			if d.Fields[filter.Field] == filter.Equals {
				matched = append(matched, d)
			}
		}
		docs = matched
	}
	if order.Field != "" {
		sort.SliceStable(docs, func(i, j int) bool {
			less := fieldLess(docs[i].Fields[order.Field], docs[j].Fields[order.Field])
			if order.Desc {
				return !less && !fieldEqual(docs[i].Fields[order.Field], docs[j].Fields[order.Field])
			}
			return less
		})
	}
	return docs, nil
}

// ListAll returns every document in a collection in insertion order.
func (s *MemStore) ListAll(_ context.Context, collection string) ([]Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.collections[collection]
	if !ok {
		return nil, nil
	}
	docs := make([]Document, 0, len(c.order))
	for _, id := range c.order {
		docs = append(docs, Document{ID: id, Fields: maps.Clone(c.docs[id])})
	}
	return docs, nil
}

func fieldLess(a, b any) bool {
	switch av := a.(type) {
	case time.Time:
		bv, ok := b.(time.Time)
		return ok && av.Before(bv)
	case string:
		bv, ok := b.(string)
		return ok && av < bv
	case int64:
		bv, ok := b.(int64)
		return ok && av < bv
	case float64:
		bv, ok := b.(float64)
		return ok && av < bv
	}
	return false
}

func fieldEqual(a, b any) bool {
	if av, ok := a.(time.Time); ok {
		bv, ok := b.(time.Time)
		return ok && av.Equal(bv)
	}
	return a == b
}
