package storage

import (
	"sync"

	"github.com/sposlearning/sposwiki/internal/models"
)

// Cache holds the flat page-summary list that the tree builder and the
// search matcher fold over. It is invalidated on any page mutation. The
// zero value is ready to use.
type Cache struct {
	mu        sync.RWMutex
	summaries []models.PageSummary
	valid     bool
}

// GetSummaries returns the cached summary list, or false when invalid.
func (c *Cache) GetSummaries() ([]models.PageSummary, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.valid {
		return nil, false
	}
	out := make([]models.PageSummary, len(c.summaries))
	copy(out, c.summaries)
	return out, true
}

// SetSummaries replaces the cached summary list.
func (c *Cache) SetSummaries(summaries []models.PageSummary) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.summaries = summaries
	c.valid = true
}

// Invalidate clears the cache.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.summaries = nil
	c.valid = false
}
