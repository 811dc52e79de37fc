// Package server implements the HTTP API: public page reads, search and
// feedback submission, plus the authenticated editing surface.
package server

import (
	"net/http"

	"github.com/sposlearning/sposwiki/internal/auth"
	"github.com/sposlearning/sposwiki/internal/notify"
	"github.com/sposlearning/sposwiki/internal/render"
	"github.com/sposlearning/sposwiki/internal/server/ratelimit"
	"github.com/sposlearning/sposwiki/internal/storage"
)

// Server bundles the services behind the HTTP handlers.
type Server struct {
	pages    *storage.PageService
	search   *storage.SearchService
	feedback *storage.FeedbackService
	renderer *render.Renderer
	verifier *auth.Verifier
	notifier *notify.Notifier

	readLimit  *ratelimit.Limiter
	writeLimit *ratelimit.Limiter
}

// Options carries the optional collaborators.
type Options struct {
	Notifier    *notify.Notifier
	ReadPerMin  int
	WritePerMin int
	ReadBurst   int
	WriteBurst  int
}

// New creates a server over the given services.
func New(pages *storage.PageService, search *storage.SearchService, feedback *storage.FeedbackService, renderer *render.Renderer, verifier *auth.Verifier, opts Options) *Server {
	readBurst := opts.ReadBurst
	if readBurst == 0 {
		readBurst = 50
	}
	writeBurst := opts.WriteBurst
	if writeBurst == 0 {
		writeBurst = 10
	}
	return &Server{
		pages:      pages,
		search:     search,
		feedback:   feedback,
		renderer:   renderer,
		verifier:   verifier,
		notifier:   opts.Notifier,
		readLimit:  ratelimit.NewLimiter(opts.ReadPerMin, readBurst),
		writeLimit: ratelimit.NewLimiter(opts.WritePerMin, writeBurst),
	}
}

// Close releases the rate limiter goroutines.
func (s *Server) Close() {
	s.readLimit.Close()
	s.writeLimit.Close()
}

// Router builds the HTTP routing table.
func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	// Public surface.
	mux.Handle("GET /api/pages/{path...}", s.limited(s.readLimit, s.handleGetPage))
	mux.Handle("GET /api/tree", s.limited(s.readLimit, s.handleTree))
	mux.Handle("GET /api/search", s.limited(s.readLimit, s.handleSearch))
	mux.Handle("POST /api/feedback", s.limited(s.writeLimit, s.handleSubmitFeedback))

	// Editing surface.
	mux.Handle("POST /api/pages", s.admin(s.writeLimit, s.handleCreatePage))
	mux.Handle("PUT /api/pages/{path...}", s.admin(s.writeLimit, s.handleUpdatePage))
	mux.Handle("DELETE /api/pages/{path...}", s.admin(s.writeLimit, s.handleDeletePage))

	// Feedback inbox.
	mux.Handle("GET /api/feedback", s.admin(s.readLimit, s.handleListFeedback))
	mux.Handle("GET /api/feedback/{id}", s.admin(s.readLimit, s.handleGetFeedback))
	mux.Handle("PUT /api/feedback/{id}/resolved", s.admin(s.writeLimit, s.handleResolveFeedback))
	mux.Handle("DELETE /api/feedback/{id}", s.admin(s.writeLimit, s.handleDeleteFeedback))

	// Push notifications.
	mux.Handle("POST /api/notifications/subscribe", s.admin(s.writeLimit, s.handleSubscribe))
	mux.Handle("DELETE /api/notifications/subscribe", s.admin(s.writeLimit, s.handleUnsubscribe))

	mux.HandleFunc("GET /api/health", s.handleHealth)

	return s.logged(mux)
}
