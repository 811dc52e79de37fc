package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/maruel/ksid"

	"github.com/sposlearning/sposwiki/internal/docstore"
	"github.com/sposlearning/sposwiki/internal/models"
)

// FeedbackCollection is the document collection holding feedback messages.
const FeedbackCollection = "feedback"

// Placeholder values applied to omitted feedback fields.
const (
	AnonymousName  = "Anonymous"
	NoContact      = "Not provided"
	GeneralSubject = "General"
)

// GeoResolver maps a client IP to a country code for inbox triage.
type GeoResolver interface {
	CountryCode(ip string) string
}

// Notifier pushes a heads-up about new feedback to subscribed admins.
type Notifier interface {
	NotifyFeedback(ctx context.Context, fb *models.FeedbackRecord)
}

// RateLimiter throttles submissions per client key.
type RateLimiter interface {
	Allow(key string) bool
}

// FeedbackService handles feedback inbox business logic.
type FeedbackService struct {
	store    docstore.Store
	geo      GeoResolver
	notifier Notifier
	limiter  RateLimiter
}

// NewFeedbackService creates a new feedback service. geo, notifier and
// limiter are optional.
func NewFeedbackService(store docstore.Store, geo GeoResolver, notifier Notifier, limiter RateLimiter) *FeedbackService {
	return &FeedbackService{store: store, geo: geo, notifier: notifier, limiter: limiter}
}

// SubmitFeedback is an inbound feedback form.
type SubmitFeedback struct {
	Title       string
	Name        string
	Contact     string
	Message     string
	Page        string
	RelatedPage string
	IP          string
	UserAgent   string
	UID         string
}

// Submit stores a feedback message. The message body is required; every
// other identity field falls back to a placeholder so the inbox never
// shows blanks.
func (s *FeedbackService) Submit(ctx context.Context, req SubmitFeedback) (*models.FeedbackRecord, error) {
	if strings.TrimSpace(req.Message) == "" {
		return nil, ErrMessageEmpty
	}
	if s.limiter != nil && !s.limiter.Allow(req.IP) {
		return nil, ErrRateLimited
	}
	fb := &models.FeedbackRecord{
		ID:          ksid.NewID().String(),
		Title:       orDefault(req.Title, GeneralSubject),
		Page:        req.Page,
		Name:        orDefault(req.Name, AnonymousName),
		Contact:     orDefault(req.Contact, NoContact),
		Message:     req.Message,
		RelatedPage: req.RelatedPage,
		IP:          req.IP,
		UserAgent:   req.UserAgent,
		Timestamp:   time.Now(),
		UID:         req.UID,
	}
	if s.geo != nil && fb.IP != "" {
		fb.Country = s.geo.CountryCode(fb.IP)
	}
	if err := s.store.Set(ctx, FeedbackCollection, fb.ID, fb.Encode()); err != nil {
		return nil, fmt.Errorf("failed to save feedback: %w", err)
	}
	if s.notifier != nil {
		s.notifier.NotifyFeedback(ctx, fb)
	}
	return fb, nil
}

// ListFeedback selects and orders the inbox.
type ListFeedback struct {
	HideResolved bool
	OldestFirst  bool
}

// List returns the feedback inbox ordered by submission time, newest
// first unless OldestFirst is set.
func (s *FeedbackService) List(ctx context.Context, opts ListFeedback) ([]*models.FeedbackRecord, error) {
	docs, err := s.store.Query(ctx, FeedbackCollection,
		docstore.Filter{}, docstore.Order{Field: "timestamp", Desc: !opts.OldestFirst})
	if err != nil {
		return nil, fmt.Errorf("failed to list feedback: %w", err)
	}
	out := make([]*models.FeedbackRecord, 0, len(docs))
	for _, doc := range docs {
		fb := models.DecodeFeedback(doc.ID, doc.Fields)
		if opts.HideResolved && fb.Resolved {
			continue
		}
		out = append(out, fb)
	}
	return out, nil
}

// Get retrieves one feedback message by ID.
func (s *FeedbackService) Get(ctx context.Context, id string) (*models.FeedbackRecord, error) {
	doc, err := s.store.Get(ctx, FeedbackCollection, id)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return nil, ErrFeedbackNotFound
		}
		return nil, fmt.Errorf("feedback lookup failed: %w", err)
	}
	return models.DecodeFeedback(doc.ID, doc.Fields), nil
}

// SetResolved flips the resolved flag on a feedback message.
func (s *FeedbackService) SetResolved(ctx context.Context, id string, resolved bool) error {
	err := s.store.Update(ctx, FeedbackCollection, id, map[string]any{"resolved": resolved})
	if errors.Is(err, docstore.ErrNotFound) {
		return ErrFeedbackNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to update feedback: %w", err)
	}
	slog.InfoContext(ctx, "Feedback resolution changed", "id", id, "resolved", resolved)
	return nil
}

// Delete removes a feedback message.
func (s *FeedbackService) Delete(ctx context.Context, id string) error {
	err := s.store.Delete(ctx, FeedbackCollection, id)
	if errors.Is(err, docstore.ErrNotFound) {
		return ErrFeedbackNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to delete feedback: %w", err)
	}
	return nil
}

func orDefault(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}
