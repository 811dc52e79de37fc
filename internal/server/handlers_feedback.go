package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/sposlearning/sposwiki/internal/models"
	"github.com/sposlearning/sposwiki/internal/server/dto"
	"github.com/sposlearning/sposwiki/internal/storage"
)

func (s *Server) handleSubmitFeedback(w http.ResponseWriter, r *http.Request) error {
	var body dto.SubmitFeedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		return dto.BadRequest("unreadable request body")
	}
	fb, err := s.feedback.Submit(r.Context(), storage.SubmitFeedback{
		Title:       body.Title,
		Name:        body.Name,
		Contact:     body.Contact,
		Message:     body.Message,
		Page:        body.Page,
		RelatedPage: body.RelatedPage,
		IP:          clientIP(r),
		UserAgent:   r.UserAgent(),
		UID:         viewerFrom(r.Context()).UID(),
	})
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusCreated, feedbackResponse(fb))
}

func (s *Server) handleListFeedback(w http.ResponseWriter, r *http.Request) error {
	q := r.URL.Query()
	records, err := s.feedback.List(r.Context(), storage.ListFeedback{
		HideResolved: q.Get("hideResolved") == "true",
		OldestFirst:  q.Get("order") == "asc",
	})
	if err != nil {
		return err
	}
	resp := make([]dto.FeedbackResponse, len(records))
	for i, fb := range records {
		resp[i] = feedbackResponse(fb)
	}
	return writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetFeedback(w http.ResponseWriter, r *http.Request) error {
	fb, err := s.feedback.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, feedbackResponse(fb))
}

func (s *Server) handleResolveFeedback(w http.ResponseWriter, r *http.Request) error {
	var body dto.ResolveFeedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		return dto.BadRequest("unreadable request body")
	}
	if err := s.feedback.SetResolved(r.Context(), r.PathValue("id"), body.Resolved); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

func (s *Server) handleDeleteFeedback(w http.ResponseWriter, r *http.Request) error {
	if err := s.feedback.Delete(r.Context(), r.PathValue("id")); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) error {
	if s.notifier == nil {
		return dto.BadRequest("push notifications are not configured")
	}
	var body dto.SubscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		return dto.BadRequest("unreadable request body")
	}
	sub, err := s.notifier.Subscribe(r.Context(), viewerFrom(r.Context()).UID(), body.Endpoint, body.P256dh, body.Auth)
	if err != nil {
		return dto.BadRequest(err.Error())
	}
	return writeJSON(w, http.StatusCreated, map[string]string{"id": sub.ID})
}

func (s *Server) handleUnsubscribe(w http.ResponseWriter, r *http.Request) error {
	if s.notifier == nil {
		return dto.BadRequest("push notifications are not configured")
	}
	var body dto.SubscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		return dto.BadRequest("unreadable request body")
	}
	if err := s.notifier.Unsubscribe(r.Context(), body.Endpoint); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

func feedbackResponse(fb *models.FeedbackRecord) dto.FeedbackResponse {
	return dto.FeedbackResponse{
		ID:          fb.ID,
		Title:       fb.Title,
		Page:        fb.Page,
		Name:        fb.Name,
		Contact:     fb.Contact,
		Message:     fb.Message,
		RelatedPage: fb.RelatedPage,
		IP:          fb.IP,
		Country:     fb.Country,
		UserAgent:   fb.UserAgent,
		Timestamp:   fb.Timestamp.Format(time.RFC3339),
		Resolved:    fb.Resolved,
	}
}
