// Package storage implements the application services over the document
// database: page addressing and lifecycle, directory tree construction,
// search matching and the feedback inbox.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/sposlearning/sposwiki/internal/docstore"
	"github.com/sposlearning/sposwiki/internal/models"
	"github.com/sposlearning/sposwiki/internal/pathkey"
)

// PagesCollection is the document collection holding page records.
const PagesCollection = "pages"

// Uploader sends a file to the media upload collaborator and returns its
// stored reference.
type Uploader interface {
	Upload(ctx context.Context, filename string, r io.Reader) (*models.FileRef, error)
}

// ChangeLog records successful page mutations, typically into a local git
// mirror. Recording failures are logged, never surfaced.
type ChangeLog interface {
	RecordSave(ctx context.Context, page *models.PageRecord) error
	RecordDelete(ctx context.Context, path pathkey.Key) error
}

// Reauthenticator checks a credential before destructive operations.
type Reauthenticator interface {
	Reauthenticate(credential string) error
}

// PageService handles page business logic.
type PageService struct {
	store    docstore.Store
	cache    *Cache
	uploader Uploader
	mirror   ChangeLog
	reauth   Reauthenticator
}

// NewPageService creates a new page service. uploader, mirror and reauth
// are optional.
func NewPageService(store docstore.Store, cache *Cache, uploader Uploader, mirror ChangeLog, reauth Reauthenticator) *PageService {
	return &PageService{
		store:    store,
		cache:    cache,
		uploader: uploader,
		mirror:   mirror,
		reauth:   reauth,
	}
}

// Resolution is the outcome of locating a page in the store.
type Resolution struct {
	Record *models.PageRecord
	// StorageID is the document ID the record was found under. For legacy
	// records it is an opaque historical ID, not derivable from the path.
	StorageID string
	IsLegacy  bool
}

// Resolve locates the page at fullPath. It first tries the direct document
// ID derived from the path; records written before that addressing scheme
// are found by a fallback field query and flagged as legacy. A legacy
// record is migrated to the derived ID on its next edit.
func (s *PageService) Resolve(ctx context.Context, fullPath pathkey.Key) (*Resolution, error) {
	id := fullPath.StorageKey()
	doc, err := s.store.Get(ctx, PagesCollection, id)
	if err == nil {
		record, derr := models.DecodePage(doc.Fields)
		if derr != nil {
			return nil, fmt.Errorf("failed to decode page %q: %w", id, derr)
		}
		return &Resolution{Record: record, StorageID: id, IsLegacy: false}, nil
	}
	if !errors.Is(err, docstore.ErrNotFound) {
		return nil, fmt.Errorf("page lookup failed: %w", err)
	}

	docs, err := s.store.Query(ctx, PagesCollection,
		docstore.Filter{Field: "fullPath", Equals: string(fullPath)}, docstore.Order{})
	if err != nil {
		return nil, fmt.Errorf("legacy page query failed: %w", err)
	}
	if len(docs) == 0 {
		return nil, ErrPageNotFound
	}
	// fullPath values are unique in practice; the first match wins.
	record, err := models.DecodePage(docs[0].Fields)
	if err != nil {
		return nil, fmt.Errorf("failed to decode legacy page %q: %w", docs[0].ID, err)
	}
	return &Resolution{Record: record, StorageID: docs[0].ID, IsLegacy: true}, nil
}

// GetPage retrieves the page at a raw user-entered path.
func (s *PageService) GetPage(ctx context.Context, rawPath string) (*models.PageRecord, error) {
	full, err := pathkey.Parse(rawPath)
	if err != nil {
		return nil, err
	}
	res, err := s.Resolve(ctx, full)
	if err != nil {
		return nil, err
	}
	return res.Record, nil
}

// FileUpload is one file attached to a files-type page create.
type FileUpload struct {
	Name string
	Data io.Reader
}

// CreatePage describes a page save request.
type CreatePage struct {
	RawPath     string
	Title       string
	Type        models.PageType
	Content     string
	AccessLevel models.AccessLevel
	Files       []FileUpload
	Author      string
}

// Create validates, uploads any attached files, checks the target path is
// free and writes the new page. The existence pre-check is advisory: two
// concurrent writers can still race, which is an accepted limitation of
// the storage layer.
func (s *PageService) Create(ctx context.Context, req CreatePage) (*models.PageRecord, error) {
	if strings.TrimSpace(req.Title) == "" {
		return nil, ErrTitleEmpty
	}
	if !req.Type.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidType, req.Type)
	}
	if req.AccessLevel != "" && !req.AccessLevel.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAccessLevel, req.AccessLevel)
	}
	folder, name, err := pathkey.Decompose(req.RawPath)
	if err != nil {
		return nil, err
	}
	fullPath := pathkey.Join(folder, name)
	id := fullPath.StorageKey()

	record := &models.PageRecord{
		Title:       req.Title,
		Name:        name,
		Folder:      folder,
		FullPath:    fullPath,
		Type:        req.Type,
		AccessLevel: req.AccessLevel,
		CreatedAt:   time.Now(),
		CreatedBy:   req.Author,
	}
	if record.AccessLevel == "" {
		record.AccessLevel = models.AccessPublic
	}

	switch req.Type {
	case models.PageRedirection:
		url, err := normalizeRedirect(req.Content)
		if err != nil {
			return nil, err
		}
		record.Content = url
	case models.PageFiles:
		files, err := s.uploadAll(ctx, req.Files)
		if err != nil {
			return nil, err
		}
		record.Files = files
	default:
		record.Content = req.Content
	}

	if _, err := s.store.Get(ctx, PagesCollection, id); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrPageExists, pathkey.DisplayPath(folder)+name)
	} else if !errors.Is(err, docstore.ErrNotFound) {
		return nil, fmt.Errorf("existence check failed: %w", err)
	}

	if err := s.store.Set(ctx, PagesCollection, id, record.Encode()); err != nil {
		return nil, fmt.Errorf("failed to save page: %w", err)
	}
	s.cache.Invalidate()
	s.recordSave(ctx, record)
	return record, nil
}

// Update edits the title and content of the page at rawPath. When the page
// is found under a legacy ID it is moved to the derived ID: the updated
// record is written under the new ID first, then the legacy document is
// deleted. If the delete is interrupted the duplicate is harmless — the
// next resolve finds the new ID first.
func (s *PageService) Update(ctx context.Context, rawPath, title, content, editor string) (*models.PageRecord, error) {
	if strings.TrimSpace(title) == "" {
		return nil, ErrTitleEmpty
	}
	full, err := pathkey.Parse(rawPath)
	if err != nil {
		return nil, err
	}
	res, err := s.Resolve(ctx, full)
	if err != nil {
		return nil, err
	}
	if !res.Record.Type.Editable() {
		return nil, fmt.Errorf("%w: %s", ErrNotEditable, res.Record.Type)
	}

	now := time.Now()
	record := res.Record
	record.Title = title
	record.Content = content
	record.LastEditedBy = editor
	record.LastEditedAt = now

	newID := full.StorageKey()
	if res.IsLegacy {
		if err := s.store.Set(ctx, PagesCollection, newID, record.Encode()); err != nil {
			return nil, fmt.Errorf("failed to migrate page: %w", err)
		}
		if err := s.store.Delete(ctx, PagesCollection, res.StorageID); err != nil {
			// The new document is already in place; the orphan is cleaned
			// up by a later maintenance pass.
			slog.WarnContext(ctx, "Failed to delete legacy page document",
				"id", res.StorageID, "path", full, "err", err)
		}
	} else {
		patch := map[string]any{
			"title":        title,
			"content":      content,
			"lastEditedBy": editor,
			"lastEditedAt": now,
		}
		if err := s.store.Update(ctx, PagesCollection, newID, patch); err != nil {
			return nil, fmt.Errorf("failed to update page: %w", err)
		}
	}
	s.cache.Invalidate()
	s.recordSave(ctx, record)
	return record, nil
}

// Delete removes the page at rawPath. When the service is configured with
// a reauthenticator, credential must pass its check first; on failure the
// record is left untouched.
func (s *PageService) Delete(ctx context.Context, rawPath, credential string) error {
	if s.reauth != nil {
		if err := s.reauth.Reauthenticate(credential); err != nil {
			return err
		}
	}
	full, err := pathkey.Parse(rawPath)
	if err != nil {
		return err
	}
	res, err := s.Resolve(ctx, full)
	if err != nil {
		return err
	}
	if err := s.store.Delete(ctx, PagesCollection, res.StorageID); err != nil {
		return fmt.Errorf("failed to delete page: %w", err)
	}
	s.cache.Invalidate()
	if s.mirror != nil {
		if err := s.mirror.RecordDelete(ctx, full); err != nil {
			slog.ErrorContext(ctx, "Failed to record page delete", "path", full, "err", err)
		}
	}
	return nil
}

// ListSummaries returns the flat projection of every page, cached until
// the next mutation. Documents that fail to decode are skipped and logged
// rather than failing the whole listing.
func (s *PageService) ListSummaries(ctx context.Context) ([]models.PageSummary, error) {
	if summaries, ok := s.cache.GetSummaries(); ok {
		return summaries, nil
	}
	docs, err := s.store.ListAll(ctx, PagesCollection)
	if err != nil {
		return nil, fmt.Errorf("failed to list pages: %w", err)
	}
	summaries := make([]models.PageSummary, 0, len(docs))
	for _, doc := range docs {
		record, err := models.DecodePage(doc.Fields)
		if err != nil {
			slog.WarnContext(ctx, "Skipping undecodable page document", "id", doc.ID, "err", err)
			continue
		}
		summaries = append(summaries, record.Summary())
	}
	s.cache.SetSummaries(summaries)
	return summaries, nil
}

func (s *PageService) uploadAll(ctx context.Context, files []FileUpload) ([]models.FileRef, error) {
	if s.uploader == nil && len(files) > 0 {
		return nil, fmt.Errorf("%w: no media host configured", ErrUploadFailed)
	}
	refs := make([]models.FileRef, 0, len(files))
	for _, f := range files {
		ref, err := s.uploader.Upload(ctx, f.Name, f.Data)
		if err != nil {
			// Abort the whole save; no partial record is written.
			return nil, fmt.Errorf("%w: %q: %v", ErrUploadFailed, f.Name, err)
		}
		refs = append(refs, *ref)
	}
	return refs, nil
}

func (s *PageService) recordSave(ctx context.Context, record *models.PageRecord) {
	if s.mirror == nil {
		return
	}
	if err := s.mirror.RecordSave(ctx, record); err != nil {
		slog.ErrorContext(ctx, "Failed to record page save", "path", record.FullPath, "err", err)
	}
}

// normalizeRedirect validates a redirection destination. External http(s)
// URLs pass through; anything else is treated as an internal path and
// forced absolute.
func normalizeRedirect(raw string) (string, error) {
	url := strings.TrimSpace(raw)
	if url == "" {
		return "", ErrEmptyDestination
	}
	if strings.HasPrefix(url, "http://") || strings.HasPrefix(url, "https://") {
		return url, nil
	}
	if !strings.HasPrefix(url, "/") {
		url = "/" + url
	}
	return url, nil
}
