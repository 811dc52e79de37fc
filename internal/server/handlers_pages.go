package server

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/sposlearning/sposwiki/internal/models"
	"github.com/sposlearning/sposwiki/internal/pathkey"
	"github.com/sposlearning/sposwiki/internal/render"
	"github.com/sposlearning/sposwiki/internal/server/dto"
	"github.com/sposlearning/sposwiki/internal/storage"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	_ = writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleGetPage(w http.ResponseWriter, r *http.Request) error {
	viewer := viewerFrom(r.Context())
	page, err := s.pages.GetPage(r.Context(), r.PathValue("path"))
	if err != nil {
		return err
	}
	if !storage.Visible(page.AccessLevel, viewer) {
		// The page exists but needs a signed-in viewer.
		return dto.Unauthorized()
	}
	resp, err := s.pageResponse(page)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleTree(w http.ResponseWriter, r *http.Request) error {
	summaries, err := s.pages.ListSummaries(r.Context())
	if err != nil {
		return err
	}
	root := storage.BuildTree(summaries, viewerFrom(r.Context()))
	return writeJSON(w, http.StatusOK, treeResponse(root))
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) error {
	term := r.URL.Query().Get("q")
	viewer := viewerFrom(r.Context())
	results, err := s.search.Search(r.Context(), term, viewer)
	if err != nil {
		return err
	}
	resp := dto.SearchResponse{Term: term, Results: make([]dto.PageSummaryResponse, len(results))}
	for i, p := range results {
		resp.Results[i] = summaryResponse(p)
	}
	if len(results) > 0 {
		// Fold the matches so the client can show them under their
		// parent folders.
		tree := treeResponse(storage.BuildTree(results, viewer))
		resp.Tree = &tree
	}
	return writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCreatePage(w http.ResponseWriter, r *http.Request) error {
	viewer := viewerFrom(r.Context())
	var req storage.CreatePage

	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		// Files pages arrive as a form with attachments.
		if err := r.ParseMultipartForm(64 << 20); err != nil {
			return dto.BadRequest("unreadable form: " + err.Error())
		}
		req = storage.CreatePage{
			RawPath:     r.FormValue("path"),
			Title:       r.FormValue("title"),
			Type:        models.PageType(r.FormValue("type")),
			Content:     r.FormValue("content"),
			AccessLevel: models.AccessLevel(r.FormValue("accessLevel")),
		}
		for _, hdr := range r.MultipartForm.File["files"] {
			f, err := hdr.Open()
			if err != nil {
				return dto.BadRequest("unreadable attachment " + hdr.Filename)
			}
			defer func() { _ = f.Close() }()
			req.Files = append(req.Files, storage.FileUpload{Name: hdr.Filename, Data: f})
		}
	} else {
		var body dto.CreatePageRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			return dto.BadRequest("unreadable request body")
		}
		req = storage.CreatePage{
			RawPath:     body.Path,
			Title:       body.Title,
			Type:        models.PageType(body.Type),
			Content:     body.Content,
			AccessLevel: models.AccessLevel(body.AccessLevel),
		}
	}
	req.Author = viewer.Email()

	page, err := s.pages.Create(r.Context(), req)
	if err != nil {
		return err
	}
	resp, err := s.pageResponse(page)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleUpdatePage(w http.ResponseWriter, r *http.Request) error {
	var body dto.UpdatePageRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		return dto.BadRequest("unreadable request body")
	}
	page, err := s.pages.Update(r.Context(), r.PathValue("path"), body.Title, body.Content, viewerFrom(r.Context()).Email())
	if err != nil {
		return err
	}
	resp, err := s.pageResponse(page)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleDeletePage(w http.ResponseWriter, r *http.Request) error {
	var body dto.DeletePageRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			return dto.BadRequest("unreadable request body")
		}
	}
	if err := s.pages.Delete(r.Context(), r.PathValue("path"), body.Credential); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

func (s *Server) pageResponse(page *models.PageRecord) (*dto.PageResponse, error) {
	resp := &dto.PageResponse{
		Path:         pathkey.DisplayPath(page.Folder) + page.Name,
		Title:        page.Title,
		Type:         string(page.Type),
		AccessLevel:  string(page.AccessLevel),
		CreatedBy:    page.CreatedBy,
		LastEditedBy: page.LastEditedBy,
	}
	if !page.CreatedAt.IsZero() {
		resp.CreatedAt = page.CreatedAt.Format(time.RFC3339)
	}
	if !page.LastEditedAt.IsZero() {
		resp.LastEditedAt = page.LastEditedAt.Format(time.RFC3339)
	}
	switch page.Type {
	case models.PageMarkdown:
		html, err := s.renderer.HTML(page)
		if err != nil {
			return nil, err
		}
		resp.Content = page.Content
		resp.HTML = html
	case models.PageHTML:
		resp.Content = page.Content
		resp.HTML = page.Content
	case models.PageRedirection:
		target := render.RedirectTarget(page)
		resp.Redirect = target.URL
		resp.External = target.External
	case models.PageFiles:
		for _, entry := range render.FileListing(page) {
			resp.Files = append(resp.Files, dto.FileResponse{
				Name:      entry.Name,
				URL:       entry.URL,
				SizeLabel: entry.SizeLabel,
				Format:    entry.Format,
			})
		}
		for i, f := range page.Files {
			resp.Files[i].Bytes = f.Bytes
		}
	}
	return resp, nil
}

func summaryResponse(p models.PageSummary) dto.PageSummaryResponse {
	return dto.PageSummaryResponse{
		Path:  string(p.FullPath),
		Title: p.Title,
		Type:  string(p.Type),
	}
}

func treeResponse(n *storage.TreeNode) dto.TreeNodeResponse {
	resp := dto.TreeNodeResponse{Name: n.Name}
	if n.Page != nil {
		summary := summaryResponse(*n.Page)
		resp.Page = &summary
	}
	for _, child := range n.SortedChildren() {
		resp.Children = append(resp.Children, treeResponse(child))
	}
	return resp
}
