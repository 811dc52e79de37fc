// Package render turns stored page records into presentable output:
// markdown to HTML, file listings with human-readable sizes, and
// redirect target resolution.
package render

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	highlighting "github.com/yuin/goldmark-highlighting/v2"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer/html"

	"github.com/sposlearning/sposwiki/internal/models"
)

// Renderer converts page content to HTML.
type Renderer struct {
	md goldmark.Markdown
}

// New creates a renderer with GFM tables, strikethrough and fenced code
// highlighting. Raw HTML in markdown is allowed; pages are authored by
// trusted editors.
func New() *Renderer {
	return &Renderer{
		md: goldmark.New(
			goldmark.WithExtensions(
				extension.GFM,
				highlighting.NewHighlighting(
					highlighting.WithStyle("github"),
				),
			),
			goldmark.WithParserOptions(
				parser.WithAutoHeadingID(),
			),
			goldmark.WithRendererOptions(
				html.WithUnsafe(),
			),
		),
	}
}

// HTML returns the page body as HTML. Markdown is converted; html pages
// pass through untouched. Other page types have no body to render.
func (r *Renderer) HTML(page *models.PageRecord) (string, error) {
	switch page.Type {
	case models.PageMarkdown:
		var buf bytes.Buffer
		if err := r.md.Convert([]byte(page.Content), &buf); err != nil {
			return "", fmt.Errorf("markdown conversion failed: %w", err)
		}
		return buf.String(), nil
	case models.PageHTML:
		return page.Content, nil
	default:
		return "", fmt.Errorf("page type %s has no renderable body", page.Type)
	}
}

// FileEntry is one row of a files-type page listing.
type FileEntry struct {
	Name      string
	URL       string
	SizeLabel string
	Format    string
}

// FileListing builds the download rows for a files page.
func FileListing(page *models.PageRecord) []FileEntry {
	entries := make([]FileEntry, len(page.Files))
	for i, f := range page.Files {
		entries[i] = FileEntry{
			Name:      f.Name,
			URL:       f.URL,
			SizeLabel: SizeLabel(f.Bytes),
			Format:    f.Format,
		}
	}
	return entries
}

// SizeLabel formats a byte count as MB above one megabyte, KB otherwise.
func SizeLabel(bytes int64) string {
	const mb = 1024 * 1024
	if bytes > mb {
		return fmt.Sprintf("%.2f MB", float64(bytes)/mb)
	}
	return fmt.Sprintf("%.0f KB", float64(bytes)/1024)
}

// Redirect is the resolved destination of a redirection page.
type Redirect struct {
	URL      string
	External bool
}

// RedirectTarget resolves where a redirection page points. External
// targets carry an absolute http(s) URL; everything else is an internal
// wiki path.
func RedirectTarget(page *models.PageRecord) Redirect {
	url := page.Content
	external := strings.HasPrefix(url, "http://") || strings.HasPrefix(url, "https://")
	return Redirect{URL: url, External: external}
}
