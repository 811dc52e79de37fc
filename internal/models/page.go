// Package models defines the domain records stored in the document database
// and the decode step that normalizes their historical field variants.
package models

import (
	"fmt"
	"time"

	"github.com/sposlearning/sposwiki/internal/pathkey"
)

// PageType describes how a page's content is interpreted.
type PageType string

const (
	// PageMarkdown is markdown text rendered to HTML.
	PageMarkdown PageType = "markdown"
	// PageHTML is raw HTML served as-is.
	PageHTML PageType = "html"
	// PageRedirection holds a destination URL instead of content.
	PageRedirection PageType = "redirection"
	// PageFiles holds an ordered list of uploaded file references.
	PageFiles PageType = "files"
)

// Valid reports whether t is a known page type.
func (t PageType) Valid() bool {
	switch t {
	case PageMarkdown, PageHTML, PageRedirection, PageFiles:
		return true
	}
	return false
}

// Editable reports whether the page's content can be edited as text.
func (t PageType) Editable() bool {
	return t == PageMarkdown || t == PageHTML
}

// AccessLevel gates which viewers may see a page.
type AccessLevel string

const (
	// AccessPublic pages are visible to everyone.
	AccessPublic AccessLevel = "public"
	// AccessAdmin pages are visible to authenticated viewers only.
	AccessAdmin AccessLevel = "admin"
)

// Valid reports whether l is a known access level.
func (l AccessLevel) Valid() bool {
	return l == AccessPublic || l == AccessAdmin
}

// FileRef describes one uploaded file inside a files-type page.
type FileRef struct {
	Name   string `json:"name"`
	URL    string `json:"url"`
	Bytes  int64  `json:"bytes"`
	Format string `json:"format"`
}

// PageRecord is one content page.
type PageRecord struct {
	Title        string
	Name         string
	Folder       pathkey.Key
	FullPath     pathkey.Key
	Type         PageType
	Content      string
	Files        []FileRef
	AccessLevel  AccessLevel
	CreatedAt    time.Time
	CreatedBy    string
	LastEditedAt time.Time
	LastEditedBy string
}

// PageSummary is the flat projection used to build the directory tree and
// to match searches.
type PageSummary struct {
	FullPath    pathkey.Key
	Title       string
	Type        PageType
	AccessLevel AccessLevel
}

// Summary returns the flat projection of p.
func (p *PageRecord) Summary() PageSummary {
	return PageSummary{
		FullPath:    p.FullPath,
		Title:       p.Title,
		Type:        p.Type,
		AccessLevel: p.AccessLevel,
	}
}

// Encode serializes p into a storage document.
func (p *PageRecord) Encode() map[string]any {
	doc := map[string]any{
		"title":       p.Title,
		"name":        p.Name,
		"path":        string(p.Folder),
		"fullPath":    string(p.FullPath),
		"type":        string(p.Type),
		"accessLevel": string(p.AccessLevel),
		"createdAt":   p.CreatedAt,
		"createdBy":   p.CreatedBy,
	}
	if p.Type == PageFiles {
		files := make([]any, len(p.Files))
		for i, f := range p.Files {
			files[i] = map[string]any{
				"name":   f.Name,
				"url":    f.URL,
				"bytes":  f.Bytes,
				"format": f.Format,
			}
		}
		doc["content"] = files
	} else {
		doc["content"] = p.Content
	}
	if !p.LastEditedAt.IsZero() {
		doc["lastEditedAt"] = p.LastEditedAt
	}
	if p.LastEditedBy != "" {
		doc["lastEditedBy"] = p.LastEditedBy
	}
	return doc
}

// DecodePage deserializes a storage document into a PageRecord. Historical
// spellings of the access level field (accessLevel, access-level,
// access_level) are all accepted and normalized; a missing field means
// public.
func DecodePage(doc map[string]any) (*PageRecord, error) {
	p := &PageRecord{
		Title:        str(doc["title"]),
		Name:         str(doc["name"]),
		Folder:       pathkey.Key(str(doc["path"])),
		FullPath:     pathkey.Key(str(doc["fullPath"])),
		Type:         PageType(str(doc["type"])),
		AccessLevel:  decodeAccessLevel(doc),
		CreatedBy:    str(doc["createdBy"]),
		LastEditedBy: str(doc["lastEditedBy"]),
		CreatedAt:    timestamp(doc["createdAt"]),
		LastEditedAt: timestamp(doc["lastEditedAt"]),
	}
	if p.FullPath == "" {
		return nil, fmt.Errorf("page document has no fullPath")
	}
	if !p.Type.Valid() {
		return nil, fmt.Errorf("page document has unknown type %q", doc["type"])
	}
	switch content := doc["content"].(type) {
	case string:
		p.Content = content
	case []any:
		p.Files = make([]FileRef, 0, len(content))
		for _, e := range content {
			f, ok := e.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("page document has malformed file entry %T", e)
			}
			p.Files = append(p.Files, FileRef{
				Name:   str(f["name"]),
				URL:    str(f["url"]),
				Bytes:  integer(f["bytes"]),
				Format: str(f["format"]),
			})
		}
	case []FileRef:
		p.Files = content
	case nil:
	default:
		return nil, fmt.Errorf("page document has unsupported content type %T", content)
	}
	return p, nil
}

// decodeAccessLevel normalizes all historical spellings into one canonical
// value at the storage boundary.
func decodeAccessLevel(doc map[string]any) AccessLevel {
	for _, field := range []string{"accessLevel", "access-level", "access_level"} {
		if v, ok := doc[field]; ok {
			if s := str(v); s != "" {
				return AccessLevel(s)
			}
		}
	}
	return AccessPublic
}

func str(v any) string {
	s, _ := v.(string)
	return s
}

func integer(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	}
	return 0
}

// timestamp accepts both native time values (in-memory store) and RFC3339
// strings (JSON transports).
func timestamp(v any) time.Time {
	switch t := v.(type) {
	case time.Time:
		return t
	case string:
		parsed, err := time.Parse(time.RFC3339Nano, t)
		if err != nil {
			return time.Time{}
		}
		return parsed
	}
	return time.Time{}
}
