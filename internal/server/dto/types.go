package dto

// Request types bind JSON bodies; response types use string IDs and
// RFC3339 timestamps.

// CreatePageRequest creates a page at a folder path.
type CreatePageRequest struct {
	Path        string `json:"path"`
	Title       string `json:"title"`
	Type        string `json:"type"`
	Content     string `json:"content,omitempty"`
	AccessLevel string `json:"accessLevel,omitempty"`
}

// UpdatePageRequest edits the title and body of an existing page.
type UpdatePageRequest struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// DeletePageRequest carries the reauthentication credential.
type DeletePageRequest struct {
	Credential string `json:"credential,omitempty"`
}

// FileResponse is one attachment of a files-type page.
type FileResponse struct {
	Name      string `json:"name"`
	URL       string `json:"url"`
	Bytes     int64  `json:"bytes"`
	SizeLabel string `json:"sizeLabel"`
	Format    string `json:"format"`
}

// PageResponse is the full page payload.
type PageResponse struct {
	Path         string         `json:"path"`
	Title        string         `json:"title"`
	Type         string         `json:"type"`
	Content      string         `json:"content,omitempty"`
	HTML         string         `json:"html,omitempty"`
	Files        []FileResponse `json:"files,omitempty"`
	Redirect     string         `json:"redirect,omitempty"`
	External     bool           `json:"external,omitempty"`
	AccessLevel  string         `json:"accessLevel"`
	CreatedAt    string         `json:"createdAt,omitempty"`
	CreatedBy    string         `json:"createdBy,omitempty"`
	LastEditedAt string         `json:"lastEditedAt,omitempty"`
	LastEditedBy string         `json:"lastEditedBy,omitempty"`
}

// PageSummaryResponse is the flat projection used by tree and search.
type PageSummaryResponse struct {
	Path  string `json:"path"`
	Title string `json:"title"`
	Type  string `json:"type"`
}

// TreeNodeResponse is one node of the directory tree. Children are
// sorted by segment name.
type TreeNodeResponse struct {
	Name     string               `json:"name"`
	Page     *PageSummaryResponse `json:"page,omitempty"`
	Children []TreeNodeResponse   `json:"children,omitempty"`
}

// SearchResponse carries the matches for one term, both as a flat list
// and folded into a tree so results render with their folder context.
type SearchResponse struct {
	Term    string                `json:"term"`
	Results []PageSummaryResponse `json:"results"`
	Tree    *TreeNodeResponse     `json:"tree,omitempty"`
}

// SubmitFeedbackRequest is the public feedback form.
type SubmitFeedbackRequest struct {
	Title       string `json:"title,omitempty"`
	Name        string `json:"name,omitempty"`
	Contact     string `json:"contact,omitempty"`
	Message     string `json:"message"`
	Page        string `json:"page,omitempty"`
	RelatedPage string `json:"relatedPage,omitempty"`
}

// FeedbackResponse is one inbox entry.
type FeedbackResponse struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Page        string `json:"page,omitempty"`
	Name        string `json:"name"`
	Contact     string `json:"contact"`
	Message     string `json:"message"`
	RelatedPage string `json:"relatedPage,omitempty"`
	IP          string `json:"ip,omitempty"`
	Country     string `json:"country,omitempty"`
	UserAgent   string `json:"userAgent,omitempty"`
	Timestamp   string `json:"timestamp"`
	Resolved    bool   `json:"resolved"`
}

// ResolveFeedbackRequest flips the resolved flag.
type ResolveFeedbackRequest struct {
	Resolved bool `json:"resolved"`
}

// SubscribeRequest registers a browser push subscription.
type SubscribeRequest struct {
	Endpoint string `json:"endpoint"`
	P256dh   string `json:"p256dh"`
	Auth     string `json:"auth"`
}
