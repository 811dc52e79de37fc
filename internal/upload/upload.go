// Package upload sends page attachments to a Cloudinary-style media
// host using its unsigned upload API.
package upload

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/sposlearning/sposwiki/internal/models"
)

// Client uploads files through an unsigned preset.
type Client struct {
	endpoint string
	preset   string
	http     *http.Client
}

// New creates an upload client for the given endpoint, e.g.
// https://api.cloudinary.com/v1_1/<cloud>/upload, and unsigned preset.
func New(endpoint, preset string) *Client {
	return &Client{
		endpoint: endpoint,
		preset:   preset,
		http:     &http.Client{Timeout: 2 * time.Minute},
	}
}

// uploadResponse is the subset of the host's response the wiki keeps.
type uploadResponse struct {
	OriginalFilename string `json:"original_filename"`
	SecureURL        string `json:"secure_url"`
	Bytes            int64  `json:"bytes"`
	Format           string `json:"format"`
	Error            *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Upload posts one file and returns its stored reference. The remote
// error message is surfaced verbatim when the host rejects the file.
func (c *Client) Upload(ctx context.Context, filename string, r io.Reader) (*models.FileRef, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("failed to build upload form: %w", err)
	}
	if _, err := io.Copy(fw, r); err != nil {
		return nil, fmt.Errorf("failed to read file %q: %w", filename, err)
	}
	if err := mw.WriteField("upload_preset", c.preset); err != nil {
		return nil, fmt.Errorf("failed to build upload form: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("failed to build upload form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upload request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	var parsed uploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("unreadable upload response (HTTP %d): %w", resp.StatusCode, err)
	}
	if parsed.Error != nil {
		return nil, fmt.Errorf("upload rejected: %s", parsed.Error.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("upload failed with HTTP %d", resp.StatusCode)
	}
	return &models.FileRef{
		Name:   parsed.OriginalFilename,
		URL:    parsed.SecureURL,
		Bytes:  parsed.Bytes,
		Format: parsed.Format,
	}, nil
}
