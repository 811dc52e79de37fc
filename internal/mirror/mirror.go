// Package mirror keeps a local git snapshot of every page save and
// delete, giving the wiki an audit trail independent of the hosted
// database.
package mirror

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/sposlearning/sposwiki/internal/models"
	"github.com/sposlearning/sposwiki/internal/pathkey"
)

// Mirror is a go-git backed change log. All operations serialize on an
// internal lock; go-git worktrees are not safe for concurrent use.
type Mirror struct {
	dir   string
	name  string
	email string
	repo  *gogit.Repository
	mu    sync.Mutex
}

// Open opens the mirror repository at dir, initializing it on first use.
// name and email are used as the commit signature.
func Open(dir, name, email string) (*Mirror, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create mirror directory: %w", err)
	}
	repo, err := gogit.PlainOpen(dir)
	if err != nil {
		repo, err = gogit.PlainInit(dir, false)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize mirror repo: %w", err)
		}
		cfg, err := repo.Config()
		if err != nil {
			return nil, fmt.Errorf("failed to read mirror config: %w", err)
		}
		cfg.User.Name = name
		cfg.User.Email = email
		if err := repo.SetConfig(cfg); err != nil {
			return nil, fmt.Errorf("failed to write mirror config: %w", err)
		}
	}
	return &Mirror{dir: dir, name: name, email: email, repo: repo}, nil
}

// RecordSave writes the page's current state as a JSON file named after
// its storage key and commits it.
func (m *Mirror) RecordSave(_ context.Context, page *models.PageRecord) error {
	file := page.FullPath.StorageKey() + ".json"
	data, err := json.MarshalIndent(page.Encode(), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize page: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := os.WriteFile(filepath.Join(m.dir, file), append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("failed to write mirror file: %w", err)
	}
	return m.commit(fmt.Sprintf("save %s", page.FullPath), file)
}

// RecordDelete removes the page's mirror file and commits the removal.
// A page that was never mirrored is a no-op.
func (m *Mirror) RecordDelete(_ context.Context, path pathkey.Key) error {
	file := path.StorageKey() + ".json"

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := os.Remove(filepath.Join(m.dir, file)); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to remove mirror file: %w", err)
	}
	return m.commit(fmt.Sprintf("delete %s", path), file)
}

// History returns up to n commit subjects for a page, newest first.
func (m *Mirror) History(_ context.Context, path pathkey.Key, n int) ([]string, error) {
	if n <= 0 || n > 100 {
		n = 100
	}
	file := path.StorageKey() + ".json"

	m.mu.Lock()
	defer m.mu.Unlock()
	iter, err := m.repo.Log(&gogit.LogOptions{FileName: &file})
	if err != nil {
		// No commits yet.
		return nil, nil
	}
	defer iter.Close()

	var subjects []string
	for range n {
		c, err := iter.Next()
		if err != nil {
			break
		}
		subject, _, _ := strings.Cut(c.Message, "\n")
		subjects = append(subjects, subject)
	}
	return subjects, nil
}

// commit stages file and commits it. go-git worktree operations take no
// context, so the commit always runs to completion once started.
func (m *Mirror) commit(msg, file string) error {
	w, err := m.repo.Worktree()
	if err != nil {
		return fmt.Errorf("failed to get worktree: %w", err)
	}
	if _, err := w.Add(file); err != nil {
		return fmt.Errorf("failed to stage %s: %w", file, err)
	}
	status, err := w.Status()
	if err != nil {
		return fmt.Errorf("failed to get worktree status: %w", err)
	}
	if status.IsClean() {
		return nil
	}
	sig := &object.Signature{Name: m.name, Email: m.email, When: time.Now()}
	if _, err := w.Commit(msg, &gogit.CommitOptions{Author: sig, Committer: sig}); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}
