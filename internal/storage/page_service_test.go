package storage

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/sposlearning/sposwiki/internal/auth"
	"github.com/sposlearning/sposwiki/internal/docstore"
	"github.com/sposlearning/sposwiki/internal/models"
	"github.com/sposlearning/sposwiki/internal/pathkey"
)

type fakeUploader struct {
	fail bool
	got  []string
}

func (u *fakeUploader) Upload(_ context.Context, filename string, r io.Reader) (*models.FileRef, error) {
	if u.fail {
		return nil, errors.New("upstream rejected the file")
	}
	u.got = append(u.got, filename)
	return &models.FileRef{Name: filename, URL: "https://cdn.example.com/" + filename, Bytes: 42, Format: "pdf"}, nil
}

type fakeMirror struct {
	saves   []pathkey.Key
	deletes []pathkey.Key
}

func (m *fakeMirror) RecordSave(_ context.Context, page *models.PageRecord) error {
	m.saves = append(m.saves, page.FullPath)
	return nil
}

func (m *fakeMirror) RecordDelete(_ context.Context, path pathkey.Key) error {
	m.deletes = append(m.deletes, path)
	return nil
}

type fakeReauth struct{ accept string }

func (r *fakeReauth) Reauthenticate(credential string) error {
	if credential != r.accept {
		return errors.New("wrong credential")
	}
	return nil
}

func newTestPageService(t *testing.T) (*PageService, *docstore.MemStore, *fakeMirror) {
	t.Helper()
	store := docstore.NewMemStore()
	mirror := &fakeMirror{}
	svc := NewPageService(store, &Cache{}, &fakeUploader{}, mirror, nil)
	return svc, store, mirror
}

func TestCreateMarkdownPage(t *testing.T) {
	svc, store, mirror := newTestPageService(t)
	ctx := context.Background()

	record, err := svc.Create(ctx, CreatePage{
		RawPath: "prg/arrays/intro",
		Title:   "Arrays introduction",
		Type:    models.PageMarkdown,
		Content: "# Arrays",
		Author:  "teacher@example.com",
	})
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
	if record.FullPath != "prg/arrays/intro" {
		t.Errorf("FullPath = %q, want prg/arrays/intro", record.FullPath)
	}
	if record.Folder != "prg/arrays" || record.Name != "intro" {
		t.Errorf("Folder/Name = %q/%q", record.Folder, record.Name)
	}
	doc, err := store.Get(ctx, PagesCollection, "prg|arrays|intro")
	if err != nil {
		t.Fatalf("page not stored under derived ID: %v", err)
	}
	if doc.Fields["fullPath"] != "prg/arrays/intro" {
		t.Errorf("stored fullPath = %v", doc.Fields["fullPath"])
	}
	if len(mirror.saves) != 1 {
		t.Errorf("mirror saves = %d, want 1", len(mirror.saves))
	}
}

func TestCreateRejectsDuplicatePath(t *testing.T) {
	svc, _, _ := newTestPageService(t)
	ctx := context.Background()
	req := CreatePage{RawPath: "notes", Title: "Notes", Type: models.PageMarkdown}
	if _, err := svc.Create(ctx, req); err != nil {
		t.Fatalf("first Create() failed: %v", err)
	}
	if _, err := svc.Create(ctx, req); !errors.Is(err, ErrPageExists) {
		t.Errorf("second Create() = %v, want ErrPageExists", err)
	}
}

func TestCreateValidation(t *testing.T) {
	svc, _, _ := newTestPageService(t)
	ctx := context.Background()

	if _, err := svc.Create(ctx, CreatePage{RawPath: "a", Title: "  ", Type: models.PageMarkdown}); !errors.Is(err, ErrTitleEmpty) {
		t.Errorf("blank title = %v, want ErrTitleEmpty", err)
	}
	if _, err := svc.Create(ctx, CreatePage{RawPath: "", Title: "t", Type: models.PageMarkdown}); !errors.Is(err, pathkey.ErrEmptyName) {
		t.Errorf("empty path = %v, want ErrEmptyName", err)
	}
	if _, err := svc.Create(ctx, CreatePage{RawPath: "a", Title: "t", Type: "wiki"}); !errors.Is(err, ErrInvalidType) {
		t.Errorf("unknown type = %v, want ErrInvalidType", err)
	}
	if _, err := svc.Create(ctx, CreatePage{RawPath: "a", Title: "t", Type: models.PageMarkdown, AccessLevel: "Admin"}); !errors.Is(err, ErrInvalidAccessLevel) {
		t.Errorf("unknown access level = %v, want ErrInvalidAccessLevel", err)
	}
}

func TestCreateRedirection(t *testing.T) {
	svc, _, _ := newTestPageService(t)
	ctx := context.Background()

	tests := []struct {
		content string
		want    string
	}{
		{"https://example.com/x", "https://example.com/x"},
		{"http://example.com", "http://example.com"},
		{"prg/arrays", "/prg/arrays"},
		{"/already/absolute", "/already/absolute"},
	}
	for i, tt := range tests {
		record, err := svc.Create(ctx, CreatePage{
			RawPath: "r" + string(rune('a'+i)),
			Title:   "Redirect",
			Type:    models.PageRedirection,
			Content: tt.content,
		})
		if err != nil {
			t.Fatalf("Create(%q) failed: %v", tt.content, err)
		}
		if record.Content != tt.want {
			t.Errorf("Create(%q) content = %q, want %q", tt.content, record.Content, tt.want)
		}
	}

	if _, err := svc.Create(ctx, CreatePage{RawPath: "r9", Title: "Redirect", Type: models.PageRedirection, Content: "  "}); !errors.Is(err, ErrEmptyDestination) {
		t.Errorf("empty destination = %v, want ErrEmptyDestination", err)
	}
}

func TestCreateFilesPageAbortsOnUploadFailure(t *testing.T) {
	store := docstore.NewMemStore()
	svc := NewPageService(store, &Cache{}, &fakeUploader{fail: true}, nil, nil)
	ctx := context.Background()

	_, err := svc.Create(ctx, CreatePage{
		RawPath: "materials",
		Title:   "Materials",
		Type:    models.PageFiles,
		Files:   []FileUpload{{Name: "syllabus.pdf", Data: strings.NewReader("x")}},
	})
	if err == nil {
		t.Fatal("Create() succeeded with failing uploader")
	}
	if _, gerr := store.Get(ctx, PagesCollection, "materials"); !errors.Is(gerr, docstore.ErrNotFound) {
		t.Error("partial record written after upload failure")
	}
}

func TestResolveFallsBackToLegacyDocument(t *testing.T) {
	svc, store, _ := newTestPageService(t)
	ctx := context.Background()

	legacy := &models.PageRecord{
		Title: "Old page", Name: "old", Folder: "prg", FullPath: "prg/old",
		Type: models.PageMarkdown, Content: "body", AccessLevel: models.AccessPublic,
		CreatedAt: time.Now(),
	}
	if err := store.Set(ctx, PagesCollection, "2QvJ8sLegacy", legacy.Encode()); err != nil {
		t.Fatal(err)
	}

	res, err := svc.Resolve(ctx, "prg/old")
	if err != nil {
		t.Fatalf("Resolve() failed: %v", err)
	}
	if !res.IsLegacy {
		t.Error("IsLegacy = false, want true")
	}
	if res.StorageID != "2QvJ8sLegacy" {
		t.Errorf("StorageID = %q", res.StorageID)
	}
	if res.Record.Title != "Old page" {
		t.Errorf("Title = %q", res.Record.Title)
	}

	if _, err := svc.Resolve(ctx, "prg/missing"); !errors.Is(err, ErrPageNotFound) {
		t.Errorf("missing page = %v, want ErrPageNotFound", err)
	}
}

func TestUpdateMigratesLegacyDocument(t *testing.T) {
	svc, store, _ := newTestPageService(t)
	ctx := context.Background()

	legacy := &models.PageRecord{
		Title: "Old page", Name: "old", Folder: "prg", FullPath: "prg/old",
		Type: models.PageMarkdown, Content: "body", AccessLevel: models.AccessPublic,
		CreatedAt: time.Now(),
	}
	if err := store.Set(ctx, PagesCollection, "2QvJ8sLegacy", legacy.Encode()); err != nil {
		t.Fatal(err)
	}

	record, err := svc.Update(ctx, "prg/old", "New title", "new body", "editor@example.com")
	if err != nil {
		t.Fatalf("Update() failed: %v", err)
	}
	if record.LastEditedBy != "editor@example.com" {
		t.Errorf("LastEditedBy = %q", record.LastEditedBy)
	}
	if record.LastEditedAt.IsZero() {
		t.Error("LastEditedAt not stamped")
	}

	if _, err := store.Get(ctx, PagesCollection, "2QvJ8sLegacy"); !errors.Is(err, docstore.ErrNotFound) {
		t.Error("legacy document still present after migration")
	}
	doc, err := store.Get(ctx, PagesCollection, "prg|old")
	if err != nil {
		t.Fatalf("migrated document missing: %v", err)
	}
	if doc.Fields["title"] != "New title" || doc.Fields["content"] != "new body" {
		t.Errorf("migrated fields = %v / %v", doc.Fields["title"], doc.Fields["content"])
	}

	res, err := svc.Resolve(ctx, "prg/old")
	if err != nil {
		t.Fatalf("Resolve() after migration failed: %v", err)
	}
	if res.IsLegacy || res.StorageID != "prg|old" {
		t.Errorf("post-migration resolution = %+v", res)
	}
}

// deleteFailingStore simulates a store connection dropping between the
// migration write and the legacy cleanup.
type deleteFailingStore struct {
	docstore.Store
}

func (s *deleteFailingStore) Delete(context.Context, string, string) error {
	return errors.New("connection dropped")
}

func TestUpdateSurvivesInterruptedMigration(t *testing.T) {
	mem := docstore.NewMemStore()
	svc := NewPageService(&deleteFailingStore{Store: mem}, &Cache{}, nil, nil, nil)
	ctx := context.Background()

	legacy := &models.PageRecord{
		Title: "Old page", Name: "old", Folder: "prg", FullPath: "prg/old",
		Type: models.PageMarkdown, Content: "body", AccessLevel: models.AccessPublic,
		CreatedAt: time.Now(),
	}
	if err := mem.Set(ctx, PagesCollection, "2QvJ8sLegacy", legacy.Encode()); err != nil {
		t.Fatal(err)
	}

	record, err := svc.Update(ctx, "prg/old", "New title", "new body", "editor@example.com")
	if err != nil {
		t.Fatalf("Update() failed despite recoverable legacy delete: %v", err)
	}
	if record.Title != "New title" {
		t.Errorf("Title = %q", record.Title)
	}

	// Both documents exist, but the derived ID wins every later lookup.
	if _, err := mem.Get(ctx, PagesCollection, "2QvJ8sLegacy"); err != nil {
		t.Fatalf("orphaned legacy document unexpectedly gone: %v", err)
	}
	res, err := svc.Resolve(ctx, "prg/old")
	if err != nil {
		t.Fatalf("Resolve() failed: %v", err)
	}
	if res.IsLegacy || res.StorageID != "prg|old" {
		t.Errorf("resolution = %+v, want non-legacy prg|old", res)
	}
	if res.Record.Title != "New title" {
		t.Errorf("resolved Title = %q, want New title", res.Record.Title)
	}
}

func TestUpdatePatchesModernDocument(t *testing.T) {
	svc, store, _ := newTestPageService(t)
	ctx := context.Background()

	if _, err := svc.Create(ctx, CreatePage{RawPath: "notes", Title: "Notes", Type: models.PageHTML, Content: "<p>hi</p>", Author: "a"}); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Update(ctx, "notes", "Notes v2", "<p>bye</p>", "b"); err != nil {
		t.Fatalf("Update() failed: %v", err)
	}
	doc, err := store.Get(ctx, PagesCollection, "notes")
	if err != nil {
		t.Fatal(err)
	}
	if doc.Fields["title"] != "Notes v2" {
		t.Errorf("title = %v", doc.Fields["title"])
	}
	if doc.Fields["createdBy"] != "a" {
		t.Errorf("createdBy lost on patch: %v", doc.Fields["createdBy"])
	}
}

func TestUpdateRejectsNonEditableTypes(t *testing.T) {
	svc, _, _ := newTestPageService(t)
	ctx := context.Background()

	if _, err := svc.Create(ctx, CreatePage{RawPath: "jump", Title: "Jump", Type: models.PageRedirection, Content: "https://example.com"}); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Update(ctx, "jump", "Jump", "elsewhere", "e"); !errors.Is(err, ErrNotEditable) {
		t.Errorf("Update(redirection) = %v, want ErrNotEditable", err)
	}
}

func TestDeleteRequiresReauth(t *testing.T) {
	store := docstore.NewMemStore()
	mirror := &fakeMirror{}
	svc := NewPageService(store, &Cache{}, nil, mirror, &fakeReauth{accept: "hunter2"})
	ctx := context.Background()

	if _, err := svc.Create(ctx, CreatePage{RawPath: "doomed", Title: "Doomed", Type: models.PageMarkdown}); err != nil {
		t.Fatal(err)
	}
	if err := svc.Delete(ctx, "doomed", "guess"); err == nil {
		t.Fatal("Delete() succeeded with bad credential")
	}
	if _, err := store.Get(ctx, PagesCollection, "doomed"); err != nil {
		t.Error("page removed despite failed reauth")
	}
	if err := svc.Delete(ctx, "doomed", "hunter2"); err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}
	if _, err := store.Get(ctx, PagesCollection, "doomed"); !errors.Is(err, docstore.ErrNotFound) {
		t.Error("page still present after delete")
	}
	if len(mirror.deletes) != 1 || mirror.deletes[0] != "doomed" {
		t.Errorf("mirror deletes = %v", mirror.deletes)
	}
}

func TestDeleteWithReauthUnconfigured(t *testing.T) {
	store := docstore.NewMemStore()
	// An empty credential hash disables reauthentication; deletes must
	// still go through.
	verifier := auth.NewVerifier([]byte("secret"), []byte(""))
	svc := NewPageService(store, &Cache{}, nil, nil, verifier)
	ctx := context.Background()

	if _, err := svc.Create(ctx, CreatePage{RawPath: "doomed", Title: "Doomed", Type: models.PageMarkdown}); err != nil {
		t.Fatal(err)
	}
	if err := svc.Delete(ctx, "doomed", ""); err != nil {
		t.Fatalf("Delete with reauth unconfigured failed: %v", err)
	}
	if _, err := store.Get(ctx, PagesCollection, "doomed"); !errors.Is(err, docstore.ErrNotFound) {
		t.Error("page still present after delete")
	}
}

func TestListSummariesSkipsBadDocuments(t *testing.T) {
	svc, store, _ := newTestPageService(t)
	ctx := context.Background()

	if _, err := svc.Create(ctx, CreatePage{RawPath: "good", Title: "Good", Type: models.PageMarkdown}); err != nil {
		t.Fatal(err)
	}
	if err := store.Set(ctx, PagesCollection, "broken", map[string]any{"title": "no path"}); err != nil {
		t.Fatal(err)
	}

	summaries, err := svc.ListSummaries(ctx)
	if err != nil {
		t.Fatalf("ListSummaries() failed: %v", err)
	}
	if len(summaries) != 1 || summaries[0].FullPath != "good" {
		t.Errorf("summaries = %+v", summaries)
	}
}

func TestListSummariesCacheInvalidation(t *testing.T) {
	svc, _, _ := newTestPageService(t)
	ctx := context.Background()

	if _, err := svc.Create(ctx, CreatePage{RawPath: "one", Title: "One", Type: models.PageMarkdown}); err != nil {
		t.Fatal(err)
	}
	first, err := svc.ListSummaries(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(first) != 1 {
		t.Fatalf("summaries = %d, want 1", len(first))
	}
	if _, err := svc.Create(ctx, CreatePage{RawPath: "two", Title: "Two", Type: models.PageMarkdown}); err != nil {
		t.Fatal(err)
	}
	second, err := svc.ListSummaries(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(second) != 2 {
		t.Errorf("summaries after second create = %d, want 2", len(second))
	}
}
