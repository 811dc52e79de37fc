package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/sposlearning/sposwiki/internal/auth"
	"github.com/sposlearning/sposwiki/internal/docstore"
	"github.com/sposlearning/sposwiki/internal/render"
	"github.com/sposlearning/sposwiki/internal/server/dto"
	"github.com/sposlearning/sposwiki/internal/storage"
)

var testSecret = []byte("server-test-secret")

func signToken(t *testing.T, uid, email string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   uid,
		"email": email,
		"exp":   time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString(testSecret)
	if err != nil {
		t.Fatal(err)
	}
	return signed
}

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	store := docstore.NewMemStore()
	cache := &storage.Cache{}
	credHash, err := bcrypt.GenerateFromPassword([]byte("hunter2"), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	verifier := auth.NewVerifier(testSecret, credHash)
	pages := storage.NewPageService(store, cache, nil, nil, verifier)
	search := storage.NewSearchService(pages)
	feedback := storage.NewFeedbackService(store, nil, nil, nil)
	srv := New(pages, search, feedback, render.New(), verifier, Options{})
	t.Cleanup(srv.Close)
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return srv, ts
}

func doJSON(t *testing.T, method, url, token string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatal(err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var out T
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

func TestHealth(t *testing.T) {
	_, ts := newTestServer(t)
	resp, err := http.Get(ts.URL + "/api/health")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}
}

func TestPageLifecycle(t *testing.T) {
	_, ts := newTestServer(t)
	token := signToken(t, "u1", "teacher@example.com")

	// Anonymous create is rejected.
	resp := doJSON(t, http.MethodPost, ts.URL+"/api/pages", "", dto.CreatePageRequest{
		Path: "prg/intro", Title: "Intro", Type: "markdown", Content: "# Hi",
	})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("anonymous create status = %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = doJSON(t, http.MethodPost, ts.URL+"/api/pages", token, dto.CreatePageRequest{
		Path: "prg/intro", Title: "Intro", Type: "markdown", Content: "# Hi",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d", resp.StatusCode)
	}
	created := decodeBody[dto.PageResponse](t, resp)
	if created.Path != "/prg/intro" || created.CreatedBy != "teacher@example.com" {
		t.Errorf("created = %+v", created)
	}

	// Duplicate path conflicts.
	resp = doJSON(t, http.MethodPost, ts.URL+"/api/pages", token, dto.CreatePageRequest{
		Path: "prg/intro", Title: "Intro", Type: "markdown",
	})
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("duplicate create status = %d", resp.StatusCode)
	}
	errResp := decodeBody[dto.ErrorResponse](t, resp)
	if errResp.Error.Code != dto.ErrorCodeConflict {
		t.Errorf("error code = %s", errResp.Error.Code)
	}

	// Public read renders markdown.
	resp = doJSON(t, http.MethodGet, ts.URL+"/api/pages/prg/intro", "", nil)
	page := decodeBody[dto.PageResponse](t, resp)
	if !strings.Contains(page.HTML, "<h1") {
		t.Errorf("HTML = %q", page.HTML)
	}

	// Edit.
	resp = doJSON(t, http.MethodPut, ts.URL+"/api/pages/prg/intro", token, dto.UpdatePageRequest{
		Title: "Intro v2", Content: "## Hi again",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("update status = %d", resp.StatusCode)
	}
	updated := decodeBody[dto.PageResponse](t, resp)
	if updated.Title != "Intro v2" || updated.LastEditedBy != "teacher@example.com" {
		t.Errorf("updated = %+v", updated)
	}

	// Wrong credential blocks delete.
	resp = doJSON(t, http.MethodDelete, ts.URL+"/api/pages/prg/intro", token, dto.DeletePageRequest{Credential: "wrong"})
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("bad-credential delete status = %d", resp.StatusCode)
	}
	errResp = decodeBody[dto.ErrorResponse](t, resp)
	if errResp.Error.Code != dto.ErrorCodeReauthFailed {
		t.Errorf("error code = %s", errResp.Error.Code)
	}

	resp = doJSON(t, http.MethodDelete, ts.URL+"/api/pages/prg/intro", token, dto.DeletePageRequest{Credential: "hunter2"})
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete status = %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = doJSON(t, http.MethodGet, ts.URL+"/api/pages/prg/intro", "", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("deleted page status = %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestAdminPageHiddenFromAnonymous(t *testing.T) {
	_, ts := newTestServer(t)
	token := signToken(t, "u1", "teacher@example.com")

	resp := doJSON(t, http.MethodPost, ts.URL+"/api/pages", token, dto.CreatePageRequest{
		Path: "exams/answers", Title: "Answer key", Type: "markdown", Content: "42", AccessLevel: "admin",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = doJSON(t, http.MethodGet, ts.URL+"/api/pages/exams/answers", "", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("anonymous read status = %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = doJSON(t, http.MethodGet, ts.URL+"/api/pages/exams/answers", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("signed-in read status = %d", resp.StatusCode)
	}
	resp.Body.Close()

	// The tree keeps the node as a bare label for anonymous viewers.
	resp = doJSON(t, http.MethodGet, ts.URL+"/api/tree", "", nil)
	tree := decodeBody[dto.TreeNodeResponse](t, resp)
	if len(tree.Children) != 1 || tree.Children[0].Name != "exams" {
		t.Fatalf("tree = %+v", tree)
	}
	answers := tree.Children[0].Children[0]
	if answers.Name != "answers" || answers.Page != nil {
		t.Errorf("answers node = %+v", answers)
	}
}

func TestSearchEndpoint(t *testing.T) {
	_, ts := newTestServer(t)
	token := signToken(t, "u1", "teacher@example.com")

	for _, p := range []dto.CreatePageRequest{
		{Path: "prg/loops", Title: "Loops", Type: "markdown"},
		{Path: "about", Title: "About the course", Type: "html", Content: "<p>hi</p>"},
	} {
		resp := doJSON(t, http.MethodPost, ts.URL+"/api/pages", token, p)
		if resp.StatusCode != http.StatusCreated {
			t.Fatalf("seed create status = %d", resp.StatusCode)
		}
		resp.Body.Close()
	}

	resp := doJSON(t, http.MethodGet, ts.URL+"/api/search?q=loops", "", nil)
	result := decodeBody[dto.SearchResponse](t, resp)
	if len(result.Results) != 1 || result.Results[0].Path != "prg/loops" {
		t.Errorf("results = %+v", result.Results)
	}

	// Matches come folded into a tree as well, keeping the parent folder
	// visible even though it did not match itself.
	if result.Tree == nil {
		t.Fatal("search response carries no tree")
	}
	if len(result.Tree.Children) != 1 || result.Tree.Children[0].Name != "prg" {
		t.Fatalf("search tree = %+v", result.Tree)
	}
	prg := result.Tree.Children[0]
	if prg.Page != nil {
		t.Error("non-matching folder node carries a page")
	}
	if len(prg.Children) != 1 || prg.Children[0].Name != "loops" || prg.Children[0].Page == nil {
		t.Errorf("loops node = %+v", prg.Children)
	}

	// Below the minimum term length nothing matches.
	resp = doJSON(t, http.MethodGet, ts.URL+"/api/search?q=l", "", nil)
	result = decodeBody[dto.SearchResponse](t, resp)
	if len(result.Results) != 0 {
		t.Errorf("short term results = %+v", result.Results)
	}
	if result.Tree != nil {
		t.Errorf("short term tree = %+v", result.Tree)
	}
}

func TestFeedbackEndpoints(t *testing.T) {
	_, ts := newTestServer(t)
	token := signToken(t, "u1", "teacher@example.com")

	resp := doJSON(t, http.MethodPost, ts.URL+"/api/feedback", "", dto.SubmitFeedbackRequest{
		Message: "The arrays page is great",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("submit status = %d", resp.StatusCode)
	}
	submitted := decodeBody[dto.FeedbackResponse](t, resp)
	if submitted.Name != "Anonymous" || submitted.Contact != "Not provided" {
		t.Errorf("defaults = %+v", submitted)
	}

	// Empty message is a structured validation error.
	resp = doJSON(t, http.MethodPost, ts.URL+"/api/feedback", "", dto.SubmitFeedbackRequest{})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("empty submit status = %d", resp.StatusCode)
	}
	errResp := decodeBody[dto.ErrorResponse](t, resp)
	if errResp.Error.Code != dto.ErrorCodeMissingField {
		t.Errorf("error code = %s", errResp.Error.Code)
	}

	// The inbox is admin-only.
	resp = doJSON(t, http.MethodGet, ts.URL+"/api/feedback", "", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("anonymous inbox status = %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = doJSON(t, http.MethodGet, ts.URL+"/api/feedback", token, nil)
	inbox := decodeBody[[]dto.FeedbackResponse](t, resp)
	if len(inbox) != 1 || inbox[0].ID != submitted.ID {
		t.Fatalf("inbox = %+v", inbox)
	}

	resp = doJSON(t, http.MethodPut, ts.URL+"/api/feedback/"+submitted.ID+"/resolved", token, dto.ResolveFeedbackRequest{Resolved: true})
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("resolve status = %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = doJSON(t, http.MethodGet, ts.URL+"/api/feedback?hideResolved=true", token, nil)
	inbox = decodeBody[[]dto.FeedbackResponse](t, resp)
	if len(inbox) != 0 {
		t.Errorf("hideResolved inbox = %+v", inbox)
	}

	resp = doJSON(t, http.MethodDelete, ts.URL+"/api/feedback/"+submitted.ID, token, nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete status = %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestInvalidTokenRejected(t *testing.T) {
	_, ts := newTestServer(t)
	resp := doJSON(t, http.MethodGet, ts.URL+"/api/tree", "garbage-token", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d", resp.StatusCode)
	}
	resp.Body.Close()
}
