package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Manojseetaram/code-share-clone/internal/model"
	"github.com/Manojseetaram/code-share-clone/internal/room"
	"github.com/Manojseetaram/code-share-clone/internal/slug"
	"github.com/Manojseetaram/code-share-clone/internal/store"
	"github.com/Manojseetaram/code-share-clone/internal/ws"
)

func setupTestAPI(t *testing.T) (http.Handler, *store.Store) {
	t.Helper()
	return setupTestAPIWithTTL(t, 24*time.Hour)
}

func setupTestAPIWithTTL(t *testing.T, ttl time.Duration) (http.Handler, *store.Store) {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	st, err := store.New(dbPath, ttl, logger)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	reg := room.NewRegistry(st, logger)
	router := NewRouter(New(st, reg, logger), ws.NewHandler(reg, logger, "*"), "*", logger)
	return router, st
}

func doRequest(t *testing.T, router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	router, _ := setupTestAPI(t)

	w := doRequest(t, router, "GET", "/health", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"ok":true}`, w.Body.String())
}

func TestStats(t *testing.T) {
	router, st := setupTestAPI(t)

	for _, sl := range []string{"stats-one", "stats-two"} {
		_, err := st.Create(context.Background(), sl, "", "", nil)
		require.NoError(t, err)
	}

	w := doRequest(t, router, "GET", "/api/stats", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]any
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.EqualValues(t, 0, resp["active_rooms"])
	assert.EqualValues(t, 0, resp["active_clients"])
	assert.EqualValues(t, 2, resp["total_snippets"])
}

func TestCheckSlug(t *testing.T) {
	router, st := setupTestAPI(t)

	_, err := st.Create(context.Background(), "taken-pad", "", "", nil)
	require.NoError(t, err)

	tests := []struct {
		name      string
		path      string
		slug      string
		available bool
	}{
		{"free slug", "/api/check/open-pad", "open-pad", true},
		{"taken slug", "/api/check/taken-pad", "taken-pad", false},
		{"case folds onto taken slug", "/api/check/Taken-Pad", "taken-pad", false},
		{"sanitized form reported", "/api/check/My%20Pad", "my-pad", true},
		{"too short", "/api/check/ab", "ab", false},
		{"reserved word", "/api/check/admin", "admin", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doRequest(t, router, "GET", tt.path, "")
			require.Equal(t, http.StatusOK, w.Code)

			var resp CheckResponse
			require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
			assert.Equal(t, tt.slug, resp.Slug)
			assert.Equal(t, tt.available, resp.Available)
		})
	}
}

func TestCreateSnippet(t *testing.T) {
	router, _ := setupTestAPI(t)

	body := `{"slug":"My Snippet","content":"print(1)","language":"python"}`
	w := doRequest(t, router, "POST", "/api/snippets", body)
	require.Equal(t, http.StatusCreated, w.Code)

	var snip model.Snippet
	require.NoError(t, json.NewDecoder(w.Body).Decode(&snip))
	assert.NotEmpty(t, snip.ID)
	assert.Equal(t, "my-snippet", snip.Slug)
	assert.Equal(t, "print(1)", snip.Content)
	assert.Equal(t, "python", snip.Language)
	assert.Empty(t, snip.Images)
	assert.Equal(t, 24*time.Hour, snip.ExpiresAt.Sub(snip.CreatedAt))
}

func TestCreateSnippetDefaultsLanguage(t *testing.T) {
	router, _ := setupTestAPI(t)

	w := doRequest(t, router, "POST", "/api/snippets", `{"slug":"plain-pad","content":"x"}`)
	require.Equal(t, http.StatusCreated, w.Code)

	var snip model.Snippet
	require.NoError(t, json.NewDecoder(w.Body).Decode(&snip))
	assert.Equal(t, model.DefaultLanguage, snip.Language)
}

func TestCreateSnippetGeneratesSlug(t *testing.T) {
	router, _ := setupTestAPI(t)

	w := doRequest(t, router, "POST", "/api/snippets", `{"content":"no slug given"}`)
	require.Equal(t, http.StatusCreated, w.Code)

	var snip model.Snippet
	require.NoError(t, json.NewDecoder(w.Body).Decode(&snip))
	assert.Len(t, snip.Slug, 8)
	assert.NoError(t, slug.Validate(snip.Slug))
}

func TestCreateSnippetConflict(t *testing.T) {
	router, _ := setupTestAPI(t)

	body := `{"slug":"contested","content":"first"}`
	w := doRequest(t, router, "POST", "/api/snippets", body)
	require.Equal(t, http.StatusCreated, w.Code)

	w = doRequest(t, router, "POST", "/api/snippets", `{"slug":"contested","content":"second"}`)
	require.Equal(t, http.StatusConflict, w.Code)
	assert.JSONEq(t, `{"error":"URL already taken"}`, w.Body.String())
}

func TestCreateSnippetRejectsBadInput(t *testing.T) {
	router, _ := setupTestAPI(t)

	tests := []struct {
		name string
		body string
	}{
		{"invalid json", `{"slug":`},
		{"slug too short", `{"slug":"ab","content":"x"}`},
		{"reserved slug", `{"slug":"api","content":"x"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doRequest(t, router, "POST", "/api/snippets", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestGetSnippet(t *testing.T) {
	router, st := setupTestAPI(t)

	created, err := st.Create(context.Background(), "readable", "body text", "go",
		[]model.Image{{ID: "img-1", DataURL: "data:,x", Width: 10, Height: 20}})
	require.NoError(t, err)

	w := doRequest(t, router, "GET", "/api/snippets/readable", "")
	require.Equal(t, http.StatusOK, w.Code)

	var snip model.Snippet
	require.NoError(t, json.NewDecoder(w.Body).Decode(&snip))
	assert.Equal(t, created.ID, snip.ID)
	assert.Equal(t, "body text", snip.Content)
	require.Len(t, snip.Images, 1)
	assert.Equal(t, "img-1", snip.Images[0].ID)

	// Lookups fold case the same way creation does.
	w = doRequest(t, router, "GET", "/api/snippets/Readable", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestGetSnippetNotFound(t *testing.T) {
	router, _ := setupTestAPI(t)

	w := doRequest(t, router, "GET", "/api/snippets/never-here", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetSnippetExpired(t *testing.T) {
	router, st := setupTestAPIWithTTL(t, -time.Minute)

	_, err := st.Create(context.Background(), "born-dead", "x", "", nil)
	require.NoError(t, err)

	w := doRequest(t, router, "GET", "/api/snippets/born-dead", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPatchSnippet(t *testing.T) {
	router, st := setupTestAPI(t)

	_, err := st.Create(context.Background(), "patchable", "old", "go", nil)
	require.NoError(t, err)

	w := doRequest(t, router, "PATCH", "/api/snippets/patchable", `{"content":"new"}`)
	require.Equal(t, http.StatusNoContent, w.Code)

	snip, err := st.Get(context.Background(), "patchable")
	require.NoError(t, err)
	assert.Equal(t, "new", snip.Content)
	assert.Equal(t, "go", snip.Language)

	// Patching something that does not exist still reports success.
	w = doRequest(t, router, "PATCH", "/api/snippets/missing-pad", `{"content":"x"}`)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = doRequest(t, router, "PATCH", "/api/snippets/patchable", `not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDeleteSnippet(t *testing.T) {
	router, st := setupTestAPI(t)

	_, err := st.Create(context.Background(), "removable", "x", "", nil)
	require.NoError(t, err)

	w := doRequest(t, router, "DELETE", "/api/snippets/removable", "")
	require.Equal(t, http.StatusNoContent, w.Code)

	w = doRequest(t, router, "GET", "/api/snippets/removable", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doRequest(t, router, "DELETE", "/api/snippets/removable", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestCORSPreflight(t *testing.T) {
	router, _ := setupTestAPI(t)

	w := doRequest(t, router, "OPTIONS", "/api/snippets", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), "PATCH")
}
