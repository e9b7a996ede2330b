package store

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Manojseetaram/code-share-clone/internal/apperror"
	"github.com/Manojseetaram/code-share-clone/internal/model"
	"github.com/Manojseetaram/code-share-clone/internal/slug"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	s, err := New(dbPath, 24*time.Hour, logger)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	return s
}

// expire rewrites a row's expiry into the past so reads treat it as absent.
func expire(t *testing.T, s *Store, sl string) {
	t.Helper()
	_, err := s.db.Exec(`UPDATE snippets SET expires_at = ? WHERE slug = ?`,
		nowUTC().Add(-time.Hour), sl)
	require.NoError(t, err)
}

func TestCreateAndGet(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	images := []model.Image{{ID: "img-1", DataURL: "data:,x", Width: 100, Height: 50}}
	created, err := s.Create(ctx, "my-snippet", "print(1)", "python", images)
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "my-snippet", created.Slug)
	assert.Equal(t, created.CreatedAt.Add(24*time.Hour), created.ExpiresAt)
	assert.False(t, created.Expired(time.Now()))
	assert.True(t, created.Expired(created.ExpiresAt))

	got, err := s.Get(ctx, "my-snippet")
	require.NoError(t, err)
	assert.Equal(t, "print(1)", got.Content)
	assert.Equal(t, "python", got.Language)
	require.Len(t, got.Images, 1)
	assert.Equal(t, "img-1", got.Images[0].ID)
	assert.Equal(t, 100, got.Images[0].Width)
}

func TestCreateDefaults(t *testing.T) {
	s := setupTestStore(t)

	created, err := s.Create(context.Background(), "defaults", "x", "", nil)
	require.NoError(t, err)
	assert.Equal(t, model.DefaultLanguage, created.Language)
	assert.NotNil(t, created.Images)
	assert.Empty(t, created.Images)
}

func TestCreateSlugTaken(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	_, err := s.Create(ctx, "taken", "first", "go", nil)
	require.NoError(t, err)

	_, err = s.Create(ctx, "taken", "second", "go", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperror.ErrSlugTaken)
}

func TestCreateReclaimsExpiredSlug(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	first, err := s.Create(ctx, "reuse-me", "old content", "go", nil)
	require.NoError(t, err)
	expire(t, s, "reuse-me")

	second, err := s.Create(ctx, "reuse-me", "new content", "rust", nil)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)

	got, err := s.Get(ctx, "reuse-me")
	require.NoError(t, err)
	assert.Equal(t, "new content", got.Content)
	assert.Equal(t, "rust", got.Language)
}

func TestGetNotFound(t *testing.T) {
	s := setupTestStore(t)

	_, err := s.Get(context.Background(), "nope")
	require.Error(t, err)
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestGetExpired(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	_, err := s.Create(ctx, "short-lived", "x", "go", nil)
	require.NoError(t, err)
	expire(t, s, "short-lived")

	_, err = s.Get(ctx, "short-lived")
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestAvailable(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	free, err := s.Available(ctx, "someday")
	require.NoError(t, err)
	assert.True(t, free)

	_, err = s.Create(ctx, "someday", "x", "go", nil)
	require.NoError(t, err)

	free, err = s.Available(ctx, "someday")
	require.NoError(t, err)
	assert.False(t, free)

	expire(t, s, "someday")
	free, err = s.Available(ctx, "someday")
	require.NoError(t, err)
	assert.True(t, free, "expired slug is available again")
}

func TestAllocate(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	a, err := s.Allocate(ctx, "content a", "go", nil)
	require.NoError(t, err)
	assert.NoError(t, slug.Validate(a.Slug), "allocated slug %q must validate", a.Slug)

	b, err := s.Allocate(ctx, "content b", "go", nil)
	require.NoError(t, err)
	assert.NotEqual(t, a.Slug, b.Slug)

	got, err := s.Get(ctx, a.Slug)
	require.NoError(t, err)
	assert.Equal(t, "content a", got.Content)
}

func TestUpdateDocument(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	_, err := s.Create(ctx, "doc", "v1", "go", nil)
	require.NoError(t, err)

	require.NoError(t, s.UpdateDocument(ctx, "doc", "v2", "python"))

	got, err := s.Get(ctx, "doc")
	require.NoError(t, err)
	assert.Equal(t, "v2", got.Content)
	assert.Equal(t, "python", got.Language)
}

func TestUpdateDocumentExpiredIsNoop(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	_, err := s.Create(ctx, "gone", "v1", "go", nil)
	require.NoError(t, err)
	expire(t, s, "gone")

	require.NoError(t, s.UpdateDocument(ctx, "gone", "v2", "go"))

	_, err = s.Get(ctx, "gone")
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestUpdateImages(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	_, err := s.Create(ctx, "pics", "x", "go",
		[]model.Image{{ID: "a"}, {ID: "b"}})
	require.NoError(t, err)

	require.NoError(t, s.UpdateImages(ctx, "pics", []model.Image{{ID: "b"}}))

	got, err := s.Get(ctx, "pics")
	require.NoError(t, err)
	require.Len(t, got.Images, 1)
	assert.Equal(t, "b", got.Images[0].ID)
}

func TestPatch(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	_, err := s.Create(ctx, "patchy", "v1", "go", nil)
	require.NoError(t, err)

	content := "v2"
	require.NoError(t, s.Patch(ctx, "patchy", &content, nil, nil))

	got, err := s.Get(ctx, "patchy")
	require.NoError(t, err)
	assert.Equal(t, "v2", got.Content)
	assert.Equal(t, "go", got.Language, "unpatched field keeps its value")

	language := "zig"
	images := []model.Image{{ID: "i1"}}
	require.NoError(t, s.Patch(ctx, "patchy", nil, &language, &images))

	got, err = s.Get(ctx, "patchy")
	require.NoError(t, err)
	assert.Equal(t, "v2", got.Content)
	assert.Equal(t, "zig", got.Language)
	require.Len(t, got.Images, 1)

	// All-nil patch changes nothing and is not an error.
	require.NoError(t, s.Patch(ctx, "patchy", nil, nil, nil))
}

func TestDelete(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	_, err := s.Create(ctx, "doomed", "x", "go", nil)
	require.NoError(t, err)

	require.NoError(t, s.Delete(ctx, "doomed"))

	_, err = s.Get(ctx, "doomed")
	assert.ErrorIs(t, err, apperror.ErrNotFound)

	require.NoError(t, s.Delete(ctx, "never-existed"))
}

func TestPurgeExpired(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	for _, sl := range []string{"live-1", "dead-1", "dead-2"} {
		_, err := s.Create(ctx, sl, "x", "go", nil)
		require.NoError(t, err)
	}
	expire(t, s, "dead-1")
	expire(t, s, "dead-2")

	n, err := s.PurgeExpired(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	count, err := s.CountLive(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	_, err = s.Get(ctx, "live-1")
	assert.NoError(t, err)
}

func TestConcurrentCreateOneWinner(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	const racers = 8
	var wg sync.WaitGroup
	results := make(chan error, racers)

	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Create(ctx, "contested", "x", "go", nil)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	wins, losses := 0, 0
	for err := range results {
		if err == nil {
			wins++
			continue
		}
		assert.ErrorIs(t, err, apperror.ErrSlugTaken)
		losses++
	}

	assert.Equal(t, 1, wins)
	assert.Equal(t, racers-1, losses)
}
