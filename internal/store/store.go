// Package store persists snippets in sqlite. Expired rows are logically
// absent from every read path regardless of when the sweeper physically
// removes them.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/pressly/goose/v3"
	"github.com/rs/xid"
	_ "modernc.org/sqlite"

	"github.com/Manojseetaram/code-share-clone/internal/apperror"
	"github.com/Manojseetaram/code-share-clone/internal/model"
	"github.com/Manojseetaram/code-share-clone/internal/slug"
	"github.com/Manojseetaram/code-share-clone/internal/store/migrations"
)

// allocAttempts bounds the generate-and-claim loop for snippets shared
// without an explicit slug.
const allocAttempts = 10

type Store struct {
	db     *sql.DB
	ttl    time.Duration
	logger *slog.Logger
}

func New(dbPath string, ttl time.Duration, logger *slog.Logger) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("store: create data dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("store: open database: %w", err)
	}

	// sqlite allows one writer at a time; a single pooled connection turns
	// concurrent room flushes into queued writes instead of SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	// WAL keeps readers from stalling behind the write-through path.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: set WAL mode: %w", err)
	}

	if err := runMigrations(context.Background(), db); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: migrate: %w", err)
	}

	logger.Info("store ready", slog.String("path", dbPath), slog.Duration("ttl", ttl))
	return &Store{db: db, ttl: ttl, logger: logger}, nil
}

func runMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return err
	}
	return goose.UpContext(ctx, db, ".")
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Stored timestamps are second-granular so their text encodings compare
// in chronological order inside sqlite.
func nowUTC() time.Time {
	return time.Now().UTC().Truncate(time.Second)
}

// Get returns the live snippet for slug, or ErrNotFound once the TTL has
// passed.
func (s *Store) Get(ctx context.Context, sl string) (*model.Snippet, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, slug, content, language, images, created_at, expires_at
		 FROM snippets WHERE slug = ? AND expires_at > ?`,
		sl, nowUTC(),
	)

	snip, err := s.scanSnippet(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NotFound(sl)
	}
	if err != nil {
		return nil, fmt.Errorf("store: get %s: %w", sl, err)
	}
	return snip, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *Store) scanSnippet(row rowScanner) (*model.Snippet, error) {
	var (
		snip       model.Snippet
		imagesJSON string
	)
	err := row.Scan(&snip.ID, &snip.Slug, &snip.Content, &snip.Language,
		&imagesJSON, &snip.CreatedAt, &snip.ExpiresAt)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(imagesJSON), &snip.Images); err != nil {
		s.logger.Warn("discarding unreadable images column",
			slog.String("slug", snip.Slug), slog.String("error", err.Error()))
		snip.Images = nil
	}
	if snip.Images == nil {
		snip.Images = []model.Image{}
	}
	return &snip, nil
}

// Create claims slug for a new snippet. Concurrent creates racing on the
// same slug resolve to exactly one winner: the insert claims a never-used
// slug, the update reclaims an expired one, and each is a single atomic
// row operation. Everyone else gets ErrSlugTaken.
func (s *Store) Create(ctx context.Context, sl, content, language string, images []model.Image) (*model.Snippet, error) {
	if language == "" {
		language = model.DefaultLanguage
	}
	if images == nil {
		// "[]" on the wire, never null.
		images = []model.Image{}
	}
	imagesJSON, err := json.Marshal(images)
	if err != nil {
		return nil, fmt.Errorf("store: encode images: %w", err)
	}

	snip := &model.Snippet{
		ID:        xid.New().String(),
		Slug:      sl,
		Content:   content,
		Language:  language,
		Images:    images,
		CreatedAt: nowUTC(),
	}
	snip.ExpiresAt = snip.CreatedAt.Add(s.ttl)

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO snippets (id, slug, content, language, images, created_at, expires_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(slug) DO NOTHING`,
		snip.ID, snip.Slug, snip.Content, snip.Language, string(imagesJSON),
		snip.CreatedAt, snip.ExpiresAt,
	)
	if err != nil {
		return nil, fmt.Errorf("store: create %s: %w", sl, err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return nil, fmt.Errorf("store: create %s: %w", sl, err)
	} else if n == 1 {
		return snip, nil
	}

	// The slug has a row. If that row is expired its slug is reclaimable.
	res, err = s.db.ExecContext(ctx,
		`UPDATE snippets
		 SET id = ?, content = ?, language = ?, images = ?, created_at = ?, expires_at = ?
		 WHERE slug = ? AND expires_at <= ?`,
		snip.ID, snip.Content, snip.Language, string(imagesJSON),
		snip.CreatedAt, snip.ExpiresAt, snip.Slug, nowUTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("store: reclaim %s: %w", sl, err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return nil, fmt.Errorf("store: reclaim %s: %w", sl, err)
	} else if n == 1 {
		return snip, nil
	}

	return nil, apperror.SlugTaken()
}

// Allocate generates a slug and claims it, retrying on collision.
func (s *Store) Allocate(ctx context.Context, content, language string, images []model.Image) (*model.Snippet, error) {
	for i := 0; i < allocAttempts; i++ {
		sl, err := slug.Generate()
		if err != nil {
			return nil, fmt.Errorf("store: generate slug: %w", err)
		}

		snip, err := s.Create(ctx, sl, content, language, images)
		if err == nil {
			return snip, nil
		}
		if !errors.Is(err, apperror.ErrSlugTaken) {
			return nil, err
		}
	}

	s.logger.Warn("slug allocation exhausted", slog.Int("attempts", allocAttempts))
	return nil, apperror.AllocationExhausted()
}

// Available reports whether slug maps to no live snippet. It never writes.
func (s *Store) Available(ctx context.Context, sl string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM snippets WHERE slug = ? AND expires_at > ?)`,
		sl, nowUTC(),
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("store: check %s: %w", sl, err)
	}
	return !exists, nil
}

// UpdateDocument is the write-through target for room edits. Writes to an
// expired snippet quietly match nothing.
func (s *Store) UpdateDocument(ctx context.Context, sl, content, language string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE snippets SET content = ?, language = ? WHERE slug = ? AND expires_at > ?`,
		content, language, sl, nowUTC(),
	)
	if err != nil {
		return fmt.Errorf("store: update document %s: %w", sl, err)
	}
	return nil
}

// UpdateImages replaces the stored image list wholesale.
func (s *Store) UpdateImages(ctx context.Context, sl string, images []model.Image) error {
	if images == nil {
		images = []model.Image{}
	}
	imagesJSON, err := json.Marshal(images)
	if err != nil {
		return fmt.Errorf("store: encode images: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`UPDATE snippets SET images = ? WHERE slug = ? AND expires_at > ?`,
		string(imagesJSON), sl, nowUTC(),
	)
	if err != nil {
		return fmt.Errorf("store: update images %s: %w", sl, err)
	}
	return nil
}

// Patch updates only the provided fields. A patch against a missing or
// expired slug matches nothing and is not an error.
func (s *Store) Patch(ctx context.Context, sl string, content, language *string, images *[]model.Image) error {
	if content != nil {
		if _, err := s.db.ExecContext(ctx,
			`UPDATE snippets SET content = ? WHERE slug = ? AND expires_at > ?`,
			*content, sl, nowUTC(),
		); err != nil {
			return fmt.Errorf("store: patch content %s: %w", sl, err)
		}
	}
	if language != nil {
		if _, err := s.db.ExecContext(ctx,
			`UPDATE snippets SET language = ? WHERE slug = ? AND expires_at > ?`,
			*language, sl, nowUTC(),
		); err != nil {
			return fmt.Errorf("store: patch language %s: %w", sl, err)
		}
	}
	if images != nil {
		if err := s.UpdateImages(ctx, sl, *images); err != nil {
			return err
		}
	}
	return nil
}

// Delete removes the row for slug immediately, live or not.
func (s *Store) Delete(ctx context.Context, sl string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM snippets WHERE slug = ?`, sl); err != nil {
		return fmt.Errorf("store: delete %s: %w", sl, err)
	}
	return nil
}

// PurgeExpired physically removes expired rows and returns how many went.
func (s *Store) PurgeExpired(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM snippets WHERE expires_at <= ?`, nowUTC())
	if err != nil {
		return 0, fmt.Errorf("store: purge expired: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("store: purge expired: %w", err)
	}
	return n, nil
}

// CountLive returns the number of unexpired snippets.
func (s *Store) CountLive(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM snippets WHERE expires_at > ?`, nowUTC(),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("store: count live: %w", err)
	}
	return count, nil
}
