package model

import "time"

// DefaultLanguage is applied when a snippet is created without one.
const DefaultLanguage = "javascript"

// Image is a pasted screenshot attached to a snippet. Dimensions are
// whatever the client measured at paste time; the server never decodes
// the data URL.
type Image struct {
	ID      string `json:"id"`
	DataURL string `json:"data_url"`
	Width   int    `json:"width"`
	Height  int    `json:"height"`
}

type Snippet struct {
	ID        string    `json:"id"`
	Slug      string    `json:"slug"`
	Content   string    `json:"content"`
	Language  string    `json:"language"`
	Images    []Image   `json:"images"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the snippet's TTL has passed at the given instant.
func (s *Snippet) Expired(now time.Time) bool {
	return !s.ExpiresAt.After(now)
}

// CloneImages returns a copy of the image list so callers can hold it
// outside the owning room's goroutine.
func CloneImages(images []Image) []Image {
	if images == nil {
		return nil
	}
	out := make([]Image, len(images))
	copy(out, images)
	return out
}
