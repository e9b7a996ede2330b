package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/Manojseetaram/code-share-clone/internal/apperror"
	"github.com/Manojseetaram/code-share-clone/internal/model"
)

// Client talks to the snippet REST API.
type Client struct {
	baseURL string
	http    *http.Client
}

func New(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

type createRequest struct {
	Slug     string        `json:"slug,omitempty"`
	Content  string        `json:"content"`
	Language string        `json:"language,omitempty"`
	Images   []model.Image `json:"images,omitempty"`
}

// Create claims a slug, or asks the server to allocate one when slug is
// empty. The returned snippet carries the canonical slug.
func (c *Client) Create(ctx context.Context, slug, content, language string, images []model.Image) (*model.Snippet, error) {
	body, err := json.Marshal(createRequest{
		Slug:     slug,
		Content:  content,
		Language: language,
		Images:   images,
	})
	if err != nil {
		return nil, fmt.Errorf("client: encode create request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/api/snippets", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("client: build create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var snip model.Snippet
	if err := c.do(req, http.StatusCreated, &snip); err != nil {
		return nil, err
	}
	return &snip, nil
}

func (c *Client) Get(ctx context.Context, slug string) (*model.Snippet, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/api/snippets/"+url.PathEscape(slug), nil)
	if err != nil {
		return nil, fmt.Errorf("client: build get request: %w", err)
	}

	var snip model.Snippet
	if err := c.do(req, http.StatusOK, &snip); err != nil {
		return nil, err
	}
	return &snip, nil
}

type checkResponse struct {
	Slug      string `json:"slug"`
	Available bool   `json:"available"`
}

// Check reports whether slug is free, along with its sanitized form.
func (c *Client) Check(ctx context.Context, slug string) (available bool, sanitized string, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/api/check/"+url.PathEscape(slug), nil)
	if err != nil {
		return false, "", fmt.Errorf("client: build check request: %w", err)
	}

	var resp checkResponse
	if err := c.do(req, http.StatusOK, &resp); err != nil {
		return false, "", err
	}
	return resp.Available, resp.Slug, nil
}

func (c *Client) do(req *http.Request, wantStatus int, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("client: %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != wantStatus {
		return statusError(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("client: decode response: %w", err)
	}
	return nil
}

// statusError folds API error responses back onto the shared sentinels so
// callers can branch with errors.Is.
func statusError(resp *http.Response) error {
	var body struct {
		Error string `json:"error"`
	}
	if data, err := io.ReadAll(io.LimitReader(resp.Body, 4096)); err == nil {
		json.Unmarshal(data, &body)
	}
	if body.Error == "" {
		body.Error = resp.Status
	}

	switch resp.StatusCode {
	case http.StatusNotFound:
		return &apperror.AppError{Err: apperror.ErrNotFound, Message: body.Error}
	case http.StatusConflict:
		return &apperror.AppError{Err: apperror.ErrSlugTaken, Message: body.Error}
	case http.StatusBadRequest:
		return &apperror.AppError{Err: apperror.ErrInvalidSlug, Message: body.Error}
	}
	return fmt.Errorf("client: unexpected status %d: %s", resp.StatusCode, body.Error)
}
