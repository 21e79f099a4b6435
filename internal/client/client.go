// Package client implements the HTTP client used by the stash CLI to
// talk to a running server.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// APIError carries the status and message of a non-2xx server response.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

// Client talks to the stash HTTP API using a bearer token.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// New creates a client for the server at baseURL. The token may be
// empty for unauthenticated calls like Login.
func New(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http: &http.Client{
			Timeout: 10 * time.Minute, // large uploads take a while
		},
	}
}

// LoginResult is the response to a successful login.
type LoginResult struct {
	Username string `json:"username"`
	Token    string `json:"token"`
}

// Login exchanges a username and password for a token.
func (c *Client) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	form := url.Values{
		"username": {username},
		"password": {password},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/api/auth/login", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var result LoginResult
	if err := c.do(req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// UploadResult is the response to a successful upload.
type UploadResult struct {
	URL          string `json:"url"`
	Filename     string `json:"filename"`
	Deduplicated bool   `json:"deduplicated"`
}

// Upload sends the file at path to the server as a multipart form.
func (c *Client) Upload(ctx context.Context, path string) (*UploadResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	// The multipart body is streamed through a pipe so the file is
	// never buffered in memory whole.
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		part, err := mw.CreateFormFile("file", filepath.Base(path))
		if err != nil {
			pw.CloseWithError(err)
			return
		}
		if _, err := io.Copy(part, f); err != nil {
			pw.CloseWithError(err)
			return
		}
		pw.CloseWithError(mw.Close())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/upload", pr)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var result UploadResult
	if err := c.do(req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// File is one entry in a file listing.
type File struct {
	Filename     string    `json:"filename"`
	OriginalName string    `json:"original_name"`
	Size         int64     `json:"size"`
	URL          string    `json:"url"`
	UploadedAt   time.Time `json:"uploaded_at"`
}

// FileList is one page of the caller's files.
type FileList struct {
	Files      []File `json:"files"`
	NextCursor string `json:"next_cursor"`
}

// List fetches one page of the caller's files. query filters by
// original name; cursor continues a previous page; limit caps the page
// size (0 for the server default).
func (c *Client) List(ctx context.Context, query, cursor string, limit int) (*FileList, error) {
	params := url.Values{}
	if query != "" {
		params.Set("q", query)
	}
	if cursor != "" {
		params.Set("cursor", cursor)
	}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}

	endpoint := c.baseURL + "/api/files"
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	var result FileList
	if err := c.do(req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Delete removes one of the caller's files by its server filename.
func (c *Client) Delete(ctx context.Context, filename string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete,
		c.baseURL+"/api/files/"+url.PathEscape(filename), nil)
	if err != nil {
		return err
	}
	return c.do(req, nil)
}

// RotateToken invalidates the current token and returns a fresh one.
func (c *Client) RotateToken(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/auth/token", nil)
	if err != nil {
		return "", err
	}

	var result struct {
		Token string `json:"token"`
	}
	if err := c.do(req, &result); err != nil {
		return "", err
	}
	c.token = result.Token
	return result.Token, nil
}

// do executes the request, decoding a JSON body into out on success
// and an APIError on failure.
func (c *Client) do(req *http.Request, out any) error {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode, Message: strings.TrimSpace(string(body))}
		var payload struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(body, &payload) == nil && payload.Error != "" {
			apiErr.Message = payload.Error
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode server response: %w", err)
	}
	return nil
}
