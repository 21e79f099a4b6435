package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogin(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/auth/login", r.URL.Path)
		require.NoError(t, r.ParseForm())

		if r.FormValue("username") == "alice_01" && r.FormValue("password") == "opensesame" {
			json.NewEncoder(w).Encode(map[string]string{
				"username": "alice_01",
				"token":    "fresh-token",
			})
			return
		}
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]string{"error": "invalid credentials"})
	}))
	defer srv.Close()

	t.Run("success returns token", func(t *testing.T) {
		c := New(srv.URL, "")
		result, err := c.Login(context.Background(), "alice_01", "opensesame")
		require.NoError(t, err)
		assert.Equal(t, "fresh-token", result.Token)
	})

	t.Run("failure surfaces server message", func(t *testing.T) {
		c := New(srv.URL, "")
		_, err := c.Login(context.Background(), "alice_01", "wrong")

		var apiErr *APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
		assert.Equal(t, "invalid credentials", apiErr.Message)
	})
}

func TestUpload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "report.pdf")
	require.NoError(t, os.WriteFile(path, []byte("pdf bytes"), 0o644))

	var gotAuth, gotName string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/upload", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")

		f, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer f.Close()
		gotName = header.Filename
		gotBody, err = io.ReadAll(f)
		require.NoError(t, err)

		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]any{
			"url":          "http://example.com/f/a1b2c3d4.pdf",
			"filename":     "a1b2c3d4.pdf",
			"deduplicated": false,
		})
	}))
	defer srv.Close()

	c := New(srv.URL, "secret-token")
	result, err := c.Upload(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, "Bearer secret-token", gotAuth)
	assert.Equal(t, "report.pdf", gotName)
	assert.Equal(t, []byte("pdf bytes"), gotBody)
	assert.Equal(t, "a1b2c3d4.pdf", result.Filename)
	assert.False(t, result.Deduplicated)
}

func TestUploadMissingFile(t *testing.T) {
	c := New("http://localhost:1", "token")
	_, err := c.Upload(context.Background(), filepath.Join(t.TempDir(), "nope.txt"))
	require.Error(t, err)

	var apiErr *APIError
	assert.False(t, errors.As(err, &apiErr), "local failure should not look like a server error")
}

func TestList(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/files", r.URL.Path)
		assert.Equal(t, "report", r.URL.Query().Get("q"))
		assert.Equal(t, "25", r.URL.Query().Get("limit"))

		json.NewEncoder(w).Encode(map[string]any{
			"files": []map[string]any{
				{"filename": "a1b2c3d4.pdf", "original_name": "report.pdf", "size": 9},
			},
			"next_cursor": "2026-01-02T15:04:05.999999999Z",
		})
	}))
	defer srv.Close()

	c := New(srv.URL, "token")
	page, err := c.List(context.Background(), "report", "", 25)
	require.NoError(t, err)

	require.Len(t, page.Files, 1)
	assert.Equal(t, "a1b2c3d4.pdf", page.Files[0].Filename)
	assert.NotEmpty(t, page.NextCursor)
}

func TestDelete(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodDelete, r.Method)
		gotPath = r.URL.Path
		json.NewEncoder(w).Encode(map[string]string{"message": "file deleted"})
	}))
	defer srv.Close()

	c := New(srv.URL, "token")
	require.NoError(t, c.Delete(context.Background(), "a1b2c3d4.pdf"))
	assert.Equal(t, "/api/files/a1b2c3d4.pdf", gotPath)
}

func TestRotateToken(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		json.NewEncoder(w).Encode(map[string]string{"token": "rotated"})
	}))
	defer srv.Close()

	c := New(srv.URL, "stale")
	token, err := c.RotateToken(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "Bearer stale", gotAuth)
	assert.Equal(t, "rotated", token)
	assert.Equal(t, "rotated", c.token, "client should adopt the new token")
}

func TestErrorWithoutJSONBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := New(srv.URL, "token")
	err := c.Delete(context.Background(), "whatever.bin")

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadGateway, apiErr.Status)
	assert.Equal(t, "bad gateway", apiErr.Message)
}
