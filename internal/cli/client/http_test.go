package client

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProgressReader_ReportsProgress(t *testing.T) {
	data := []byte("hello world this is test data")
	reader := bytes.NewReader(data)

	var progressCalls []struct{ current, total int64 }
	pr := &progressReader{
		reader: reader,
		total:  int64(len(data)),
		onProgress: func(current, total int64) {
			progressCalls = append(progressCalls, struct{ current, total int64 }{current, total})
		},
	}

	result, err := io.ReadAll(pr)
	require.NoError(t, err)
	assert.Equal(t, data, result)

	// Progress should have been called at least once
	assert.NotEmpty(t, progressCalls)

	// Final progress should equal total
	lastCall := progressCalls[len(progressCalls)-1]
	assert.Equal(t, int64(len(data)), lastCall.current)
	assert.Equal(t, int64(len(data)), lastCall.total)
}

func TestProgressReader_NilCallback(t *testing.T) {
	data := []byte("hello world")
	reader := bytes.NewReader(data)

	pr := &progressReader{
		reader:     reader,
		total:      int64(len(data)),
		onProgress: nil, // No callback
	}

	result, err := io.ReadAll(pr)
	require.NoError(t, err)
	assert.Equal(t, data, result)
}

func TestProgressReader_SmallReads(t *testing.T) {
	data := []byte("hello world")
	reader := bytes.NewReader(data)

	var progressValues []int64
	pr := &progressReader{
		reader: reader,
		total:  int64(len(data)),
		onProgress: func(current, total int64) {
			progressValues = append(progressValues, current)
		},
	}

	// Read one byte at a time
	buf := make([]byte, 1)
	for {
		n, err := pr.Read(buf)
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	}

	// Progress should increase monotonically
	for i := 1; i < len(progressValues); i++ {
		assert.GreaterOrEqual(t, progressValues[i], progressValues[i-1])
	}
}

func TestNewAPIClientWithCmd_URLCascade(t *testing.T) {
	t.Setenv(envAPIURL, "")
	assert.Equal(t, defaultAPIURL, NewAPIClientWithCmd(nil).baseURL)

	t.Setenv(envAPIURL, "http://env:9000")
	assert.Equal(t, "http://env:9000", NewAPIClientWithCmd(nil).baseURL)

	cmd := newTestCommand()
	require.NoError(t, cmd.Flags().Set("api-url", "http://flag:9001"))
	assert.Equal(t, "http://flag:9001", NewAPIClientWithCmd(cmd).baseURL)
}

func TestAPIClient_ErrorResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("X-Request-ID", r.Header.Get("X-Request-ID"))
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"message":"Chunk not found"}`))
	}))
	defer srv.Close()

	err := NewAPIClientWithConfig(srv.URL).Delete("/documents/missing", nil)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Equal(t, "Chunk not found", apiErr.Message)
	assert.NotEmpty(t, apiErr.RequestID)
	assert.Contains(t, err.Error(), apiErr.RequestID)
}

func TestAPIClient_ErrorResponse_NonJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer srv.Close()

	err := NewAPIClientWithConfig(srv.URL).Get("/documents", nil)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "bad gateway", apiErr.Message)
}

func TestAPIClient_PostSendsJSON(t *testing.T) {
	var got map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"message":"ok"}`))
	}))
	defer srv.Close()

	var out struct {
		Message string `json:"message"`
	}
	err := NewAPIClientWithConfig(srv.URL).Post("/query", map[string]string{"message": "hi"}, &out)

	require.NoError(t, err)
	assert.Equal(t, "hi", got["message"])
	assert.Equal(t, "ok", out.Message)
}

func TestAPIClient_UploadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "faq.md")
	require.NoError(t, os.WriteFile(path, []byte("# FAQ"), 0o644))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/documents", r.URL.Path)

		mediaType, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
		require.NoError(t, err)
		assert.Equal(t, "multipart/form-data", mediaType)

		part, err := multipart.NewReader(r.Body, params["boundary"]).NextPart()
		require.NoError(t, err)
		assert.Equal(t, "file", part.FormName())
		assert.Equal(t, "faq.md", part.FileName())
		assert.Equal(t, "text/markdown", part.Header.Get("Content-Type"))
		content, _ := io.ReadAll(part)
		assert.Equal(t, "# FAQ", string(content))

		_, _ = w.Write([]byte(`{"filename":"faq.md","chunks":1,"totalChars":5}`))
	}))
	defer srv.Close()

	var lastProgress, total int64
	var out struct {
		Chunks int `json:"chunks"`
	}
	err := NewAPIClientWithConfig(srv.URL).UploadFile(path, func(current, n int64) {
		lastProgress, total = current, n
	}, &out)

	require.NoError(t, err)
	assert.Equal(t, 1, out.Chunks)
	assert.Equal(t, total, lastProgress)
}

func TestAPIClient_UploadFile_Missing(t *testing.T) {
	err := NewAPIClientWithConfig("http://127.0.0.1:0").UploadFile(filepath.Join(t.TempDir(), "nope.txt"), nil, nil)

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read file")
}

func TestContentTypeFor(t *testing.T) {
	assert.Equal(t, "text/plain", contentTypeFor("a.txt"))
	assert.Equal(t, "application/pdf", contentTypeFor("a.pdf"))
	assert.Equal(t, "application/octet-stream", contentTypeFor("a.png"))
}
