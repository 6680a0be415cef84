package tika

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"kb-admin-go/internal/config"

	"github.com/stretchr/testify/require"
)

func TestExtractText(t *testing.T) {
	var gotType, gotRoute string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotRoute = r.Method + " " + r.URL.Path
		gotType = r.Header.Get("Content-Type")
		body, _ := io.ReadAll(r.Body)
		_, _ = w.Write([]byte("extracted: " + string(body)))
	}))
	defer srv.Close()

	c := NewClient(config.TikaConfig{ServerURL: srv.URL, Timeout: time.Second})
	text, err := c.ExtractText(context.Background(), []byte("hello"), "手冊.pdf")
	require.NoError(t, err)
	require.Equal(t, "extracted: hello", text)
	require.Equal(t, "application/pdf", gotType)
	require.Equal(t, "PUT /tika", gotRoute)
}

func TestExtractText_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte("unsupported"))
	}))
	defer srv.Close()

	c := NewClient(config.TikaConfig{ServerURL: srv.URL, Timeout: time.Second})
	_, err := c.ExtractText(context.Background(), []byte("x"), "noext")
	require.ErrorContains(t, err, "422")
}

func TestDetectMimeType(t *testing.T) {
	require.Equal(t, "application/octet-stream", detectMimeType("README"))
	require.Equal(t, "application/octet-stream", detectMimeType("a.unknownext"))
}
