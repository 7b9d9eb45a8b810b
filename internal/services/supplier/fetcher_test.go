package supplier

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"catalogsync/internal/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPortal(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		if r.PostForm.Get("username") != "buyer" || r.PostForm.Get("password") != "secret" {
			w.Write([]byte("<p class=\"error\">Invalid login</p>"))
			return
		}
		http.SetCookie(w, &http.Cookie{Name: "session", Value: "ok", Path: "/"})
		w.Write([]byte("welcome"))
	})
	mux.HandleFunc("/sheet.xlsx", func(w http.ResponseWriter, r *http.Request) {
		if c, err := r.Cookie("session"); err != nil || c.Value != "ok" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		w.Write([]byte("xlsx-bytes"))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestFetch_LogsInAndDownloads(t *testing.T) {
	srv := newPortal(t)

	f := NewFetcher(FetcherConfig{
		LoginURL: srv.URL + "/login",
		SheetURL: srv.URL + "/sheet.xlsx",
		Username: "buyer",
		Password: "secret",
		Timeout:  5 * time.Second,
	}, logger.Nop())

	blob, err := f.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "xlsx-bytes", string(blob))
}

func TestFetch_LoginRejected(t *testing.T) {
	srv := newPortal(t)

	f := NewFetcher(FetcherConfig{
		LoginURL: srv.URL + "/login",
		SheetURL: srv.URL + "/sheet.xlsx",
		Username: "buyer",
		Password: "wrong",
	}, logger.Nop())

	_, err := f.Fetch(context.Background())
	require.Error(t, err)

	var fetchErr *FetchError
	require.True(t, errors.As(err, &fetchErr))
	assert.Equal(t, StageLogin, fetchErr.Stage)
}

func TestFetch_DownloadFailure(t *testing.T) {
	srv := newPortal(t)

	f := NewFetcher(FetcherConfig{
		LoginURL: srv.URL + "/login",
		SheetURL: srv.URL + "/missing.xlsx",
		Username: "buyer",
		Password: "secret",
	}, logger.Nop())

	_, err := f.Fetch(context.Background())
	var fetchErr *FetchError
	require.True(t, errors.As(err, &fetchErr))
	assert.Equal(t, StageDownload, fetchErr.Stage)
}

func TestFetch_Unreachable(t *testing.T) {
	srv := newPortal(t)
	srv.Close()

	f := NewFetcher(FetcherConfig{LoginURL: srv.URL + "/login", SheetURL: srv.URL + "/sheet.xlsx"}, logger.Nop())

	_, err := f.Fetch(context.Background())
	var fetchErr *FetchError
	require.True(t, errors.As(err, &fetchErr))
	assert.Equal(t, StageLogin, fetchErr.Stage)
}
