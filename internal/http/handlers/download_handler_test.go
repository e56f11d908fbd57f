package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-store-backend/internal/domain"
	"github.com/tbourn/go-store-backend/internal/services"
	"github.com/tbourn/go-store-backend/internal/storage"
)

// ---------- ResolveDownload ----------

func TestResolveDownload_ErrorMapping(t *testing.T) {
	gin.SetMode(gin.TestMode)

	cases := []struct {
		name string
		err  error
		want int
	}{
		{"unknown token", services.ErrInvalidToken, http.StatusNotFound},
		{"product removed", services.ErrProductMissing, http.StatusGone},
		{"storage down", services.ErrStorageUnavailable, http.StatusBadGateway},
		{"other error", context.DeadlineExceeded, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := stubDownloadSvc{
				resolve: func(context.Context, string) (*domain.SignedURL, error) {
					return nil, tc.err
				},
			}
			h := New(stubCatalogSvc{}, stubLedgerSvc{}, svc, nil, stubFiles{})
			r := gin.New()
			r.GET("/downloads/:token", h.ResolveDownload)

			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/downloads/some-token", nil)
			r.ServeHTTP(w, req)
			if w.Code != tc.want {
				t.Fatalf("%s -> %d, want %d", tc.name, w.Code, tc.want)
			}
		})
	}
}

func TestResolveDownload_Success(t *testing.T) {
	gin.SetMode(gin.TestMode)

	exp := time.Now().Add(5 * time.Minute).UTC().Truncate(time.Second)
	var gotToken string
	svc := stubDownloadSvc{
		resolve: func(_ context.Context, token string) (*domain.SignedURL, error) {
			gotToken = token
			return &domain.SignedURL{URL: "http://localhost/files?token=signed", ExpiresAt: exp}, nil
		},
	}
	h := New(stubCatalogSvc{}, stubLedgerSvc{}, svc, nil, stubFiles{})
	r := gin.New()
	r.GET("/downloads/:token", h.ResolveDownload)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/downloads/tok-123", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("resolve -> %d body=%s", w.Code, w.Body.String())
	}
	if gotToken != "tok-123" {
		t.Fatalf("service got token %q", gotToken)
	}
	var out domain.SignedURL
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("json: %v", err)
	}
	if out.URL != "http://localhost/files?token=signed" || !out.ExpiresAt.Equal(exp) {
		t.Fatalf("unexpected signed url: %#v", out)
	}
}

// ---------- ServeFile ----------

func TestServeFile_TokenErrors(t *testing.T) {
	gin.SetMode(gin.TestMode)

	// Empty token -> 404 without touching the store.
	{
		called := false
		files := stubFiles{
			open: func(context.Context, string) (io.ReadCloser, string, error) {
				called = true
				return nil, "", storage.ErrBadSignedToken
			},
		}
		h := New(stubCatalogSvc{}, stubLedgerSvc{}, stubDownloadSvc{}, nil, files)
		r := gin.New()
		r.GET("/files", h.ServeFile)

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/files", nil)
		r.ServeHTTP(w, req)
		if w.Code != http.StatusNotFound {
			t.Fatalf("empty token -> %d", w.Code)
		}
		if called {
			t.Fatalf("store must not be consulted for an empty token")
		}
	}

	cases := []struct {
		name string
		err  error
		want int
	}{
		{"bad or expired url", storage.ErrBadSignedToken, http.StatusNotFound},
		{"object removed", storage.ErrObjectMissing, http.StatusGone},
		{"storage failure", io.ErrUnexpectedEOF, http.StatusBadGateway},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			files := stubFiles{
				open: func(context.Context, string) (io.ReadCloser, string, error) {
					return nil, "", tc.err
				},
			}
			h := New(stubCatalogSvc{}, stubLedgerSvc{}, stubDownloadSvc{}, nil, files)
			r := gin.New()
			r.GET("/files", h.ServeFile)

			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/files?token=whatever", nil)
			r.ServeHTTP(w, req)
			if w.Code != tc.want {
				t.Fatalf("%s -> %d, want %d", tc.name, w.Code, tc.want)
			}
		})
	}
}

func TestServeFile_StreamsAttachment(t *testing.T) {
	gin.SetMode(gin.TestMode)

	files := stubFiles{
		open: func(_ context.Context, token string) (io.ReadCloser, string, error) {
			if token != "signed-ok" {
				t.Fatalf("unexpected token %q", token)
			}
			return io.NopCloser(strings.NewReader("zip-payload")), "course.zip", nil
		},
	}
	h := New(stubCatalogSvc{}, stubLedgerSvc{}, stubDownloadSvc{}, nil, files)
	r := gin.New()
	r.GET("/files", h.ServeFile)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/files?token=signed-ok", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("serve -> %d", w.Code)
	}
	if w.Body.String() != "zip-payload" {
		t.Fatalf("body = %q", w.Body.String())
	}
	if cd := w.Header().Get("Content-Disposition"); cd != `attachment; filename="course.zip"` {
		t.Fatalf("content-disposition = %q", cd)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/octet-stream" {
		t.Fatalf("content-type = %q", ct)
	}
	if cc := w.Header().Get("Cache-Control"); cc != "no-store" {
		t.Fatalf("cache-control = %q", cc)
	}
}

// End-to-end over the real store: sign a path, then stream it back.
func TestServeFile_RoundTrip_LocalStore(t *testing.T) {
	gin.SetMode(gin.TestMode)

	st := newHandlerStore(t)
	ctx := context.Background()
	if _, err := st.Upload(ctx, "products/p1/course.zip", strings.NewReader("real-bytes")); err != nil {
		t.Fatalf("upload: %v", err)
	}
	signed, err := st.SignedURL(ctx, "products/p1/course.zip", time.Minute)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	h := New(stubCatalogSvc{}, stubLedgerSvc{}, stubDownloadSvc{}, nil, st)
	r := gin.New()
	r.GET("/files", h.ServeFile)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, signed.URL, nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("round trip -> %d body=%s", w.Code, w.Body.String())
	}
	if w.Body.String() != "real-bytes" {
		t.Fatalf("body = %q", w.Body.String())
	}
}

// ---------- ServeThumbnail ----------

func TestServeThumbnail_GuardsPrivateObjects(t *testing.T) {
	gin.SetMode(gin.TestMode)

	called := false
	files := stubFiles{
		openPath: func(context.Context, string) (io.ReadCloser, string, error) {
			called = true
			return io.NopCloser(strings.NewReader("zip")), "file.zip", nil
		},
	}
	h := New(stubCatalogSvc{}, stubLedgerSvc{}, stubDownloadSvc{}, nil, files)
	r := gin.New()
	r.GET("/thumbnails/*path", h.ServeThumbnail)

	// The deliverable lives next to the thumbnail but must never be served
	// without a signed URL.
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/thumbnails/products/p1/file.zip", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Fatalf("private object -> %d, want 404", w.Code)
	}
	if called {
		t.Fatalf("store must not be consulted for a non-thumbnail path")
	}
}

func TestServeThumbnail_ErrorMapping(t *testing.T) {
	gin.SetMode(gin.TestMode)

	cases := []struct {
		name string
		err  error
		want int
	}{
		{"thumbnail removed", storage.ErrObjectMissing, http.StatusNotFound},
		{"storage failure", io.ErrUnexpectedEOF, http.StatusBadGateway},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			files := stubFiles{
				openPath: func(context.Context, string) (io.ReadCloser, string, error) {
					return nil, "", tc.err
				},
			}
			h := New(stubCatalogSvc{}, stubLedgerSvc{}, stubDownloadSvc{}, nil, files)
			r := gin.New()
			r.GET("/thumbnails/*path", h.ServeThumbnail)

			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/thumbnails/products/p1/thumbnail.png", nil)
			r.ServeHTTP(w, req)
			if w.Code != tc.want {
				t.Fatalf("%s -> %d, want %d", tc.name, w.Code, tc.want)
			}
		})
	}
}

func TestServeThumbnail_StreamsImage(t *testing.T) {
	gin.SetMode(gin.TestMode)

	var gotPath string
	files := stubFiles{
		openPath: func(_ context.Context, p string) (io.ReadCloser, string, error) {
			gotPath = p
			return io.NopCloser(strings.NewReader("png-bytes")), "thumbnail.png", nil
		},
	}
	h := New(stubCatalogSvc{}, stubLedgerSvc{}, stubDownloadSvc{}, nil, files)
	r := gin.New()
	r.GET("/thumbnails/*path", h.ServeThumbnail)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/thumbnails/products/p1/thumbnail.png", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("serve -> %d body=%s", w.Code, w.Body.String())
	}
	if gotPath != "products/p1/thumbnail.png" {
		t.Fatalf("store got path %q", gotPath)
	}
	if w.Body.String() != "png-bytes" {
		t.Fatalf("body = %q", w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "image/png" {
		t.Fatalf("content-type = %q", ct)
	}
	if cc := w.Header().Get("Cache-Control"); cc != "public, max-age=86400" {
		t.Fatalf("cache-control = %q", cc)
	}
}
