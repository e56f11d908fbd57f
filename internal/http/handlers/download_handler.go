// Download HTTP handlers.
//
// This file exposes the download authorization flow:
//   - GET /downloads/{token}  (exchange a download token for a signed URL)
//   - GET /files?token=       (stream the object behind a signed URL)
//   - GET /thumbnails/{path}  (stream a public product thumbnail)
//
// The two endpoints are deliberately separate capabilities: the download token
// is the durable proof of purchase and can be re-resolved without limit, while
// every signed URL it mints expires after a short, configured window.
package handlers

import (
	"context"
	"errors"
	"io"
	"mime"
	"net/http"
	"path"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-store-backend/internal/services"
	"github.com/tbourn/go-store-backend/internal/storage"
)

// FileStreamer opens the object referenced by a signed URL token for
// streaming. Implemented by the object store.
type FileStreamer interface {
	// Open returns the object's content and base filename, or
	// storage.ErrBadSignedToken / storage.ErrObjectMissing.
	Open(ctx context.Context, urlToken string) (io.ReadCloser, string, error)

	// OpenObject opens a stored object by path with no token check. Only
	// routed for the public thumbnail subtree.
	OpenObject(ctx context.Context, path string) (io.ReadCloser, string, error)
}

// ResolveDownload godoc
// @ID          resolveDownload
// @Summary     Exchange a download token for a signed URL
// @Description Returns a short-lived signed URL for the purchased file. The token is not
// @Description consumed: it can be exchanged again after the URL expires.
// @Tags        Downloads
// @Produce     json
//
// @Param       token  path  string  true  "Download token from a verified purchase"
//
// @Success     200  {object}  domain.SignedURL
// @Failure     404  {object}  handlers.ErrorResponse  "Invalid token"
// @Failure     410  {object}  handlers.ErrorResponse  "Product no longer available"
// @Failure     502  {object}  handlers.ErrorResponse  "Storage unavailable"
// @Router      /downloads/{token} [get]
func (h *Handlers) ResolveDownload(c *gin.Context) {
	signed, err := h.downloads.Resolve(c.Request.Context(), c.Param("token"))
	if err != nil {
		switch {
		case errors.Is(err, services.ErrInvalidToken):
			// Same shape for unknown and unverified tokens: no oracle.
			fail(c, http.StatusNotFound, ErrCodeInvalidToken, "download token is not valid")
		case errors.Is(err, services.ErrProductMissing):
			fail(c, http.StatusGone, ErrCodeProductMissing, "product is no longer available")
		case errors.Is(err, services.ErrStorageUnavailable):
			fail(c, http.StatusBadGateway, ErrCodeStorageUnavailable, "object store unavailable")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		}
		return
	}
	ok(c, http.StatusOK, signed)
}

// ServeFile godoc
// @ID          serveFile
// @Summary     Stream a purchased file
// @Description Validates the signed URL token and streams the object as an attachment.
// @Tags        Downloads
// @Produce     application/octet-stream
//
// @Param       token  query  string  true  "Signed URL token"
//
// @Success     200  {file}    file
// @Failure     404  {object}  handlers.ErrorResponse  "Invalid or expired URL"
// @Failure     410  {object}  handlers.ErrorResponse  "Object removed"
// @Failure     502  {object}  handlers.ErrorResponse  "Storage unavailable"
// @Router      /files [get]
func (h *Handlers) ServeFile(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		fail(c, http.StatusNotFound, ErrCodeInvalidToken, "signed url token required")
		return
	}

	rc, name, err := h.files.Open(c.Request.Context(), token)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrBadSignedToken):
			fail(c, http.StatusNotFound, ErrCodeInvalidToken, "signed url is not valid or has expired")
		case errors.Is(err, storage.ErrObjectMissing):
			fail(c, http.StatusGone, ErrCodeProductMissing, "file is no longer available")
		default:
			fail(c, http.StatusBadGateway, ErrCodeStorageUnavailable, "object store unavailable")
		}
		return
	}
	defer rc.Close()

	c.Header("Content-Disposition", `attachment; filename="`+name+`"`)
	c.Header("Content-Type", "application/octet-stream")
	c.Header("Cache-Control", "no-store")
	c.Status(http.StatusOK)
	_, _ = io.Copy(c.Writer, rc)
}

// ServeThumbnail godoc
// @ID          serveThumbnail
// @Summary     Serve a product thumbnail
// @Description Streams the public thumbnail image referenced by a product's thumbnail_url.
// @Tags        Catalog
// @Produce     image/png
//
// @Param       path  path  string  true  "Stored thumbnail path"
//
// @Success     200  {file}    file
// @Failure     404  {object}  handlers.ErrorResponse  "No such thumbnail"
// @Failure     502  {object}  handlers.ErrorResponse  "Storage unavailable"
// @Router      /thumbnails/{path} [get]
func (h *Handlers) ServeThumbnail(c *gin.Context) {
	p := strings.TrimPrefix(c.Param("path"), "/")

	// Only the thumbnail object of a product is public; everything else in
	// the store stays behind signed URLs.
	if !strings.HasPrefix(path.Base(p), "thumbnail") {
		fail(c, http.StatusNotFound, ErrCodeNotFound, "no such thumbnail")
		return
	}

	rc, name, err := h.files.OpenObject(c.Request.Context(), p)
	if err != nil {
		if errors.Is(err, storage.ErrObjectMissing) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "no such thumbnail")
			return
		}
		fail(c, http.StatusBadGateway, ErrCodeStorageUnavailable, "object store unavailable")
		return
	}
	defer rc.Close()

	ct := mime.TypeByExtension(path.Ext(name))
	if ct == "" {
		ct = "application/octet-stream"
	}
	c.Header("Content-Type", ct)
	c.Header("Cache-Control", "public, max-age=86400")
	c.Status(http.StatusOK)
	_, _ = io.Copy(c.Writer, rc)
}
