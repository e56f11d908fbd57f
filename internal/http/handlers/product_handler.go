// Product HTTP handlers.
//
// This file exposes REST endpoints for catalog resources:
//   - GET    /products            (list, paginated, ETag support)
//   - GET    /products/{id}       (fetch)
//   - POST   /admin/products      (create, multipart upload)
//   - DELETE /admin/products/{id} (delete, releases backing files)
//   - GET    /admin/stats         (sales statistics)
//
// Handlers are transport-thin: they validate input, call application services,
// and translate results into HTTP responses (including conditional responses).
package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/tbourn/go-store-backend/internal/domain"
	"github.com/tbourn/go-store-backend/internal/repo"
	"github.com/tbourn/go-store-backend/internal/services"
	"github.com/tbourn/go-store-backend/internal/utils"
)

//
// Service contracts (context-aware)
//

// CatalogService defines catalog lifecycle operations consumed by HTTP handlers.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type CatalogService interface {
	// Create validates the input, stores both uploads, and inserts the product.
	Create(ctx context.Context, in services.NewProductInput) (*domain.Product, error)
	// Get returns a single live product.
	Get(ctx context.Context, id string) (*domain.Product, error)
	// ListPage returns a page of live products and the total count.
	ListPage(ctx context.Context, page, pageSize int) ([]domain.Product, int64, error)
	// Delete soft-deletes a product and releases its backing files.
	Delete(ctx context.Context, id string) error
}

// LedgerService defines purchase-ledger operations consumed by HTTP handlers.
type LedgerService interface {
	// Create records a purchase attempt; created=false means the reference
	// already had a row, which is returned instead.
	Create(ctx context.Context, email, productID, reference string) (tx *domain.Transaction, created bool, err error)
	// Verify marks the referenced transaction as paid. With confirm=true the
	// payment gateway is consulted first.
	Verify(ctx context.Context, reference string, confirm bool) (*domain.Transaction, error)
}

// DownloadService defines the token-to-signed-URL exchange.
type DownloadService interface {
	// Resolve exchanges a download token for a short-lived signed URL.
	Resolve(ctx context.Context, token string) (*domain.SignedURL, error)
}

// WebhookGateway verifies and decodes payment gateway webhook deliveries.
type WebhookGateway interface {
	// VerifySignature reports whether sig is a valid HMAC over body.
	VerifySignature(body []byte, sig string) bool
}

//
// Handler wiring
//

// Handlers groups HTTP endpoints for the catalog, ledger, and download flows.
// It depends on abstract service interfaces to keep transport concerns
// separate from business logic.
type Handlers struct {
	catalog   CatalogService
	ledger    LedgerService
	downloads DownloadService
	webhook   WebhookGateway
	files     FileStreamer
}

// New constructs and returns a Handlers instance bound to the given services.
func New(catalog CatalogService, ledger LedgerService, downloads DownloadService, webhook WebhookGateway, files FileStreamer) *Handlers {
	return &Handlers{catalog: catalog, ledger: ledger, downloads: downloads, webhook: webhook, files: files}
}

//
// DTOs
//

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

// ListProductsResponse wraps a page of products and pagination information.
type ListProductsResponse struct {
	Products   []domain.Product `json:"products"`
	Pagination Pagination       `json:"pagination"`
}

// AdminStatsResponse summarizes catalog and sales activity.
type AdminStatsResponse struct {
	Products     int64  `json:"products"`
	Transactions int64  `json:"transactions"`
	Verified     int64  `json:"verified"`
	Downloads    uint64 `json:"downloads"`
}

//
// Helpers
//

// clampPagination parses and bounds page and page_size query params to sane
// defaults and limits, returning (page, pageSize).
func clampPagination(c *gin.Context) (page, pageSize int) {
	const (
		defaultPage     = 1
		defaultPageSize = 20
		maxPageSize     = 100
	)
	page = utils.AtoiDefault(c.Query("page"), defaultPage)
	if page < 1 {
		page = 1
	}
	pageSize = utils.AtoiDefault(c.Query("page_size"), defaultPageSize)
	if pageSize < 1 {
		pageSize = 1
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return
}

// catalogDB exposes the concrete catalog service's DB handle for best-effort
// ETag pre-checks. Returns nil when the service is faked in tests.
func (h *Handlers) catalogDB() *gorm.DB {
	if svc, ok := h.catalog.(*services.CatalogService); ok {
		return svc.DB
	}
	return nil
}

//
// Handlers
//

// ListProducts godoc
// @ID          listProducts
// @Summary     List products (paginated)
// @Description Returns a page of the catalog. Supports weak ETag via If-None-Match and may return 304.
// @Tags        Products
// @Produce     json
//
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"  example(W/\"abc123\")
// @Param       page           query   int     false "Page number"                  minimum(1) default(1)
// @Param       page_size      query   int     false "Items per page"               minimum(1) maximum(100) default(20)
//
// @Success     200  {object} handlers.ListProductsResponse
// @Header      200  {string} ETag "Weak ETag for current result"
// @Success     304  {string} string "Not Modified"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /products [get]
func (h *Handlers) ListProducts(c *gin.Context) {
	ctx := c.Request.Context()
	page, pageSize := clampPagination(c)

	// ETag pre-check (best effort).
	if db := h.catalogDB(); db != nil {
		count, maxTS, err := repo.ProductsStats(ctx, db)
		if err == nil {
			var ts int64
			if maxTS != nil {
				ts = maxTS.Unix()
			}
			etag := fmt.Sprintf(`W/"products:%d:%d"`, count, ts)
			c.Header("ETag", etag)
			if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
				c.Status(http.StatusNotModified)
				return
			}
		}
	}

	// Fetch page.
	items, total, err := h.catalog.ListPage(ctx, page, pageSize)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}

	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	resp := ListProductsResponse{
		Products: items,
		Pagination: Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      total,
			TotalPages: totalPages,
			HasNext:    page < totalPages,
		},
	}
	ok(c, http.StatusOK, resp)
}

// GetProduct godoc
// @ID          getProduct
// @Summary     Fetch a single product
// @Description Returns one live product by ID. The private file path is never serialized.
// @Tags        Products
// @Produce     json
//
// @Param       id  path  string  true  "Product ID (UUID)"  format(uuid)
//
// @Success     200  {object} domain.Product
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Product not found"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /products/{id} [get]
func (h *Handlers) GetProduct(c *gin.Context) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "product id must be a UUID")
		return
	}

	p, err := h.catalog.Get(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, services.ErrProductNotFound) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "product not found")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, p)
}

// CreateProduct godoc
// @ID          createProduct
// @Summary     Create a product (admin)
// @Description Uploads the deliverable and thumbnail and inserts the catalog row.
// @Description Requires the X-Admin-Key header.
// @Tags        Admin
// @Accept      multipart/form-data
// @Produce     json
//
// @Param       X-Admin-Key  header  string  true  "Admin API key"
// @Param       title        formData string  true  "Product title (1-255 chars)"
// @Param       description  formData string  false "Product description"
// @Param       price        formData string  true  "Positive decimal price"  example(49.99)
// @Param       thumbnail    formData file    true  "Preview image"
// @Param       file         formData file    true  "Private deliverable"
//
// @Success     201  {object} domain.Product
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     401  {object} handlers.ErrorResponse "Unauthorized"
// @Failure     502  {object} handlers.ErrorResponse "Storage unavailable"
// @Router      /admin/products [post]
func (h *Handlers) CreateProduct(c *gin.Context) {
	price, err := decimal.NewFromString(strings.TrimSpace(c.PostForm("price")))
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "price must be a decimal number")
		return
	}

	thumb, err := c.FormFile("thumbnail")
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "thumbnail file required")
		return
	}
	file, err := c.FormFile("file")
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "product file required")
		return
	}

	thumbReader, err := thumb.Open()
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "cannot read thumbnail upload")
		return
	}
	defer thumbReader.Close()
	fileReader, err := file.Open()
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "cannot read file upload")
		return
	}
	defer fileReader.Close()

	p, err := h.catalog.Create(c.Request.Context(), services.NewProductInput{
		Title:       c.PostForm("title"),
		Description: c.PostForm("description"),
		Price:       price,
		Thumbnail:   services.FileUpload{Name: thumb.Filename, Content: thumbReader},
		File:        services.FileUpload{Name: file.Filename, Content: fileReader},
	})
	if err != nil {
		switch {
		case errors.Is(err, services.ErrInvalidProduct):
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		case errors.Is(err, services.ErrStorageUnavailable):
			fail(c, http.StatusBadGateway, ErrCodeStorageUnavailable, "object store unavailable")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeCreateFailed, err.Error())
		}
		return
	}
	ok(c, http.StatusCreated, p)
}

// DeleteProduct godoc
// @ID          deleteProduct
// @Summary     Delete a product (admin)
// @Description Soft-deletes the catalog row and releases its backing files.
// @Description Existing purchases keep their ledger rows; their downloads stop resolving.
// @Tags        Admin
// @Produce     json
//
// @Param       X-Admin-Key  header  string  true  "Admin API key"
// @Param       id           path    string  true  "Product ID (UUID)"  format(uuid)
//
// @Success     204  {string} string "No Content"
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     401  {object} handlers.ErrorResponse "Unauthorized"
// @Failure     404  {object} handlers.ErrorResponse "Product not found"
// @Router      /admin/products/{id} [delete]
func (h *Handlers) DeleteProduct(c *gin.Context) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "product id must be a UUID")
		return
	}

	if err := h.catalog.Delete(c.Request.Context(), id); err != nil {
		if errors.Is(err, services.ErrProductNotFound) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "product not found")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	noContent(c)
}

// AdminStats godoc
// @ID          adminStats
// @Summary     Sales statistics (admin)
// @Description Returns counts of live products, transactions, verified purchases, and downloads.
// @Tags        Admin
// @Produce     json
//
// @Param       X-Admin-Key  header  string  true  "Admin API key"
//
// @Success     200  {object} handlers.AdminStatsResponse
// @Failure     401  {object} handlers.ErrorResponse "Unauthorized"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /admin/stats [get]
func (h *Handlers) AdminStats(c *gin.Context) {
	ctx := c.Request.Context()
	db := h.catalogDB()
	if db == nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "stats unavailable")
		return
	}

	products, _, err := repo.ProductsStats(ctx, db)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	sales, err := repo.LedgerStats(ctx, db)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}

	ok(c, http.StatusOK, AdminStatsResponse{
		Products:     products,
		Transactions: sales.Transactions,
		Verified:     sales.Verified,
		Downloads:    sales.Downloads,
	})
}
