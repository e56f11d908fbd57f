// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging/redaction, panic recovery, metrics,
// CORS, security headers, idempotency, and rate limiting.
//
// Design goals:
//   - Put observability first (OTel + Prometheus)
//   - Safe-by-default middleware ordering (RequestID → logging → recovery)
//   - Deterministic, minimal router setup; all dependencies injected
//   - Production-ready CORS and security header posture
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/tbourn/go-store-backend/internal/config"
	"github.com/tbourn/go-store-backend/internal/domain"
	"github.com/tbourn/go-store-backend/internal/http/handlers"
	"github.com/tbourn/go-store-backend/internal/http/middleware"
	"github.com/tbourn/go-store-backend/internal/payment"
	"github.com/tbourn/go-store-backend/internal/repo"
	"github.com/tbourn/go-store-backend/internal/services"
	"github.com/tbourn/go-store-backend/internal/storage"
)

// ledgerRepoShim adapts the repository free functions to the narrow interfaces
// expected by the ledger and download services. This keeps services decoupled
// from the concrete repo package while reusing existing functions.
type ledgerRepoShim struct{}

// CreateTransaction proxies repo.CreateTransaction.
func (ledgerRepoShim) CreateTransaction(ctx context.Context, db *gorm.DB, email, productID, reference string) (*domain.Transaction, error) {
	return repo.CreateTransaction(ctx, db, email, productID, reference)
}

// GetTransactionByReference proxies repo.GetTransactionByReference.
func (ledgerRepoShim) GetTransactionByReference(ctx context.Context, db *gorm.DB, reference string) (*domain.Transaction, error) {
	return repo.GetTransactionByReference(ctx, db, reference)
}

// GetTransactionByToken proxies repo.GetTransactionByToken.
func (ledgerRepoShim) GetTransactionByToken(ctx context.Context, db *gorm.DB, token string) (*domain.Transaction, error) {
	return repo.GetTransactionByToken(ctx, db, token)
}

// MarkVerified proxies repo.MarkVerified.
func (ledgerRepoShim) MarkVerified(ctx context.Context, db *gorm.DB, reference, token string) (int64, error) {
	return repo.MarkVerified(ctx, db, reference, token)
}

// IncrementDownloadCount proxies repo.IncrementDownloadCount.
func (ledgerRepoShim) IncrementDownloadCount(ctx context.Context, db *gorm.DB, token string) error {
	return repo.IncrementDownloadCount(ctx, db, token)
}

// catalogRepoShim adapts the product repository functions to services.ProductRepo.
type catalogRepoShim struct{}

// CreateProduct proxies repo.CreateProduct.
func (catalogRepoShim) CreateProduct(ctx context.Context, db *gorm.DB, title, description string, price decimal.Decimal, thumbnailURL, filePath string) (*domain.Product, error) {
	return repo.CreateProduct(ctx, db, title, description, price, thumbnailURL, filePath)
}

// GetProduct proxies repo.GetProduct.
func (catalogRepoShim) GetProduct(ctx context.Context, db *gorm.DB, id string) (*domain.Product, error) {
	return repo.GetProduct(ctx, db, id)
}

// CountProducts proxies repo.CountProducts.
func (catalogRepoShim) CountProducts(ctx context.Context, db *gorm.DB) (int64, error) {
	return repo.CountProducts(ctx, db)
}

// ListProductsPage proxies repo.ListProductsPage.
func (catalogRepoShim) ListProductsPage(ctx context.Context, db *gorm.DB, offset, limit int) ([]domain.Product, error) {
	return repo.ListProductsPage(ctx, db, offset, limit)
}

// DeleteProduct proxies repo.DeleteProduct.
func (catalogRepoShim) DeleteProduct(ctx context.Context, db *gorm.DB, id string) error {
	return repo.DeleteProduct(ctx, db, id)
}

// requireAdminKey guards catalog administration endpoints with a shared-secret
// header. When no key is configured the endpoints are disabled outright.
func requireAdminKey(key string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if key == "" {
			handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
			return
		}
		if c.GetHeader("X-Admin-Key") != key {
			handlers.Fail(c, http.StatusUnauthorized, handlers.ErrCodeUnauthorized, "admin key required")
			return
		}
		c.Next()
	}
}

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine. It configures observability (tracing, metrics), idempotency and rate
// limiting, CORS and security headers, health and metrics endpoints, and then
// mounts the versioned public API under /api/v*.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. RedactingLogger: structured logs with PII scrubbing
//  4. Recovery: capture panics after logger
//  5. Body size limiter
//  6. Metrics
//  7. Idempotency validator (before rate limiter to allow bypass on replay)
//  8. Rate limiter (per client IP, bypass on replay)
//  9. Compression, CORS, and security headers
func RegisterRoutes(r *gin.Engine, db *gorm.DB, store *storage.LocalStore, gateway *payment.Client, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Structured logging with redaction
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
		MaskHeaders: []string{
			handlers.HeaderPaystackSignature,
			"X-Admin-Key",
		},
	}))

	// 4) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 5) Global body size limit (32 MiB; admin uploads carry whole files)
	r.Use(limitBody(32 << 20))

	// 6) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 7) Idempotency validation (before rate limiting)
	r.Use(middleware.IdempotencyValidator(
		middleware.IdempotencyOptions{
			MaxLen: 200,
		},
		func(ctx context.Context, email, reference, key string, now time.Time) (bool, error) {
			rec, err := repo.GetIdempotency(ctx, db, email, reference, key, now)
			if err != nil || rec == nil {
				return false, nil
			}
			return true, nil
		},
	))

	// 8) Token-bucket rate limiter per client IP
	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByClientIP())
	r.Use(rl.Handler())

	// 9) Response compression; skip streams and scrape endpoints
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/files", "/thumbnails", "/metrics"})))

	// CORS posture (safe defaults: allow all if none configured)
	if len(cfg.CORS.AllowedOrigins) == 0 {
		// Force ACAO: * even for requests without an Origin header (helps tests and simple health checks).
		r.Use(func(c *gin.Context) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowAllOrigins:  true,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.HeaderIdempotencyKey, "X-Admin-Key"},
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length", "ETag"},
			AllowCredentials: false, // must remain false with AllowAllOrigins
			MaxAge:           12 * time.Hour,
		}))
	} else {
		// Echo ACAO with the request Origin when it is in the allowlist (in addition to gin-contrib/cors).
		allowed := make(map[string]struct{}, len(cfg.CORS.AllowedOrigins))
		for _, o := range cfg.CORS.AllowedOrigins {
			allowed[o] = struct{}{}
		}
		r.Use(func(c *gin.Context) {
			if origin := c.GetHeader("Origin"); origin != "" {
				if _, ok := allowed[origin]; ok {
					h := c.Writer.Header()
					h.Set("Access-Control-Allow-Origin", origin)
					h.Add("Vary", "Origin")
				}
			}
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORS.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.HeaderIdempotencyKey, "X-Admin-Key"},
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length", "ETag"},
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}))
	}

	// Security headers (HSTS only when enabled and request is HTTPS)
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		NoStore:      false,
		EnablePolicy: true,
	}))

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	// Liveness/health
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	// Swagger UI (off by default; enable via SWAGGER_ENABLED)
	if cfg.SwaggerEnabled {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	// Dependency injection: services ← repo/db/store/gateway
	catalogSvc := services.NewCatalogService(db, catalogRepoShim{}, store, cfg.Storage.ThumbnailBaseURL)

	var gw services.PaymentGateway
	if gateway != nil {
		gw = gateway
	}
	ledgerSvc := services.NewLedgerService(db, ledgerRepoShim{}, catalogRepoShim{}, gw)

	downloadSvc := services.NewDownloadService(db, ledgerRepoShim{}, catalogRepoShim{}, store)
	downloadSvc.URLTTL = cfg.Storage.DownloadTTL

	var wh handlers.WebhookGateway
	if gateway != nil {
		wh = gateway
	}
	h := handlers.New(catalogSvc, ledgerSvc, downloadSvc, wh, store)

	// Gateway callback and signed-URL file serving live at the root, outside
	// the versioned API: their URLs are handed to external parties.
	r.POST("/webhooks/paystack", h.PaystackWebhook)
	r.GET("/files", h.ServeFile)

	// Thumbnails are public assets: catalog rows publish their URLs under
	// THUMBNAIL_BASE_URL, which must resolve to this route.
	r.GET("/thumbnails/*path", h.ServeThumbnail)

	// Public API
	apiBase := cfg.APIBasePath // e.g. "/api/v1"
	api := groupWithPrefix(r, apiBase)
	{
		// Catalog
		api.GET("/products", h.ListProducts)
		api.GET("/products/:id", h.GetProduct)

		// Ledger
		api.POST("/transactions", h.CreateTransaction)
		api.POST("/transactions/verify", h.VerifyTransaction)

		// Downloads
		api.GET("/downloads/:token", h.ResolveDownload)

		// Administration
		admin := api.Group("/admin", requireAdminKey(cfg.AdminAPIKey))
		{
			admin.POST("/products", h.CreateProduct)
			admin.DELETE("/products/:id", h.DeleteProduct)
			admin.GET("/stats", h.AdminStats)
		}
	}
}

// limitBody returns a Gin middleware that caps the request body size for all
// endpoints to maxBytes using http.MaxBytesReader. Requests exceeding the cap
// will cause downstream body reads to error.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
