package server

import (
	"context"
	"errors"
	"io/fs"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/kritsadaskt/ananta-custom-diamond/internal/diamonds"
	"github.com/kritsadaskt/ananta-custom-diamond/internal/events"
	"go.uber.org/zap"
)

const (
	defaultNamespace         = "/wp-json/ananta-custom-diamond"
	defaultHeartbeatInterval = 25 * time.Second
	syncNonceAction          = "diamond_sync"
	recentRunsShown          = 10
)

var (
	errMissingCatalog      = errors.New("catalog dependency required")
	errMissingSynchronizer = errors.New("synchronizer dependency required")
	errMissingNonces       = errors.New("nonce dependency required")
	errMissingFeedURL      = errors.New("feed url required")
)

// CatalogReader lists stored diamonds.
type CatalogReader interface {
	ListDiamonds(ctx context.Context, query diamonds.ListQuery) ([]diamonds.Diamond, error)
}

// CatalogSynchronizer imports the remote feed.
type CatalogSynchronizer interface {
	Sync(ctx context.Context, feedURL string) (diamonds.SyncReport, error)
}

// RunHistory exposes the sync audit trail.
type RunHistory interface {
	Recent(ctx context.Context, limit int) ([]diamonds.SyncRun, error)
}

// NonceManager issues and checks admin form nonces.
type NonceManager interface {
	Issue(action string) (string, error)
	Verify(token string, action string) error
}

// EventSubscriber streams catalog events to one client.
type EventSubscriber interface {
	Subscribe(ctx context.Context) (<-chan events.CatalogEvent, func())
}

// RequestObserver counts read API outcomes.
type RequestObserver interface {
	ObserveCatalogRequest(err error)
}

type Dependencies struct {
	Catalog           CatalogReader
	Synchronizer      CatalogSynchronizer
	Runs              RunHistory
	Nonces            NonceManager
	Events            EventSubscriber
	RequestObserver   RequestObserver
	MetricsHandler    http.Handler
	HealthCheck       func(ctx context.Context) error
	FeedURL           string
	Namespace         string
	AdminUsername     string
	AdminPassword     string
	HeartbeatInterval time.Duration
	Logger            *zap.Logger
}

func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Catalog == nil {
		return nil, errMissingCatalog
	}
	if deps.Synchronizer == nil {
		return nil, errMissingSynchronizer
	}
	if deps.Nonces == nil {
		return nil, errMissingNonces
	}
	if strings.TrimSpace(deps.FeedURL) == "" {
		return nil, errMissingFeedURL
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	namespace := "/" + strings.Trim(strings.TrimSpace(deps.Namespace), "/")
	if namespace == "/" {
		namespace = defaultNamespace
	}
	heartbeat := deps.HeartbeatInterval
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeatInterval
	}

	pages, err := parsePageTemplates()
	if err != nil {
		return nil, err
	}
	assets, err := fs.Sub(embeddedAssets, "assets")
	if err != nil {
		return nil, err
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())
	router.SetHTMLTemplate(pages)

	handler := &httpHandler{
		catalog:           deps.Catalog,
		synchronizer:      deps.Synchronizer,
		runs:              deps.Runs,
		nonces:            deps.Nonces,
		events:            deps.Events,
		requests:          deps.RequestObserver,
		healthCheck:       deps.HealthCheck,
		feedURL:           deps.FeedURL,
		namespace:         namespace,
		heartbeatInterval: heartbeat,
		logger:            logger,
	}

	api := router.Group(namespace + "/v1")
	api.GET("/diamonds", handler.handleListDiamonds)
	if deps.Events != nil {
		api.GET("/diamonds/events", handler.handleCatalogEvents)
	}

	router.GET("/diamond-products", handler.handleProductListing)
	router.GET("/diamond-selector", handler.handleSelectorPage)
	router.StaticFS("/assets", http.FS(assets))

	admin := router.Group("/admin")
	if deps.AdminUsername != "" && deps.AdminPassword != "" {
		admin.Use(gin.BasicAuth(gin.Accounts{deps.AdminUsername: deps.AdminPassword}))
	}
	admin.GET("/diamonds", handler.handleAdminPage)
	admin.POST("/diamonds/sync", handler.handleAdminSync)

	router.GET("/healthz", handler.handleHealth)
	if deps.MetricsHandler != nil {
		router.GET("/metrics", gin.WrapH(deps.MetricsHandler))
	}

	return router, nil
}

type httpHandler struct {
	catalog           CatalogReader
	synchronizer      CatalogSynchronizer
	runs              RunHistory
	nonces            NonceManager
	events            EventSubscriber
	requests          RequestObserver
	healthCheck       func(ctx context.Context) error
	feedURL           string
	namespace         string
	heartbeatInterval time.Duration
	logger            *zap.Logger
}

func corsMiddleware() gin.HandlerFunc {
	return cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodOptions},
		AllowHeaders: []string{"Content-Type", "Last-Event-ID"},
		MaxAge:       12 * time.Hour,
	})
}

func (h *httpHandler) handleHealth(c *gin.Context) {
	if h.healthCheck != nil {
		if err := h.healthCheck(c.Request.Context()); err != nil {
			h.logger.Warn("health check failed", zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *httpHandler) endpointPath() string {
	return h.namespace + "/v1/diamonds"
}
