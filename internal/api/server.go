// Package api exposes the link engine over HTTP.
//
// Every route except /metrics and /health requires the tenant header; the
// request context carries that tenant into the services.
package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/roach88/authsync/internal/app"
	"github.com/roach88/authsync/internal/tenant"
)

// DefaultTenantHeader names the header carrying the tenant id.
const DefaultTenantHeader = "X-Okapi-Tenant"

// Server holds the HTTP handlers.
type Server struct {
	app    *app.App
	header string
	logger *zap.Logger
}

// NewServer returns a server over a. An empty header selects
// DefaultTenantHeader.
func NewServer(a *app.App, header string, logger *zap.Logger) *Server {
	if header == "" {
		header = DefaultTenantHeader
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{app: a, header: header, logger: logger}
}

// Router builds the gin engine. gatherer backs /metrics; nil selects the
// default prometheus registry.
func (s *Server) Router(gatherer prometheus.Gatherer) *gin.Engine {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r := gin.New()
	r.Use(gin.Recovery(), s.accessLog())

	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	t := r.Group("/", s.requireTenant())
	{
		t.GET("/links/instances/:id", s.getInstanceLinks)
		t.PUT("/links/instances/:id", s.updateInstanceLinks)
		t.POST("/links/authorities/bulk/count", s.countLinks)
		t.POST("/links-suggestions/marc", s.suggestLinks)

		t.GET("/linking-rules", s.listRules)
		t.GET("/linking-rules/:id", s.getRule)

		t.POST("/authorities", s.createAuthority)
		t.GET("/authorities/:id", s.getAuthority)
		t.PUT("/authorities/:id", s.updateAuthority)
		t.DELETE("/authorities/:id", s.deleteAuthority)
		t.POST("/authority-events", s.enqueueAuthorityEvent)

		t.POST("/authority-source-files", s.createSourceFile)
		t.GET("/authority-source-files", s.listSourceFiles)
		t.GET("/authority-source-files/:id", s.getSourceFile)
		t.PUT("/authority-source-files/:id", s.updateSourceFile)
		t.DELETE("/authority-source-files/:id", s.deleteSourceFile)
	}
	return r
}

// requireTenant moves the tenant header into the request context.
func (s *Server) requireTenant() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(s.header)
		if id == "" {
			respondError(c, http.StatusBadRequest, CodeNoTenant, s.header+" header is required", nil)
			return
		}
		if err := tenant.Validate(id); err != nil {
			respondError(c, http.StatusBadRequest, CodeNoTenant, err.Error(), nil)
			return
		}
		c.Request = c.Request.WithContext(tenant.WithTenant(c.Request.Context(), id))
		c.Next()
	}
}

func (s *Server) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.String("tenant", c.GetHeader(s.header)),
			zap.Duration("took", time.Since(start)))
	}
}

// tenantServices resolves the caller's tenant bundle or writes the error.
func (s *Server) tenantServices(c *gin.Context) (*app.Tenant, bool) {
	t, err := s.app.ForContext(c.Request.Context())
	if err != nil {
		s.respondServiceError(c, err)
		return nil, false
	}
	return t, true
}
