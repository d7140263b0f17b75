package api

import (
	"context"
	"net"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/klauspost/compress/gzhttp"

	"github.com/Resinat/Prism/internal/service"
)

func init() {
	gin.SetMode(gin.ReleaseMode)
}

// ServerConfig carries the listener and admin settings of the API server.
type ServerConfig struct {
	ListenAddress   string
	Port            int
	AdminToken      string
	APIMaxBodyBytes int64
}

// Server wraps the HTTP server and gin engine for the Prism API.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
}

// NewServer creates a new API server wired with all routes.
func NewServer(cfg ServerConfig, svc *service.NodeService) *Server {
	engine := gin.New()
	engine.Use(recovery(), RequestLogger())
	engine.HandleMethodNotAllowed = true

	// Public (no auth)
	engine.GET("/healthz", HandleHealthz())
	engine.GET("/sub/:token", HandleSubscription(svc))

	// Authenticated routes
	v1 := engine.Group("/api/v1",
		AuthMiddleware(cfg.AdminToken),
		RequestBodyLimitMiddleware(cfg.APIMaxBodyBytes),
	)
	v1.GET("/system/info", HandleSystemInfo(svc))

	// Nodes.
	v1.GET("/nodes", HandleListNodes(svc))
	v1.POST("/nodes/import", HandleImportNodes(svc))
	v1.GET("/nodes/:id", HandleGetNode(svc))
	v1.PATCH("/nodes/:id", HandlePatchNode(svc))
	v1.DELETE("/nodes/:id", HandleDeleteNode(svc))

	// Panels.
	v1.POST("/panels/sync", HandleSyncPanel(svc))

	// Sources.
	v1.GET("/sources", HandleListSources(svc))
	v1.POST("/sources", HandleCreateSource(svc))
	v1.GET("/sources/:id", HandleGetSource(svc))
	v1.PATCH("/sources/:id", HandleUpdateSource(svc))
	v1.DELETE("/sources/:id", HandleDeleteSource(svc))
	v1.POST("/sources/:id/refresh", HandleRefreshSource(svc))

	// Profiles.
	v1.GET("/profiles", HandleListProfiles(svc))
	v1.POST("/profiles", HandleCreateProfile(svc))
	v1.DELETE("/profiles/:id", HandleDeleteProfile(svc))

	// GeoIP.
	v1.GET("/geoip/status", HandleGeoIPStatus(svc))
	v1.GET("/geoip/lookup", HandleGeoIPLookup(svc))
	v1.POST("/geoip/actions/update-now", HandleGeoIPUpdate(svc))

	engine.NoRoute(func(c *gin.Context) {
		WriteError(c, http.StatusNotFound, service.CodeNotFound, "route not found")
	})
	engine.NoMethod(func(c *gin.Context) {
		WriteError(c, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
	})

	handler := gzhttp.GzipHandler(engine)
	srv := &http.Server{
		Addr:    net.JoinHostPort(cfg.ListenAddress, strconv.Itoa(cfg.Port)),
		Handler: handler,
	}

	return &Server{
		httpServer: srv,
		handler:    handler,
	}
}

// ListenAndServe starts the HTTP server. It blocks until the server stops.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Handler returns the underlying http.Handler for testing.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Addr is the address the server listens on.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}
