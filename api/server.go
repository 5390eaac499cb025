// Package api is the boundary between the shell backend and the UI
// process: a local HTTP/WebSocket server speaking structured JSON.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/spyglass-browser/spyglass/api/handlers"
	"github.com/spyglass-browser/spyglass/api/middleware"
	"github.com/spyglass-browser/spyglass/api/websocket"
	"github.com/spyglass-browser/spyglass/pkg/log"
	"github.com/spyglass-browser/spyglass/pkg/shell"
)

// Config contains server configuration.
type Config struct {
	Host           string        `toml:"host"`
	Port           int           `toml:"port"`
	ReadTimeout    time.Duration `toml:"read_timeout"`
	WriteTimeout   time.Duration `toml:"write_timeout"`
	IdleTimeout    time.Duration `toml:"idle_timeout"`
	AllowedOrigins []string      `toml:"allowed_origins"`
	EnableWS       bool          `toml:"enable_websocket"`
	EnableMetrics  bool          `toml:"enable_metrics"`
}

// DefaultConfig returns the boundary defaults.
func DefaultConfig() *Config {
	return &Config{
		Host:           "localhost",
		Port:           7833,
		ReadTimeout:    30 * time.Second,
		WriteTimeout:   30 * time.Second,
		IdleTimeout:    120 * time.Second,
		AllowedOrigins: []string{"*"},
		EnableWS:       true,
		EnableMetrics:  true,
	}
}

// Server is the boundary HTTP server.
type Server struct {
	config *Config
	shell  *shell.Service
	router *gin.Engine
	server *http.Server
	hub    *websocket.Hub
}

// NewServer wires the routes over the shell service and subscribes
// the websocket hub to shell events.
func NewServer(config *Config, svc *shell.Service) *Server {
	if config == nil {
		config = DefaultConfig()
	}

	s := &Server{
		config: config,
		shell:  svc,
		hub:    websocket.NewHub(),
	}
	s.setupRouter()

	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", config.Host, config.Port),
		Handler:      s.router,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  config.IdleTimeout,
	}

	svc.Subscribe(s.hub.BroadcastEvent)
	return s
}

// Hub exposes the websocket hub.
func (s *Server) Hub() *websocket.Hub { return s.hub }

// Router exposes the gin engine for tests.
func (s *Server) Router() *gin.Engine { return s.router }

func (s *Server) setupRouter() {
	if log.IsDebug() {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	s.router = gin.New()

	s.router.Use(middleware.RequestID())
	s.router.Use(middleware.Logger(log.WithComponent("api")))
	s.router.Use(middleware.Recovery())

	s.router.Use(cors.New(cors.Config{
		AllowOrigins:     s.config.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "X-Request-ID"},
		ExposeHeaders:    []string{"Content-Length", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	h := handlers.New(s.shell)

	s.router.GET("/health", h.Health)

	if s.config.EnableMetrics {
		s.router.GET("/metrics", gin.WrapH(s.shell.Metrics().Handler()))
	}

	if s.config.EnableWS {
		s.router.GET("/ws", websocket.NewEventHandler(s.hub))
	}

	v1 := s.router.Group("/api/v1")

	mcpGroup := v1.Group("/mcp")
	{
		mcpGroup.POST("/connect", h.Connect)
		mcpGroup.POST("/disconnect", h.Disconnect)
		mcpGroup.GET("/servers", h.ListServers)
		mcpGroup.DELETE("/servers/:id", h.DeleteServer)
		mcpGroup.POST("/servers/:id/enabled", h.SetServerEnabled)
		mcpGroup.GET("/servers/:id/tools", h.DiscoverTools)
		mcpGroup.GET("/servers/:id/resources", h.ListResources)
		mcpGroup.POST("/tools/call", h.CallTool)
	}

	v1.POST("/context", h.UpdateContext)
	v1.GET("/context", h.GetContext)
	v1.GET("/context/history", h.GetContextHistory)
	v1.GET("/history", h.SearchHistory)
	v1.POST("/assistant/query", h.AssistantQuery)
	v1.GET("/status", h.Status)
}

// Start runs the hub loop and serves until the listener closes.
func (s *Server) Start() error {
	go s.hub.Run()

	log.Info("api server listening", "addr", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("api server failed: %w", err)
	}
	return nil
}

// Shutdown stops the HTTP server and the hub.
func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.Stop()
	return s.server.Shutdown(ctx)
}
