package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat/internal/auth"
	"github.com/vovakirdan/wirechat/internal/config"
	"github.com/vovakirdan/wirechat/internal/core"
	wlog "github.com/vovakirdan/wirechat/internal/log"
	"github.com/vovakirdan/wirechat/internal/store"
)

// ErrorResponse represents an error response body.
type ErrorResponse struct {
	Error string `json:"error"`
}

// NewServer builds the HTTP server: the realtime WebSocket endpoint on a plain mux, and
// health, metrics and the message history API on gin. st and gatherer may be nil.
func NewServer(hub *core.Hub, st store.MessageStore, cfg *config.Config, logger *zerolog.Logger, gatherer prometheus.Gatherer) *stdhttp.Server {
	if logger == nil {
		logger = wlog.Nop()
	}
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware(logger))

	jwtConfig := jwtConfigFrom(cfg)

	router.GET("/health", healthHandler)
	if gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	api := router.Group("/api")
	if st != nil {
		channels := NewChannelHandlers(st, logger)
		api.GET("/channels/:name/messages", channels.ListMessages)
	}
	if jwtConfig != nil {
		tokens := NewTokenHandlers(jwtConfig, logger)
		api.POST("/tokens", AuthMiddleware(jwtConfig, logger), tokens.Refresh)
	}

	// The WebSocket upgrade hijacks the connection, which gin's response writer refuses once
	// the 101 header is written, so /ws bypasses the router.
	mux := stdhttp.NewServeMux()
	mux.Handle("/ws", NewWSHandler(hub, cfg, logger))
	mux.Handle("/", router)

	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

func healthHandler(c *gin.Context) {
	c.String(stdhttp.StatusOK, "ok")
}

// jwtConfigFrom returns nil when no secret is configured.
func jwtConfigFrom(cfg *config.Config) *auth.JWTConfig {
	if cfg.JWTSecret == "" {
		return nil
	}
	return &auth.JWTConfig{
		Secret:   []byte(cfg.JWTSecret),
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		TTL:      cfg.TokenTTL,
	}
}
