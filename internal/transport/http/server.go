package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/lbessard/canal/internal/config"
)

// NewServer builds the HTTP server: REST routes plus the WebSocket entry
// point, all behind one gin engine.
func NewServer(svc *Services, cfg *config.Config, logger *zerolog.Logger) *stdhttp.Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery(), LoggerMiddleware(logger))

	engine.GET("/health", func(c *gin.Context) {
		c.String(stdhttp.StatusOK, "ok")
	})

	sessions := NewSessionHandlers(svc, logger)
	channels := NewChannelHandlers(svc, logger)

	api := engine.Group("/api")
	api.POST("/session", sessions.CreateSession)

	protected := api.Group("")
	protected.Use(AuthMiddleware(svc.Auth, logger))
	protected.GET("/channels", channels.ListChannels)
	protected.GET("/channels/:id/members", channels.ListMembers)

	ws := NewWSHandler(svc, cfg.MaxMessageBytes, logger)
	engine.GET("/ws", gin.WrapH(ws))

	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           engine,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}
