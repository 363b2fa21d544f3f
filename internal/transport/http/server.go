package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/skygrid/roomdir-server/internal/config"
	"github.com/skygrid/roomdir-server/internal/core"
)

// NewServer builds the HTTP server: REST directory API plus the websocket
// directory stream.
func NewServer(reg *core.Registry, neg *core.Negotiator, cfg *config.Config, logger *zerolog.Logger) *stdhttp.Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), LoggerMiddleware(logger))

	router.GET("/health", func(c *gin.Context) {
		c.String(stdhttp.StatusOK, "ok")
	})

	rooms := NewRoomHandlers(reg, neg, logger)
	api := router.Group("/api")
	api.GET("/rooms", rooms.ListRooms)
	api.POST("/rooms", rooms.CreateRoom)
	api.POST("/rooms/:id/join", rooms.JoinRoom)
	api.POST("/rooms/:id/leave", rooms.LeaveRoom)

	router.GET("/ws", gin.WrapH(NewWSHandler(reg, neg, cfg, logger)))

	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}
