package http

import (
	"context"
	"fmt"
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/chatcast/internal/config"
	"github.com/vovakirdan/chatcast/internal/core"
	"github.com/vovakirdan/chatcast/internal/store"
)

// Chat is the session core the transport hands connections to.
type Chat interface {
	Serve(ctx context.Context, conn core.Conn) error
	Sessions() []core.SessionInfo
}

// NewServer builds an HTTP server with the websocket endpoint and the
// operator routes. messages may be nil, in which case /api/messages is not served.
func NewServer(chat Chat, messages store.MessageStore, cfg config.Config, logger *zerolog.Logger) *stdhttp.Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware(logger))

	router.GET("/health", healthHandler)

	handlers := NewAPIHandlers(chat, messages, logger)
	api := router.Group("/api")
	api.GET("/sessions", handlers.ListSessions)
	if messages != nil {
		api.GET("/messages", handlers.ListMessages)
	}

	// gin's writer cannot be hijacked once the upgrade response is written,
	// so the websocket endpoint bypasses the router.
	mux := stdhttp.NewServeMux()
	mux.Handle("/ws", NewWSHandler(chat, cfg, logger))
	mux.Handle("/", router)

	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

func healthHandler(c *gin.Context) {
	_, _ = fmt.Fprint(c.Writer, "ok")
}
