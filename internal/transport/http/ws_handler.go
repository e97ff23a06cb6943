package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	stdhttp "net/http"
	"strings"

	"github.com/coder/websocket"
	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/vovakirdan/chatcast/internal/config"
	"github.com/vovakirdan/chatcast/internal/core"
	"github.com/vovakirdan/chatcast/internal/utils"
)

// WSHandler upgrades HTTP connections and hands them to the chat core.
type WSHandler struct {
	chat Chat
	cfg  config.Config
	log  *zerolog.Logger
}

// NewWSHandler builds a new WebSocket handler.
func NewWSHandler(chat Chat, cfg config.Config, logger *zerolog.Logger) stdhttp.Handler {
	return &WSHandler{chat: chat, cfg: cfg, log: logger}
}

func (h *WSHandler) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	if h.cfg.RequireSubprotocol && !offersSubprotocol(r, h.cfg.Subprotocol) {
		h.log.Debug().Str("remote_addr", r.RemoteAddr).Str("want", h.cfg.Subprotocol).
			Msg("rejecting upgrade without subprotocol")
		stdhttp.Error(w, fmt.Sprintf("subprotocol %q required", h.cfg.Subprotocol), stdhttp.StatusBadRequest)
		return
	}

	opts := &websocket.AcceptOptions{
		OriginPatterns: h.cfg.AllowedOrigins,
	}
	if h.cfg.Subprotocol != "" {
		opts.Subprotocols = []string{h.cfg.Subprotocol}
	}
	if len(h.cfg.AllowedOrigins) == 0 {
		opts.InsecureSkipVerify = true
	}

	conn, err := websocket.Accept(w, r, opts)
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	if h.cfg.MaxMessageBytes > 0 {
		conn.SetReadLimit(h.cfg.MaxMessageBytes)
	}

	id := r.RemoteAddr
	if id == "" {
		id = utils.NewID()
	}

	// Serve closes the connection on every path; errors are logged there.
	_ = h.chat.Serve(r.Context(), &wsConn{id: id, conn: conn})
}

func offersSubprotocol(r *stdhttp.Request, want string) bool {
	var offered []string
	for _, header := range r.Header.Values("Sec-WebSocket-Protocol") {
		offered = append(offered, lo.Map(strings.Split(header, ","), func(p string, _ int) string {
			return strings.TrimSpace(p)
		})...)
	}
	return lo.Contains(offered, want)
}

// wsConn adapts a websocket connection to core.Conn.
type wsConn struct {
	id   string
	conn *websocket.Conn
}

func (c *wsConn) ID() string { return c.id }

func (c *wsConn) Read(ctx context.Context) (core.FrameKind, []byte, error) {
	typ, data, err := c.conn.Read(ctx)
	if err != nil {
		switch websocket.CloseStatus(err) {
		case websocket.StatusNormalClosure, websocket.StatusGoingAway, websocket.StatusNoStatusRcvd:
			return 0, nil, fmt.Errorf("%w: %v", core.ErrPeerClosed, err)
		}
		if errors.Is(err, io.EOF) {
			return 0, nil, fmt.Errorf("%w: %v", core.ErrPeerClosed, err)
		}
		return 0, nil, err
	}
	if typ == websocket.MessageBinary {
		return core.FrameBinary, data, nil
	}
	return core.FrameText, data, nil
}

func (c *wsConn) Send(ctx context.Context, payload []byte) error {
	return c.conn.Write(ctx, websocket.MessageText, payload)
}

func (c *wsConn) Close(code core.CloseCode, reason string) error {
	return c.conn.Close(websocket.StatusCode(code), reason)
}
