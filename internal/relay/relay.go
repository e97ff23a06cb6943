// Package relay bridges line-oriented TCP clients onto the websocket chat.
//
// Every accepted TCP connection gets its own upstream websocket session. Lines
// read from TCP become Message events, or SetUsername for "/nick NAME". Every
// event the server sends back is validated and written to TCP as one JSON line.
package relay

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"

	"github.com/coder/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/vovakirdan/chatcast/internal/config"
	"github.com/vovakirdan/chatcast/internal/proto"
)

const nickCommand = "/nick "

var (
	// ErrMalformedPacket is returned when the upstream sends something that is not a client-bound event.
	ErrMalformedPacket = errors.New("received malformed packet")
	// ErrTCPWrite is returned when a packet cannot be written to the TCP client.
	ErrTCPWrite = errors.New("error writing to tcp socket")
)

// Gateway accepts TCP clients and relays them to the upstream chat server.
type Gateway struct {
	addr        string
	upstream    string
	subprotocol string
	maxLine     int
	log         *zerolog.Logger
}

// New builds a gateway from the relay section of cfg.
func New(cfg config.Config, logger *zerolog.Logger) *Gateway {
	return &Gateway{
		addr:        cfg.Relay.Addr,
		upstream:    cfg.Relay.Upstream,
		subprotocol: cfg.Subprotocol,
		maxLine:     int(cfg.MaxMessageBytes),
		log:         logger,
	}
}

// Run listens on the configured address and serves until ctx is done.
func (g *Gateway) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", g.addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", g.addr, err)
	}
	g.log.Info().Str("addr", ln.Addr().String()).Str("upstream", g.upstream).Msg("relay listening")
	return g.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is done and waits for the
// relayed connections to finish. ln is closed on return.
func (g *Gateway) Serve(ctx context.Context, ln net.Listener) error {
	stop := context.AfterFunc(ctx, func() { _ = ln.Close() })
	defer stop()

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		tcp, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			_ = ln.Close()
			return fmt.Errorf("accept: %w", err)
		}
		wg.Go(func() { g.handle(ctx, tcp) })
	}
}

func (g *Gateway) handle(ctx context.Context, tcp net.Conn) {
	logger := g.log.With().Str("remote_addr", tcp.RemoteAddr().String()).Logger()
	logger.Info().Msg("relay connection opened")

	opts := &websocket.DialOptions{}
	if g.subprotocol != "" {
		opts.Subprotocols = []string{g.subprotocol}
	}
	ws, _, err := websocket.Dial(ctx, g.upstream, opts)
	if err != nil {
		logger.Error().Err(err).Str("upstream", g.upstream).Msg("dial upstream")
		_ = tcp.Close()
		return
	}
	if g.maxLine > 0 {
		ws.SetReadLimit(int64(g.maxLine))
	}

	var once sync.Once
	shutdown := func(code websocket.StatusCode, reason string) {
		once.Do(func() {
			_ = tcp.Close()
			_ = ws.Close(code, reason)
		})
	}

	grp, gctx := errgroup.WithContext(ctx)
	grp.Go(func() error {
		err := g.tcpToWS(gctx, tcp, ws)
		shutdown(websocket.StatusNormalClosure, "tcp client closed")
		return err
	})
	grp.Go(func() error {
		err := g.wsToTCP(gctx, ws, tcp)
		switch {
		case errors.Is(err, ErrMalformedPacket):
			shutdown(websocket.StatusPolicyViolation, "malformed packet")
		default:
			shutdown(websocket.StatusGoingAway, "relay closing")
		}
		return err
	})
	context.AfterFunc(gctx, func() { shutdown(websocket.StatusGoingAway, "relay shutting down") })

	if err := grp.Wait(); err != nil && !closedQuietly(err) {
		logger.Warn().Err(err).Msg("relay connection closed with error")
		return
	}
	logger.Info().Msg("relay connection closed")
}

func (g *Gateway) tcpToWS(ctx context.Context, tcp net.Conn, ws *websocket.Conn) error {
	scanner := bufio.NewScanner(tcp)
	if g.maxLine > 0 {
		scanner.Buffer(make([]byte, 0, 4096), g.maxLine)
	}
	for scanner.Scan() {
		ev, ok := ParseLine(scanner.Text())
		if !ok {
			continue
		}
		data, err := proto.EncodeServer(ev)
		if err != nil {
			return err
		}
		if err := ws.Write(ctx, websocket.MessageText, data); err != nil {
			return fmt.Errorf("write upstream: %w", err)
		}
	}
	return scanner.Err()
}

func (g *Gateway) wsToTCP(ctx context.Context, ws *websocket.Conn, tcp net.Conn) error {
	for {
		typ, data, err := ws.Read(ctx)
		if err != nil {
			return err
		}
		if typ != websocket.MessageText {
			continue
		}
		if _, err := proto.DecodeClient(data); err != nil {
			return fmt.Errorf("%w: %v", ErrMalformedPacket, err)
		}
		if _, err := tcp.Write(append(data, '\n')); err != nil {
			return fmt.Errorf("%w: %v", ErrTCPWrite, err)
		}
	}
}

// ParseLine turns one line typed by a TCP client into a server-bound event.
// Blank lines yield false.
func ParseLine(line string) (proto.ServerBound, bool) {
	line = strings.TrimRight(line, "\r\n")
	if strings.TrimSpace(line) == "" {
		return nil, false
	}
	if name, ok := strings.CutPrefix(line, nickCommand); ok {
		return proto.SetUsername{Username: strings.TrimSpace(name)}, true
	}
	return proto.InboundMessage{Text: line}, true
}

func closedQuietly(err error) bool {
	switch websocket.CloseStatus(err) {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway:
		return true
	}
	return errors.Is(err, net.ErrClosed) || errors.Is(err, io.EOF) || errors.Is(err, context.Canceled)
}
