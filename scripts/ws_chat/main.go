package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coder/websocket"
	"github.com/gookit/color"

	"github.com/vovakirdan/chatcast/internal/proto"
	"github.com/vovakirdan/chatcast/internal/relay"
)

func main() {
	if err := run(); err != nil {
		log.Printf("ws_chat: %v", err)
		os.Exit(1)
	}
}

func run() error {
	addr := flag.String("addr", "ws://127.0.0.1:8000/ws", "WebSocket address")
	subprotocol := flag.String("subprotocol", "chatcast", "WebSocket sub-protocol to offer")
	user := flag.String("user", "", "username to take after connecting")
	flag.Parse()

	baseCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(baseCtx)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, *addr, &websocket.DialOptions{Subprotocols: []string{*subprotocol}})
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	if *user != "" {
		if err := send(ctx, conn, proto.SetUsername{Username: *user}); err != nil {
			return err
		}
	}

	color.Cyan.Printf("Connected to %s\n", *addr)
	color.Gray.Println("Type messages and press Enter to send. /nick NAME renames you. Ctrl+C to exit.")

	go func() {
		defer cancel()
		readLoop(ctx, conn)
	}()

	writeLoop(ctx, conn)

	stop()
	cancel()
	_ = conn.Close(websocket.StatusNormalClosure, "bye")
	return nil
}

func send(ctx context.Context, conn *websocket.Conn, ev proto.ServerBound) error {
	data, err := proto.EncodeServer(ev)
	if err != nil {
		return fmt.Errorf("encode %s: %w", ev.Type(), err)
	}
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("send: %w", err)
	}
	return nil
}

func readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			// Treat expected shutdowns quietly.
			if errors.Is(err, context.Canceled) {
				return
			}
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				return
			case -1:
				log.Printf("read error: %v", err)
			default:
				color.Red.Printf("server closed the connection: %v\n", err)
			}
			return
		}

		ev, err := proto.DecodeClient(data)
		if err != nil {
			log.Printf("decode: %v", err)
			continue
		}

		switch e := ev.(type) {
		case proto.OutboundMessage:
			at := time.UnixMilli(e.Timestamp).Format(time.TimeOnly)
			fmt.Printf("%s %s: %s\n", color.Gray.Sprint(at), color.Green.Sprint(e.Username), e.Text)
		case proto.ClientJoin:
			color.Yellow.Printf("* %s joined\n", e.Username)
		case proto.ClientLeave:
			color.Yellow.Printf("* %s left\n", e.Username)
		case proto.ClientTyping:
			color.Gray.Printf("* %s is typing\n", e.Username)
		}
	}
}

func writeLoop(ctx context.Context, conn *websocket.Conn) {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			ev, ok := relay.ParseLine(line)
			if !ok {
				continue
			}
			if err := send(ctx, conn, ev); err != nil {
				log.Printf("%v", err)
				return
			}
		}
	}
}
