package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/coder/websocket"

	"github.com/vovakirdan/chatcast/internal/proto"
)

func main() {
	if err := run(); err != nil {
		log.Printf("ws_smoke: %v", err)
		os.Exit(1)
	}
}

func run() error {
	addr := flag.String("addr", "ws://127.0.0.1:8000/ws", "WebSocket address")
	subprotocol := flag.String("subprotocol", "chatcast", "WebSocket sub-protocol to offer")
	user := flag.String("user", "tester", "username to take before sending")
	text := flag.String("text", "hello from smoke test", "message text to send")
	timeout := flag.Duration("timeout", 5*time.Second, "total timeout for the run")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, *addr, &websocket.DialOptions{Subprotocols: []string{*subprotocol}})
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	mustSend := func(ev proto.ServerBound) error {
		data, err := proto.EncodeServer(ev)
		if err != nil {
			return fmt.Errorf("encode %s: %w", ev.Type(), err)
		}
		if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
			return fmt.Errorf("send: %w", err)
		}
		return nil
	}

	if err := mustSend(proto.SetUsername{Username: *user}); err != nil {
		return err
	}
	if err := mustSend(proto.InboundMessage{Text: *text}); err != nil {
		return err
	}

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}

		ev, err := proto.DecodeClient(data)
		if err != nil {
			fmt.Printf("Raw data: %s\n", data)
			return fmt.Errorf("decode: %w", err)
		}
		fmt.Printf("Received %s\n", ev.Type())

		switch e := ev.(type) {
		case proto.OutboundMessage:
			fmt.Printf("Message: user=%s text=%q ts=%d\n", e.Username, e.Text, e.Timestamp)
			if e.Username != *user || e.Text != *text {
				return fmt.Errorf("unexpected echo: %+v", e)
			}
			return nil
		case proto.ClientJoin:
			fmt.Printf("Join: user=%s\n", e.Username)
		case proto.ClientLeave:
			fmt.Printf("Left: user=%s\n", e.Username)
		default:
			// keep looping for message
		}
	}
}
