package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"

	"github.com/coder/websocket"
	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/messenger/internal/broadcast"
	"github.com/nextlevelbuilder/messenger/internal/store"
	"github.com/nextlevelbuilder/messenger/pkg/protocol"
)

func watchCmd() *cobra.Command {
	var (
		addr    string
		threads []string
	)
	cmd := &cobra.Command{
		Use:   "watch <alias:id>",
		Short: "Stream realtime events for a provider from a running gateway",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := store.ParseProvider(args[0])
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runWatch(ctx, addr, os.Getenv("MESSENGER_GATEWAY_TOKEN"), p, threads)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "ws://localhost:18800/ws", "gateway websocket URL")
	cmd.Flags().StringSliceVar(&threads, "thread", nil, "thread id whose presence channel to join (repeatable)")
	return cmd
}

func runWatch(ctx context.Context, addr, token string, p store.Provider, threads []string) error {
	if _, err := url.Parse(addr); err != nil {
		return fmt.Errorf("invalid addr: %w", err)
	}
	header := http.Header{}
	header.Set("X-Provider", p.Key())
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}

	conn, _, err := websocket.Dial(ctx, addr, &websocket.DialOptions{HTTPHeader: header})
	if err != nil {
		return fmt.Errorf("dial gateway: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")
	conn.SetReadLimit(1 << 20)

	channels := []string{broadcast.PrivateChannel(p)}
	for _, t := range threads {
		channels = append(channels, protocol.PresenceChannelPrefix+t)
	}
	for _, ch := range channels {
		data, _ := json.Marshal(protocol.ClientFrame{Type: protocol.FrameSubscribe, Channel: ch})
		if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
			return fmt.Errorf("subscribe %s: %w", ch, err)
		}
	}

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			var ce websocket.CloseError
			if errors.As(err, &ce) || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}
		var f protocol.ServerFrame
		if err := json.Unmarshal(data, &f); err != nil {
			fmt.Fprintf(os.Stderr, "invalid frame: %s\n", data)
			continue
		}
		switch f.Type {
		case protocol.FrameEvent:
			payload, _ := json.Marshal(f.Payload)
			fmt.Printf("%s %s %s\n", f.Channel, f.Event, payload)
		case protocol.FrameError:
			fmt.Fprintf(os.Stderr, "error %s: %s\n", f.Channel, f.Error)
		case protocol.FrameSubscribed:
			fmt.Fprintf(os.Stderr, "subscribed %s\n", f.Channel)
		}
	}
}
