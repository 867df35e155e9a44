// ABOUTME: Minimal fake FDC3 app for manual and E2E testing: joins a channel, listens, broadcasts.
// ABOUTME: Usage: fake-app [-url ws://localhost:8080/fdc3] [-origin https://fake.example] [-channel red] [-ticker MSFT]
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/2389/fdc3-gateway/internal/client"
	"github.com/2389/fdc3-gateway/internal/fdc3"
	"github.com/2389/fdc3-gateway/internal/protocol"
	"github.com/2389/fdc3-gateway/internal/transport"
)

type options struct {
	url      string
	grpcAddr string
	origin   string
	tabID    string
	channel  string
	ticker   string
	intent   string
	interval time.Duration
}

func main() {
	var opts options
	flag.StringVar(&opts.url, "url", "ws://localhost:8080/fdc3", "agent WebSocket endpoint")
	flag.StringVar(&opts.grpcAddr, "grpc", "", "connect over gRPC to this address instead of WebSocket")
	flag.StringVar(&opts.origin, "origin", "https://fake.example", "app origin used for directory lookup")
	flag.StringVar(&opts.tabID, "tab", "", "tab id (default: assigned by the agent)")
	flag.StringVar(&opts.channel, "channel", "red", "channel to join (empty stays outside channels)")
	flag.StringVar(&opts.ticker, "ticker", "", "broadcast an fdc3.instrument with this ticker")
	flag.StringVar(&opts.intent, "intent", "ViewChart", "intent to listen for (empty disables)")
	flag.DurationVar(&opts.interval, "every", 0, "repeat the broadcast at this interval")
	flag.Parse()

	if err := run(opts); err != nil {
		log.Fatal(err)
	}
}

func run(opts options) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	var (
		port transport.Port
		err  error
	)
	if opts.grpcAddr != "" {
		port, err = transport.DialGRPC(ctx, opts.grpcAddr, opts.origin, opts.tabID)
	} else {
		port, err = transport.DialWebSocket(ctx, opts.url, opts.origin, opts.tabID)
	}
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	app := client.New(port, client.Options{}, logger)
	defer app.Close()

	env, err := app.Environment(ctx)
	if err != nil {
		return fmt.Errorf("waiting for environment: %w", err)
	}
	name := opts.origin
	if env.Directory != nil {
		name = env.Directory.Name
	}
	fmt.Fprintf(os.Stderr, "connected as %s (tab: %s)\n", name, env.TabID)

	if opts.channel != "" {
		if err := app.JoinChannel(ctx, opts.channel); err != nil {
			return fmt.Errorf("joining %s: %w", opts.channel, err)
		}
		fmt.Fprintf(os.Stderr, "joined channel %s\n", opts.channel)
	}

	if _, err := app.AddContextListener(ctx, "", func(c fdc3.Context) {
		fmt.Printf("context  %s %s\n", c.Type(), c)
	}); err != nil {
		return fmt.Errorf("adding context listener: %w", err)
	}

	if opts.intent != "" {
		if _, err := app.AddIntentListener(ctx, opts.intent, func(c fdc3.Context, src *fdc3.AppMetadata) {
			from := "unknown"
			if src != nil {
				from = src.Name
			}
			fmt.Printf("intent   %s from %s: %s\n", opts.intent, from, c)
		}); err != nil {
			return fmt.Errorf("adding intent listener: %w", err)
		}
	}

	app.OnOpen(func(ev protocol.OpenEvent) {
		fmt.Printf("open     %s\n", ev.Context)
	})

	if opts.ticker != "" {
		if err := broadcastLoop(ctx, app, opts); err != nil {
			return err
		}
	}

	select {
	case <-ctx.Done():
	case <-app.Done():
		fmt.Fprintln(os.Stderr, "agent closed the connection")
	}
	return nil
}

func broadcastLoop(ctx context.Context, app *client.Client, opts options) error {
	instrument := fdc3.Context(fmt.Sprintf(`{"type":"fdc3.instrument","id":{"ticker":%q}}`, opts.ticker))

	send := func() error {
		if err := app.Broadcast(ctx, instrument); err != nil {
			return fmt.Errorf("broadcast: %w", err)
		}
		fmt.Fprintf(os.Stderr, "broadcast %s\n", opts.ticker)
		return nil
	}
	if err := send(); err != nil {
		return err
	}
	if opts.interval <= 0 {
		return nil
	}

	go func() {
		ticker := time.NewTicker(opts.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-app.Done():
				return
			case <-ticker.C:
				if err := send(); err != nil {
					fmt.Fprintln(os.Stderr, err)
					return
				}
			}
		}
	}()
	return nil
}
