package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"carsucart/client/orderfeed"
	"carsucart/client/remote"
	"carsucart/logging"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	watchURL      string
	watchToken    string
	watchWS       string
	watchInterval time.Duration
	watchMarkRead bool
)

var watchOrdersCmd = &cobra.Command{
	Use:   "watch-orders",
	Short: "Follow your orders and print unread status changes",
	Long: `Poll the API for the signed-in user's orders and print every
status change that has not been acknowledged yet. With --ws the command
also listens on the order websocket so changes show up immediately.`,
	RunE: runWatchOrders,
}

func init() {
	f := watchOrdersCmd.Flags()
	f.StringVar(&watchURL, "url", "http://localhost:8080", "API base URL")
	f.StringVar(&watchToken, "token", os.Getenv("CARSUCART_TOKEN"), "bearer token (defaults to $CARSUCART_TOKEN)")
	f.StringVar(&watchWS, "ws", "", "websocket URL for pushed order events, e.g. ws://localhost:8080/ws/orders")
	f.DurationVar(&watchInterval, "interval", 30*time.Second, "polling interval")
	f.BoolVar(&watchMarkRead, "mark-read", false, "acknowledge notifications once printed")
}

func runWatchOrders(cmd *cobra.Command, _ []string) error {
	if watchToken == "" {
		return fmt.Errorf("a token is required: pass --token or set CARSUCART_TOKEN")
	}
	log, err := logging.New("dev", "warn")
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	api, err := remote.New(remote.Config{BaseURL: watchURL, Token: watchToken})
	if err != nil {
		return err
	}
	feed := orderfeed.New(api, log)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := feed.Refresh(ctx); err != nil {
		return fmt.Errorf("load orders: %w", err)
	}
	report(ctx, cmd, feed)

	go feed.Run(ctx, watchInterval)
	if watchWS != "" {
		go func() {
			if err := feed.Listen(ctx, watchWS, watchToken); err != nil {
				log.Warn("order websocket closed", zap.Error(err))
			}
		}()
	}

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	last, unread := feed.RefreshedAt(), feed.Unread()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			at, n := feed.RefreshedAt(), feed.Unread()
			if at.After(last) || n != unread {
				last, unread = at, n
				report(ctx, cmd, feed)
			}
		}
	}
}

// report prints orders with unacknowledged status changes.
func report(ctx context.Context, cmd *cobra.Command, feed *orderfeed.Aggregator) {
	out := cmd.OutOrStdout()
	if err := feed.LastError(); err != nil {
		fmt.Fprintf(out, "refresh failed, showing cached orders: %v\n", err)
	}
	unread := feed.Unread()
	if unread == 0 {
		return
	}
	fmt.Fprintf(out, "%d unread order update(s)\n", unread)
	for _, o := range feed.Orders() {
		if o.NotificationRead {
			continue
		}
		fmt.Fprintf(out, "  #%d  %-10s  %.2f\n", o.ID, o.Status, o.TotalAmount)
		if watchMarkRead {
			_ = feed.MarkNotificationAsRead(ctx, o.ID)
		}
	}
}
