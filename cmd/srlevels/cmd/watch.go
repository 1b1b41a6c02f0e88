package cmd

import (
	"context"
	"fmt"
	"net/url"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"SRLevels/internal/domain/models"
	"SRLevels/internal/service/levelstream"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow levels published by a running service",
	Long: `Watch subscribes to the /ws/levels stream of a running service and prints
every stored result. The connection is re-established until interrupted.

Example:
  srlevels watch --addr ws://localhost:8080 --symbol BTCUSDT`,
	RunE: runWatch,
}

var (
	watchAddr     string
	watchExchange string
	watchSymbol   string
	watchRetry    time.Duration
)

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().StringVar(&watchAddr, "addr", "ws://localhost:8080", "service base URL")
	watchCmd.Flags().StringVar(&watchExchange, "exchange", "", "only results from this exchange")
	watchCmd.Flags().StringVar(&watchSymbol, "symbol", "", "only results for this symbol")
	watchCmd.Flags().DurationVar(&watchRetry, "reconnect", 3*time.Second, "delay between reconnect attempts")
}

func runWatch(cmd *cobra.Command, _ []string) error {
	l, err := newLogger()
	if err != nil {
		return err
	}
	u, err := streamURL(watchAddr, watchExchange, watchSymbol)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	out := cmd.OutOrStdout()
	client := levelstream.New(u, watchRetry, 0, l)
	return client.Stream(ctx, func(r *models.AnalysisResult) {
		fmt.Fprintf(out, "%s %-8s %-6s %-14s %-3s price=%.6g S=%v R=%v\n",
			r.UpdatedAt.Format(time.RFC3339), r.Exchange, r.MarketType, r.Symbol, r.Timeframe,
			r.LastPrice, r.SupportLevels, r.ResistanceLevels)
	})
}

// streamURL appends the stream path and subscription filters to base.
func streamURL(base, exchange, symbol string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse addr: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path = "/ws/levels"
	q := u.Query()
	if exchange != "" {
		q.Set("exchange", exchange)
	}
	if symbol != "" {
		q.Set("symbol", models.NormalizeSymbol(symbol))
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
