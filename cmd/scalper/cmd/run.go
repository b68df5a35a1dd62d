package cmd

import (
	"context"
	"fmt"
	"os"
	ossignal "os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/scalper/config"
	"github.com/rustyeddy/scalper/feed"
	"github.com/rustyeddy/scalper/market"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Replay closed M1 bars through the engine",
	Long: `Replay a CSV file of closed M1 bars through signal evaluation,
risk gating and execution against the simulated broker.

M5 bars are built from the M1 stream. Every bar close produces one
decision which is logged, journaled and counted in the metrics.

The CSV format is time,open,high,low,close[,volume].

Examples:
  scalper run --bars data/xauusd_m1.csv
  scalper run -c scalper.yaml --bars data/xauusd_m1.csv --live
  scalper run --bars data/xauusd_m1.csv --from 2025-03-03 --to 2025-03-04`,
	RunE: runRun,
}

var (
	runBarsPath    string
	runFrom        string
	runTo          string
	runSpread      float64
	runLive        bool
	runMetricsAddr string
)

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runBarsPath, "bars", "b", "", "CSV file of closed M1 bars (required)")
	runCmd.Flags().StringVar(&runFrom, "from", "", "first bar time to replay (RFC3339 or YYYY-MM-DD)")
	runCmd.Flags().StringVar(&runTo, "to", "", "replay bars before this time (RFC3339 or YYYY-MM-DD)")
	runCmd.Flags().Float64Var(&runSpread, "spread", 10, "simulated spread in points")
	runCmd.Flags().BoolVar(&runLive, "live", false, "submit orders instead of shadow mode")
	runCmd.Flags().StringVar(&runMetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	runCmd.MarkFlagRequired("bars")
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	from, err := parseDay(runFrom)
	if err != nil {
		return fmt.Errorf("--from: %w", err)
	}
	to, err := parseDay(runTo)
	if err != nil {
		return fmt.Errorf("--to: %w", err)
	}

	bars, err := feed.LoadBars(runBarsPath, from, to)
	if err != nil {
		return fmt.Errorf("load bars: %w", err)
	}
	if len(bars) == 0 {
		return fmt.Errorf("no bars in %s", runBarsPath)
	}

	fmt.Printf("Replaying %d bars from: %s\n", len(bars), runBarsPath)
	return replayBars(cmd, cfg, bars, replayOptions{
		live:        runLive,
		spread:      runSpread,
		metricsAddr: runMetricsAddr,
		title:       "Replay " + cfg.Symbol,
	})
}

type replayOptions struct {
	live        bool
	spread      float64
	metricsAddr string
	title       string
}

func replayBars(cmd *cobra.Command, cfg *config.Config, bars []market.Bar, opts replayOptions) error {
	if opts.live {
		cfg.Engine.ShadowMode = false
	}
	if opts.metricsAddr != "" {
		cfg.Metrics.Addr = opts.metricsAddr
	}

	log := newLogger(cfg, os.Stderr)
	s, err := newSession(cfg, log)
	if err != nil {
		return err
	}
	defer s.Close()

	ctx, stop := ossignal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	start := time.Now()
	if err := s.replay(ctx, bars, opts.spread); err != nil {
		return fmt.Errorf("replay: %w", err)
	}

	s.summary(cmd.OutOrStdout(), opts.title)
	fmt.Printf("✓ Replayed %d bars in %s\n", len(bars), time.Since(start).Round(time.Millisecond))
	if cfg.Journal.Type == "csv" {
		fmt.Printf("  Decisions: %s\n", cfg.Journal.DecisionsFile)
		fmt.Printf("  Orders:    %s\n", cfg.Journal.OrdersFile)
	} else if cfg.Journal.Type == "sqlite" {
		fmt.Printf("  Journal: %s\n", cfg.Journal.DBPath)
	}
	return nil
}

// parseDay accepts RFC3339 or a bare date in UTC. Empty means unbounded.
func parseDay(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	return time.ParseInLocation("2006-01-02", s, time.UTC)
}
