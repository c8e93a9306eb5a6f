package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/mezonai/votechain/api"
	"github.com/mezonai/votechain/logx"
	"github.com/mezonai/votechain/miner"
	"github.com/mezonai/votechain/monitoring"
	"github.com/mezonai/votechain/ratelimit"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the ledger node (HTTP API and optional mining scheduler)",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return runNode(ctx)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runNode(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	monitoring.InitMetrics()

	n, err := openNode(cfg)
	if err != nil {
		return err
	}
	defer n.Close()

	scheduler, err := miner.NewScheduler(n.ledger, miner.Config{
		Interval:   cfg.Miner.Interval,
		Address:    cfg.Miner.Address,
		MinPending: cfg.Miner.MinPending,
	})
	if err != nil {
		return err
	}

	limiter := ratelimit.NewTxLimiter(ratelimit.TxLimiterConfig{
		IP:     ratelimit.Config{MaxRequests: cfg.API.TxRateLimit, WindowSize: time.Second},
		Sender: ratelimit.Config{MaxRequests: cfg.API.SenderRateLimit, WindowSize: time.Second},
		Global: ratelimit.Config{MaxRequests: cfg.API.GlobalRateLimit, WindowSize: time.Second},
	})
	defer limiter.Stop()

	server := api.NewAPIServer(n.ledger, scheduler, n.eventBus, limiter, cfg.API.ListenAddr)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Run(gctx)
	})
	if cfg.Miner.Enabled {
		if err := scheduler.Start(gctx, ""); err != nil {
			return err
		}
	}
	g.Go(func() error {
		<-gctx.Done()
		scheduler.Stop()
		return nil
	})

	logx.Info("CMD", "Node running | api=", cfg.API.ListenAddr, "| mining=", cfg.Miner.Enabled)
	err = g.Wait()
	logx.Info("CMD", "Node stopped | height=", n.ledger.Height())
	return err
}
