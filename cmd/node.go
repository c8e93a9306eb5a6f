package cmd

import (
	"fmt"

	"github.com/mezonai/votechain/config"
	"github.com/mezonai/votechain/events"
	"github.com/mezonai/votechain/ledger"
	"github.com/mezonai/votechain/logx"
	"github.com/mezonai/votechain/store"
)

// node holds the components every command shares
type node struct {
	cfg      *config.Config
	store    store.BlockStore
	eventBus *events.EventBus
	ledger   *ledger.Ledger
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	logx.Init(cfg.LogOptions())
	return cfg, nil
}

// openNode opens the configured store and restores the ledger from it
func openNode(cfg *config.Config) (*node, error) {
	bs, err := store.CreateBlockStore(&cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Store.Backend, err)
	}

	bus := events.NewEventBus()
	l, err := ledger.New(ledger.Config{
		Difficulty:   cfg.Ledger.Difficulty,
		MiningReward: cfg.Ledger.MiningReward,
		RewardSender: cfg.Ledger.RewardSender,
		MaxPending:   cfg.Mempool.MaxTxs,
	}, ledger.WithStore(bs), ledger.WithEventBus(bus))
	if err != nil {
		_ = bs.Close()
		return nil, fmt.Errorf("build ledger: %w", err)
	}

	return &node{cfg: cfg, store: bs, eventBus: bus, ledger: l}, nil
}

func (n *node) Close() {
	if err := n.store.Close(); err != nil {
		logx.Error("CMD", "Failed to close store:", err)
	}
	if err := logx.Close(); err != nil {
		logx.Error("CMD", "Failed to close log file:", err)
	}
}
