package miner

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mezonai/votechain/block"
	"github.com/mezonai/votechain/errors"
	"github.com/mezonai/votechain/exception"
	"github.com/mezonai/votechain/logx"
	"github.com/mezonai/votechain/utils"
)

// Ledger is the part of the ledger the scheduler drives
type Ledger interface {
	MinePendingTransactions(ctx context.Context, minerAddress string) (*block.Block, error)
	PendingCount() int
}

type Config struct {
	Interval time.Duration
	Address  string
	// MinPending is the pending count a tick needs before it mines
	MinPending int
}

type Status struct {
	Running       bool      `json:"running"`
	Address       string    `json:"address"`
	Interval      string    `json:"interval"`
	MinPending    int       `json:"min_pending"`
	BlocksMined   uint64    `json:"blocks_mined"`
	LastBlockHash string    `json:"last_block_hash,omitempty"`
	LastMinedAt   time.Time `json:"last_mined_at,omitempty"`
	SecondsSince  float64   `json:"seconds_since_last_block,omitempty"`
	LastError     string    `json:"last_error,omitempty"`
}

// Scheduler mines on a fixed interval until stopped. Stopping cancels an
// in-flight search, which discards the partial block.
type Scheduler struct {
	mu     sync.Mutex
	ledger Ledger
	cfg    Config

	running bool
	cancel  context.CancelFunc
	stopped chan struct{}

	blocksMined   uint64
	lastBlockHash string
	lastMinedAt   time.Time
	lastErr       error
}

func NewScheduler(l Ledger, cfg Config) (*Scheduler, error) {
	if cfg.Interval <= 0 {
		return nil, errors.NewError(errors.ErrCodeInvalidArgument, "Mining interval must be positive")
	}
	if cfg.MinPending < 0 {
		return nil, errors.NewError(errors.ErrCodeInvalidArgument, "Min pending must not be negative")
	}
	return &Scheduler{ledger: l, cfg: cfg}, nil
}

// Start launches the mining loop. address overrides the configured miner
// address when non-empty. Starting a running scheduler with the same address
// is a no-op; a new address restarts the loop so rewards go to it.
func (s *Scheduler) Start(ctx context.Context, address string) error {
	s.mu.Lock()
	for s.running && address != "" && address != s.cfg.Address {
		cancel, stopped, previous := s.cancel, s.stopped, s.cfg.Address
		s.mu.Unlock()

		cancel()
		<-stopped
		logx.Info("MINER", fmt.Sprintf("Scheduler restarting for new address | previous=%s | address=%s", previous, address))

		s.mu.Lock()
	}
	defer s.mu.Unlock()

	if address != "" {
		s.cfg.Address = address
	}
	if s.cfg.Address == "" {
		return errors.NewError(errors.ErrCodeInvalidArgument, errors.ErrMsgMissingMiner)
	}
	if s.running {
		return nil
	}

	loopCtx, cancel := context.WithCancel(ctx)
	stopped := make(chan struct{})
	s.running = true
	s.cancel = cancel
	s.stopped = stopped
	cfg := s.cfg

	exception.SafeGo("minerLoop", func() {
		defer close(stopped)
		s.loop(loopCtx, cfg)
	})

	logx.Info("MINER", fmt.Sprintf("Scheduler started | address=%s | interval=%s | min_pending=%d", cfg.Address, cfg.Interval, cfg.MinPending))
	return nil
}

// Stop cancels the loop and waits for it to exit
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	cancel, stopped := s.cancel, s.stopped
	s.mu.Unlock()

	cancel()
	<-stopped
	logx.Info("MINER", "Scheduler stopped")
}

// Done is closed when the current loop exits, nil if it never started
func (s *Scheduler) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

func (s *Scheduler) loop(ctx context.Context, cfg Config) {
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx, cfg)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context, cfg Config) {
	if pending := s.ledger.PendingCount(); pending < cfg.MinPending {
		logx.Debug("MINER", fmt.Sprintf("Skipping tick | pending=%d | min_pending=%d", pending, cfg.MinPending))
		return
	}

	b, err := s.ledger.MinePendingTransactions(ctx, cfg.Address)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		if !errors.IsCode(err, errors.ErrCodeCanceled) {
			s.lastErr = err
		}
		return
	}
	s.blocksMined++
	s.lastBlockHash = b.Hash
	s.lastMinedAt = time.Now()
	s.lastErr = nil
}

func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{
		Running:       s.running,
		Address:       s.cfg.Address,
		Interval:      s.cfg.Interval.String(),
		MinPending:    s.cfg.MinPending,
		BlocksMined:   s.blocksMined,
		LastBlockHash: s.lastBlockHash,
		LastMinedAt:   s.lastMinedAt,
	}
	if !s.lastMinedAt.IsZero() {
		st.SecondsSince = utils.SecondsBetween(s.lastMinedAt, time.Now())
	}
	if s.lastErr != nil {
		st.LastError = s.lastErr.Error()
	}
	return st
}
