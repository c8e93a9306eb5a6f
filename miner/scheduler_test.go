package miner

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mezonai/votechain/block"
	"github.com/mezonai/votechain/errors"
	"github.com/mezonai/votechain/ledger"
)

type fakeLedger struct {
	mu      sync.Mutex
	pending int
	calls   int32
	blocks  bool
	miners  []string
}

func (f *fakeLedger) MinePendingTransactions(ctx context.Context, minerAddress string) (*block.Block, error) {
	atomic.AddInt32(&f.calls, 1)
	f.mu.Lock()
	f.miners = append(f.miners, minerAddress)
	blocking := f.blocks
	f.mu.Unlock()

	if blocking {
		<-ctx.Done()
		return nil, errors.Wrap(errors.ErrCodeCanceled, "canceled", ctx.Err())
	}
	return block.NewGenesisBlock(1), nil
}

func (f *fakeLedger) PendingCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pending
}

func TestNewScheduler_Validation(t *testing.T) {
	_, err := NewScheduler(&fakeLedger{}, Config{Interval: 0, Address: "m"})
	assert.True(t, errors.IsCode(err, errors.ErrCodeInvalidArgument))

	_, err = NewScheduler(&fakeLedger{}, Config{Interval: time.Second, MinPending: -1})
	assert.True(t, errors.IsCode(err, errors.ErrCodeInvalidArgument))
}

func TestScheduler_StartRequiresAddress(t *testing.T) {
	s, err := NewScheduler(&fakeLedger{}, Config{Interval: time.Second})
	require.NoError(t, err)

	err = s.Start(context.Background(), "")
	assert.True(t, errors.IsCode(err, errors.ErrCodeInvalidArgument))
	assert.False(t, s.Status().Running)
}

func TestScheduler_MinesOnTicks(t *testing.T) {
	fl := &fakeLedger{pending: 1}
	s, err := NewScheduler(fl, Config{Interval: 5 * time.Millisecond, Address: "minerX", MinPending: 1})
	require.NoError(t, err)

	require.NoError(t, s.Start(context.Background(), ""))
	assert.Eventually(t, func() bool { return s.Status().BlocksMined >= 3 }, time.Second, 5*time.Millisecond)
	s.Stop()

	st := s.Status()
	assert.False(t, st.Running)
	assert.Equal(t, "minerX", st.Address)
	assert.NotEmpty(t, st.LastBlockHash)
	assert.False(t, st.LastMinedAt.IsZero())
	assert.Empty(t, st.LastError)
}

func TestScheduler_SkipsBelowMinPending(t *testing.T) {
	fl := &fakeLedger{pending: 2}
	s, err := NewScheduler(fl, Config{Interval: 2 * time.Millisecond, Address: "minerX", MinPending: 3})
	require.NoError(t, err)

	require.NoError(t, s.Start(context.Background(), ""))
	time.Sleep(30 * time.Millisecond)
	s.Stop()

	assert.Zero(t, atomic.LoadInt32(&fl.calls))
}

func TestScheduler_StopCancelsInFlightMining(t *testing.T) {
	fl := &fakeLedger{pending: 1, blocks: true}
	s, err := NewScheduler(fl, Config{Interval: time.Millisecond, Address: "minerX"})
	require.NoError(t, err)

	require.NoError(t, s.Start(context.Background(), ""))
	assert.Eventually(t, func() bool { return atomic.LoadInt32(&fl.calls) == 1 }, time.Second, time.Millisecond)

	stopped := make(chan struct{})
	go func() {
		s.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("Stop did not return while mining was in flight")
	}

	st := s.Status()
	assert.Zero(t, st.BlocksMined)
	assert.Empty(t, st.LastError, "cancellation is not reported as a failure")
}

func TestScheduler_StartTwiceAndOverrideAddress(t *testing.T) {
	fl := &fakeLedger{pending: 1}
	s, err := NewScheduler(fl, Config{Interval: 5 * time.Millisecond, Address: "minerX"})
	require.NoError(t, err)

	require.NoError(t, s.Start(context.Background(), "minerY"))
	require.NoError(t, s.Start(context.Background(), ""))
	assert.Eventually(t, func() bool { return atomic.LoadInt32(&fl.calls) >= 1 }, time.Second, 5*time.Millisecond)
	s.Stop()
	s.Stop()

	fl.mu.Lock()
	defer fl.mu.Unlock()
	for _, m := range fl.miners {
		assert.Equal(t, "minerY", m)
	}
}

func TestScheduler_AddressChangeWhileRunning(t *testing.T) {
	fl := &fakeLedger{pending: 1}
	s, err := NewScheduler(fl, Config{Interval: 2 * time.Millisecond, Address: "minerX"})
	require.NoError(t, err)

	require.NoError(t, s.Start(context.Background(), ""))
	assert.Eventually(t, func() bool { return atomic.LoadInt32(&fl.calls) >= 1 }, time.Second, time.Millisecond)

	require.NoError(t, s.Start(context.Background(), "minerZ"))
	st := s.Status()
	assert.True(t, st.Running)
	assert.Equal(t, "minerZ", st.Address)

	fl.mu.Lock()
	switched := len(fl.miners)
	fl.mu.Unlock()
	assert.Eventually(t, func() bool { return atomic.LoadInt32(&fl.calls) >= int32(switched+3) }, time.Second, time.Millisecond)
	s.Stop()

	fl.mu.Lock()
	defer fl.mu.Unlock()
	for _, m := range fl.miners[switched:] {
		assert.Equal(t, "minerZ", m)
	}
}

func TestScheduler_ParentContextStopsLoop(t *testing.T) {
	s, err := NewScheduler(&fakeLedger{}, Config{Interval: time.Millisecond, Address: "minerX"})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, s.Start(ctx, ""))
	done := s.Done()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("loop did not exit on parent cancellation")
	}
	assert.False(t, s.Status().Running)
}

func TestScheduler_WithRealLedger(t *testing.T) {
	cfg := ledger.DefaultConfig()
	cfg.Difficulty = 1
	l, err := ledger.New(cfg)
	require.NoError(t, err)

	_, err = l.AddTransaction("alice", "bob", 50)
	require.NoError(t, err)

	s, err := NewScheduler(l, Config{Interval: 2 * time.Millisecond, Address: "minerX", MinPending: 1})
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background(), ""))
	assert.Eventually(t, func() bool { return l.Height() >= 3 }, 5*time.Second, 5*time.Millisecond)
	s.Stop()

	assert.True(t, l.IsChainValid())
	assert.Equal(t, int64(50), l.Balance("bob"))
	assert.GreaterOrEqual(t, l.Balance("minerX"), int64(10))
}
