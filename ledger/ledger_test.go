package ledger

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mezonai/votechain/block"
	"github.com/mezonai/votechain/db"
	"github.com/mezonai/votechain/errors"
	"github.com/mezonai/votechain/events"
	"github.com/mezonai/votechain/mempool"
	"github.com/mezonai/votechain/store"
	"github.com/mezonai/votechain/transaction"
)

func newTestLedger(t *testing.T, difficulty int, opts ...Option) *Ledger {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Difficulty = difficulty
	l, err := New(cfg, opts...)
	require.NoError(t, err)
	return l
}

func mine(t *testing.T, l *Ledger, miner string) *block.Block {
	t.Helper()
	b, err := l.MinePendingTransactions(context.Background(), miner)
	require.NoError(t, err)
	return b
}

func TestNew_Genesis(t *testing.T) {
	l := newTestLedger(t, 2)

	assert.Equal(t, 1, l.Height())
	genesis := l.LatestBlock()
	assert.Equal(t, uint64(0), genesis.Index)
	assert.Equal(t, block.GenesisPreviousHash, genesis.PreviousHash)
	assert.Empty(t, genesis.Transactions)
	assert.Zero(t, genesis.Nonce)
	assert.True(t, l.IsChainValid())
	assert.Zero(t, l.PendingCount())
}

func TestNew_InvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"negative difficulty", Config{Difficulty: -1, RewardSender: "network"}},
		{"difficulty above digest length", Config{Difficulty: block.MaxDifficulty + 1, RewardSender: "network"}},
		{"empty reward sender", Config{Difficulty: 1}},
		{"negative max pending", Config{Difficulty: 1, RewardSender: "network", MaxPending: -1}},
		{"reward sender not utf8", Config{Difficulty: 1, RewardSender: "net\xff"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.cfg)
			assert.True(t, errors.IsCode(err, errors.ErrCodeInvalidArgument))
		})
	}
}

func TestAliceBobScenario(t *testing.T) {
	l := newTestLedger(t, 2)

	_, err := l.AddTransaction("alice", "bob", 50)
	require.NoError(t, err)
	mined := mine(t, l, "minerX")

	assert.Equal(t, 2, l.Height())
	assert.Equal(t, int64(-50), l.Balance("alice"))
	assert.Equal(t, int64(50), l.Balance("bob"))
	assert.Equal(t, int64(0), l.Balance("minerX"))
	assert.True(t, l.IsChainValid())
	assert.True(t, block.MeetsDifficulty(mined.Hash, 2))
	assert.Equal(t, "00", mined.Hash[:2])
}

func TestRewardLag(t *testing.T) {
	l := newTestLedger(t, 1)

	mine(t, l, "minerX")
	assert.Equal(t, int64(0), l.Balance("minerX"))

	pending := l.PendingTransactions()
	require.Len(t, pending, 1)
	assert.Equal(t, transaction.NetworkAddress, pending[0].From)
	assert.Equal(t, "minerX", pending[0].To)
	assert.Equal(t, int64(10), pending[0].Amount)
	assert.Equal(t, pending, l.PendingBatch(5))
	assert.Empty(t, l.PendingBatch(0))

	second := mine(t, l, "minerY")
	require.Len(t, second.Transactions, 1)
	assert.Equal(t, int64(10), l.Balance("minerX"))
	assert.Equal(t, int64(0), l.Balance("minerY"))
	assert.Equal(t, int64(-10), l.Balance(transaction.NetworkAddress))
}

func TestVoteCounting(t *testing.T) {
	l := newTestLedger(t, 1)

	for _, tx := range []struct {
		to     string
		amount int64
	}{
		{"cand1", 1}, {"cand1", 1}, {"cand2", 1}, {"cand1", 2},
	} {
		_, err := l.AddTransaction("voter", tx.to, tx.amount)
		require.NoError(t, err)
	}
	mined := mine(t, l, "minerX")
	require.Len(t, mined.Transactions, 4)

	assert.Equal(t, 2, l.VoteCount("cand1"))
	assert.Equal(t, 1, l.VoteCount("cand2"))
	assert.Equal(t, 0, l.VoteCount("cand3"))
	assert.Equal(t, map[string]int{"cand1": 2, "cand2": 1, "cand3": 0}, l.Tally([]string{"cand1", "cand2", "cand3"}))
}

func TestPendingVotesDoNotCount(t *testing.T) {
	l := newTestLedger(t, 0)

	_, err := l.AddTransaction("voter", "cand1", 1)
	require.NoError(t, err)
	assert.Equal(t, 0, l.VoteCount("cand1"))
	assert.Equal(t, int64(0), l.Balance("cand1"))
}

func TestSelfTransferNetsZero(t *testing.T) {
	l := newTestLedger(t, 0)

	_, err := l.AddTransaction("carol", "carol", 25)
	require.NoError(t, err)
	mine(t, l, "minerX")

	assert.Equal(t, int64(0), l.Balance("carol"))
}

func TestAddTransaction_InvalidArgument(t *testing.T) {
	l := newTestLedger(t, 0)

	_, err := l.AddTransaction("", "bob", 1)
	assert.True(t, errors.IsCode(err, errors.ErrCodeInvalidArgument))
	_, err = l.AddTransaction("alice", "", 1)
	assert.True(t, errors.IsCode(err, errors.ErrCodeInvalidArgument))
	assert.Zero(t, l.PendingCount())

	// sign and magnitude are not the ledger's business
	_, err = l.AddTransaction("alice", "bob", -7)
	assert.NoError(t, err)
}

func TestRejectsInvalidUTF8Addresses(t *testing.T) {
	l := newTestLedger(t, 0)

	tests := []struct {
		name     string
		from, to string
	}{
		{"sender", "a\xff", "bob"},
		{"recipient", "alice", "b\xfe"},
		{"truncated rune", "alice", "\xe2\x82"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := l.AddTransaction(tt.from, tt.to, 1)
			assert.True(t, errors.IsCode(err, errors.ErrCodeInvalidArgument))
		})
	}
	assert.Zero(t, l.PendingCount())

	_, err := l.MinePendingTransactions(context.Background(), "m\xff")
	assert.True(t, errors.IsCode(err, errors.ErrCodeInvalidArgument))
	assert.Equal(t, 1, l.Height())

	_, err = l.AddTransaction("ålice", "bøb", 1)
	assert.NoError(t, err)
}

func TestAddTransaction_MempoolFull(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Difficulty = 0
	cfg.MaxPending = 1
	l, err := New(cfg)
	require.NoError(t, err)

	_, err = l.AddTransaction("alice", "bob", 1)
	require.NoError(t, err)
	_, err = l.AddTransaction("alice", "bob", 2)
	assert.True(t, errors.IsCode(err, errors.ErrCodeMempoolFull))
	assert.Equal(t, 1, l.PendingCount())
}

func TestAddTransaction_UsesClock(t *testing.T) {
	fixed := time.UnixMilli(1_700_000_000_123)
	l := newTestLedger(t, 0, WithClock(func() time.Time { return fixed }))

	tx, err := l.AddTransaction("alice", "bob", 3)
	require.NoError(t, err)
	assert.Equal(t, int64(1_700_000_000_123), tx.Timestamp)
}

func TestMine_EmptyMiner(t *testing.T) {
	l := newTestLedger(t, 0)

	_, err := l.MinePendingTransactions(context.Background(), "")
	assert.True(t, errors.IsCode(err, errors.ErrCodeInvalidArgument))
	assert.Equal(t, 1, l.Height())
}

func TestMine_EmptyPending(t *testing.T) {
	l := newTestLedger(t, 1)

	b := mine(t, l, "minerX")
	assert.Equal(t, uint64(1), b.Index)
	assert.Empty(t, b.Transactions)
	assert.True(t, l.IsChainValid())
}

func TestMine_Canceled(t *testing.T) {
	l := newTestLedger(t, block.MaxDifficulty)
	_, err := l.AddTransaction("alice", "bob", 5)
	require.NoError(t, err)
	before := l.PendingTransactions()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = l.MinePendingTransactions(ctx, "minerX")

	assert.True(t, errors.IsCode(err, errors.ErrCodeCanceled))
	assert.Equal(t, 1, l.Height())
	assert.Equal(t, before, l.PendingTransactions())
	assert.True(t, l.IsChainValid())
}

func TestMine_CanceledPublishesEvent(t *testing.T) {
	bus := events.NewEventBus()
	_, ch := bus.Subscribe()
	l := newTestLedger(t, block.MaxDifficulty, WithEventBus(bus))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := l.MinePendingTransactions(ctx, "minerX")
	require.Error(t, err)

	ev := <-ch
	require.Equal(t, events.EventMiningCanceled, ev.Type())
	assert.Equal(t, uint64(1), ev.(*events.MiningCanceled).Index())
}

func TestMine_LateTransactionsStayQueued(t *testing.T) {
	pool := mempool.NewMempool(0)
	fixed := time.UnixMilli(1_700_000_000_000)
	late := transaction.NewTransaction("dave", "erin", 4, fixed.UnixMilli())

	var inject bool
	clock := func() time.Time {
		if inject {
			// runs after the pending snapshot, while the block is being built
			inject = false
			require.NoError(t, pool.Add(late))
		}
		return fixed
	}
	l := newTestLedger(t, 1, WithMempool(pool), WithClock(clock))

	_, err := l.AddTransaction("alice", "bob", 50)
	require.NoError(t, err)

	inject = true
	mined := mine(t, l, "minerX")

	require.Len(t, mined.Transactions, 1)
	assert.Equal(t, "alice", mined.Transactions[0].From)

	pending := l.PendingTransactions()
	require.Len(t, pending, 2)
	assert.Equal(t, transaction.NetworkAddress, pending[0].From)
	assert.Equal(t, late, pending[1])
}

func TestMine_PublishesEvents(t *testing.T) {
	bus := events.NewEventBus()
	_, ch := bus.Subscribe()
	l := newTestLedger(t, 1, WithEventBus(bus))

	tx, err := l.AddTransaction("alice", "bob", 1)
	require.NoError(t, err)
	mined := mine(t, l, "minerX")

	added := <-ch
	assert.Equal(t, events.EventTransactionAdded, added.Type())
	assert.Equal(t, tx.Hash(), added.Subject())

	sealed := <-ch
	assert.Equal(t, events.EventBlockMined, sealed.Type())
	assert.Equal(t, mined.Hash, sealed.Subject())
}

func TestTamperDetection(t *testing.T) {
	l := newTestLedger(t, 1)
	_, err := l.AddTransaction("alice", "bob", 50)
	require.NoError(t, err)
	mine(t, l, "minerX")
	require.True(t, l.IsChainValid())

	l.chain[1].Transactions[0].Amount = 5000

	assert.False(t, l.IsChainValid())
	assert.ErrorIs(t, l.ValidateChain(), ErrHashMismatch)
}

func TestLinkDetection(t *testing.T) {
	l := newTestLedger(t, 1)
	mine(t, l, "minerX")
	mine(t, l, "minerX")
	require.Equal(t, 3, l.Height())
	require.True(t, l.IsChainValid())

	l.chain[2].PreviousHash = "not-a-hash"
	// reseal so only the link is broken
	l.chain[2].Hash = l.chain[2].CalculateHash()

	assert.False(t, l.IsChainValid())
	assert.ErrorIs(t, l.ValidateChain(), ErrBrokenLink)
}

func TestGenesisIsNotRehashed(t *testing.T) {
	l := newTestLedger(t, 1)

	l.chain[0].Timestamp++
	assert.True(t, l.IsChainValid(), "genesis tampering is outside validation")

	mine(t, l, "minerX")
	l.chain[0].Hash = "forged"
	assert.False(t, l.IsChainValid(), "block 1 still links to the original genesis hash")
}

func TestBalanceConservation(t *testing.T) {
	l := newTestLedger(t, 1)
	addrs := []string{"alice", "bob", "carol", "minerX", "minerY"}

	transfers := []struct {
		from, to string
		amount   int64
	}{
		{"alice", "bob", 30}, {"bob", "carol", 12}, {"carol", "alice", 5}, {"bob", "bob", 9},
	}
	for round, miner := range []string{"minerX", "minerY", "minerX"} {
		for _, tr := range transfers {
			_, err := l.AddTransaction(tr.from, tr.to, tr.amount+int64(round))
			require.NoError(t, err)
		}
		mine(t, l, miner)
	}

	var users int64
	for _, a := range addrs {
		users += l.Balance(a)
	}
	network := l.Balance(transaction.NetworkAddress)

	// two rewards realized so far, the third is still pending
	assert.Equal(t, int64(20), users)
	assert.Equal(t, int64(0), users+network)
}

func TestReadsReturnCopies(t *testing.T) {
	l := newTestLedger(t, 1)
	_, err := l.AddTransaction("alice", "bob", 50)
	require.NoError(t, err)
	mined := mine(t, l, "minerX")

	mined.Transactions[0].Amount = 1
	l.LatestBlock().Transactions[0].Amount = 2
	l.Blocks()[1].Transactions[0].Amount = 3
	l.PendingTransactions()[0].Amount = 4

	assert.True(t, l.IsChainValid())
	assert.Equal(t, int64(50), l.Balance("bob"))
	assert.Equal(t, int64(10), l.PendingTransactions()[0].Amount)
}

func TestLookups(t *testing.T) {
	l := newTestLedger(t, 1)
	tx, err := l.AddTransaction("alice", "bob", 50)
	require.NoError(t, err)
	mined := mine(t, l, "minerX")

	byHash, err := l.BlockByHash(mined.Hash)
	require.NoError(t, err)
	assert.Equal(t, mined, byHash)

	byIndex, err := l.BlockByIndex(1)
	require.NoError(t, err)
	assert.Equal(t, mined, byIndex)

	_, err = l.BlockByIndex(7)
	assert.True(t, errors.IsCode(err, errors.ErrCodeNotFound))
	_, err = l.BlockByHash("missing")
	assert.True(t, errors.IsCode(err, errors.ErrCodeNotFound))

	rec, err := l.TransactionByID(tx.Hash())
	require.NoError(t, err)
	assert.Equal(t, tx, rec.Transaction)
	assert.Equal(t, uint64(1), rec.BlockIndex)
	assert.Equal(t, mined.Hash, rec.BlockHash)

	_, err = l.TransactionByID("missing")
	assert.True(t, errors.IsCode(err, errors.ErrCodeNotFound))

	status := l.Status()
	assert.Equal(t, 2, status.Height)
	assert.Equal(t, mined.Hash, status.LatestHash)
	assert.Equal(t, uint64(1), status.LatestIndex)
	assert.Equal(t, 1, status.Difficulty)
	assert.Equal(t, int64(10), status.MiningReward)
	assert.Equal(t, 1, status.Pending)
	assert.True(t, status.Valid)
}

func TestStoreRoundTrip(t *testing.T) {
	provider, err := db.NewMemLevelDBProvider()
	require.NoError(t, err)
	bs, err := store.NewGenericBlockStore(provider)
	require.NoError(t, err)
	defer bs.Close()

	l := newTestLedger(t, 1, WithStore(bs))
	_, err = l.AddTransaction("alice", "bob", 50)
	require.NoError(t, err)
	mine(t, l, "minerX")
	assert.Equal(t, uint64(2), bs.Height())

	restored := newTestLedger(t, 1, WithStore(bs))
	assert.Equal(t, l.Blocks(), restored.Blocks())
	assert.Equal(t, int64(50), restored.Balance("bob"))
	assert.True(t, restored.IsChainValid())
	assert.Zero(t, restored.PendingCount(), "pending transactions are not persisted")
}

type failingStore struct {
	store.BlockStore
	fail bool
}

func (f *failingStore) Append(b *block.Block) error {
	if f.fail {
		return assert.AnError
	}
	return f.BlockStore.Append(b)
}

func TestMine_StoreFailureLeavesChain(t *testing.T) {
	provider, err := db.NewMemLevelDBProvider()
	require.NoError(t, err)
	bs, err := store.NewGenericBlockStore(provider)
	require.NoError(t, err)
	defer bs.Close()

	fs := &failingStore{BlockStore: bs}
	l := newTestLedger(t, 1, WithStore(fs))
	_, err = l.AddTransaction("alice", "bob", 50)
	require.NoError(t, err)

	fs.fail = true
	_, err = l.MinePendingTransactions(context.Background(), "minerX")
	assert.True(t, errors.IsCode(err, errors.ErrCodeInternal))
	assert.Equal(t, 1, l.Height())
	assert.Equal(t, 1, l.PendingCount())
}

func TestReadsProceedDuringMining(t *testing.T) {
	l := newTestLedger(t, block.MaxDifficulty)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		_, err := l.MinePendingTransactions(ctx, "minerX")
		done <- err
	}()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				l.Balance("alice")
				l.VoteCount("cand1")
				l.IsChainValid()
				_, _ = l.AddTransaction("alice", "cand1", 1)
			}
		}()
	}
	wg.Wait()

	cancel()
	err := <-done
	assert.True(t, errors.IsCode(err, errors.ErrCodeCanceled))
	assert.Equal(t, 1, l.Height())
	assert.Equal(t, 400, l.PendingCount())
}

func TestConcurrentMinersAreSerialized(t *testing.T) {
	l := newTestLedger(t, 1)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := l.MinePendingTransactions(context.Background(), "minerX")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 5, l.Height())
	assert.True(t, l.IsChainValid())
	assert.Equal(t, 1, l.PendingCount(), "only the last reward is left pending")
}
