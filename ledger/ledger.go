package ledger

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/mezonai/votechain/block"
	"github.com/mezonai/votechain/errors"
	"github.com/mezonai/votechain/events"
	"github.com/mezonai/votechain/logx"
	"github.com/mezonai/votechain/mempool"
	"github.com/mezonai/votechain/monitoring"
	"github.com/mezonai/votechain/store"
	"github.com/mezonai/votechain/transaction"
	"github.com/mezonai/votechain/utils"
)

var (
	ErrHashMismatch = stderrors.New("stored hash does not match block contents")
	ErrBrokenLink   = stderrors.New("previous hash does not match predecessor")
)

// Config holds the parameters fixed at ledger construction
type Config struct {
	Difficulty   int
	MiningReward int64
	RewardSender string
	// MaxPending caps the pending buffer, 0 means unbounded
	MaxPending int
}

func DefaultConfig() Config {
	return Config{
		Difficulty:   4,
		MiningReward: 10,
		RewardSender: transaction.NetworkAddress,
	}
}

func (c Config) Validate() error {
	if c.Difficulty < 0 || c.Difficulty > block.MaxDifficulty {
		return errors.NewError(errors.ErrCodeInvalidArgument, fmt.Sprintf(errors.ErrMsgInvalidDifficulty, block.MaxDifficulty))
	}
	if c.RewardSender == "" {
		return errors.NewError(errors.ErrCodeInvalidArgument, "Reward sender address is required")
	}
	if !utf8.ValidString(c.RewardSender) {
		return errors.NewError(errors.ErrCodeInvalidArgument, fmt.Sprintf(errors.ErrMsgInvalidAddress, "Reward sender"))
	}
	if c.MaxPending < 0 {
		return errors.NewError(errors.ErrCodeInvalidArgument, "Max pending must not be negative")
	}
	return nil
}

type Option func(*Ledger)

// WithStore persists every sealed block and restores the chain on construction
func WithStore(bs store.BlockStore) Option {
	return func(l *Ledger) { l.store = bs }
}

func WithEventBus(eb *events.EventBus) Option {
	return func(l *Ledger) { l.eventBus = eb }
}

// WithMempool replaces the pending buffer; MaxPending is ignored
func WithMempool(mp *mempool.Mempool) Option {
	return func(l *Ledger) { l.pending = mp }
}

func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

type txLocation struct {
	block    int
	position int
}

// Ledger is the chain of sealed blocks plus the pending transaction buffer.
// Reads take the read lock and may run while a block is being mined; only
// the final append takes the write lock. Miners are serialized by mineMu.
type Ledger struct {
	mu      sync.RWMutex
	mineMu  sync.Mutex
	cfg     Config
	chain   []*block.Block
	txIndex map[string]txLocation
	pending *mempool.Mempool

	store    store.BlockStore
	eventBus *events.EventBus
	now      func() time.Time
}

// New builds a ledger holding only the genesis block, or the chain restored
// from the attached store.
func New(cfg Config, opts ...Option) (*Ledger, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	l := &Ledger{
		cfg:     cfg,
		txIndex: make(map[string]txLocation),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.pending == nil {
		l.pending = mempool.NewMempool(cfg.MaxPending)
	}

	if err := l.loadChain(); err != nil {
		return nil, err
	}

	monitoring.SetChainHeight(len(l.chain))
	monitoring.SetPendingSize(l.pending.Len())
	logx.Info("LEDGER", fmt.Sprintf("Ledger ready | height=%d | difficulty=%d | reward=%d", len(l.chain), cfg.Difficulty, cfg.MiningReward))
	return l, nil
}

func (l *Ledger) loadChain() error {
	if l.store != nil && l.store.Height() > 0 {
		blocks, err := l.store.Blocks()
		if err != nil {
			return errors.Wrap(errors.ErrCodeInternal, "Failed to restore chain", err)
		}
		for _, b := range blocks {
			l.appendLocked(b)
		}
		if err := l.validateLocked(); err != nil {
			logx.Warn("LEDGER", "Restored chain does not validate:", err)
		}
		logx.Info("LEDGER", fmt.Sprintf("Restored %d blocks from store", len(blocks)))
		return nil
	}

	genesis := block.NewGenesisBlock(utils.UnixMillis(l.now()))
	if l.store != nil {
		if err := l.store.Append(genesis); err != nil {
			return errors.Wrap(errors.ErrCodeInternal, fmt.Sprintf(errors.ErrMsgPersistBlockFailed, genesis.Index), err)
		}
	}
	l.appendLocked(genesis)
	return nil
}

// appendLocked adds b to the chain and indexes its transactions. Caller holds mu
// or has exclusive access.
func (l *Ledger) appendLocked(b *block.Block) {
	pos := len(l.chain)
	l.chain = append(l.chain, b)
	for i := range b.Transactions {
		id := b.Transactions[i].Hash()
		if _, seen := l.txIndex[id]; !seen {
			l.txIndex[id] = txLocation{block: pos, position: i}
		}
	}
}

// AddTransaction queues a transfer for the next mined block. Nothing is
// checked against chain state; deciding what is a legal vote is up to the caller.
func (l *Ledger) AddTransaction(from, to string, amount int64) (transaction.Transaction, error) {
	if from == "" {
		monitoring.RecordRejectedTx(monitoring.TxInvalidArgument)
		return transaction.Transaction{}, errors.NewError(errors.ErrCodeInvalidArgument, errors.ErrMsgMissingSender)
	}
	if to == "" {
		monitoring.RecordRejectedTx(monitoring.TxInvalidArgument)
		return transaction.Transaction{}, errors.NewError(errors.ErrCodeInvalidArgument, errors.ErrMsgMissingRecipient)
	}
	// the JSON encoding folds invalid UTF-8 into U+FFFD, so such addresses
	// would hash the same as others
	if !utf8.ValidString(from) || !utf8.ValidString(to) {
		monitoring.RecordRejectedTx(monitoring.TxInvalidArgument)
		return transaction.Transaction{}, errors.NewError(errors.ErrCodeInvalidArgument, fmt.Sprintf(errors.ErrMsgInvalidAddress, "Transaction"))
	}

	tx := transaction.NewTransaction(from, to, amount, utils.UnixMillis(l.now()))
	if err := l.pending.Add(tx); err != nil {
		monitoring.RecordRejectedTx(monitoring.RejectedReasonFor(string(errors.CodeOf(err))))
		logx.Warn("LEDGER", "Rejected transaction:", err)
		return transaction.Transaction{}, err
	}

	monitoring.IncreaseIngressTxCount()
	monitoring.SetPendingSize(l.pending.Len())
	logx.Debug("LEDGER", fmt.Sprintf("Queued transaction | from=%s | to=%s | amount=%d", from, to, amount))
	if l.eventBus != nil {
		l.eventBus.Publish(events.NewTransactionAdded(tx))
	}
	return tx, nil
}

// MinePendingTransactions seals everything pending into the next block and
// queues the reward for minerAddress behind it. The reward is only realized
// once a later block is mined. If ctx ends first the partial block is thrown
// away and the ledger is unchanged.
func (l *Ledger) MinePendingTransactions(ctx context.Context, minerAddress string) (*block.Block, error) {
	if minerAddress == "" {
		return nil, errors.NewError(errors.ErrCodeInvalidArgument, errors.ErrMsgMissingMiner)
	}
	if !utf8.ValidString(minerAddress) {
		return nil, errors.NewError(errors.ErrCodeInvalidArgument, fmt.Sprintf(errors.ErrMsgInvalidAddress, "Miner"))
	}

	l.mineMu.Lock()
	defer l.mineMu.Unlock()

	l.mu.RLock()
	tail := l.chain[len(l.chain)-1]
	index := uint64(len(l.chain))
	l.mu.RUnlock()

	txs := l.pending.Snapshot()
	candidate := block.NewBlock(index, txs, utils.UnixMillis(l.now()), tail.Hash)

	logx.Info("MINER", fmt.Sprintf("Mining block %d | txs=%d | difficulty=%d", index, len(txs), l.cfg.Difficulty))
	start := time.Now()
	attempts, err := candidate.Mine(ctx, l.cfg.Difficulty)
	if err != nil {
		if errors.IsCode(err, errors.ErrCodeCanceled) {
			monitoring.IncreaseMiningCanceled()
			if l.eventBus != nil {
				l.eventBus.Publish(events.NewMiningCanceled(index, ctx.Err().Error()))
			}
			logx.Warn("MINER", fmt.Sprintf("Mining of block %d canceled after %d attempts", index, attempts))
		} else {
			logx.Error("MINER", fmt.Sprintf("Mining of block %d failed: %v", index, err))
		}
		return nil, err
	}
	elapsed := time.Since(start)

	if l.store != nil {
		if err := l.store.Append(candidate); err != nil {
			logx.Error("STORE", fmt.Sprintf("Failed to persist block %d: %v", index, err))
			return nil, errors.Wrap(errors.ErrCodeInternal, fmt.Sprintf(errors.ErrMsgPersistBlockFailed, index), err)
		}
	}

	reward := transaction.NewTransaction(l.cfg.RewardSender, minerAddress, l.cfg.MiningReward, utils.UnixMillis(l.now()))

	l.mu.Lock()
	l.appendLocked(candidate)
	l.pending.Reseed(len(txs), reward)
	height := len(l.chain)
	l.mu.Unlock()

	monitoring.RecordMining(elapsed, attempts, len(txs))
	monitoring.SetChainHeight(height)
	monitoring.SetPendingSize(l.pending.Len())
	logx.Info("MINER", fmt.Sprintf("Mined block %d | hash=%s | nonce=%d | attempts=%d | took=%.3fs",
		index, candidate.Hash, candidate.Nonce, attempts, elapsed.Seconds()))

	if l.eventBus != nil {
		l.eventBus.Publish(events.NewBlockMined(candidate, minerAddress))
	}
	return candidate.Clone(), nil
}

// LatestBlock returns a copy of the chain tail
func (l *Ledger) LatestBlock() *block.Block {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if len(l.chain) == 0 {
		panic(logx.Errorf("LEDGER: chain has no genesis block"))
	}
	return l.chain[len(l.chain)-1].Clone()
}

// Balance sums every credit to addr minus every debit from addr over the sealed chain
func (l *Ledger) Balance(addr string) int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var balance int64
	for _, b := range l.chain {
		for i := range b.Transactions {
			balance += b.Transactions[i].BalanceDelta(addr)
		}
	}
	return balance
}

// VoteCount counts sealed unit transfers to candidate
func (l *Ledger) VoteCount(candidate string) int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	count := 0
	for _, b := range l.chain {
		for i := range b.Transactions {
			if b.Transactions[i].IsVoteFor(candidate) {
				count++
			}
		}
	}
	return count
}

// Tally returns the vote count of every candidate in one pass over the chain
func (l *Ledger) Tally(candidates []string) map[string]int {
	result := make(map[string]int, len(candidates))
	for _, c := range candidates {
		result[c] = 0
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	for _, b := range l.chain {
		for i := range b.Transactions {
			tx := &b.Transactions[i]
			if tx.Amount != transaction.VoteAmount {
				continue
			}
			if n, ok := result[tx.To]; ok {
				result[tx.To] = n + 1
			}
		}
	}
	return result
}

// ValidateChain re-hashes every block after genesis and checks each link.
// Genesis itself is never re-hashed, so tampering with it goes unnoticed.
func (l *Ledger) ValidateChain() error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.validateLocked()
}

func (l *Ledger) validateLocked() error {
	for i := 1; i < len(l.chain); i++ {
		current, previous := l.chain[i], l.chain[i-1]
		if !current.HashIsConsistent() {
			return fmt.Errorf("block %d: %w", i, ErrHashMismatch)
		}
		if current.PreviousHash != previous.Hash {
			return fmt.Errorf("block %d: %w", i, ErrBrokenLink)
		}
	}
	return nil
}

func (l *Ledger) IsChainValid() bool {
	return l.ValidateChain() == nil
}

func (l *Ledger) Height() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.chain)
}

func (l *Ledger) Difficulty() int {
	return l.cfg.Difficulty
}

// Blocks returns copies of every block from genesis to tail
func (l *Ledger) Blocks() []*block.Block {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]*block.Block, len(l.chain))
	for i, b := range l.chain {
		out[i] = b.Clone()
	}
	return out
}

func (l *Ledger) BlockByIndex(index uint64) (*block.Block, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if index >= uint64(len(l.chain)) {
		return nil, errors.NewError(errors.ErrCodeNotFound, errors.ErrMsgBlockNotFound)
	}
	return l.chain[index].Clone(), nil
}

func (l *Ledger) BlockByHash(hash string) (*block.Block, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	for _, b := range l.chain {
		if b.Hash == hash {
			return b.Clone(), nil
		}
	}
	return nil, errors.NewError(errors.ErrCodeNotFound, errors.ErrMsgBlockNotFound)
}

// TransactionRecord is a sealed transaction together with where it was sealed
type TransactionRecord struct {
	ID          string                  `json:"id"`
	Transaction transaction.Transaction `json:"transaction"`
	BlockIndex  uint64                  `json:"block_index"`
	BlockHash   string                  `json:"block_hash"`
}

// TransactionByID finds a sealed transaction by its hash. Identical
// transactions share an id; the earliest one wins.
func (l *Ledger) TransactionByID(id string) (TransactionRecord, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	loc, ok := l.txIndex[id]
	if !ok {
		return TransactionRecord{}, errors.NewError(errors.ErrCodeNotFound, errors.ErrMsgTxNotFound)
	}
	b := l.chain[loc.block]
	return TransactionRecord{
		ID:          id,
		Transaction: b.Transactions[loc.position],
		BlockIndex:  b.Index,
		BlockHash:   b.Hash,
	}, nil
}

func (l *Ledger) PendingTransactions() []transaction.Transaction {
	return l.pending.Snapshot()
}

// PendingBatch returns at most limit pending transactions from the front of the queue
func (l *Ledger) PendingBatch(limit int) []transaction.Transaction {
	return l.pending.GetBatch(limit)
}

func (l *Ledger) PendingCount() int {
	return l.pending.Len()
}

// Status summarizes the chain for monitoring and the API
type Status struct {
	Height       int    `json:"height"`
	LatestHash   string `json:"latest_hash"`
	LatestIndex  uint64 `json:"latest_index"`
	Difficulty   int    `json:"difficulty"`
	MiningReward int64  `json:"mining_reward"`
	Pending      int    `json:"pending"`
	Valid        bool   `json:"valid"`
}

func (l *Ledger) Status() Status {
	l.mu.RLock()
	defer l.mu.RUnlock()

	tail := l.chain[len(l.chain)-1]
	return Status{
		Height:       len(l.chain),
		LatestHash:   tail.Hash,
		LatestIndex:  tail.Index,
		Difficulty:   l.cfg.Difficulty,
		MiningReward: l.cfg.MiningReward,
		Pending:      l.pending.Len(),
		Valid:        l.validateLocked() == nil,
	}
}
