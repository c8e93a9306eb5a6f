package mempool

import (
	"fmt"
	"sync"

	"github.com/mezonai/votechain/errors"
	"github.com/mezonai/votechain/transaction"
)

// Mempool provides a thread-safe, insertion-ordered queue of pending transactions.
type Mempool struct {
	mu     sync.Mutex
	txs    []transaction.Transaction
	maxTxs int
}

// NewMempool creates a new, empty mempool. maxTxs <= 0 means unbounded.
func NewMempool(maxTxs int) *Mempool {
	return &Mempool{
		txs:    make([]transaction.Transaction, 0),
		maxTxs: maxTxs,
	}
}

// Add appends a transaction, failing without side effects when the pool is full.
func (m *Mempool) Add(tx transaction.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.maxTxs > 0 && len(m.txs) >= m.maxTxs {
		return errors.NewError(errors.ErrCodeMempoolFull, fmt.Sprintf(errors.ErrMsgMempoolFull, m.maxTxs))
	}
	m.txs = append(m.txs, tx)
	return nil
}

// Len returns the number of transactions in the mempool.
func (m *Mempool) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.txs)
}

// GetBatch returns up to max transactions without removing them.
func (m *Mempool) GetBatch(max int) []transaction.Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	if max < 0 {
		max = 0
	}
	if len(m.txs) < max {
		max = len(m.txs)
	}
	return transaction.CloneBatch(m.txs[:max])
}

// Snapshot returns a copy of every pending transaction in order.
func (m *Mempool) Snapshot() []transaction.Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	return transaction.CloneBatch(m.txs)
}

// Reseed drops the first n transactions and puts seed in front of whatever
// remains. Seeds bypass the capacity limit.
func (m *Mempool) Reseed(n int, seed ...transaction.Transaction) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n > len(m.txs) {
		n = len(m.txs)
	}
	rest := m.txs[n:]
	next := make([]transaction.Transaction, 0, len(seed)+len(rest))
	next = append(next, seed...)
	next = append(next, rest...)
	m.txs = next
}
