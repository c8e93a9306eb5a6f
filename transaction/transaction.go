package transaction

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/mezonai/votechain/jsonx"
)

// NetworkAddress is the sender of network-issued transactions (mining rewards).
const NetworkAddress = "network"

// VoteAmount is the amount that turns a transfer into one vote for its recipient.
const VoteAmount int64 = 1

// Transaction is an unsigned transfer. Field order is part of the block hash
// preimage and must not change.
type Transaction struct {
	From      string `json:"from"`
	To        string `json:"to"`
	Amount    int64  `json:"amount"`
	Timestamp int64  `json:"timestamp"` // unix millis
}

func NewTransaction(from, to string, amount int64, timestamp int64) Transaction {
	return Transaction{
		From:      from,
		To:        to,
		Amount:    amount,
		Timestamp: timestamp,
	}
}

// Serialize returns the canonical JSON object for tx.
func (tx *Transaction) Serialize() []byte {
	// a struct of strings and ints cannot fail to encode
	data, _ := jsonx.Marshal(tx)
	return data
}

// Hash identifies a transaction for lookups and events. Two transfers with
// identical fields and timestamp share an id.
func (tx *Transaction) Hash() string {
	sum := sha256.Sum256(tx.Serialize())
	return hex.EncodeToString(sum[:])
}

// IsVoteFor reports whether tx counts as one vote for candidate.
func (tx *Transaction) IsVoteFor(candidate string) bool {
	return tx.To == candidate && tx.Amount == VoteAmount
}

// BalanceDelta is the effect of tx on addr's balance. A self transfer nets to zero.
func (tx *Transaction) BalanceDelta(addr string) int64 {
	var delta int64
	if tx.From == addr {
		delta -= tx.Amount
	}
	if tx.To == addr {
		delta += tx.Amount
	}
	return delta
}

// EncodeBatch is the canonical encoding of an ordered batch as it enters a
// block hash. An empty or nil batch encodes as "[]".
func EncodeBatch(txs []Transaction) []byte {
	if txs == nil {
		txs = []Transaction{}
	}
	data, _ := jsonx.Marshal(txs)
	return data
}

// CloneBatch copies txs so later changes to either slice stay invisible to the other.
func CloneBatch(txs []Transaction) []Transaction {
	out := make([]Transaction, len(txs))
	copy(out, txs)
	return out
}
