package events

import (
	"time"

	"github.com/mezonai/votechain/block"
	"github.com/mezonai/votechain/transaction"
)

// EventType is an enum-like string type for ledger events
type EventType string

const (
	EventTransactionAdded EventType = "TransactionAdded"
	EventBlockMined       EventType = "BlockMined"
	EventMiningCanceled   EventType = "MiningCanceled"
)

// LedgerEvent represents anything observable that happens to the ledger
type LedgerEvent interface {
	Type() EventType
	Timestamp() time.Time
	// Subject is the transaction id or block hash the event is about.
	Subject() string
	// Payload is what gets serialized for stream subscribers.
	Payload() interface{}
}

// TransactionAdded event when a transaction enters the pending buffer
type TransactionAdded struct {
	txHash    string
	tx        transaction.Transaction
	timestamp time.Time
}

func NewTransactionAdded(tx transaction.Transaction) *TransactionAdded {
	return &TransactionAdded{
		txHash:    tx.Hash(),
		tx:        tx,
		timestamp: time.Now(),
	}
}

func (e *TransactionAdded) Type() EventType {
	return EventTransactionAdded
}

func (e *TransactionAdded) Timestamp() time.Time {
	return e.timestamp
}

func (e *TransactionAdded) Subject() string {
	return e.txHash
}

func (e *TransactionAdded) Transaction() transaction.Transaction {
	return e.tx
}

func (e *TransactionAdded) Payload() interface{} {
	return struct {
		ID string `json:"id"`
		transaction.Transaction
	}{ID: e.txHash, Transaction: e.tx}
}

// BlockMined event when a sealed block is appended to the chain
type BlockMined struct {
	block     *block.Block
	miner     string
	timestamp time.Time
}

func NewBlockMined(b *block.Block, miner string) *BlockMined {
	return &BlockMined{
		block:     b.Clone(),
		miner:     miner,
		timestamp: time.Now(),
	}
}

func (e *BlockMined) Type() EventType {
	return EventBlockMined
}

func (e *BlockMined) Timestamp() time.Time {
	return e.timestamp
}

func (e *BlockMined) Subject() string {
	return e.block.Hash
}

func (e *BlockMined) Block() *block.Block {
	return e.block.Clone()
}

func (e *BlockMined) Miner() string {
	return e.miner
}

func (e *BlockMined) Payload() interface{} {
	return struct {
		Miner string       `json:"miner"`
		Block *block.Block `json:"block"`
	}{Miner: e.miner, Block: e.block}
}

// MiningCanceled event when a mining round is abandoned
type MiningCanceled struct {
	index     uint64
	reason    string
	timestamp time.Time
}

func NewMiningCanceled(index uint64, reason string) *MiningCanceled {
	return &MiningCanceled{
		index:     index,
		reason:    reason,
		timestamp: time.Now(),
	}
}

func (e *MiningCanceled) Type() EventType {
	return EventMiningCanceled
}

func (e *MiningCanceled) Timestamp() time.Time {
	return e.timestamp
}

func (e *MiningCanceled) Subject() string {
	return ""
}

func (e *MiningCanceled) Index() uint64 {
	return e.index
}

func (e *MiningCanceled) Reason() string {
	return e.reason
}

func (e *MiningCanceled) Payload() interface{} {
	return struct {
		Index  uint64 `json:"index"`
		Reason string `json:"reason"`
	}{Index: e.index, Reason: e.reason}
}
