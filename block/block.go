package block

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/mezonai/votechain/errors"
	"github.com/mezonai/votechain/transaction"
)

// GenesisPreviousHash is the textual shape of an all-zero SHA-256 digest.
const GenesisPreviousHash = "0000000000000000000000000000000000000000000000000000000000000000"

// MaxDifficulty is the hex length of a SHA-256 digest; nothing above it can be met.
const MaxDifficulty = 2 * sha256.Size

type Block struct {
	Index        uint64                    `json:"index"`
	Timestamp    int64                     `json:"timestamp"` // unix millis, taken before mining
	Transactions []transaction.Transaction `json:"transactions"`
	PreviousHash string                    `json:"previous_hash"`
	Nonce        uint64                    `json:"nonce"`
	Hash         string                    `json:"hash"`
}

// NewBlock assembles an unsealed block with nonce 0. txs is copied, so the
// caller may keep mutating its slice.
func NewBlock(index uint64, txs []transaction.Transaction, timestamp int64, previousHash string) *Block {
	b := &Block{
		Index:        index,
		Timestamp:    timestamp,
		Transactions: transaction.CloneBatch(txs),
		PreviousHash: previousHash,
	}
	b.Hash = b.CalculateHash()
	return b
}

// NewGenesisBlock builds the unmined block at index 0.
func NewGenesisBlock(timestamp int64) *Block {
	return NewBlock(0, nil, timestamp, GenesisPreviousHash)
}

// CalculateHash digests index, previous hash, timestamp, transactions and
// nonce, in that order. Decimal integers are concatenated without separators.
func (b *Block) CalculateHash() string {
	h := sha256.New()
	h.Write([]byte(strconv.FormatUint(b.Index, 10)))
	h.Write([]byte(b.PreviousHash))
	h.Write([]byte(strconv.FormatInt(b.Timestamp, 10)))
	h.Write(transaction.EncodeBatch(b.Transactions))
	h.Write([]byte(strconv.FormatUint(b.Nonce, 10)))
	return hex.EncodeToString(h.Sum(nil))
}

// HashIsConsistent reports whether the stored hash still matches the fields.
func (b *Block) HashIsConsistent() bool {
	return b.Hash == b.CalculateHash()
}

// MeetsDifficulty reports whether hash starts with difficulty '0' characters.
func MeetsDifficulty(hash string, difficulty int) bool {
	if difficulty < 0 || difficulty > len(hash) {
		return false
	}
	for i := 0; i < difficulty; i++ {
		if hash[i] != '0' {
			return false
		}
	}
	return true
}

// Mine increments the nonce from its current value until the hash meets
// difficulty. ctx is checked between attempts; on cancellation the block is
// left half-mined and must be discarded. Returns the number of hashes computed.
func (b *Block) Mine(ctx context.Context, difficulty int) (uint64, error) {
	if difficulty < 0 || difficulty > MaxDifficulty {
		return 0, errors.NewError(errors.ErrCodeInvalidArgument, fmt.Sprintf(errors.ErrMsgInvalidDifficulty, MaxDifficulty))
	}

	var attempts uint64
	target := strings.Repeat("0", difficulty)
	for !strings.HasPrefix(b.Hash, target) {
		select {
		case <-ctx.Done():
			return attempts, errors.Wrap(errors.ErrCodeCanceled, fmt.Sprintf(errors.ErrMsgMiningCanceled, b.Index), ctx.Err())
		default:
		}
		if b.Nonce == math.MaxUint64 {
			return attempts, errors.NewError(errors.ErrCodePowExhausted, fmt.Sprintf(errors.ErrMsgNonceExhausted, difficulty, b.Index))
		}
		b.Nonce++
		b.Hash = b.CalculateHash()
		attempts++
	}
	return attempts, nil
}

// Clone returns a deep copy. The ledger hands out clones only.
func (b *Block) Clone() *Block {
	cp := *b
	cp.Transactions = transaction.CloneBatch(b.Transactions)
	return &cp
}

func (b *Block) String() string {
	return fmt.Sprintf("block#%d[%s txs=%d nonce=%d]", b.Index, shortHash(b.Hash), len(b.Transactions), b.Nonce)
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}
