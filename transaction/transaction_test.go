package transaction

import (
	"testing"

	fuzz "github.com/google/gofuzz"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSerializeFieldOrder(t *testing.T) {
	tx := NewTransaction("alice", "bob", 50, 1700000000000)
	assert.Equal(t, `{"from":"alice","to":"bob","amount":50,"timestamp":1700000000000}`, string(tx.Serialize()))
}

func TestEncodeBatch(t *testing.T) {
	assert.Equal(t, "[]", string(EncodeBatch(nil)))
	assert.Equal(t, "[]", string(EncodeBatch([]Transaction{})))

	txs := []Transaction{
		NewTransaction("network", "minerX", 10, 1),
		NewTransaction("a\"<b>", "c", -3, 2),
	}
	assert.Equal(t,
		`[{"from":"network","to":"minerX","amount":10,"timestamp":1},{"from":"a\"\u003cb\u003e","to":"c","amount":-3,"timestamp":2}]`,
		string(EncodeBatch(txs)))
}

func TestEncodingIsDeterministic(t *testing.T) {
	f := fuzz.New().NilChance(0).NumElements(0, 8)
	for i := 0; i < 200; i++ {
		var txs []Transaction
		f.Fuzz(&txs)

		first := EncodeBatch(txs)
		second := EncodeBatch(CloneBatch(txs))
		require.Equal(t, first, second)

		for j := range txs {
			require.Equal(t, txs[j].Hash(), txs[j].Hash())
		}
	}
}

func TestIsVoteFor(t *testing.T) {
	tests := []struct {
		name string
		tx   Transaction
		want bool
	}{
		{name: "unit transfer", tx: NewTransaction("v1", "cand1", 1, 0), want: true},
		{name: "larger amount", tx: NewTransaction("v1", "cand1", 2, 0), want: false},
		{name: "other candidate", tx: NewTransaction("v1", "cand2", 1, 0), want: false},
		{name: "negative unit", tx: NewTransaction("v1", "cand1", -1, 0), want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.tx.IsVoteFor("cand1"))
		})
	}
}

func TestBalanceDelta(t *testing.T) {
	tx := NewTransaction("alice", "bob", 50, 0)
	assert.Equal(t, int64(-50), tx.BalanceDelta("alice"))
	assert.Equal(t, int64(50), tx.BalanceDelta("bob"))
	assert.Equal(t, int64(0), tx.BalanceDelta("carol"))

	self := NewTransaction("alice", "alice", 50, 0)
	assert.Equal(t, int64(0), self.BalanceDelta("alice"))
}

func TestCloneBatchIsIndependent(t *testing.T) {
	orig := []Transaction{NewTransaction("a", "b", 1, 0)}
	cp := CloneBatch(orig)
	orig[0].Amount = 99
	assert.Equal(t, int64(1), cp[0].Amount)
}

func TestHashChangesWithContent(t *testing.T) {
	tx := NewTransaction("alice", "bob", 50, 0)
	h := tx.Hash()
	assert.Len(t, h, 64)
	tx.Amount = 51
	assert.NotEqual(t, h, tx.Hash())
}
