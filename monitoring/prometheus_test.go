package monitoring

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRejectedReasonFor(t *testing.T) {
	tests := []struct {
		code string
		want TxRejectedReason
	}{
		{"invalid_argument", TxInvalidArgument},
		{"mempool_full", TxMempoolFull},
		{"rate_limited", TxRateLimited},
		{"internal_error", TxRejectedUnknown},
		{"", TxRejectedUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			assert.Equal(t, tt.want, RejectedReasonFor(tt.code))
		})
	}
}

func TestRegisterMetricsExposesCounters(t *testing.T) {
	RecordRejectedTx(RejectedReasonFor("internal_error"))
	SetChainHeight(3)

	mux := http.NewServeMux()
	RegisterMetrics(mux)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `reason="other"`)
	assert.Contains(t, rec.Body.String(), "votechain_chain_height 3")
}
