package monitoring

import (
	"net/http"
	"sync"
	"time"

	"github.com/mezonai/votechain/logx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type TxRejectedReason string

var (
	TxInvalidArgument TxRejectedReason = "invalid_argument"
	TxMempoolFull     TxRejectedReason = "mempool_full"
	TxRateLimited     TxRejectedReason = "rate_limited"
	TxRejectedUnknown TxRejectedReason = "other"
)

type nodePromMetrics struct {
	nodeUpUnixSeconds prometheus.Gauge
	pendingSize       prometheus.Gauge
	chainHeight       prometheus.Gauge
	miningDuration    prometheus.Histogram
	nonceAttempts     prometheus.Histogram
	txInBlock         prometheus.Histogram
	rejectedTxCount   *prometheus.CounterVec
	ingressTxCount    prometheus.Counter
	miningCanceled    prometheus.Counter
	panicCount        prometheus.Counter
}

func newNodePromMetrics() *nodePromMetrics {
	return &nodePromMetrics{
		nodeUpUnixSeconds: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "votechain_node_up_timestamp_unix_seconds",
				Help: "Unix timestamp of the node",
			},
		),
		pendingSize: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "votechain_pending_tx_count",
				Help: "The total pending transactions waiting for the next block",
			},
		),
		chainHeight: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "votechain_chain_height",
				Help: "Number of blocks in the chain, genesis included",
			},
		),
		miningDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "votechain_mining_duration_seconds",
				Help:    "Wall time spent searching for a nonce per sealed block",
				Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
			},
		),
		nonceAttempts: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "votechain_nonce_attempts",
				Help:    "Hashes computed before a block met the difficulty",
				Buckets: prometheus.ExponentialBuckets(1, 16, 8),
			},
		),
		txInBlock: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name: "votechain_tx_in_block",
				Help: "Number of tx in block",
			},
		),
		rejectedTxCount: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "votechain_rejected_tx_count",
				Help: "The total number of rejected transactions",
			},
			[]string{"reason"},
		),
		ingressTxCount: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "votechain_ingress_tx_count",
				Help: "The total number of accepted transactions",
			},
		),
		miningCanceled: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "votechain_mining_canceled_count",
				Help: "Mining rounds abandoned before a nonce was found",
			},
		),
		panicCount: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "votechain_panic_count",
				Help: "Recovered panics in background goroutines",
			},
		),
	}
}

var (
	nodeMetrics *nodePromMetrics
	initOnce    sync.Once
)

// InitMetrics registers the collectors. Safe to call more than once.
func InitMetrics() {
	initOnce.Do(func() {
		nodeMetrics = newNodePromMetrics()
		nodeMetrics.nodeUpUnixSeconds.SetToCurrentTime()
	})
}

func metrics() *nodePromMetrics {
	InitMetrics()
	return nodeMetrics
}

func RegisterMetrics(mux *http.ServeMux) {
	logx.Info("MONITORING", "Registering prometheus metrics")
	mux.Handle("/metrics", promhttp.Handler())
}

func SetPendingSize(size int) {
	metrics().pendingSize.Set(float64(size))
}

func SetChainHeight(height int) {
	metrics().chainHeight.Set(float64(height))
}

func RecordMining(duration time.Duration, attempts uint64, txCount int) {
	m := metrics()
	m.miningDuration.Observe(duration.Seconds())
	m.nonceAttempts.Observe(float64(attempts))
	m.txInBlock.Observe(float64(txCount))
}

// RejectedReasonFor maps an error code onto a rejection label
func RejectedReasonFor(code string) TxRejectedReason {
	switch reason := TxRejectedReason(code); reason {
	case TxInvalidArgument, TxMempoolFull, TxRateLimited:
		return reason
	default:
		return TxRejectedUnknown
	}
}

func RecordRejectedTx(reason TxRejectedReason) {
	metrics().rejectedTxCount.With(prometheus.Labels{
		"reason": string(reason),
	}).Inc()
}

func IncreaseIngressTxCount() {
	metrics().ingressTxCount.Inc()
}

func IncreaseMiningCanceled() {
	metrics().miningCanceled.Inc()
}

func IncreasePanicCount() {
	metrics().panicCount.Inc()
}
