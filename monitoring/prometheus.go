package monitoring

import (
	"net/http"

	"github.com/mezonai/peerchain/logx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type DropReason string

var (
	DropMalformed   DropReason = "malformed"
	DropUnknownType DropReason = "unknown_type"
	DropInvalid     DropReason = "invalid_block"
	DropNotLinked   DropReason = "not_linked"
	DropDuplicate   DropReason = "duplicate"
	DropBadChain    DropReason = "invalid_chain"
)

type nodePromMetrics struct {
	nodeUpUnixSeconds prometheus.Gauge
	chainLength       prometheus.Gauge
	blocksAppended    *prometheus.CounterVec
	chainsReplaced    prometheus.Counter
	droppedMessages   *prometheus.CounterVec
	relayedBlocks     prometheus.Counter
	peerCount         prometheus.Gauge
	panicCount        prometheus.Counter
}

func newNodePromMetrics() *nodePromMetrics {
	return &nodePromMetrics{
		nodeUpUnixSeconds: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "peerchain_node_up_timestamp_unix_seconds",
				Help: "Unix timestamp of the node",
			},
		),
		chainLength: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "peerchain_chain_length",
				Help: "Number of blocks in the local chain, genesis included",
			},
		),
		blocksAppended: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "peerchain_blocks_appended_total",
				Help: "Blocks appended to the local chain",
			},
			[]string{"source"},
		),
		chainsReplaced: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "peerchain_chain_replaced_total",
				Help: "Times the local chain was replaced by a longer peer chain",
			},
		),
		droppedMessages: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "peerchain_dropped_messages_total",
				Help: "Inbound peer messages that were discarded",
			},
			[]string{"reason"},
		),
		relayedBlocks: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "peerchain_relayed_blocks_total",
				Help: "Blocks forwarded to other peers",
			},
		),
		peerCount: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "peerchain_peer_count",
				Help: "The total number of connected peer sessions",
			},
		),
		panicCount: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "peerchain_panic_total",
				Help: "Recovered panics in background goroutines",
			},
		),
	}
}

var nodeMetrics = newNodePromMetrics()

// InitMetrics stamps the node start time.
func InitMetrics() {
	nodeMetrics.nodeUpUnixSeconds.SetToCurrentTime()
}

func RegisterMetrics(mux *http.ServeMux) {
	logx.Info("METRICS", "Registering prometheus metrics")
	mux.Handle("/metrics", promhttp.Handler())
}

func SetChainLength(length int) {
	nodeMetrics.chainLength.Set(float64(length))
}

func IncreaseBlocksAppended(source string) {
	nodeMetrics.blocksAppended.With(prometheus.Labels{
		"source": source,
	}).Inc()
}

func IncreaseChainsReplaced() {
	nodeMetrics.chainsReplaced.Inc()
}

func RecordDroppedMessage(reason DropReason) {
	nodeMetrics.droppedMessages.With(prometheus.Labels{
		"reason": string(reason),
	}).Inc()
}

func IncreaseRelayedBlocks(n int) {
	nodeMetrics.relayedBlocks.Add(float64(n))
}

func SetPeerCount(peers int) {
	nodeMetrics.peerCount.Set(float64(peers))
}

func IncreasePanicCount() {
	nodeMetrics.panicCount.Inc()
}
