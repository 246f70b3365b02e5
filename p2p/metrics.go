package p2p

import (
	"context"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

var (
	metricsInitOnce sync.Once
	sharedMetrics   *networkMetrics
)

type networkMetrics struct {
	connectedPeers  prometheus.Gauge
	handshakes      *prometheus.CounterVec
	disconnects     *prometheus.CounterVec
	bansTotal       prometheus.Counter
	blocksSubmitted prometheus.Counter
	broadcastErrors prometheus.Counter

	meter            metric.Meter
	handshakeCounter metric.Int64Counter
	submitCounter    metric.Int64Counter
}

func newNetworkMetrics() *networkMetrics {
	metricsInitOnce.Do(func() {
		nm := &networkMetrics{
			connectedPeers: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "ark_p2p_connected_peers",
				Help: "Number of currently registered peer connections.",
			}),
			handshakes: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "ark_p2p_handshakes_total",
				Help: "Total handshake outcomes by direction and result.",
			}, []string{"direction", "result"}),
			disconnects: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "ark_p2p_disconnects_total",
				Help: "Peer disconnects by reason.",
			}, []string{"reason"}),
			bansTotal: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "ark_p2p_bans_total",
				Help: "Peers banned for crossing the score threshold.",
			}),
			blocksSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "ark_p2p_blocks_submitted_total",
				Help: "Blocks handed to the blockchain engine by the sync worker.",
			}),
			broadcastErrors: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "ark_p2p_broadcast_errors_total",
				Help: "Per-peer transport failures during broadcast fan-out.",
			}),
		}
		prometheus.MustRegister(nm.connectedPeers, nm.handshakes, nm.disconnects,
			nm.bansTotal, nm.blocksSubmitted, nm.broadcastErrors)
		nm.initMeter()
		sharedMetrics = nm
	})
	return sharedMetrics
}

func (m *networkMetrics) initMeter() {
	meter := otel.GetMeterProvider().Meter("arkchain/p2p")
	handshakes, err := meter.Int64Counter("ark.p2p.handshakes")
	if err != nil {
		fallback := noop.NewMeterProvider().Meter("arkchain/p2p")
		handshakes, _ = fallback.Int64Counter("ark.p2p.handshakes")
		meter = fallback
	}
	submits, err := meter.Int64Counter("ark.p2p.blocks_submitted")
	if err != nil {
		fallback := noop.NewMeterProvider().Meter("arkchain/p2p")
		submits, _ = fallback.Int64Counter("ark.p2p.blocks_submitted")
		meter = fallback
	}
	m.meter = meter
	m.handshakeCounter = handshakes
	m.submitCounter = submits
}

func (m *networkMetrics) recordHandshake(direction, result string) {
	if m == nil {
		return
	}
	m.handshakes.WithLabelValues(direction, result).Inc()
	m.handshakeCounter.Add(context.Background(), 1,
		metric.WithAttributes(
			attribute.String("direction", direction),
			attribute.String("result", result)))
}

func (m *networkMetrics) recordDisconnect(reason string) {
	if m == nil {
		return
	}
	m.disconnects.WithLabelValues(reason).Inc()
}

func (m *networkMetrics) recordBan() {
	if m == nil {
		return
	}
	m.bansTotal.Inc()
}

func (m *networkMetrics) recordSubmitted(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.blocksSubmitted.Add(float64(n))
	m.submitCounter.Add(context.Background(), int64(n))
}

func (m *networkMetrics) recordBroadcastError() {
	if m == nil {
		return
	}
	m.broadcastErrors.Inc()
}

func (m *networkMetrics) setConnected(n int) {
	if m == nil {
		return
	}
	m.connectedPeers.Set(float64(n))
}
