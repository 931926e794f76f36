// Copyright (c) 2024, The OTNS Authors.
// All rights reserved.
//
// Redistribution and use in source and binary forms, with or without
// modification, are permitted provided that the following conditions are met:
// 1. Redistributions of source code must retain the above copyright
//    notice, this list of conditions and the following disclaimer.
// 2. Redistributions in binary form must reproduce the above copyright
//    notice, this list of conditions and the following disclaimer in the
//    documentation and/or other materials provided with the distribution.
// 3. Neither the name of the copyright holder nor the
//    names of its contributors may be used to endorse or promote products
//    derived from this software without specific prior written permission.
//
// THIS SOFTWARE IS PROVIDED BY THE COPYRIGHT HOLDERS AND CONTRIBUTORS "AS IS"
// AND ANY EXPRESS OR IMPLIED WARRANTIES, INCLUDING, BUT NOT LIMITED TO, THE
// IMPLIED WARRANTIES OF MERCHANTABILITY AND FITNESS FOR A PARTICULAR PURPOSE
// ARE DISCLAIMED. IN NO EVENT SHALL THE COPYRIGHT HOLDER OR CONTRIBUTORS BE
// LIABLE FOR ANY DIRECT, INDIRECT, INCIDENTAL, SPECIAL, EXEMPLARY, OR
// CONSEQUENTIAL DAMAGES (INCLUDING, BUT NOT LIMITED TO, PROCUREMENT OF
// SUBSTITUTE GOODS OR SERVICES; LOSS OF USE, DATA, OR PROFITS; OR BUSINESS
// INTERRUPTION) HOWEVER CAUSED AND ON ANY THEORY OF LIABILITY, WHETHER IN
// CONTRACT, STRICT LIABILITY, OR TORT (INCLUDING NEGLIGENCE OR OTHERWISE)
// ARISING IN ANY WAY OUT OF THE USE OF THIS SOFTWARE, EVEN IF ADVISED OF THE
// POSSIBILITY OF SUCH DAMAGE.

// Package metrics exposes coordinator and node state to Prometheus.
package metrics

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/openthread/ot-sink/liveness"
	"github.com/openthread/ot-sink/logger"
	"github.com/openthread/ot-sink/sink"
	. "github.com/openthread/ot-sink/types"
)

const namespace = "otsink"

// CoordinatorMetrics mirrors the node table, updated on every dump.
type CoordinatorMetrics struct {
	prr         *prometheus.GaugeVec
	rx          *prometheus.GaugeVec
	tx          *prometheus.GaugeVec
	rssi        *prometheus.GaugeVec
	temperature *prometheus.GaugeVec
	latency     *prometheus.GaugeVec
	dumps       prometheus.Counter
}

func NewCoordinatorMetrics(reg prometheus.Registerer) *CoordinatorMetrics {
	nodeGauge := func(name, help string) *prometheus.GaugeVec {
		return prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "node",
			Name:      name,
			Help:      help,
		}, []string{"node"})
	}
	m := &CoordinatorMetrics{
		prr:         nodeGauge("prr_percent", "Packet reception ratio in percent."),
		rx:          nodeGauge("rx_count", "Frames received from the node."),
		tx:          nodeGauge("tx_count", "Sequence number of the last frame received from the node."),
		rssi:        nodeGauge("rssi_dbm", "RSSI of the last frame received from the node."),
		temperature: nodeGauge("temperature_celsius", "Last temperature reported by the node."),
		latency:     nodeGauge("latency_ticks", "Arrival minus send time of the last frame, on the shared clock."),
		dumps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dumps_total",
			Help:      "Periodic dumps taken.",
		}),
	}
	reg.MustRegister(m.prr, m.rx, m.tx, m.rssi, m.temperature, m.latency, m.dumps)
	return m
}

func (m *CoordinatorMetrics) Name() string {
	return "metrics"
}

func (m *CoordinatorMetrics) OnSnapshot(_ context.Context, s *sink.Snapshot) error {
	m.dumps.Inc()
	for i := range s.Rows {
		r := &s.Rows[i]
		node := strconv.Itoa(int(r.NodeId))
		m.prr.WithLabelValues(node).Set(float64(r.Prr))
		m.rx.WithLabelValues(node).Set(float64(r.RxCount))
		m.tx.WithLabelValues(node).Set(float64(r.TxCount))
		if r.LastRssi != RssiInvalid {
			m.rssi.WithLabelValues(node).Set(float64(r.LastRssi))
		}
		m.temperature.WithLabelValues(node).Set(float64(r.LastTemperature))
		if r.HasLatency {
			m.latency.WithLabelValues(node).Set(float64(r.LastLatencyTicks))
		}
	}
	return nil
}

// RegisterNode exposes the liveness state of a node. The gauges read est on every scrape.
func RegisterNode(reg prometheus.Registerer, id NodeId, est *liveness.Estimator) error {
	labels := prometheus.Labels{"node": strconv.Itoa(int(id))}
	gauge := func(name, help string, f func() float64) prometheus.GaugeFunc {
		return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   "liveness",
			Name:        name,
			Help:        help,
			ConstLabels: labels,
		}, f)
	}

	collectors := []prometheus.Collector{
		gauge("last_rtt_ms", "Round trip time of the last answered ping.", func() float64 {
			return float64(est.State().LastRttMs)
		}),
		gauge("loss_percent", "Share of pings without a pong.", est.LossPct),
		gauge("pings_sent", "Pings sent.", func() float64 {
			return float64(est.State().PingSentCount)
		}),
		gauge("pongs_received", "Pongs received.", func() float64 {
			return float64(est.State().PongReceivedCount)
		}),
		gauge("rtt_p95_ms", "95th percentile of recent round trip times.", func() float64 {
			return est.Summary().P95
		}),
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return errors.Wrapf(err, "register liveness metrics of node %d", id)
		}
	}
	return nil
}

// Serve serves /metrics on ln until ctx is done.
func Serve(ctx context.Context, ln net.Listener, g prometheus.Gatherer) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(sctx)
	}()

	logger.Infof("metrics served on http://%s/metrics", ln.Addr())
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ListenAndServe serves /metrics on addr until ctx is done.
func ListenAndServe(ctx context.Context, addr string, g prometheus.Gatherer) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Wrapf(err, "metrics listen %s", addr)
	}
	return Serve(ctx, ln, g)
}
