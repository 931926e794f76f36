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

package metrics

import (
	"context"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openthread/ot-sink/liveness"
	"github.com/openthread/ot-sink/nodestats"
	"github.com/openthread/ot-sink/sink"
	. "github.com/openthread/ot-sink/types"
	"github.com/openthread/ot-sink/uptime"
)

func testSnapshot() *sink.Snapshot {
	return &sink.Snapshot{
		Rows: []nodestats.Row{
			{Entry: nodestats.Entry{NodeId: 4, TxCount: 10, RxCount: 9, LastRssi: -70, LastTemperature: 22}, Prr: 90},
			{Entry: nodestats.Entry{NodeId: 88, TxCount: 4, RxCount: 4, LastRssi: RssiInvalid, HasLatency: true,
				LastLatencyTicks: 7}, Prr: 100},
		},
	}
}

func TestCoordinatorMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewCoordinatorMetrics(reg)
	require.NoError(t, m.OnSnapshot(context.Background(), testSnapshot()))

	assert.Equal(t, float64(90), testutil.ToFloat64(m.prr.WithLabelValues("4")))
	assert.Equal(t, float64(4), testutil.ToFloat64(m.rx.WithLabelValues("88")))
	assert.Equal(t, float64(-70), testutil.ToFloat64(m.rssi.WithLabelValues("4")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.rssi))
	assert.Equal(t, 1, testutil.CollectAndCount(m.latency))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.dumps))

	expected := `
# HELP otsink_node_prr_percent Packet reception ratio in percent.
# TYPE otsink_node_prr_percent gauge
otsink_node_prr_percent{node="4"} 90
otsink_node_prr_percent{node="88"} 100
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "otsink_node_prr_percent"))
}

func TestRegisterNode(t *testing.T) {
	reg := prometheus.NewRegistry()
	clock := uptime.NewManual(1000)
	est := liveness.NewEstimator(clock)
	require.NoError(t, RegisterNode(reg, 15, est))
	assert.Error(t, RegisterNode(reg, 15, est))

	est.SendPing()
	est.SendPing()
	clock.Advance(30)
	require.NoError(t, est.OnPongReceived(liveness.PongMarker(), clock.Now()))

	expected := `
# HELP otsink_liveness_last_rtt_ms Round trip time of the last answered ping.
# TYPE otsink_liveness_last_rtt_ms gauge
otsink_liveness_last_rtt_ms{node="15"} 30
# HELP otsink_liveness_loss_percent Share of pings without a pong.
# TYPE otsink_liveness_loss_percent gauge
otsink_liveness_loss_percent{node="15"} 50
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected),
		"otsink_liveness_last_rtt_ms", "otsink_liveness_loss_percent"))
}

func TestServe(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewCoordinatorMetrics(reg)
	require.NoError(t, m.OnSnapshot(context.Background(), testSnapshot()))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Serve(ctx, ln, reg)
	}()

	resp, err := http.Get("http://" + ln.Addr().String() + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	require.NoError(t, err)
	assert.Contains(t, string(body), `otsink_node_rx_count{node="4"} 9`)

	cancel()
	select {
	case err = <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop")
	}
}
