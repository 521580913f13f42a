// Copyright 2025 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package ingest

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type pipelineMetrics struct {
	blockNum        prometheus.Gauge
	blocksProcessed prometheus.Counter
	blockLatency    prometheus.Histogram
	events          *prometheus.CounterVec
	vaultsTouched   prometheus.Counter
}

func (m *pipelineMetrics) init(promRegistry prometheus.Registerer) {
	promautoFactory := promauto.With(promRegistry)
	m.blockNum = promautoFactory.NewGauge(prometheus.GaugeOpts{
		Name: "vaultledger_ingest_block_number",
		Help: "number of the last committed block",
	})
	m.blocksProcessed = promautoFactory.NewCounter(prometheus.CounterOpts{
		Name: "vaultledger_ingest_blocks_processed_total",
		Help: "total number of blocks committed",
	})
	m.blockLatency = promautoFactory.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "vaultledger_ingest_block_latency_seconds",
			Help:    "time to process and commit a block",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 15), // 0.5ms to ~8s
		},
	)
	m.events = promautoFactory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vaultledger_ingest_events_total",
			Help: "events processed by outcome",
		},
		[]string{"outcome"},
	)
	m.vaultsTouched = promautoFactory.NewCounter(prometheus.CounterOpts{
		Name: "vaultledger_ingest_vault_updates_total",
		Help: "vault rows modified, counted once per block",
	})
}
