// Copyright 2024 The rafflekit Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package chain

import (
	"github.com/prometheus/client_golang/prometheus"
	m "github.com/rafflekit/rafflekit/pkg/metrics"
)

type metrics struct {
	BlockNumber          prometheus.Gauge
	BlocksMined          prometheus.Counter
	Transactions         prometheus.Counter
	RevertedTransactions prometheus.Counter
}

func newMetrics() metrics {
	subsystem := "devchain"

	return metrics{
		BlockNumber: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: m.Namespace,
			Subsystem: subsystem,
			Name:      "block_number",
			Help:      "Number of the latest block.",
		}),
		BlocksMined: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: m.Namespace,
			Subsystem: subsystem,
			Name:      "blocks_mined_total",
			Help:      "Number of mined blocks.",
		}),
		Transactions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: m.Namespace,
			Subsystem: subsystem,
			Name:      "transactions_total",
			Help:      "Number of mined transactions.",
		}),
		RevertedTransactions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: m.Namespace,
			Subsystem: subsystem,
			Name:      "reverted_transactions_total",
			Help:      "Number of mined transactions whose execution failed.",
		}),
	}
}

func (c *Chain) Metrics() []prometheus.Collector {
	return m.PrometheusCollectorsFromFields(c.metrics)
}
