// Copyright 2024 The rafflekit Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package keeper

import (
	"github.com/prometheus/client_golang/prometheus"
	m "github.com/rafflekit/rafflekit/pkg/metrics"
)

type agentMetrics struct {
	Raffles       prometheus.Gauge
	Checks        prometheus.Counter
	CheckErrors   prometheus.Counter
	Upkeeps       prometheus.Counter
	UpkeepErrors  prometheus.Counter
	LastRequestID prometheus.Gauge
}

func newAgentMetrics() agentMetrics {
	subsystem := "keeper"

	return agentMetrics{
		Raffles: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: m.Namespace,
			Subsystem: subsystem,
			Name:      "raffles",
			Help:      "Number of raffles under automation.",
		}),
		Checks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: m.Namespace,
			Subsystem: subsystem,
			Name:      "upkeep_checks",
			Help:      "Count of checkUpkeep calls.",
		}),
		CheckErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: m.Namespace,
			Subsystem: subsystem,
			Name:      "upkeep_check_errors",
			Help:      "Count of failed checkUpkeep calls.",
		}),
		Upkeeps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: m.Namespace,
			Subsystem: subsystem,
			Name:      "upkeeps_performed",
			Help:      "Count of performUpkeep transactions.",
		}),
		UpkeepErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: m.Namespace,
			Subsystem: subsystem,
			Name:      "upkeep_errors",
			Help:      "Count of failed performUpkeep transactions.",
		}),
		LastRequestID: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: m.Namespace,
			Subsystem: subsystem,
			Name:      "last_request_id",
			Help:      "Id of the last randomness request issued by an upkeep.",
		}),
	}
}

type responderMetrics struct {
	Fulfillments  prometheus.Counter
	FulfillErrors prometheus.Counter
	LastBlock     prometheus.Gauge
	BackendCalls  prometheus.Counter
	BackendErrors prometheus.Counter
}

func newResponderMetrics() responderMetrics {
	subsystem := "vrf_responder"

	return responderMetrics{
		Fulfillments: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: m.Namespace,
			Subsystem: subsystem,
			Name:      "fulfillments",
			Help:      "Count of fulfilled randomness requests.",
		}),
		FulfillErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: m.Namespace,
			Subsystem: subsystem,
			Name:      "fulfill_errors",
			Help:      "Count of failed fulfillments.",
		}),
		LastBlock: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: m.Namespace,
			Subsystem: subsystem,
			Name:      "last_block",
			Help:      "Last block scanned for randomness requests.",
		}),
		BackendCalls: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: m.Namespace,
			Subsystem: subsystem,
			Name:      "backend_calls",
			Help:      "total chain backend calls",
		}),
		BackendErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: m.Namespace,
			Subsystem: subsystem,
			Name:      "backend_errors",
			Help:      "total chain backend errors",
		}),
	}
}

func (a *Agent) Metrics() []prometheus.Collector {
	return m.PrometheusCollectorsFromFields(a.metrics)
}

func (r *Responder) Metrics() []prometheus.Collector {
	return m.PrometheusCollectorsFromFields(r.metrics)
}
