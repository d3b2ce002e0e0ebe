// Copyright 2024 The rafflekit Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package node

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rafflekit/rafflekit/pkg/metrics"
)

type nodeMetrics struct {
	// DeployDuration measures time in seconds for the startup deployment
	// to complete
	DeployDuration prometheus.Histogram
	Raffles        prometheus.Counter
	Coordinators   prometheus.Counter
}

func newMetrics() nodeMetrics {
	subsystem := "node"

	return nodeMetrics{
		DeployDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: metrics.Namespace,
				Subsystem: subsystem,
				Name:      "deploy_duration_seconds",
				Help:      "Duration in seconds for the startup deployment to complete",
			},
		),
		Raffles: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: metrics.Namespace,
				Subsystem: subsystem,
				Name:      "raffles_total",
				Help:      "Raffles put under automation",
			},
		),
		Coordinators: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: metrics.Namespace,
				Subsystem: subsystem,
				Name:      "coordinators_total",
				Help:      "Coordinator mocks answered by the responder",
			},
		),
	}
}

func Metrics(nodeMetrics nodeMetrics) []prometheus.Collector {
	return metrics.PrometheusCollectorsFromFields(nodeMetrics)
}
