// Copyright 2024 The rafflekit Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package debugapi

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rafflekit/rafflekit"
	"github.com/rafflekit/rafflekit/pkg/metrics"
)

func newMetricsRegistry() (r *prometheus.Registry) {
	r = metrics.NewRegistry()

	r.MustRegister(
		prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metrics.Namespace,
			Name:      "info",
			Help:      "Rafflekit information.",
			ConstLabels: prometheus.Labels{
				"version": rafflekit.Version,
			},
		}),
	)

	return r
}

func (s *Service) MustRegisterMetrics(cs ...prometheus.Collector) {
	s.metricsRegistry.MustRegister(cs...)
}

func (s *Service) UnregisterMetrics(cs ...prometheus.Collector) {
	for _, c := range cs {
		s.metricsRegistry.Unregister(c)
	}
}
