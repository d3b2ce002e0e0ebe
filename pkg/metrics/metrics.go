// Copyright 2024 The rafflekit Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package metrics

import (
	"reflect"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Namespace is prefixed before every metric. If it is changed, it must be done
// before any metrics collector is registered.
var Namespace = "rafflekit"

type Collector interface {
	Metrics() []prometheus.Collector
}

// PrometheusCollectorsFromFields returns every exported, initialized
// prometheus.Collector field of the struct i.
func PrometheusCollectorsFromFields(i any) (cs []prometheus.Collector) {
	v := reflect.Indirect(reflect.ValueOf(i))
	for i := 0; i < v.NumField(); i++ {
		if !v.Field(i).CanInterface() {
			continue
		}
		if u, ok := v.Field(i).Interface().(prometheus.Collector); ok {
			if reflect.ValueOf(u).IsNil() {
				continue
			}
			cs = append(cs, u)
		}
	}
	return cs
}

// NewRegistry returns a registry with the process and Go runtime collectors
// already registered.
func NewRegistry() *prometheus.Registry {
	r := prometheus.NewRegistry()
	r.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{Namespace: Namespace}),
		collectors.NewGoCollector(),
	)
	return r
}

// MustRegister registers the collectors of all given components.
func MustRegister(r prometheus.Registerer, components ...Collector) {
	for _, c := range components {
		r.MustRegister(c.Metrics()...)
	}
}
