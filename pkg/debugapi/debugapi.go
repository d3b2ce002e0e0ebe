// Copyright 2024 The rafflekit Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package debugapi exposes health, metrics and a read-only view of the
// chain, the deployments and the raffle over HTTP.
package debugapi

import (
	"context"
	"net/http"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rafflekit/rafflekit/pkg/deployments"
	"github.com/rafflekit/rafflekit/pkg/logging"
	"github.com/rafflekit/rafflekit/pkg/rafflecontract"
	"github.com/rafflekit/rafflekit/pkg/transaction"
)

// RaffleReader reads the state of the deployed raffle.
type RaffleReader interface {
	Status(ctx context.Context) (*rafflecontract.Status, error)
}

// Automation lists the raffles under automation.
type Automation interface {
	Raffles() []common.Address
}

// Service implements http.Handler interface to be used in HTTP server.
type Service struct {
	logger             logging.Logger
	corsAllowedOrigins []string
	metricsRegistry    *prometheus.Registry

	network     string
	backend     transaction.Backend
	deployments *deployments.Store
	raffle      RaffleReader
	automation  Automation

	// handler is changed in the Configure method
	handler   http.Handler
	handlerMu sync.RWMutex
}

// New creates a Debug API Service that only exposes /health, metrics and
// pprof until Configure is called.
func New(logger logging.Logger, corsAllowedOrigins []string) *Service {
	s := new(Service)
	s.logger = logger
	s.corsAllowedOrigins = corsAllowedOrigins
	s.metricsRegistry = newMetricsRegistry()

	s.setRouter(s.newBasicRouter())

	return s
}

// Options are the dependencies of the full router. Raffle and Automation
// may be nil.
type Options struct {
	Network     string
	Backend     transaction.Backend
	Deployments *deployments.Store
	Raffle      RaffleReader
	Automation  Automation
}

// Configure injects the dependencies and exposes the routes that need them.
// It is intended to be called once.
func (s *Service) Configure(o Options) {
	s.network = o.Network
	s.backend = o.Backend
	s.deployments = o.Deployments
	s.raffle = o.Raffle
	s.automation = o.Automation

	s.setRouter(s.newRouter())
}

// ServeHTTP implements http.Handler interface.
func (s *Service) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// protect handler as it is changed by the Configure method
	s.handlerMu.RLock()
	h := s.handler
	s.handlerMu.RUnlock()

	h.ServeHTTP(w, r)
}
