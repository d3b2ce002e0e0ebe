// Copyright 2024 The rafflekit Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package keeper automates raffles: the agent performs upkeep when a raffle
// needs it and the responder answers randomness requests on development
// chains.
package keeper

import (
	"context"
	"errors"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/hashicorp/go-multierror"
	"github.com/rafflekit/rafflekit/pkg/logging"
	"github.com/rafflekit/rafflekit/pkg/raffle"
)

const DefaultPollInterval = 5 * time.Second

// Upkeeper is a raffle the agent can advance.
type Upkeeper interface {
	Address() common.Address
	CheckUpkeep(ctx context.Context) (bool, error)
	PerformUpkeep(ctx context.Context) (requestID *big.Int, err error)
}

// Upkeep is a performed upkeep.
type Upkeep struct {
	Raffle    common.Address
	RequestID *big.Int
}

type Agent struct {
	logger   logging.Logger
	metrics  agentMetrics
	interval time.Duration

	mu      sync.Mutex
	raffles map[common.Address]Upkeeper

	quit      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// New returns an agent that checks its raffles every interval. It runs until
// Close is called.
func New(logger logging.Logger, interval time.Duration) *Agent {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	a := &Agent{
		logger:   logger,
		metrics:  newAgentMetrics(),
		interval: interval,
		raffles:  make(map[common.Address]Upkeeper),
		quit:     make(chan struct{}),
	}

	a.wg.Add(1)
	go a.start()

	return a
}

// AddRaffle puts r under automation. Adding a raffle twice replaces it.
func (a *Agent) AddRaffle(r Upkeeper) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.raffles[r.Address()] = r
	a.metrics.Raffles.Set(float64(len(a.raffles)))
	a.logger.Infof("keeper: automating raffle %s", r.Address())
}

func (a *Agent) RemoveRaffle(address common.Address) {
	a.mu.Lock()
	defer a.mu.Unlock()

	delete(a.raffles, address)
	a.metrics.Raffles.Set(float64(len(a.raffles)))
}

// Raffles returns the addresses of the automated raffles in ascending order.
func (a *Agent) Raffles() []common.Address {
	a.mu.Lock()
	defer a.mu.Unlock()

	addresses := make([]common.Address, 0, len(a.raffles))
	for addr := range a.raffles {
		addresses = append(addresses, addr)
	}
	sort.Slice(addresses, func(i, j int) bool {
		return addresses[i].Cmp(addresses[j]) < 0
	})
	return addresses
}

func (a *Agent) start() {
	defer a.wg.Done()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-a.quit
		cancel()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(a.interval):
			tickCtx, cancelTick := context.WithTimeout(ctx, 10*a.interval)
			_, _ = a.Tick(tickCtx)
			cancelTick()
		}
	}
}

// Tick checks every raffle once and performs the upkeeps that are needed.
// Failures are logged and do not stop the other raffles.
func (a *Agent) Tick(ctx context.Context) ([]Upkeep, error) {
	a.mu.Lock()
	raffles := make([]Upkeeper, 0, len(a.raffles))
	for _, r := range a.raffles {
		raffles = append(raffles, r)
	}
	a.mu.Unlock()

	var (
		performed []Upkeep
		errs      *multierror.Error
	)
	for _, r := range raffles {
		u, err := a.upkeep(ctx, r)
		if err != nil {
			errs = multierror.Append(errs, err)
			continue
		}
		if u != nil {
			performed = append(performed, *u)
		}
	}
	return performed, errs.ErrorOrNil()
}

func (a *Agent) upkeep(ctx context.Context, r Upkeeper) (*Upkeep, error) {
	a.metrics.Checks.Inc()
	needed, err := r.CheckUpkeep(ctx)
	if err != nil {
		a.metrics.CheckErrors.Inc()
		a.logger.Errorf("keeper: check upkeep of %s: %v", r.Address(), err)
		return nil, err
	}
	if !needed {
		return nil, nil
	}

	requestID, err := r.PerformUpkeep(ctx)
	if err != nil {
		// another keeper may have closed the round first
		var notNeeded *raffle.UpkeepNotNeededError
		if errors.As(err, &notNeeded) {
			a.logger.Debugf("keeper: upkeep of %s no longer needed: %v", r.Address(), err)
			return nil, nil
		}
		a.metrics.UpkeepErrors.Inc()
		a.logger.Errorf("keeper: perform upkeep of %s: %v", r.Address(), err)
		return nil, err
	}
	a.metrics.Upkeeps.Inc()
	if requestID.IsUint64() {
		a.metrics.LastRequestID.Set(float64(requestID.Uint64()))
	}
	a.logger.Infof("keeper: performed upkeep of %s, randomness request %s", r.Address(), requestID)
	return &Upkeep{Raffle: r.Address(), RequestID: requestID}, nil
}

// Close stops the worker goroutine. It is safe to call Close more than once.
func (a *Agent) Close() error {
	a.closeOnce.Do(func() { close(a.quit) })

	stopped := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(stopped)
	}()

	select {
	case <-stopped:
		return nil
	case <-time.After(5 * time.Second):
		return errors.New("stopping keeper with ongoing worker goroutine")
	}
}
