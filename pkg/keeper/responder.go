// Copyright 2024 The rafflekit Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package keeper

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rafflekit/rafflekit/pkg/logging"
	"github.com/rafflekit/rafflekit/pkg/storage"
	"github.com/rafflekit/rafflekit/pkg/vrf"
	"github.com/rafflekit/rafflekit/pkg/vrfcontract"
)

const lastBlockKeyPrefix = "keeper_responder_last_block_"

// Coordinator is the part of the coordinator mock the responder uses.
type Coordinator interface {
	Address() common.Address
	RandomWordsRequested(ctx context.Context, fromBlock, toBlock uint64) ([]vrfcontract.RandomWordsRequest, error)
	FulfillRandomWords(ctx context.Context, requestID *big.Int, consumer common.Address) (*vrfcontract.Fulfillment, error)
}

type BlockNumberer interface {
	BlockNumber(ctx context.Context) (uint64, error)
}

// Responder plays the oracle on development chains. It fulfills every
// RandomWordsRequested log of the coordinator once.
type Responder struct {
	logger      logging.Logger
	metrics     responderMetrics
	backend     BlockNumberer
	coordinator Coordinator
	store       storage.StateStorer
	interval    time.Duration

	mu        sync.Mutex
	lastBlock uint64

	quit      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewResponder resumes from the last block recorded in store and polls the
// coordinator every interval until Close is called.
func NewResponder(logger logging.Logger, backend BlockNumberer, coordinator Coordinator, store storage.StateStorer, interval time.Duration) (*Responder, error) {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	r := &Responder{
		logger:      logger,
		metrics:     newResponderMetrics(),
		backend:     backend,
		coordinator: coordinator,
		store:       store,
		interval:    interval,
		quit:        make(chan struct{}),
	}

	if err := store.Get(r.lastBlockKey(), &r.lastBlock); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("load last processed block: %w", err)
	}
	r.metrics.LastBlock.Set(float64(r.lastBlock))

	r.wg.Add(1)
	go r.start()

	return r, nil
}

func (r *Responder) lastBlockKey() string {
	return lastBlockKeyPrefix + r.coordinator.Address().Hex()
}

// LastBlock is the last block whose requests were handled.
func (r *Responder) LastBlock() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastBlock
}

func (r *Responder) start() {
	defer r.wg.Done()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-r.quit
		cancel()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(r.interval):
			if _, err := r.Respond(ctx); err != nil && ctx.Err() == nil {
				r.logger.Errorf("vrf responder: %v", err)
			}
		}
	}
}

// Respond fulfills the requests logged since the last processed block and
// returns the fulfillments.
func (r *Responder) Respond(ctx context.Context) ([]*vrfcontract.Fulfillment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.metrics.BackendCalls.Inc()
	block, err := r.backend.BlockNumber(ctx)
	if err != nil {
		r.metrics.BackendErrors.Inc()
		return nil, fmt.Errorf("block number: %w", err)
	}
	if block < r.lastBlock {
		// the chain was rewound
		r.logger.Debugf("vrf responder: chain at %d behind last processed block %d", block, r.lastBlock)
		r.lastBlock = 0
	}
	if block == r.lastBlock && block != 0 {
		return nil, nil
	}

	from := r.lastBlock + 1
	if r.lastBlock == 0 {
		from = 0
	}
	r.metrics.BackendCalls.Inc()
	requests, err := r.coordinator.RandomWordsRequested(ctx, from, block)
	if err != nil {
		r.metrics.BackendErrors.Inc()
		return nil, err
	}

	var fulfillments []*vrfcontract.Fulfillment
	for _, req := range requests {
		f, err := r.coordinator.FulfillRandomWords(ctx, req.RequestID, req.Sender)
		switch {
		case errors.Is(err, vrf.ErrNonexistentRequest):
			r.logger.Debugf("vrf responder: request %s already fulfilled", req.RequestID)
			continue
		case err != nil:
			r.metrics.FulfillErrors.Inc()
			return fulfillments, fmt.Errorf("fulfill request %s: %w", req.RequestID, err)
		}
		r.metrics.Fulfillments.Inc()
		r.logger.Infof("vrf responder: fulfilled request %s of %s (success: %t)", req.RequestID, req.Sender, f.Success)
		fulfillments = append(fulfillments, f)
	}

	r.lastBlock = block
	r.metrics.LastBlock.Set(float64(block))
	if err := r.store.Put(r.lastBlockKey(), block); err != nil {
		return fulfillments, fmt.Errorf("store last processed block: %w", err)
	}
	return fulfillments, nil
}

// Close stops the worker goroutine. It is safe to call Close more than once.
func (r *Responder) Close() error {
	r.closeOnce.Do(func() { close(r.quit) })

	stopped := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(stopped)
	}()

	select {
	case <-stopped:
		return nil
	case <-time.After(5 * time.Second):
		return errors.New("stopping vrf responder with ongoing worker goroutine")
	}
}
