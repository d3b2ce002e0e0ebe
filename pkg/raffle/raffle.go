// Copyright 2024 The rafflekit Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package raffle implements the lifecycle of a VRF driven raffle: players
// enter while the raffle is open, an upkeep requests randomness once the
// interval has passed and the fulfillment pays the whole balance to the
// selected winner.
package raffle

import (
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/event"
)

const (
	// RequestConfirmations is the number of blocks the coordinator waits
	// before answering a request.
	RequestConfirmations uint16 = 3
	// NumWords is the number of random words requested per round.
	NumWords uint32 = 1
)

// Config holds the immutable constructor parameters of a raffle.
type Config struct {
	Coordinator      common.Address
	EntranceFee      *big.Int
	GasLane          common.Hash
	Interval         uint64
	CallbackGasLimit uint32
	SubscriptionID   uint64
}

func (c Config) validate() error {
	if c.EntranceFee == nil || c.EntranceFee.Sign() < 0 {
		return fmt.Errorf("%w: entrance fee %v", ErrInvalidConfig, c.EntranceFee)
	}
	return nil
}

// Coordinator issues randomness requests.
type Coordinator interface {
	RequestRandomWords(keyHash common.Hash, subID uint64, minimumRequestConfirmations uint16, callbackGasLimit uint32, numWords uint32) (*big.Int, error)
}

// Env is the execution context of a single raffle operation: the current
// time, the funds held by the raffle and the randomness coordinator.
type Env interface {
	Coordinator
	Now() uint64
	Balance() *big.Int
	Transfer(to common.Address, amount *big.Int) error
}

// Raffle is the authoritative instance of a raffle. Every operation is
// applied atomically: on error the state is left unchanged. Operations
// return the events they produced; subscribers only see them once the
// owner hands them to Publish.
type Raffle struct {
	mu     sync.Mutex
	config Config
	state  Snapshot
	feed   event.FeedOf[Event]
}

// New creates an open raffle whose first interval starts at now.
func New(cfg Config, now uint64) (*Raffle, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg.EntranceFee = new(big.Int).Set(cfg.EntranceFee)
	return &Raffle{
		config: cfg,
		state: Snapshot{
			State:         StateOpen,
			LastTimestamp: now,
		},
	}, nil
}

// Enter adds player to the current round. The payment is expected to be
// already credited to the raffle balance by the caller.
func (r *Raffle) Enter(player common.Address, amount *big.Int) ([]Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	next, events, err := r.state.Enter(r.config, player, amount)
	if err != nil {
		return nil, err
	}
	return r.commit(next, events), nil
}

// CheckUpkeep reports whether PerformUpkeep would succeed.
func (r *Raffle) CheckUpkeep(env Env) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.state.CheckUpkeep(r.config, env.Now(), env.Balance())
}

// PerformUpkeep requests a random word from the coordinator and closes the
// round for new entries.
func (r *Raffle) PerformUpkeep(env Env) (*big.Int, []Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := env.Now()
	if err := r.state.BeginUpkeep(r.config, now, env.Balance()); err != nil {
		return nil, nil, err
	}

	requestID, err := env.RequestRandomWords(
		r.config.GasLane,
		r.config.SubscriptionID,
		RequestConfirmations,
		r.config.CallbackGasLimit,
		NumWords,
	)
	if err != nil {
		return nil, nil, fmt.Errorf("request random words: %w", err)
	}

	next, events := r.state.Requested(requestID, now)
	return requestID, r.commit(next, events), nil
}

// FulfillRandomWords picks the winner of the outstanding request and pays
// out the whole balance.
func (r *Raffle) FulfillRandomWords(env Env, requestID *big.Int, words []*big.Int) ([]Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	winner, err := r.state.Winner(requestID, words)
	if err != nil {
		return nil, err
	}

	if err := env.Transfer(winner, env.Balance()); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}

	next, events := r.state.Fulfill(winner, env.Now())
	return r.commit(next, events), nil
}

func (r *Raffle) commit(next Snapshot, events []Event) []Event {
	r.state = next
	return events
}

// Publish delivers events to the subscribers in order. It blocks until
// every subscriber received each event and must not be called while an
// operation of r is in progress.
func (r *Raffle) Publish(events []Event) {
	for _, e := range events {
		r.feed.Send(e)
	}
}

// SubscribeEvents delivers every published event to ch.
func (r *Raffle) SubscribeEvents(ch chan<- Event) event.Subscription {
	return r.feed.Subscribe(ch)
}

// Snapshot returns a copy of the current state.
func (r *Raffle) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.state.Copy()
}

// Restore replaces the current state, undoing operations applied after s
// was taken.
func (r *Raffle) Restore(s Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.state = s.Copy()
}

// Config returns a copy of the constructor parameters.
func (r *Raffle) Config() Config {
	c := r.config
	c.EntranceFee = new(big.Int).Set(r.config.EntranceFee)
	return c
}

// EntranceFee is the minimum payment accepted by Enter.
func (r *Raffle) EntranceFee() *big.Int {
	return new(big.Int).Set(r.config.EntranceFee)
}

// Interval is the minimum number of seconds between two rounds.
func (r *Raffle) Interval() uint64 {
	return r.config.Interval
}

// GasLane is the key hash passed to the coordinator.
func (r *Raffle) GasLane() common.Hash {
	return r.config.GasLane
}

// SubscriptionID is the coordinator subscription that pays for requests.
func (r *Raffle) SubscriptionID() uint64 {
	return r.config.SubscriptionID
}

// CallbackGasLimit caps the gas of the fulfillment callback.
func (r *Raffle) CallbackGasLimit() uint32 {
	return r.config.CallbackGasLimit
}

// State returns whether the raffle is open or calculating a winner.
func (r *Raffle) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.state.State
}

// Player returns the i-th player of the current round or ErrPlayerIndex.
func (r *Raffle) Player(i uint64) (common.Address, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if i >= uint64(len(r.state.Players)) {
		return common.Address{}, ErrPlayerIndex
	}
	return r.state.Players[i], nil
}

// NumberOfPlayers returns the number of entries of the current round.
func (r *Raffle) NumberOfPlayers() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	return uint64(len(r.state.Players))
}

// RecentWinner returns the winner of the last fulfilled round.
func (r *Raffle) RecentWinner() common.Address {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.state.RecentWinner
}

// LastTimestamp returns the start time of the current round.
func (r *Raffle) LastTimestamp() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.state.LastTimestamp
}

// PendingRequest returns the outstanding randomness request, if any.
func (r *Raffle) PendingRequest() (Request, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state.Request == nil {
		return Request{}, false
	}
	return Request{ID: new(big.Int).Set(r.state.Request.ID), IssuedAt: r.state.Request.IssuedAt}, true
}
