// Copyright 2024 The rafflekit Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package vrf implements a local stand-in for a VRF v2 coordinator. It keeps
// subscriptions and pending requests and answers requests with words
// derived from the request id.
package vrf

import (
	"errors"
	"fmt"
	"math/big"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
)

// MaxConsumers is the number of consumers a subscription can hold.
const MaxConsumers = 100

var (
	// BaseFee is the flat LINK fee charged per fulfillment, 0.25 LINK.
	BaseFee = big.NewInt(25e16)
	// GasPriceLink is the LINK price per callback gas unit.
	GasPriceLink = big.NewInt(1e9)
)

var (
	ErrInvalidSubscription = errors.New("invalid subscription")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrInvalidConsumer     = errors.New("invalid consumer")
	ErrTooManyConsumers    = errors.New("too many consumers")
	ErrInvalidRandomWords  = errors.New("invalid random words")
	// ErrNonexistentRequest is returned when fulfilling an unknown request.
	ErrNonexistentRequest = errors.New("nonexistent request")
)

// MustBeSubOwnerError is returned when a subscription is managed by
// someone else than its owner.
type MustBeSubOwnerError struct {
	Owner common.Address
}

func (e *MustBeSubOwnerError) Error() string {
	return fmt.Sprintf("must be subscription owner %s", e.Owner)
}

type Subscription struct {
	Balance   *big.Int
	ReqCount  uint64
	Owner     common.Address
	Consumers []common.Address
}

func (s Subscription) copy() Subscription {
	c := s
	c.Balance = new(big.Int).Set(s.Balance)
	c.Consumers = append([]common.Address(nil), s.Consumers...)
	return c
}

// Request is a pending randomness request.
type Request struct {
	ID               *big.Int
	SubID            uint64
	CallbackGasLimit uint32
	NumWords         uint32
}

// ConsumerCaller delivers random words to a consumer contract. It returns
// the gas spent by the callback and an error when the callback failed.
type ConsumerCaller interface {
	RawFulfillRandomWords(consumer common.Address, requestID *big.Int, words []*big.Int, gasLimit uint32) (gasUsed uint64, err error)
}

type state struct {
	subs          map[uint64]Subscription
	requests      map[string]Request
	nextSubID     uint64
	nextRequestID *big.Int
	nextPreSeed   *big.Int
}

func (s state) copy() state {
	c := state{
		subs:          make(map[uint64]Subscription, len(s.subs)),
		requests:      make(map[string]Request, len(s.requests)),
		nextSubID:     s.nextSubID,
		nextRequestID: new(big.Int).Set(s.nextRequestID),
		nextPreSeed:   new(big.Int).Set(s.nextPreSeed),
	}
	for id, sub := range s.subs {
		c.subs[id] = sub.copy()
	}
	for k, r := range s.requests {
		r.ID = new(big.Int).Set(r.ID)
		c.requests[k] = r
	}
	return c
}

// Coordinator is the mock coordinator. The zero value is not usable, use
// New.
type Coordinator struct {
	mu           sync.Mutex
	baseFee      *big.Int
	gasPriceLink *big.Int
	state        state
}

// Snapshot is an opaque copy of the coordinator state.
type Snapshot struct {
	state state
}

func New(baseFee, gasPriceLink *big.Int) *Coordinator {
	return &Coordinator{
		baseFee:      new(big.Int).Set(baseFee),
		gasPriceLink: new(big.Int).Set(gasPriceLink),
		state: state{
			subs:          make(map[uint64]Subscription),
			requests:      make(map[string]Request),
			nextSubID:     1,
			nextRequestID: big.NewInt(1),
			nextPreSeed:   big.NewInt(100),
		},
	}
}

func (c *Coordinator) BaseFee() *big.Int {
	return new(big.Int).Set(c.baseFee)
}

func (c *Coordinator) GasPriceLink() *big.Int {
	return new(big.Int).Set(c.gasPriceLink)
}

func (c *Coordinator) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	return Snapshot{state: c.state.copy()}
}

func (c *Coordinator) Restore(s Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.state = s.state.copy()
}

// CreateSubscription opens an empty subscription owned by owner.
func (c *Coordinator) CreateSubscription(owner common.Address) (uint64, []Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.state.nextSubID
	c.state.nextSubID++
	c.state.subs[id] = Subscription{
		Balance: new(big.Int),
		Owner:   owner,
	}
	return id, []Event{SubscriptionCreatedEvent{SubID: id, Owner: owner}}
}

func (c *Coordinator) GetSubscription(subID uint64) (Subscription, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	sub, ok := c.state.subs[subID]
	if !ok {
		return Subscription{}, ErrInvalidSubscription
	}
	return sub.copy(), nil
}

// FundSubscription credits amount to the subscription. Anyone may fund.
func (c *Coordinator) FundSubscription(subID uint64, amount *big.Int) ([]Event, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	sub, ok := c.state.subs[subID]
	if !ok {
		return nil, ErrInvalidSubscription
	}
	old := new(big.Int).Set(sub.Balance)
	sub.Balance = new(big.Int).Add(sub.Balance, amount)
	c.state.subs[subID] = sub
	return []Event{SubscriptionFundedEvent{SubID: subID, OldBalance: old, NewBalance: new(big.Int).Set(sub.Balance)}}, nil
}

func (c *Coordinator) ownedSubscription(caller common.Address, subID uint64) (Subscription, error) {
	sub, ok := c.state.subs[subID]
	if !ok {
		return Subscription{}, ErrInvalidSubscription
	}
	if sub.Owner != caller {
		return Subscription{}, &MustBeSubOwnerError{Owner: sub.Owner}
	}
	return sub, nil
}

// AddConsumer authorizes consumer to request randomness on the
// subscription. Adding a consumer twice is a no-op.
func (c *Coordinator) AddConsumer(caller common.Address, subID uint64, consumer common.Address) ([]Event, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	sub, err := c.ownedSubscription(caller, subID)
	if err != nil {
		return nil, err
	}
	if containsAddress(sub.Consumers, consumer) {
		return nil, nil
	}
	if len(sub.Consumers) >= MaxConsumers {
		return nil, ErrTooManyConsumers
	}
	sub.Consumers = append(append([]common.Address(nil), sub.Consumers...), consumer)
	c.state.subs[subID] = sub
	return []Event{ConsumerAddedEvent{SubID: subID, Consumer: consumer}}, nil
}

func (c *Coordinator) RemoveConsumer(caller common.Address, subID uint64, consumer common.Address) ([]Event, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	sub, err := c.ownedSubscription(caller, subID)
	if err != nil {
		return nil, err
	}
	if !containsAddress(sub.Consumers, consumer) {
		return nil, ErrInvalidConsumer
	}
	consumers := make([]common.Address, 0, len(sub.Consumers)-1)
	for _, a := range sub.Consumers {
		if a != consumer {
			consumers = append(consumers, a)
		}
	}
	sub.Consumers = consumers
	c.state.subs[subID] = sub
	return []Event{ConsumerRemovedEvent{SubID: subID, Consumer: consumer}}, nil
}

// CancelSubscription deletes the subscription. The remaining balance is
// reported in the event.
func (c *Coordinator) CancelSubscription(caller common.Address, subID uint64, to common.Address) ([]Event, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	sub, err := c.ownedSubscription(caller, subID)
	if err != nil {
		return nil, err
	}
	delete(c.state.subs, subID)
	return []Event{SubscriptionCanceledEvent{SubID: subID, To: to, Amount: new(big.Int).Set(sub.Balance)}}, nil
}

func (c *Coordinator) ConsumerIsAdded(subID uint64, consumer common.Address) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	sub, ok := c.state.subs[subID]
	return ok && containsAddress(sub.Consumers, consumer)
}

// RequestRandomWords registers a request from sender, which must be a
// consumer of the subscription.
func (c *Coordinator) RequestRandomWords(sender common.Address, keyHash common.Hash, subID uint64, minimumRequestConfirmations uint16, callbackGasLimit, numWords uint32) (*big.Int, []Event, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	sub, ok := c.state.subs[subID]
	if !ok {
		return nil, nil, ErrInvalidSubscription
	}
	if !containsAddress(sub.Consumers, sender) {
		return nil, nil, ErrInvalidConsumer
	}

	id := new(big.Int).Set(c.state.nextRequestID)
	preSeed := new(big.Int).Set(c.state.nextPreSeed)
	c.state.nextRequestID.Add(c.state.nextRequestID, big.NewInt(1))
	c.state.nextPreSeed.Add(c.state.nextPreSeed, big.NewInt(1))

	sub.ReqCount++
	c.state.subs[subID] = sub
	c.state.requests[id.String()] = Request{
		ID:               id,
		SubID:            subID,
		CallbackGasLimit: callbackGasLimit,
		NumWords:         numWords,
	}

	return new(big.Int).Set(id), []Event{RandomWordsRequestedEvent{
		KeyHash:                     keyHash,
		RequestID:                   new(big.Int).Set(id),
		PreSeed:                     preSeed,
		SubID:                       subID,
		MinimumRequestConfirmations: minimumRequestConfirmations,
		CallbackGasLimit:            callbackGasLimit,
		NumWords:                    numWords,
		Sender:                      sender,
	}}, nil
}

// PendingRequests returns the unfulfilled requests ordered by id.
func (c *Coordinator) PendingRequests() []Request {
	c.mu.Lock()
	defer c.mu.Unlock()

	rs := make([]Request, 0, len(c.state.requests))
	for _, r := range c.state.requests {
		r.ID = new(big.Int).Set(r.ID)
		rs = append(rs, r)
	}
	sort.Slice(rs, func(i, j int) bool { return rs[i].ID.Cmp(rs[j].ID) < 0 })
	return rs
}

// FulfillRandomWords answers the request with words derived from its id.
func (c *Coordinator) FulfillRandomWords(caller ConsumerCaller, requestID *big.Int, consumer common.Address) ([]Event, error) {
	return c.FulfillRandomWordsWithOverride(caller, requestID, consumer, nil)
}

// FulfillRandomWordsWithOverride answers the request with the given words,
// or derived words when none are given. A failing consumer callback does
// not fail the fulfillment; the outcome is reported in the event.
func (c *Coordinator) FulfillRandomWordsWithOverride(caller ConsumerCaller, requestID *big.Int, consumer common.Address, words []*big.Int) ([]Event, error) {
	c.mu.Lock()
	req, ok := c.state.requests[requestID.String()]
	c.mu.Unlock()
	if !ok {
		return nil, ErrNonexistentRequest
	}

	if len(words) == 0 {
		words = DeriveWords(requestID, req.NumWords)
	} else if len(words) != int(req.NumWords) {
		return nil, ErrInvalidRandomWords
	}

	// the coordinator lock is released so that the consumer may call back
	gasUsed, callErr := caller.RawFulfillRandomWords(consumer, requestID, words, req.CallbackGasLimit)

	c.mu.Lock()
	defer c.mu.Unlock()

	payment := new(big.Int).Mul(new(big.Int).SetUint64(gasUsed), c.gasPriceLink)
	payment.Add(payment, c.baseFee)

	sub, ok := c.state.subs[req.SubID]
	if !ok || sub.Balance.Cmp(payment) < 0 {
		return nil, ErrInsufficientBalance
	}
	sub.Balance = new(big.Int).Sub(sub.Balance, payment)
	c.state.subs[req.SubID] = sub
	delete(c.state.requests, requestID.String())

	return []Event{RandomWordsFulfilledEvent{
		RequestID:  new(big.Int).Set(requestID),
		OutputSeed: new(big.Int).Set(requestID),
		Payment:    payment,
		Success:    callErr == nil,
	}}, nil
}

// DeriveWords returns keccak256(abi.encode(requestID, i)) for i < n.
func DeriveWords(requestID *big.Int, n uint32) []*big.Int {
	words := make([]*big.Int, n)
	for i := uint32(0); i < n; i++ {
		h := crypto.Keccak256(
			math.U256Bytes(new(big.Int).Set(requestID)),
			math.U256Bytes(new(big.Int).SetUint64(uint64(i))),
		)
		words[i] = new(big.Int).SetBytes(h)
	}
	return words
}

func containsAddress(as []common.Address, a common.Address) bool {
	for _, x := range as {
		if x == a {
			return true
		}
	}
	return false
}
