// Copyright 2024 The rafflekit Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package vrf

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Event is a notification emitted by the coordinator.
type Event interface {
	Name() string
}

type SubscriptionCreatedEvent struct {
	SubID uint64
	Owner common.Address
}

func (SubscriptionCreatedEvent) Name() string { return "SubscriptionCreated" }

type SubscriptionFundedEvent struct {
	SubID      uint64
	OldBalance *big.Int
	NewBalance *big.Int
}

func (SubscriptionFundedEvent) Name() string { return "SubscriptionFunded" }

type ConsumerAddedEvent struct {
	SubID    uint64
	Consumer common.Address
}

func (ConsumerAddedEvent) Name() string { return "ConsumerAdded" }

type ConsumerRemovedEvent struct {
	SubID    uint64
	Consumer common.Address
}

func (ConsumerRemovedEvent) Name() string { return "ConsumerRemoved" }

type SubscriptionCanceledEvent struct {
	SubID  uint64
	To     common.Address
	Amount *big.Int
}

func (SubscriptionCanceledEvent) Name() string { return "SubscriptionCanceled" }

type RandomWordsRequestedEvent struct {
	KeyHash                     common.Hash
	RequestID                   *big.Int
	PreSeed                     *big.Int
	SubID                       uint64
	MinimumRequestConfirmations uint16
	CallbackGasLimit            uint32
	NumWords                    uint32
	Sender                      common.Address
}

func (RandomWordsRequestedEvent) Name() string { return "RandomWordsRequested" }

type RandomWordsFulfilledEvent struct {
	RequestID  *big.Int
	OutputSeed *big.Int
	Payment    *big.Int
	Success    bool
}

func (RandomWordsFulfilledEvent) Name() string { return "RandomWordsFulfilled" }
