// Copyright 2024 The rafflekit Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package raffle

import (
	"errors"
	"fmt"
	"math/big"
)

var (
	// ErrNotEnoughETHEntered is returned when an entry pays less than the
	// entrance fee.
	ErrNotEnoughETHEntered = errors.New("not enough eth entered")
	// ErrNotOpen is returned when entering while a winner is calculated.
	ErrNotOpen = errors.New("raffle not open")
	// ErrNonexistentRequest is returned for a fulfillment that does not
	// match the outstanding randomness request.
	ErrNonexistentRequest = errors.New("nonexistent request")
	// ErrTransferFailed is returned when the payout to the winner fails.
	ErrTransferFailed = errors.New("transfer failed")
	ErrPlayerIndex    = errors.New("player index out of range")
	ErrNoRandomWords  = errors.New("no random words")
	ErrInvalidConfig  = errors.New("invalid raffle config")
)

// UpkeepNotNeededError is returned by PerformUpkeep when the upkeep
// conditions do not hold. It carries the values they were evaluated on.
type UpkeepNotNeededError struct {
	Balance *big.Int
	Players uint64
	State   State
}

func (e *UpkeepNotNeededError) Error() string {
	return fmt.Sprintf("upkeep not needed: balance %s, players %d, state %s", e.Balance, e.Players, e.State)
}
