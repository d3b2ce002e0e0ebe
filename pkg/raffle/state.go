// Copyright 2024 The rafflekit Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package raffle

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// State is the lifecycle phase of a raffle round.
type State uint8

const (
	StateOpen State = iota
	StateCalculating
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateCalculating:
		return "calculating"
	default:
		return "unknown"
	}
}

// Request is the single outstanding randomness request of a round.
type Request struct {
	ID       *big.Int
	IssuedAt uint64
}

// Snapshot is the complete mutable state of a raffle. Transitions never
// modify the receiver; they return the next snapshot.
type Snapshot struct {
	Players       []common.Address
	State         State
	RecentWinner  common.Address
	LastTimestamp uint64
	Request       *Request
}

// Copy returns a deep copy of the snapshot.
func (s Snapshot) Copy() Snapshot {
	c := s
	c.Players = append([]common.Address(nil), s.Players...)
	if s.Request != nil {
		c.Request = &Request{
			ID:       new(big.Int).Set(s.Request.ID),
			IssuedAt: s.Request.IssuedAt,
		}
	}
	return c
}

// Enter validates an entry payment and appends the player.
func (s Snapshot) Enter(cfg Config, player common.Address, amount *big.Int) (Snapshot, []Event, error) {
	if amount == nil || amount.Cmp(cfg.EntranceFee) < 0 {
		return s, nil, ErrNotEnoughETHEntered
	}
	if s.State != StateOpen {
		return s, nil, ErrNotOpen
	}
	next := s.Copy()
	next.Players = append(next.Players, player)
	return next, []Event{EnterEvent{Player: player}}, nil
}

// CheckUpkeep reports whether a winner request may be issued at time now
// given the contract balance.
func (s Snapshot) CheckUpkeep(cfg Config, now uint64, balance *big.Int) bool {
	isOpen := s.State == StateOpen
	timePassed := now >= s.LastTimestamp && now-s.LastTimestamp >= cfg.Interval
	hasPlayers := len(s.Players) > 0
	hasBalance := balance != nil && balance.Sign() > 0
	return isOpen && timePassed && hasPlayers && hasBalance
}

// BeginUpkeep returns an *UpkeepNotNeededError when the upkeep conditions
// do not hold.
func (s Snapshot) BeginUpkeep(cfg Config, now uint64, balance *big.Int) error {
	if s.CheckUpkeep(cfg, now, balance) {
		return nil
	}
	b := new(big.Int)
	if balance != nil {
		b.Set(balance)
	}
	return &UpkeepNotNeededError{
		Balance: b,
		Players: uint64(len(s.Players)),
		State:   s.State,
	}
}

// Requested moves the raffle into the calculating state with requestID
// outstanding.
func (s Snapshot) Requested(requestID *big.Int, now uint64) (Snapshot, []Event) {
	next := s.Copy()
	next.State = StateCalculating
	next.Request = &Request{
		ID:       new(big.Int).Set(requestID),
		IssuedAt: now,
	}
	return next, []Event{RequestedRaffleWinnerEvent{RequestID: new(big.Int).Set(requestID)}}
}

// Winner selects the winner of the outstanding request from the supplied
// random words.
func (s Snapshot) Winner(requestID *big.Int, words []*big.Int) (common.Address, error) {
	if s.Request == nil || requestID == nil || s.Request.ID.Cmp(requestID) != 0 {
		return common.Address{}, ErrNonexistentRequest
	}
	if len(words) == 0 || words[0] == nil {
		return common.Address{}, ErrNoRandomWords
	}
	if len(s.Players) == 0 {
		return common.Address{}, ErrPlayerIndex
	}
	index := new(big.Int).Mod(words[0], big.NewInt(int64(len(s.Players))))
	return s.Players[index.Uint64()], nil
}

// Fulfill completes the round won by winner. The payout itself is not part
// of the snapshot and must have succeeded before the result is committed.
func (s Snapshot) Fulfill(winner common.Address, now uint64) (Snapshot, []Event) {
	next := s.Copy()
	next.RecentWinner = winner
	next.State = StateOpen
	next.Players = nil
	next.LastTimestamp = now
	next.Request = nil
	return next, []Event{WinnerPickedEvent{Winner: winner}}
}
