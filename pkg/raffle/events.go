// Copyright 2024 The rafflekit Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package raffle

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Event is a notification emitted by a raffle transition.
type Event interface {
	Name() string
}

// EnterEvent is emitted as RaffleEnter.
type EnterEvent struct {
	Player common.Address
}

func (EnterEvent) Name() string { return "RaffleEnter" }

// RequestedRaffleWinnerEvent is emitted when upkeep issues a randomness
// request.
type RequestedRaffleWinnerEvent struct {
	RequestID *big.Int
}

func (RequestedRaffleWinnerEvent) Name() string { return "RequestedRaffleWinner" }

// WinnerPickedEvent is emitted after the winner has been paid.
type WinnerPickedEvent struct {
	Winner common.Address
}

func (WinnerPickedEvent) Name() string { return "WinnerPicked" }
