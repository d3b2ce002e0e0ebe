// Copyright 2024 The rafflekit Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package debugapi

import (
	"errors"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rafflekit/rafflekit/pkg/bigint"
	"github.com/rafflekit/rafflekit/pkg/deployments"
	"github.com/rafflekit/rafflekit/pkg/jsonhttp"
	"github.com/rafflekit/rafflekit/pkg/rafflecontract"
)

type raffleResponse struct {
	Address          common.Address `json:"address"`
	State            string         `json:"state"`
	EntranceFee      *bigint.BigInt `json:"entranceFee"`
	EntranceFeeEther string         `json:"entranceFeeEther"`
	Interval         uint64         `json:"interval"`
	LastTimestamp    uint64         `json:"lastTimestamp"`
	RecentWinner     common.Address `json:"recentWinner"`
	NumberOfPlayers  int            `json:"numberOfPlayers"`
	Balance          *bigint.BigInt `json:"balance"`
	BalanceEther     string         `json:"balanceEther"`
	UpkeepNeeded     bool           `json:"upkeepNeeded"`
	SubscriptionID   uint64         `json:"subscriptionId"`
	CallbackGasLimit uint32         `json:"callbackGasLimit"`
	GasLane          common.Hash    `json:"gasLane"`
}

type playersResponse struct {
	Players []common.Address `json:"players"`
}

// status answers 404 when no raffle is deployed. Readers report a missing
// deployment with deployments.ErrNotFound.
func (s *Service) status(w http.ResponseWriter, r *http.Request) (*rafflecontract.Status, bool) {
	if s.raffle == nil {
		jsonhttp.NotFound(w, "raffle not deployed")
		return nil, false
	}
	status, err := s.raffle.Status(r.Context())
	if errors.Is(err, deployments.ErrNotFound) {
		jsonhttp.NotFound(w, "raffle not deployed")
		return nil, false
	}
	if err != nil {
		s.logger.Debugf("debug api: raffle: %v", err)
		s.logger.Error("debug api: raffle: cannot get raffle status")
		jsonhttp.InternalServerError(w, "cannot get raffle status")
		return nil, false
	}
	return status, true
}

func (s *Service) raffleHandler(w http.ResponseWriter, r *http.Request) {
	status, ok := s.status(w, r)
	if !ok {
		return
	}
	jsonhttp.OK(w, raffleResponse{
		Address:          status.Address,
		State:            status.State.String(),
		EntranceFee:      bigint.Wrap(status.EntranceFee),
		EntranceFeeEther: bigint.FormatEther(status.EntranceFee),
		Interval:         status.Interval,
		LastTimestamp:    status.LastTimestamp,
		RecentWinner:     status.RecentWinner,
		NumberOfPlayers:  len(status.Players),
		Balance:          bigint.Wrap(status.Balance),
		BalanceEther:     bigint.FormatEther(status.Balance),
		UpkeepNeeded:     status.UpkeepNeeded,
		SubscriptionID:   status.SubscriptionID,
		CallbackGasLimit: status.CallbackGasLimit,
		GasLane:          status.GasLane,
	})
}

func (s *Service) rafflePlayersHandler(w http.ResponseWriter, r *http.Request) {
	status, ok := s.status(w, r)
	if !ok {
		return
	}
	players := status.Players
	if players == nil {
		players = []common.Address{}
	}
	jsonhttp.OK(w, playersResponse{Players: players})
}

type keeperResponse struct {
	Raffles []common.Address `json:"raffles"`
}

func (s *Service) keeperHandler(w http.ResponseWriter, _ *http.Request) {
	if s.automation == nil {
		jsonhttp.NotFound(w, "keeper not running")
		return
	}
	jsonhttp.OK(w, keeperResponse{Raffles: s.automation.Raffles()})
}
