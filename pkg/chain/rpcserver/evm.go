// Copyright 2024 The rafflekit Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rpcserver

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/rafflekit/rafflekit/pkg/chain"
	"github.com/rafflekit/rafflekit/pkg/logging"
)

type evmAPI struct {
	chain  *chain.Chain
	logger logging.Logger
}

// IncreaseTime returns the total pending time adjustment in seconds.
func (api *evmAPI) IncreaseTime(seconds Quantity) uint64 {
	return api.chain.IncreaseTime(uint64(seconds))
}

// Mine mines an empty block, optionally at the given timestamp.
func (api *evmAPI) Mine(timestamp *Quantity) (string, error) {
	if timestamp != nil {
		if err := api.chain.SetNextBlockTimestamp(uint64(*timestamp)); err != nil {
			return "", err
		}
	}
	h := api.chain.Mine()
	api.logger.Tracef("rpc: mined empty block %d", h.Number)
	return "0x0", nil
}

func (api *evmAPI) SetNextBlockTimestamp(timestamp Quantity) error {
	return api.chain.SetNextBlockTimestamp(uint64(timestamp))
}

func (api *evmAPI) Snapshot() hexutil.Uint64 {
	return hexutil.Uint64(api.chain.Snapshot())
}

func (api *evmAPI) Revert(id Quantity) bool {
	return api.chain.Revert(uint64(id))
}

type hardhatAPI struct {
	chain *chain.Chain
}

func (api *hardhatAPI) SetBalance(addr common.Address, balance hexutil.Big) bool {
	api.chain.SetBalance(addr, balance.ToInt())
	return true
}
