// Copyright 2024 The rafflekit Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rpcserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
)

// TransactionArgs are the arguments of eth_call, eth_estimateGas and
// eth_sendTransaction.
type TransactionArgs struct {
	From                 *common.Address `json:"from"`
	To                   *common.Address `json:"to"`
	Gas                  *hexutil.Uint64 `json:"gas"`
	GasPrice             *hexutil.Big    `json:"gasPrice"`
	MaxFeePerGas         *hexutil.Big    `json:"maxFeePerGas"`
	MaxPriorityFeePerGas *hexutil.Big    `json:"maxPriorityFeePerGas"`
	Value                *hexutil.Big    `json:"value"`
	Nonce                *hexutil.Uint64 `json:"nonce"`
	Data                 *hexutil.Bytes  `json:"data"`
	Input                *hexutil.Bytes  `json:"input"`
}

func (a TransactionArgs) data() []byte {
	if a.Input != nil {
		return *a.Input
	}
	if a.Data != nil {
		return *a.Data
	}
	return nil
}

func (a TransactionArgs) callMsg() ethereum.CallMsg {
	msg := ethereum.CallMsg{
		To:   a.To,
		Data: a.data(),
	}
	if a.From != nil {
		msg.From = *a.From
	}
	if a.Gas != nil {
		msg.Gas = uint64(*a.Gas)
	}
	if a.Value != nil {
		msg.Value = a.Value.ToInt()
	}
	if a.GasPrice != nil {
		msg.GasPrice = a.GasPrice.ToInt()
	}
	return msg
}

// FilterArgs are the arguments of eth_getLogs. Address may be a single
// address or a list; every topic position may be null, a topic or a list
// of alternatives.
type FilterArgs struct {
	BlockHash *common.Hash      `json:"blockHash"`
	FromBlock *rpc.BlockNumber  `json:"fromBlock"`
	ToBlock   *rpc.BlockNumber  `json:"toBlock"`
	Address   json.RawMessage   `json:"address"`
	Topics    []json.RawMessage `json:"topics"`
}

func (f FilterArgs) query() (ethereum.FilterQuery, error) {
	q := ethereum.FilterQuery{
		BlockHash: f.BlockHash,
		FromBlock: blockNumber(f.FromBlock),
		ToBlock:   blockNumber(f.ToBlock),
	}

	addresses, err := oneOrMany[common.Address](f.Address)
	if err != nil {
		return q, fmt.Errorf("address: %w", err)
	}
	q.Addresses = addresses

	for i, raw := range f.Topics {
		topics, err := oneOrMany[common.Hash](raw)
		if err != nil {
			return q, fmt.Errorf("topic %d: %w", i, err)
		}
		q.Topics = append(q.Topics, topics)
	}
	return q, nil
}

func oneOrMany[T any](raw json.RawMessage) ([]T, error) {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return nil, nil
	}
	if strings.HasPrefix(s, "[") {
		var many []T
		if err := json.Unmarshal(raw, &many); err != nil {
			return nil, err
		}
		return many, nil
	}
	var one T
	if err := json.Unmarshal(raw, &one); err != nil {
		return nil, err
	}
	return []T{one}, nil
}

// blockNumber maps a block tag to a number, where nil selects the latest
// block.
func blockNumber(n *rpc.BlockNumber) *big.Int {
	if n == nil {
		return nil
	}
	switch *n {
	case rpc.EarliestBlockNumber:
		return new(big.Int)
	case rpc.LatestBlockNumber, rpc.PendingBlockNumber, rpc.SafeBlockNumber, rpc.FinalizedBlockNumber:
		return nil
	}
	return big.NewInt(n.Int64())
}

// Quantity accepts both JSON numbers and hex encoded quantities, as test
// tooling sends either.
type Quantity uint64

func (q *Quantity) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if strings.HasPrefix(s, "0x") {
		v, err := hexutil.DecodeUint64(s)
		if err != nil {
			return err
		}
		*q = Quantity(v)
		return nil
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return errors.New("invalid quantity")
	}
	*q = Quantity(v)
	return nil
}
