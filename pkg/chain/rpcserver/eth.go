// Copyright 2024 The rafflekit Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rpcserver

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/rafflekit/rafflekit/pkg/chain"
	"github.com/rafflekit/rafflekit/pkg/logging"
)

var errUnknownAccount = errors.New("unknown account")

type ethAPI struct {
	chain  *chain.Chain
	logger logging.Logger
}

func (api *ethAPI) ChainId(ctx context.Context) (*hexutil.Big, error) {
	id, err := api.chain.ChainID(ctx)
	return (*hexutil.Big)(id), err
}

func (api *ethAPI) BlockNumber(ctx context.Context) (hexutil.Uint64, error) {
	n, err := api.chain.BlockNumber(ctx)
	return hexutil.Uint64(n), err
}

func (api *ethAPI) Accounts() []common.Address {
	return api.chain.Accounts()
}

func (api *ethAPI) GetBalance(ctx context.Context, addr common.Address, _ *rpc.BlockNumberOrHash) (*hexutil.Big, error) {
	b, err := api.chain.BalanceAt(ctx, addr, nil)
	return (*hexutil.Big)(b), err
}

func (api *ethAPI) GetTransactionCount(ctx context.Context, addr common.Address, _ *rpc.BlockNumberOrHash) (hexutil.Uint64, error) {
	n, err := api.chain.NonceAt(ctx, addr, nil)
	return hexutil.Uint64(n), err
}

func (api *ethAPI) GetCode(ctx context.Context, addr common.Address, _ *rpc.BlockNumberOrHash) (hexutil.Bytes, error) {
	return api.chain.CodeAt(ctx, addr, nil)
}

func (api *ethAPI) Call(ctx context.Context, args TransactionArgs, _ *rpc.BlockNumberOrHash) (hexutil.Bytes, error) {
	return api.chain.CallContract(ctx, args.callMsg(), nil)
}

func (api *ethAPI) EstimateGas(ctx context.Context, args TransactionArgs, _ *rpc.BlockNumberOrHash) (hexutil.Uint64, error) {
	gas, err := api.chain.EstimateGas(ctx, args.callMsg())
	return hexutil.Uint64(gas), err
}

func (api *ethAPI) GasPrice(ctx context.Context) (*hexutil.Big, error) {
	p, err := api.chain.SuggestGasPrice(ctx)
	return (*hexutil.Big)(p), err
}

func (api *ethAPI) MaxPriorityFeePerGas(ctx context.Context) (*hexutil.Big, error) {
	p, err := api.chain.SuggestGasTipCap(ctx)
	return (*hexutil.Big)(p), err
}

func (api *ethAPI) SendRawTransaction(ctx context.Context, input hexutil.Bytes) (common.Hash, error) {
	tx := new(types.Transaction)
	if err := tx.UnmarshalBinary(input); err != nil {
		return common.Hash{}, err
	}
	if err := api.chain.SendTransaction(ctx, tx); err != nil {
		return common.Hash{}, err
	}
	return tx.Hash(), nil
}

// SendTransaction signs the transaction with the key of one of the chain's
// accounts and sends it.
func (api *ethAPI) SendTransaction(ctx context.Context, args TransactionArgs) (common.Hash, error) {
	if args.From == nil {
		return common.Hash{}, errors.New("missing from address")
	}
	key, err := api.key(*args.From)
	if err != nil {
		return common.Hash{}, err
	}
	chainID, err := api.chain.ChainID(ctx)
	if err != nil {
		return common.Hash{}, err
	}

	nonce, err := api.chain.PendingNonceAt(ctx, *args.From)
	if err != nil {
		return common.Hash{}, err
	}
	if args.Nonce != nil {
		nonce = uint64(*args.Nonce)
	}
	var gas uint64
	if args.Gas != nil {
		gas = uint64(*args.Gas)
	} else {
		gas, err = api.chain.EstimateGas(ctx, args.callMsg())
		if err != nil {
			return common.Hash{}, err
		}
	}
	value := new(big.Int)
	if args.Value != nil {
		value = args.Value.ToInt()
	}

	var data types.TxData
	if args.GasPrice != nil {
		data = &types.LegacyTx{
			Nonce:    nonce,
			To:       args.To,
			Value:    value,
			Gas:      gas,
			GasPrice: args.GasPrice.ToInt(),
			Data:     args.data(),
		}
	} else {
		feeCap := new(big.Int).Mul(chain.BaseFee, big.NewInt(2))
		tip := new(big.Int).Set(chain.BaseFee)
		if args.MaxFeePerGas != nil {
			feeCap = args.MaxFeePerGas.ToInt()
		}
		if args.MaxPriorityFeePerGas != nil {
			tip = args.MaxPriorityFeePerGas.ToInt()
		}
		data = &types.DynamicFeeTx{
			ChainID:   chainID,
			Nonce:     nonce,
			To:        args.To,
			Value:     value,
			Gas:       gas,
			GasFeeCap: feeCap,
			GasTipCap: tip,
			Data:      args.data(),
		}
	}

	tx, err := types.SignNewTx(key, types.LatestSignerForChainID(chainID), data)
	if err != nil {
		return common.Hash{}, err
	}
	if err := api.chain.SendTransaction(ctx, tx); err != nil {
		return common.Hash{}, err
	}
	api.logger.Debugf("rpc: sent transaction %s from %s", tx.Hash(), args.From)
	return tx.Hash(), nil
}

func (api *ethAPI) key(addr common.Address) (*ecdsa.PrivateKey, error) {
	for i, a := range api.chain.Accounts() {
		if a == addr {
			return api.chain.Key(i)
		}
	}
	return nil, fmt.Errorf("%w %s", errUnknownAccount, addr)
}

func (api *ethAPI) GetTransactionReceipt(ctx context.Context, hash common.Hash) (map[string]json.RawMessage, error) {
	receipt, err := api.chain.TransactionReceipt(ctx, hash)
	if errors.Is(err, ethereum.NotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	tx, _, err := api.chain.TransactionByHash(ctx, hash)
	if err != nil {
		return nil, err
	}
	from, err := api.chain.TransactionSender(tx)
	if err != nil {
		return nil, err
	}
	return merge(receipt, map[string]interface{}{
		"from": from,
		"to":   tx.To(),
	})
}

func (api *ethAPI) GetTransactionByHash(ctx context.Context, hash common.Hash) (map[string]json.RawMessage, error) {
	tx, _, err := api.chain.TransactionByHash(ctx, hash)
	if errors.Is(err, ethereum.NotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	receipt, err := api.chain.TransactionReceipt(ctx, hash)
	if err != nil {
		return nil, err
	}
	return api.rpcTransaction(tx, receipt.BlockHash, receipt.BlockNumber, receipt.TransactionIndex)
}

func (api *ethAPI) rpcTransaction(tx *types.Transaction, blockHash common.Hash, blockNumber *big.Int, index uint) (map[string]json.RawMessage, error) {
	from, err := api.chain.TransactionSender(tx)
	if err != nil {
		return nil, err
	}
	return merge(tx, map[string]interface{}{
		"blockHash":        blockHash,
		"blockNumber":      (*hexutil.Big)(blockNumber),
		"from":             from,
		"transactionIndex": hexutil.Uint64(index),
	})
}

func (api *ethAPI) GetBlockByNumber(ctx context.Context, number rpc.BlockNumber, fullTx bool) (map[string]json.RawMessage, error) {
	header, txs, err := api.chain.BlockTransactions(ctx, blockNumber(&number))
	if errors.Is(err, ethereum.NotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return api.rpcBlock(header, txs, fullTx)
}

func (api *ethAPI) GetBlockByHash(ctx context.Context, hash common.Hash, fullTx bool) (map[string]json.RawMessage, error) {
	header, err := api.chain.HeaderByHash(ctx, hash)
	if errors.Is(err, ethereum.NotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	header, txs, err := api.chain.BlockTransactions(ctx, header.Number)
	if err != nil {
		return nil, err
	}
	return api.rpcBlock(header, txs, fullTx)
}

func (api *ethAPI) rpcBlock(header *types.Header, txs []*types.Transaction, fullTx bool) (map[string]json.RawMessage, error) {
	list := make([]interface{}, 0, len(txs))
	for i, tx := range txs {
		if !fullTx {
			list = append(list, tx.Hash())
			continue
		}
		rtx, err := api.rpcTransaction(tx, header.Hash(), header.Number, uint(i))
		if err != nil {
			return nil, err
		}
		list = append(list, rtx)
	}
	return merge(header, map[string]interface{}{
		"transactions":    list,
		"uncles":          []common.Hash{},
		"totalDifficulty": (*hexutil.Big)(new(big.Int)),
		"size":            hexutil.Uint64(header.Size()),
	})
}

func (api *ethAPI) GetLogs(ctx context.Context, args FilterArgs) ([]types.Log, error) {
	q, err := args.query()
	if err != nil {
		return nil, err
	}
	return api.chain.FilterLogs(ctx, q)
}

// Logs serves eth_subscribe("logs", filter).
func (api *ethAPI) Logs(ctx context.Context, args FilterArgs) (*rpc.Subscription, error) {
	notifier, supported := rpc.NotifierFromContext(ctx)
	if !supported {
		return nil, rpc.ErrNotificationsUnsupported
	}
	q, err := args.query()
	if err != nil {
		return nil, err
	}

	rpcSub := notifier.CreateSubscription()
	logs := make(chan types.Log, 16)
	sub, err := api.chain.SubscribeFilterLogs(context.Background(), q, logs)
	if err != nil {
		return nil, err
	}

	go func() {
		defer sub.Unsubscribe()
		for {
			select {
			case l := <-logs:
				if err := notifier.Notify(rpcSub.ID, l); err != nil {
					api.logger.Debugf("rpc: notify logs subscription %s: %v", rpcSub.ID, err)
					return
				}
			case <-rpcSub.Err():
				return
			case <-sub.Err():
				return
			}
		}
	}()
	return rpcSub, nil
}
