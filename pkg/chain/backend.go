// Copyright 2024 The rafflekit Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package chain

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/event"
)

// Balances, nonces and code are always read from the latest state; block
// number arguments only select headers, receipts and logs.

func (c *Chain) ChainID(ctx context.Context) (*big.Int, error) {
	return new(big.Int).Set(c.chainID), nil
}

func (c *Chain) BlockNumber(ctx context.Context) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.latest().header.Number.Uint64(), nil
}

// HeaderByNumber returns the header of the given block, or the latest one
// when number is nil or negative.
func (c *Chain) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	b, err := c.blockByNumber(number)
	if err != nil {
		return nil, err
	}
	return types.CopyHeader(b.header), nil
}

func (c *Chain) HeaderByHash(ctx context.Context, hash common.Hash) (*types.Header, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	n, ok := c.byHash[hash]
	if !ok {
		return nil, ethereum.NotFound
	}
	return types.CopyHeader(c.blocks[n].header), nil
}

// BlockTransactions returns the header and transactions of the given
// block, or of the latest one when number is nil or negative.
func (c *Chain) BlockTransactions(ctx context.Context, number *big.Int) (*types.Header, []*types.Transaction, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	b, err := c.blockByNumber(number)
	if err != nil {
		return nil, nil, err
	}
	txs := []*types.Transaction{}
	if b.tx != nil {
		txs = append(txs, b.tx)
	}
	return types.CopyHeader(b.header), txs, nil
}

func (c *Chain) blockByNumber(number *big.Int) (*block, error) {
	if number == nil || number.Sign() < 0 {
		return c.latest(), nil
	}
	if !number.IsUint64() || number.Uint64() >= uint64(len(c.blocks)) {
		return nil, ethereum.NotFound
	}
	return c.blocks[number.Uint64()], nil
}

func (c *Chain) BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.balance(account), nil
}

func (c *Chain) NonceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if a, ok := c.accounts[account]; ok {
		return a.nonce, nil
	}
	return 0, nil
}

// PendingNonceAt equals NonceAt since every transaction is mined at once.
func (c *Chain) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	return c.NonceAt(ctx, account, nil)
}

func (c *Chain) CodeAt(ctx context.Context, contract common.Address, blockNumber *big.Int) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if a, ok := c.accounts[contract]; ok {
		return append([]byte(nil), a.code...), nil
	}
	return nil, nil
}

func (c *Chain) PendingCodeAt(ctx context.Context, account common.Address) ([]byte, error) {
	return c.CodeAt(ctx, account, nil)
}

// CallContract executes call on top of the latest block without changing
// any state.
func (c *Chain) CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	header := types.CopyHeader(c.latest().header)
	r := c.call(header, callMessage(call))
	if r.err != nil {
		return nil, r.err
	}
	return r.ret, nil
}

// EstimateGas executes call in the context of the next block and returns
// the gas it used.
func (c *Chain) EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	msg := callMessage(call)
	r := c.call(c.pendingHeader(), msg)
	if r.err != nil {
		return 0, r.err
	}
	return r.gasUsed, nil
}

func callMessage(call ethereum.CallMsg) message {
	return message{
		from:  call.From,
		to:    call.To,
		value: call.Value,
		data:  call.Data,
		gas:   call.Gas,
	}
}

// SuggestGasPrice returns twice the base fee.
func (c *Chain) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return new(big.Int).Mul(BaseFee, big.NewInt(2)), nil
}

func (c *Chain) SuggestGasTipCap(ctx context.Context) (*big.Int, error) {
	return new(big.Int).Set(BaseFee), nil
}

// SendTransaction executes tx and mines it into a new block. A transaction
// whose execution fails is still mined with a failed receipt; only invalid
// transactions return an error.
func (c *Chain) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	c.mu.Lock()
	b, creation, hooks, err := c.applyTransaction(tx)
	c.mu.Unlock()
	if err != nil {
		return err
	}

	c.logger.Tracef("chain: mined block %d with transaction %s", b.header.Number, tx.Hash())
	c.headFeed.Send(types.CopyHeader(b.header))
	if creation != nil {
		c.logger.Debugf("chain: deployed %s at %s", creation.Name, creation.Address)
		c.creationFeed.Send(*creation)
	}
	if len(b.receipt.Logs) > 0 {
		c.logsFeed.Send(b.receipt.Logs)
	}
	for _, hook := range hooks {
		hook()
	}
	return nil
}

func (c *Chain) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	n, ok := c.txBlocks[txHash]
	if !ok {
		return nil, ethereum.NotFound
	}
	r := *c.blocks[n].receipt
	return &r, nil
}

func (c *Chain) TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	n, ok := c.txBlocks[hash]
	if !ok {
		return nil, false, ethereum.NotFound
	}
	return c.blocks[n].tx, false, nil
}

// TransactionSender recovers the sender of a mined transaction.
func (c *Chain) TransactionSender(tx *types.Transaction) (common.Address, error) {
	return types.Sender(c.signer, tx)
}

// FilterLogs returns the logs matching q in block order.
func (c *Chain) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	from, to := uint64(0), c.latest().header.Number.Uint64()
	if q.BlockHash != nil {
		n, ok := c.byHash[*q.BlockHash]
		if !ok {
			return nil, ethereum.NotFound
		}
		from, to = n, n
	} else {
		if q.FromBlock != nil && q.FromBlock.Sign() >= 0 {
			from = q.FromBlock.Uint64()
		}
		if q.ToBlock != nil && q.ToBlock.Sign() >= 0 && q.ToBlock.Uint64() < to {
			to = q.ToBlock.Uint64()
		}
	}

	logs := []types.Log{}
	for n := from; n <= to && n < uint64(len(c.blocks)); n++ {
		r := c.blocks[n].receipt
		if r == nil {
			continue
		}
		for _, l := range r.Logs {
			if matchLog(q, l) {
				logs = append(logs, *l)
			}
		}
	}
	return logs, nil
}

// SubscribeNewHead delivers the header of every mined block.
func (c *Chain) SubscribeNewHead(ctx context.Context, ch chan<- *types.Header) (ethereum.Subscription, error) {
	return c.headFeed.Subscribe(ch), nil
}

// SubscribeFilterLogs delivers logs matching the addresses and topics of q
// as they are mined. Block ranges are ignored.
func (c *Chain) SubscribeFilterLogs(ctx context.Context, q ethereum.FilterQuery, ch chan<- types.Log) (ethereum.Subscription, error) {
	logsC := make(chan []*types.Log, 16)
	sub := c.logsFeed.Subscribe(logsC)
	return event.NewSubscription(func(quit <-chan struct{}) error {
		defer sub.Unsubscribe()
		for {
			select {
			case logs := <-logsC:
				for _, l := range logs {
					if !matchLog(q, l) {
						continue
					}
					select {
					case ch <- *l:
					case <-quit:
						return nil
					}
				}
			case err := <-sub.Err():
				return err
			case <-quit:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}), nil
}

func matchLog(q ethereum.FilterQuery, l *types.Log) bool {
	if len(q.Addresses) > 0 {
		found := false
		for _, a := range q.Addresses {
			if a == l.Address {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	for i, alternatives := range q.Topics {
		if len(alternatives) == 0 {
			continue
		}
		if i >= len(l.Topics) {
			return false
		}
		found := false
		for _, t := range alternatives {
			if t == l.Topics[i] {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
