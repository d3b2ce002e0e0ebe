// Copyright 2024 The rafflekit Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package chain

import (
	"bytes"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/params"
	"github.com/ethereum/go-ethereum/trie"
	"github.com/rafflekit/rafflekit/pkg/artifacts"
)

type message struct {
	from  common.Address
	to    *common.Address
	nonce uint64
	value *big.Int
	data  []byte
	gas   uint64
}

type result struct {
	ret     []byte
	gasUsed uint64
	created common.Address
	logs    []*types.Log
	hooks   []func()
	err     error
}

// intrinsicGas is the gas charged before any code runs.
func intrinsicGas(data []byte, create bool) uint64 {
	gas := params.TxGas
	if create {
		gas = params.TxGasContractCreation
	}
	for _, b := range data {
		if b == 0 {
			gas += params.TxDataZeroGas
		} else {
			gas += params.TxDataNonZeroGasEIP2028
		}
	}
	return gas
}

// execute runs msg in the context of header. State changes are kept even
// on failure; callers decide whether to roll back.
func (c *Chain) execute(header *types.Header, msg message) result {
	var (
		logs  []*types.Log
		hooks []func()
	)
	meter := &gasMeter{limit: msg.gas}
	if err := meter.use(intrinsicGas(msg.data, msg.to == nil)); err != nil {
		return result{gasUsed: meter.used, err: ErrIntrinsicGas}
	}

	env := &Env{
		chain:  c,
		header: header,
		origin: msg.from,
		caller: msg.from,
		value:  msg.value,
		gas:    meter,
		logs:   &logs,
		hooks:  &hooks,
	}

	var r result
	if msg.to == nil {
		r.created, r.err = c.create(env, msg)
	} else {
		env.self = *msg.to
		env.stack = []common.Address{*msg.to}
		r.ret, r.err = c.run(env, msg.data)
	}
	if errors.Is(r.err, ErrOutOfGas) {
		meter.used = meter.limit
	}
	r.gasUsed = meter.used
	r.logs = logs
	r.hooks = hooks
	return r
}

func (c *Chain) create(env *Env, msg message) (common.Address, error) {
	addr := crypto.CreateAddress(msg.from, msg.nonce)
	if a, ok := c.accounts[addr]; ok && (a.contract != nil || a.nonce > 0) {
		return addr, ErrContractExists
	}
	name, ok := c.nativeName(msg.data)
	if !ok {
		if n, native := artifacts.NativeName(msg.data); native {
			return addr, fmt.Errorf("%w: no native contract %q", ErrUnsupportedCode, n)
		}
		return addr, ErrUnsupportedCode
	}
	factory := c.factories[name]
	code := artifacts.NativeCode(name)
	if err := env.UseGas(params.CreateDataGas * uint64(len(code))); err != nil {
		return addr, err
	}

	env.self = addr
	env.stack = []common.Address{addr}
	if err := c.transfer(env.caller, addr, env.value); err != nil {
		return addr, err
	}
	contract, err := factory(env, msg.data[len(code):])
	if err != nil {
		return addr, err
	}
	a := c.account(addr)
	a.nonce = 1
	a.code = code
	a.name = name
	a.contract = contract
	return addr, nil
}

// nativeName returns the longest registered contract name whose marker
// prefixes data.
func (c *Chain) nativeName(data []byte) (string, bool) {
	var found string
	for name := range c.factories {
		if len(name) > len(found) && bytes.HasPrefix(data, artifacts.NativeCode(name)) {
			found = name
		}
	}
	return found, found != ""
}

// call executes msg against the current state and discards every change.
func (c *Chain) call(header *types.Header, msg message) result {
	snap := c.snapshotState(nil)
	defer c.restoreState(snap)

	if msg.gas == 0 {
		msg.gas = c.blockGasLimit
	}
	if msg.value == nil {
		msg.value = new(big.Int)
	}
	msg.nonce = c.account(msg.from).nonce
	return c.execute(header, msg)
}

func (c *Chain) pendingHeader() *types.Header {
	parent := c.latest().header
	return &types.Header{
		ParentHash:  parent.Hash(),
		UncleHash:   types.EmptyUncleHash,
		Coinbase:    Coinbase,
		Root:        types.EmptyRootHash,
		TxHash:      types.EmptyTxsHash,
		ReceiptHash: types.EmptyReceiptsHash,
		Difficulty:  new(big.Int),
		Number:      new(big.Int).Add(parent.Number, big.NewInt(1)),
		GasLimit:    c.blockGasLimit,
		Time:        c.nextTimestamp(),
		BaseFee:     new(big.Int).Set(BaseFee),
	}
}

func (c *Chain) nextTimestamp() uint64 {
	latest := c.latest().header.Time
	if c.nextTime != 0 {
		return c.nextTime
	}
	var ts uint64
	if c.clock != nil {
		ts = uint64(c.clock().Unix()) + c.offset
	} else {
		ts = latest + 1 + c.offset
	}
	if ts <= latest {
		ts = latest + 1
	}
	return ts
}

// effectiveGasPrice is the price per gas paid by tx under baseFee.
func effectiveGasPrice(tx *types.Transaction, baseFee *big.Int) *big.Int {
	if tx.Type() == types.LegacyTxType || tx.Type() == types.AccessListTxType {
		return new(big.Int).Set(tx.GasPrice())
	}
	price := new(big.Int).Add(baseFee, tx.GasTipCap())
	if price.Cmp(tx.GasFeeCap()) > 0 {
		price.Set(tx.GasFeeCap())
	}
	return price
}

// applyTransaction validates tx, executes it in a new block and returns
// the contract creation, if any, and the commit hooks of the execution.
func (c *Chain) applyTransaction(tx *types.Transaction) (*block, *Creation, []func(), error) {
	if _, ok := c.txBlocks[tx.Hash()]; ok {
		return nil, nil, nil, ErrAlreadyKnown
	}
	from, err := types.Sender(c.signer, tx)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("invalid sender: %w", err)
	}
	sender := c.account(from)
	switch {
	case tx.Nonce() < sender.nonce:
		return nil, nil, nil, fmt.Errorf("%w: address %s, tx: %d state: %d", ErrNonceTooLow, from, tx.Nonce(), sender.nonce)
	case tx.Nonce() > sender.nonce:
		return nil, nil, nil, fmt.Errorf("%w: address %s, tx: %d state: %d", ErrNonceTooHigh, from, tx.Nonce(), sender.nonce)
	}
	if tx.Gas() > c.blockGasLimit {
		return nil, nil, nil, ErrGasLimit
	}
	if tx.Gas() < intrinsicGas(tx.Data(), tx.To() == nil) {
		return nil, nil, nil, ErrIntrinsicGas
	}
	if tx.GasFeeCap().Cmp(BaseFee) < 0 {
		return nil, nil, nil, fmt.Errorf("%w: address %s, maxFeePerGas: %s baseFee: %s", ErrFeeCapTooLow, from, tx.GasFeeCap(), BaseFee)
	}
	maxCost := new(big.Int).Mul(new(big.Int).SetUint64(tx.Gas()), tx.GasFeeCap())
	maxCost.Add(maxCost, tx.Value())
	if sender.balance.Cmp(maxCost) < 0 {
		return nil, nil, nil, fmt.Errorf("%w: address %s have %s want %s", ErrInsufficientFunds, from, sender.balance, maxCost)
	}

	header := c.pendingHeader()
	price := effectiveGasPrice(tx, header.BaseFee)
	prepaid := new(big.Int).Mul(new(big.Int).SetUint64(tx.Gas()), price)
	sender.balance = new(big.Int).Sub(sender.balance, prepaid)
	nonce := sender.nonce
	sender.nonce++

	snap := c.snapshotState(nil)
	r := c.execute(header, message{
		from:  from,
		to:    tx.To(),
		nonce: nonce,
		value: tx.Value(),
		data:  tx.Data(),
		gas:   tx.Gas(),
	})
	status := types.ReceiptStatusSuccessful
	if r.err != nil {
		c.restoreState(snap)
		r.logs = nil
		r.hooks = nil
		status = types.ReceiptStatusFailed
		c.metrics.RevertedTransactions.Inc()
		c.logger.Debugf("chain: transaction %s reverted: %v", tx.Hash(), r.err)
	}
	refund := new(big.Int).Mul(new(big.Int).SetUint64(tx.Gas()-r.gasUsed), price)
	refunded := c.account(from)
	refunded.balance = new(big.Int).Add(refunded.balance, refund)

	receipt := &types.Receipt{
		Type:              tx.Type(),
		Status:            status,
		CumulativeGasUsed: r.gasUsed,
		Logs:              r.logs,
		TxHash:            tx.Hash(),
		GasUsed:           r.gasUsed,
		EffectiveGasPrice: price,
		BlockNumber:       new(big.Int).Set(header.Number),
		TransactionIndex:  0,
	}
	if receipt.Logs == nil {
		receipt.Logs = []*types.Log{}
	}
	var creation *Creation
	if tx.To() == nil {
		receipt.ContractAddress = r.created
		if r.err == nil {
			creation = &Creation{
				Address:     r.created,
				Name:        c.accounts[r.created].name,
				TxHash:      tx.Hash(),
				BlockNumber: header.Number.Uint64(),
			}
		}
	}
	for i, l := range receipt.Logs {
		l.BlockNumber = header.Number.Uint64()
		l.TxHash = tx.Hash()
		l.TxIndex = 0
		l.Index = uint(i)
	}
	receipt.Bloom = types.CreateBloom(types.Receipts{receipt})

	header.GasUsed = r.gasUsed
	header.Bloom = receipt.Bloom
	header.TxHash = types.DeriveSha(types.Transactions{tx}, trie.NewStackTrie(nil))
	header.ReceiptHash = types.DeriveSha(types.Receipts{receipt}, trie.NewStackTrie(nil))

	b := &block{header: header, tx: tx, receipt: receipt}
	c.seal(b)
	c.metrics.Transactions.Inc()
	return b, creation, r.hooks, nil
}

// seal fills in the block hash and appends the block.
func (c *Chain) seal(b *block) {
	hash := b.header.Hash()
	if b.receipt != nil {
		b.receipt.BlockHash = hash
		for _, l := range b.receipt.Logs {
			l.BlockHash = hash
		}
	}
	c.appendBlock(b)
	c.nextTime = 0
	if c.clock == nil {
		c.offset = 0
	}
	c.metrics.BlocksMined.Inc()
}
