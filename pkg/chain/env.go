// Copyright 2024 The rafflekit Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package chain

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/params"
)

type gasMeter struct {
	limit uint64
	used  uint64
}

func (g *gasMeter) use(n uint64) error {
	if g.limit-g.used < n {
		g.used = g.limit
		return ErrOutOfGas
	}
	g.used += n
	return nil
}

func (g *gasMeter) remaining() uint64 {
	return g.limit - g.used
}

// Env is the execution context of a native contract call frame. It is only
// valid for the duration of the call it was passed to.
type Env struct {
	chain  *Chain
	header *types.Header
	origin common.Address
	caller common.Address
	self   common.Address
	value  *big.Int
	gas    *gasMeter
	logs   *[]*types.Log
	hooks  *[]func()
	stack  []common.Address
}

// Caller is the immediate sender of the call.
func (e *Env) Caller() common.Address { return e.caller }

// Origin is the sender of the transaction.
func (e *Env) Origin() common.Address { return e.origin }

// Self is the address of the executing contract.
func (e *Env) Self() common.Address { return e.self }

// Value is the amount of wei sent with the call.
func (e *Env) Value() *big.Int { return new(big.Int).Set(e.value) }

// Now is the timestamp of the block the call executes in.
func (e *Env) Now() uint64 { return e.header.Time }

func (e *Env) BlockNumber() uint64 { return e.header.Number.Uint64() }

// Balance returns the balance of the executing contract.
func (e *Env) Balance() *big.Int { return e.chain.balance(e.self) }

func (e *Env) BalanceOf(addr common.Address) *big.Int { return e.chain.balance(addr) }

// UseGas charges n gas to the frame.
func (e *Env) UseGas(n uint64) error { return e.gas.use(n) }

func (e *Env) GasUsed() uint64 { return e.gas.used }

// Emit appends a log of the executing contract.
func (e *Env) Emit(topics []common.Hash, data []byte) {
	*e.logs = append(*e.logs, &types.Log{
		Address: e.self,
		Topics:  append([]common.Hash(nil), topics...),
		Data:    append([]byte(nil), data...),
	})
}

// OnCommit registers fn to run once the transaction executing the frame is
// mined successfully. Hooks of frames that fail are dropped together with
// their logs, and hooks never run for calls. They run in registration order
// after the chain lock is released.
func (e *Env) OnCommit(fn func()) {
	*e.hooks = append(*e.hooks, fn)
}

// Transfer sends amount from the executing contract to to. Sending to a
// contract invokes it with empty input.
func (e *Env) Transfer(to common.Address, amount *big.Int) error {
	_, err := e.Call(to, nil, amount)
	return err
}

// Call invokes to with all the remaining gas of the frame.
func (e *Env) Call(to common.Address, input []byte, value *big.Int) ([]byte, error) {
	out, _, err := e.CallWithGas(to, input, value, e.gas.remaining())
	return out, err
}

// CallWithGas invokes to in a nested frame limited to gas. A failing frame
// is rolled back without affecting the caller, which receives the error.
// The gas used by the nested frame is returned and charged to the caller.
func (e *Env) CallWithGas(to common.Address, input []byte, value *big.Int, gas uint64) ([]byte, uint64, error) {
	if value == nil {
		value = new(big.Int)
	}
	cost := params.CallGasEIP150
	if value.Sign() > 0 {
		cost += params.CallValueTransferGas
	}
	if err := e.gas.use(cost); err != nil {
		return nil, 0, err
	}
	for _, a := range e.stack {
		if a == to {
			return nil, 0, ErrReentrantCall
		}
	}
	if gas > e.gas.remaining() {
		gas = e.gas.remaining()
	}

	c := e.chain
	snap := c.snapshotState(e.stack)
	logs := len(*e.logs)
	hooks := len(*e.hooks)

	child := &Env{
		chain:  c,
		header: e.header,
		origin: e.origin,
		caller: e.self,
		self:   to,
		value:  new(big.Int).Set(value),
		gas:    &gasMeter{limit: gas},
		logs:   e.logs,
		hooks:  e.hooks,
		stack:  append(append([]common.Address(nil), e.stack...), to),
	}

	out, err := c.run(child, input)
	// the caller pays for the nested frame even when it fails
	_ = e.gas.use(child.gas.used)
	if err != nil {
		c.restoreState(snap)
		*e.logs = (*e.logs)[:logs]
		*e.hooks = (*e.hooks)[:hooks]
		return nil, child.gas.used, err
	}
	return out, child.gas.used, nil
}

// run moves the call value and executes the code at env.self.
func (c *Chain) run(env *Env, input []byte) ([]byte, error) {
	if err := c.transfer(env.caller, env.self, env.value); err != nil {
		return nil, err
	}
	a, ok := c.accounts[env.self]
	if !ok || a.contract == nil {
		return nil, nil
	}
	return a.contract.Call(env, input)
}
