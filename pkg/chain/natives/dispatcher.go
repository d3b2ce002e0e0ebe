// Copyright 2024 The rafflekit Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package natives

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rafflekit/rafflekit/pkg/chain"
)

// viewGas is charged by getters without an explicit cost.
const viewGas = 2_000

type handler func(env *chain.Env, args []interface{}) ([]interface{}, error)

// dispatcher routes ABI encoded calls to handlers.
type dispatcher struct {
	abi      abi.ABI
	handlers map[string]handler
	gas      map[string]uint64
}

func (d *dispatcher) dispatch(env *chain.Env, input []byte) ([]byte, error) {
	// neither contract has a receive or fallback function
	if len(input) < 4 {
		return nil, chain.Revert(nil)
	}
	method, err := d.abi.MethodById(input[:4])
	if err != nil {
		return nil, chain.Revert(nil)
	}
	h, ok := d.handlers[method.Name]
	if !ok {
		return nil, chain.Revert(nil)
	}
	if !method.IsPayable() && env.Value().Sign() > 0 {
		return nil, chain.Revert(nil)
	}
	args, err := method.Inputs.Unpack(input[4:])
	if err != nil {
		return nil, chain.Revert(nil)
	}

	gas, ok := d.gas[method.Name]
	if !ok {
		gas = viewGas
	}
	if err := env.UseGas(gas); err != nil {
		return nil, err
	}

	out, err := h(env, args)
	if err != nil {
		return nil, err
	}
	return method.Outputs.Pack(out...)
}

// customError encodes the named ABI error.
func (d *dispatcher) customError(name string, args ...interface{}) error {
	e, ok := d.abi.Errors[name]
	if !ok {
		return fmt.Errorf("unknown error %s", name)
	}
	packed, err := e.Inputs.Pack(args...)
	if err != nil {
		return err
	}
	return chain.Revert(append(append([]byte(nil), e.ID[:4]...), packed...))
}

// emit logs the named event. Arguments are given in ABI order.
func (d *dispatcher) emit(env *chain.Env, name string, args ...interface{}) error {
	ev, ok := d.abi.Events[name]
	if !ok {
		return fmt.Errorf("unknown event %s", name)
	}
	if len(args) != len(ev.Inputs) {
		return fmt.Errorf("event %s: got %d arguments, want %d", name, len(args), len(ev.Inputs))
	}

	topics := []common.Hash{ev.ID}
	var data []interface{}
	for i, in := range ev.Inputs {
		if !in.Indexed {
			data = append(data, args[i])
			continue
		}
		t, err := abi.MakeTopics([]interface{}{args[i]})
		if err != nil {
			return fmt.Errorf("event %s: %w", name, err)
		}
		topics = append(topics, t[0][0])
	}
	packed, err := ev.Inputs.NonIndexed().Pack(data...)
	if err != nil {
		return fmt.Errorf("event %s: %w", name, err)
	}
	env.Emit(topics, packed)
	return nil
}

func u256(v uint64) *big.Int {
	return new(big.Int).SetUint64(v)
}
