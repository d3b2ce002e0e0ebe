// Copyright 2024 The rafflekit Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package natives

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rafflekit/rafflekit/pkg/artifacts"
	"github.com/rafflekit/rafflekit/pkg/chain"
	"github.com/rafflekit/rafflekit/pkg/raffle"
)

var (
	raffleABI      = artifacts.MustLoad(artifacts.RaffleName).MustParseABI()
	coordinatorABI = artifacts.MustLoad(artifacts.CoordinatorMockName).MustParseABI()
)

// Raffle is the native Raffle contract.
type Raffle struct {
	dispatcher
	raffle *raffle.Raffle
}

// NewRaffle is the chain.Factory of the Raffle contract.
func NewRaffle(env *chain.Env, args []byte) (chain.Contract, error) {
	vals, err := raffleABI.Constructor.Inputs.Unpack(args)
	if err != nil {
		return nil, chain.Revert(nil)
	}
	interval := vals[3].(*big.Int)
	if !interval.IsUint64() {
		return nil, chain.Revert(nil)
	}
	cfg := raffle.Config{
		Coordinator:      vals[0].(common.Address),
		EntranceFee:      vals[1].(*big.Int),
		GasLane:          common.Hash(vals[2].([32]byte)),
		Interval:         interval.Uint64(),
		CallbackGasLimit: vals[4].(uint32),
		SubscriptionID:   vals[5].(uint64),
	}
	r, err := raffle.New(cfg, env.Now())
	if err != nil {
		return nil, chain.RevertReason(err.Error())
	}

	c := &Raffle{raffle: r}
	c.dispatcher = dispatcher{
		abi: raffleABI,
		handlers: map[string]handler{
			"enterRaffle":           c.enterRaffle,
			"checkUpkeep":           c.checkUpkeep,
			"performUpkeep":         c.performUpkeep,
			"rawFulfillRandomWords": c.rawFulfillRandomWords,
			"getEntranceFee":        func(*chain.Env, []interface{}) ([]interface{}, error) { return out(r.EntranceFee()) },
			"getInterval":           func(*chain.Env, []interface{}) ([]interface{}, error) { return out(u256(r.Interval())) },
			"getGasLane":            func(*chain.Env, []interface{}) ([]interface{}, error) { return out([32]byte(r.GasLane())) },
			"getSubscriptionId":     func(*chain.Env, []interface{}) ([]interface{}, error) { return out(r.SubscriptionID()) },
			"getCallbackGasLimit":   func(*chain.Env, []interface{}) ([]interface{}, error) { return out(r.CallbackGasLimit()) },
			"getRaffleState":        func(*chain.Env, []interface{}) ([]interface{}, error) { return out(uint8(r.State())) },
			"getNumberOfPlayers":    func(*chain.Env, []interface{}) ([]interface{}, error) { return out(u256(r.NumberOfPlayers())) },
			"getRecentWinner":       func(*chain.Env, []interface{}) ([]interface{}, error) { return out(r.RecentWinner()) },
			"getLastTimeStamp":      func(*chain.Env, []interface{}) ([]interface{}, error) { return out(u256(r.LastTimestamp())) },
			"getNumWords":           func(*chain.Env, []interface{}) ([]interface{}, error) { return out(u256(uint64(raffle.NumWords))) },
			"getRequestConfirmations": func(*chain.Env, []interface{}) ([]interface{}, error) {
				return out(u256(uint64(raffle.RequestConfirmations)))
			},
			"getPlayer": c.getPlayer,
		},
		gas: map[string]uint64{
			"enterRaffle":           48_000,
			"performUpkeep":         40_000,
			"rawFulfillRandomWords": 35_000,
		},
	}
	return c, nil
}

// Raffle returns the raffle hosted by the contract.
func (c *Raffle) Raffle() *raffle.Raffle { return c.raffle }

func (c *Raffle) Call(env *chain.Env, input []byte) ([]byte, error) {
	return c.dispatch(env, input)
}

func (c *Raffle) Snapshot() any { return c.raffle.Snapshot() }

func (c *Raffle) Restore(s any) { c.raffle.Restore(s.(raffle.Snapshot)) }

func out(vs ...interface{}) ([]interface{}, error) { return vs, nil }

func (c *Raffle) enterRaffle(env *chain.Env, _ []interface{}) ([]interface{}, error) {
	events, err := c.raffle.Enter(env.Caller(), env.Value())
	if err != nil {
		return nil, c.revert(err)
	}
	return nil, c.emitAll(env, events)
}

func (c *Raffle) checkUpkeep(env *chain.Env, _ []interface{}) ([]interface{}, error) {
	return out(c.raffle.CheckUpkeep(raffleEnv{env, c}), []byte{})
}

func (c *Raffle) performUpkeep(env *chain.Env, _ []interface{}) ([]interface{}, error) {
	_, events, err := c.raffle.PerformUpkeep(raffleEnv{env, c})
	if err != nil {
		return nil, c.revert(err)
	}
	return nil, c.emitAll(env, events)
}

func (c *Raffle) rawFulfillRandomWords(env *chain.Env, args []interface{}) ([]interface{}, error) {
	coordinator := c.raffle.Config().Coordinator
	if env.Caller() != coordinator {
		return nil, c.customError("OnlyCoordinatorCanFulfill", env.Caller(), coordinator)
	}
	events, err := c.raffle.FulfillRandomWords(raffleEnv{env, c}, args[0].(*big.Int), args[1].([]*big.Int))
	if err != nil {
		return nil, c.revert(err)
	}
	return nil, c.emitAll(env, events)
}

func (c *Raffle) getPlayer(env *chain.Env, args []interface{}) ([]interface{}, error) {
	i := args[0].(*big.Int)
	if !i.IsUint64() {
		return nil, chain.RevertPanic(chain.PanicArrayOutOfBounds)
	}
	p, err := c.raffle.Player(i.Uint64())
	if err != nil {
		return nil, chain.RevertPanic(chain.PanicArrayOutOfBounds)
	}
	return out(p)
}

// revert maps raffle errors to the contract's custom errors.
func (c *Raffle) revert(err error) error {
	var upkeep *raffle.UpkeepNotNeededError
	var reverted *chain.RevertError
	switch {
	case errors.Is(err, raffle.ErrNotEnoughETHEntered):
		return c.customError("Raffle__NotEnoughETHEntered")
	case errors.Is(err, raffle.ErrNotOpen):
		return c.customError("Raffle__NotOpen")
	case errors.Is(err, raffle.ErrTransferFailed):
		return c.customError("Raffle__TransferFailed")
	case errors.As(err, &upkeep):
		return c.customError("Raffle__UpkeepNotNeeded", upkeep.Balance, u256(upkeep.Players), u256(uint64(upkeep.State)))
	case errors.Is(err, raffle.ErrNoRandomWords), errors.Is(err, raffle.ErrPlayerIndex):
		return chain.RevertPanic(chain.PanicArrayOutOfBounds)
	case errors.Is(err, raffle.ErrNonexistentRequest):
		return chain.RevertReason(raffle.ErrNonexistentRequest.Error())
	case errors.As(err, &reverted):
		// failures of the coordinator bubble up unchanged
		return reverted
	}
	return err
}

func (c *Raffle) emitAll(env *chain.Env, events []raffle.Event) error {
	for _, e := range events {
		var err error
		switch e := e.(type) {
		case raffle.EnterEvent:
			err = c.emit(env, e.Name(), e.Player)
		case raffle.RequestedRaffleWinnerEvent:
			err = c.emit(env, e.Name(), e.RequestID)
		case raffle.WinnerPickedEvent:
			err = c.emit(env, e.Name(), e.Winner)
		default:
			err = fmt.Errorf("unknown raffle event %s", e.Name())
		}
		if err != nil {
			return err
		}
	}
	if len(events) > 0 {
		env.OnCommit(func() { c.raffle.Publish(events) })
	}
	return nil
}

// raffleEnv binds a raffle operation to the executing call frame.
type raffleEnv struct {
	env *chain.Env
	c   *Raffle
}

func (e raffleEnv) Now() uint64 { return e.env.Now() }

func (e raffleEnv) Balance() *big.Int { return e.env.Balance() }

func (e raffleEnv) Transfer(to common.Address, amount *big.Int) error {
	return e.env.Transfer(to, amount)
}

func (e raffleEnv) RequestRandomWords(keyHash common.Hash, subID uint64, confirmations uint16, callbackGasLimit uint32, numWords uint32) (*big.Int, error) {
	input, err := coordinatorABI.Pack("requestRandomWords", [32]byte(keyHash), subID, confirmations, callbackGasLimit, numWords)
	if err != nil {
		return nil, err
	}
	ret, err := e.env.Call(e.c.raffle.Config().Coordinator, input, nil)
	if err != nil {
		return nil, err
	}
	vals, err := coordinatorABI.Unpack("requestRandomWords", ret)
	if err != nil || len(vals) != 1 {
		// the coordinator address holds no coordinator
		return nil, chain.Revert(nil)
	}
	return vals[0].(*big.Int), nil
}
