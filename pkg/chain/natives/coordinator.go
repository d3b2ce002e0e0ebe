// Copyright 2024 The rafflekit Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package natives

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rafflekit/rafflekit/pkg/chain"
	"github.com/rafflekit/rafflekit/pkg/vrf"
)

// Coordinator is the native VRFCoordinatorV2Mock contract.
type Coordinator struct {
	dispatcher
	vrf *vrf.Coordinator
}

// NewCoordinator is the chain.Factory of the coordinator mock.
func NewCoordinator(env *chain.Env, args []byte) (chain.Contract, error) {
	vals, err := coordinatorABI.Constructor.Inputs.Unpack(args)
	if err != nil {
		return nil, chain.Revert(nil)
	}
	v := vrf.New(vals[0].(*big.Int), vals[1].(*big.Int))

	c := &Coordinator{vrf: v}
	c.dispatcher = dispatcher{
		abi: coordinatorABI,
		handlers: map[string]handler{
			"BASE_FEE":                       func(*chain.Env, []interface{}) ([]interface{}, error) { return out(v.BaseFee()) },
			"GAS_PRICE_LINK":                 func(*chain.Env, []interface{}) ([]interface{}, error) { return out(v.GasPriceLink()) },
			"MAX_CONSUMERS":                  func(*chain.Env, []interface{}) ([]interface{}, error) { return out(uint16(vrf.MaxConsumers)) },
			"createSubscription":             c.createSubscription,
			"getSubscription":                c.getSubscription,
			"fundSubscription":               c.fundSubscription,
			"addConsumer":                    c.addConsumer,
			"removeConsumer":                 c.removeConsumer,
			"cancelSubscription":             c.cancelSubscription,
			"consumerIsAdded":                c.consumerIsAdded,
			"requestRandomWords":             c.requestRandomWords,
			"fulfillRandomWords":             c.fulfillRandomWords,
			"fulfillRandomWordsWithOverride": c.fulfillRandomWordsWithOverride,
		},
		gas: map[string]uint64{
			"createSubscription":             45_000,
			"fundSubscription":               25_000,
			"addConsumer":                    50_000,
			"removeConsumer":                 20_000,
			"cancelSubscription":             30_000,
			"requestRandomWords":             60_000,
			"fulfillRandomWords":             40_000,
			"fulfillRandomWordsWithOverride": 40_000,
		},
	}
	return c, nil
}

// Coordinator returns the coordinator hosted by the contract.
func (c *Coordinator) Coordinator() *vrf.Coordinator { return c.vrf }

func (c *Coordinator) Call(env *chain.Env, input []byte) ([]byte, error) {
	return c.dispatch(env, input)
}

func (c *Coordinator) Snapshot() any { return c.vrf.Snapshot() }

func (c *Coordinator) Restore(s any) { c.vrf.Restore(s.(vrf.Snapshot)) }

func (c *Coordinator) createSubscription(env *chain.Env, _ []interface{}) ([]interface{}, error) {
	id, events := c.vrf.CreateSubscription(env.Caller())
	if err := c.emitAll(env, events); err != nil {
		return nil, err
	}
	return out(id)
}

func (c *Coordinator) getSubscription(env *chain.Env, args []interface{}) ([]interface{}, error) {
	sub, err := c.vrf.GetSubscription(args[0].(uint64))
	if err != nil {
		return nil, c.revert(err)
	}
	return out(sub.Balance, sub.ReqCount, sub.Owner, sub.Consumers)
}

func (c *Coordinator) fundSubscription(env *chain.Env, args []interface{}) ([]interface{}, error) {
	events, err := c.vrf.FundSubscription(args[0].(uint64), args[1].(*big.Int))
	if err != nil {
		return nil, c.revert(err)
	}
	return nil, c.emitAll(env, events)
}

func (c *Coordinator) addConsumer(env *chain.Env, args []interface{}) ([]interface{}, error) {
	events, err := c.vrf.AddConsumer(env.Caller(), args[0].(uint64), args[1].(common.Address))
	if err != nil {
		return nil, c.revert(err)
	}
	return nil, c.emitAll(env, events)
}

func (c *Coordinator) removeConsumer(env *chain.Env, args []interface{}) ([]interface{}, error) {
	events, err := c.vrf.RemoveConsumer(env.Caller(), args[0].(uint64), args[1].(common.Address))
	if err != nil {
		return nil, c.revert(err)
	}
	return nil, c.emitAll(env, events)
}

func (c *Coordinator) cancelSubscription(env *chain.Env, args []interface{}) ([]interface{}, error) {
	events, err := c.vrf.CancelSubscription(env.Caller(), args[0].(uint64), args[1].(common.Address))
	if err != nil {
		return nil, c.revert(err)
	}
	return nil, c.emitAll(env, events)
}

func (c *Coordinator) consumerIsAdded(env *chain.Env, args []interface{}) ([]interface{}, error) {
	return out(c.vrf.ConsumerIsAdded(args[0].(uint64), args[1].(common.Address)))
}

func (c *Coordinator) requestRandomWords(env *chain.Env, args []interface{}) ([]interface{}, error) {
	id, events, err := c.vrf.RequestRandomWords(
		env.Caller(),
		common.Hash(args[0].([32]byte)),
		args[1].(uint64),
		args[2].(uint16),
		args[3].(uint32),
		args[4].(uint32),
	)
	if err != nil {
		return nil, c.revert(err)
	}
	if err := c.emitAll(env, events); err != nil {
		return nil, err
	}
	return out(id)
}

func (c *Coordinator) fulfillRandomWords(env *chain.Env, args []interface{}) ([]interface{}, error) {
	events, err := c.vrf.FulfillRandomWords(consumerCaller{env}, args[0].(*big.Int), args[1].(common.Address))
	if err != nil {
		return nil, c.revert(err)
	}
	return nil, c.emitAll(env, events)
}

func (c *Coordinator) fulfillRandomWordsWithOverride(env *chain.Env, args []interface{}) ([]interface{}, error) {
	events, err := c.vrf.FulfillRandomWordsWithOverride(consumerCaller{env}, args[0].(*big.Int), args[1].(common.Address), args[2].([]*big.Int))
	if err != nil {
		return nil, c.revert(err)
	}
	return nil, c.emitAll(env, events)
}

func (c *Coordinator) revert(err error) error {
	var owner *vrf.MustBeSubOwnerError
	switch {
	case errors.Is(err, vrf.ErrInvalidSubscription):
		return c.customError("InvalidSubscription")
	case errors.Is(err, vrf.ErrInsufficientBalance):
		return c.customError("InsufficientBalance")
	case errors.Is(err, vrf.ErrInvalidConsumer):
		return c.customError("InvalidConsumer")
	case errors.Is(err, vrf.ErrTooManyConsumers):
		return c.customError("TooManyConsumers")
	case errors.Is(err, vrf.ErrInvalidRandomWords):
		return c.customError("InvalidRandomWords")
	case errors.As(err, &owner):
		return c.customError("MustBeSubOwner", owner.Owner)
	case errors.Is(err, vrf.ErrNonexistentRequest):
		return chain.RevertReason(vrf.ErrNonexistentRequest.Error())
	}
	return err
}

func (c *Coordinator) emitAll(env *chain.Env, events []vrf.Event) error {
	for _, e := range events {
		var err error
		switch e := e.(type) {
		case vrf.SubscriptionCreatedEvent:
			err = c.emit(env, e.Name(), e.SubID, e.Owner)
		case vrf.SubscriptionFundedEvent:
			err = c.emit(env, e.Name(), e.SubID, e.OldBalance, e.NewBalance)
		case vrf.ConsumerAddedEvent:
			err = c.emit(env, e.Name(), e.SubID, e.Consumer)
		case vrf.ConsumerRemovedEvent:
			err = c.emit(env, e.Name(), e.SubID, e.Consumer)
		case vrf.SubscriptionCanceledEvent:
			err = c.emit(env, e.Name(), e.SubID, e.To, e.Amount)
		case vrf.RandomWordsRequestedEvent:
			err = c.emit(env, e.Name(), e.KeyHash, e.RequestID, e.PreSeed, e.SubID,
				e.MinimumRequestConfirmations, e.CallbackGasLimit, e.NumWords, e.Sender)
		case vrf.RandomWordsFulfilledEvent:
			err = c.emit(env, e.Name(), e.RequestID, e.OutputSeed, e.Payment, e.Success)
		default:
			err = fmt.Errorf("unknown coordinator event %s", e.Name())
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// consumerCaller delivers random words through a nested call frame.
type consumerCaller struct {
	env *chain.Env
}

func (c consumerCaller) RawFulfillRandomWords(consumer common.Address, requestID *big.Int, words []*big.Int, gasLimit uint32) (uint64, error) {
	input, err := raffleABI.Pack("rawFulfillRandomWords", requestID, words)
	if err != nil {
		return 0, err
	}
	_, gasUsed, err := c.env.CallWithGas(consumer, input, nil, uint64(gasLimit))
	return gasUsed, err
}
