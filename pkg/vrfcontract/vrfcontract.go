// Copyright 2024 The rafflekit Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package vrfcontract is the client of a VRFCoordinatorV2Mock contract.
package vrfcontract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/rafflekit/rafflekit/pkg/artifacts"
	"github.com/rafflekit/rafflekit/pkg/logging"
	"github.com/rafflekit/rafflekit/pkg/transaction"
	"github.com/rafflekit/rafflekit/pkg/vrf"
)

var (
	coordinatorABI = artifacts.MustLoad(artifacts.CoordinatorMockName).MustParseABI()

	ErrReverted = errors.New("execution reverted")
)

// ABI returns the coordinator mock interface.
func ABI() abi.ABI {
	return coordinatorABI
}

// ConstructorArgs packs the coordinator mock constructor arguments.
func ConstructorArgs(baseFee, gasPriceLink *big.Int) ([]byte, error) {
	return coordinatorABI.Pack("", baseFee, gasPriceLink)
}

type Interface interface {
	Address() common.Address
	CreateSubscription(ctx context.Context) (uint64, error)
	FundSubscription(ctx context.Context, subID uint64, amount *big.Int) error
	AddConsumer(ctx context.Context, subID uint64, consumer common.Address) error
	RemoveConsumer(ctx context.Context, subID uint64, consumer common.Address) error
	GetSubscription(ctx context.Context, subID uint64) (*vrf.Subscription, error)
	ConsumerIsAdded(ctx context.Context, subID uint64, consumer common.Address) (bool, error)
	FulfillRandomWords(ctx context.Context, requestID *big.Int, consumer common.Address) (*Fulfillment, error)
	FulfillRandomWordsWithOverride(ctx context.Context, requestID *big.Int, consumer common.Address, words []*big.Int) (*Fulfillment, error)
	RandomWordsRequested(ctx context.Context, fromBlock, toBlock uint64) ([]RandomWordsRequest, error)
}

// Fulfillment is the outcome of a fulfillRandomWords transaction.
type Fulfillment struct {
	RequestID  *big.Int
	OutputSeed *big.Int
	Payment    *big.Int
	// Success is false when the consumer callback reverted.
	Success bool
	TxHash  common.Hash
}

// RandomWordsRequest is a RandomWordsRequested log.
type RandomWordsRequest struct {
	vrf.RandomWordsRequestedEvent
	BlockNumber uint64
	TxHash      common.Hash
}

type Service struct {
	logger    logging.Logger
	backend   transaction.Backend
	txService transaction.Service
	address   common.Address
}

func New(logger logging.Logger, backend transaction.Backend, txService transaction.Service, address common.Address) *Service {
	return &Service{
		logger:    logger,
		backend:   backend,
		txService: txService,
		address:   address,
	}
}

func (s *Service) Address() common.Address {
	return s.address
}

// CreateSubscription creates a subscription owned by the sender and returns
// its id as reported by the SubscriptionCreated log.
func (s *Service) CreateSubscription(ctx context.Context) (uint64, error) {
	receipt, err := s.send(ctx, "create subscription", "createSubscription")
	if err != nil {
		return 0, fmt.Errorf("create subscription: %w", err)
	}

	var e struct {
		SubId uint64
		Owner common.Address
	}
	if err := transaction.FindSingleEvent(&coordinatorABI, receipt, s.address, coordinatorABI.Events["SubscriptionCreated"], &e); err != nil {
		return 0, fmt.Errorf("create subscription: %w", err)
	}
	s.logger.Debugf("vrf: created subscription %d owned by %s", e.SubId, e.Owner)
	return e.SubId, nil
}

func (s *Service) FundSubscription(ctx context.Context, subID uint64, amount *big.Int) error {
	if _, err := s.send(ctx, "fund subscription", "fundSubscription", subID, amount); err != nil {
		return fmt.Errorf("fund subscription %d: %w", subID, err)
	}
	return nil
}

func (s *Service) AddConsumer(ctx context.Context, subID uint64, consumer common.Address) error {
	if _, err := s.send(ctx, "add consumer", "addConsumer", subID, consumer); err != nil {
		return fmt.Errorf("add consumer %s: %w", consumer, err)
	}
	return nil
}

func (s *Service) RemoveConsumer(ctx context.Context, subID uint64, consumer common.Address) error {
	if _, err := s.send(ctx, "remove consumer", "removeConsumer", subID, consumer); err != nil {
		return fmt.Errorf("remove consumer %s: %w", consumer, err)
	}
	return nil
}

func (s *Service) GetSubscription(ctx context.Context, subID uint64) (*vrf.Subscription, error) {
	results, err := s.call(ctx, "getSubscription", subID)
	if err != nil {
		return nil, fmt.Errorf("get subscription %d: %w", subID, err)
	}
	return &vrf.Subscription{
		Balance:   results[0].(*big.Int),
		ReqCount:  results[1].(uint64),
		Owner:     results[2].(common.Address),
		Consumers: results[3].([]common.Address),
	}, nil
}

func (s *Service) ConsumerIsAdded(ctx context.Context, subID uint64, consumer common.Address) (bool, error) {
	results, err := s.call(ctx, "consumerIsAdded", subID, consumer)
	if err != nil {
		return false, fmt.Errorf("consumer is added: %w", err)
	}
	return results[0].(bool), nil
}

// FulfillRandomWords delivers the derived words for requestID to consumer.
func (s *Service) FulfillRandomWords(ctx context.Context, requestID *big.Int, consumer common.Address) (*Fulfillment, error) {
	receipt, err := s.send(ctx, "fulfill random words", "fulfillRandomWords", requestID, consumer)
	if err != nil {
		return nil, fmt.Errorf("fulfill request %s: %w", requestID, err)
	}
	return s.fulfillment(receipt)
}

func (s *Service) FulfillRandomWordsWithOverride(ctx context.Context, requestID *big.Int, consumer common.Address, words []*big.Int) (*Fulfillment, error) {
	receipt, err := s.send(ctx, "fulfill random words", "fulfillRandomWordsWithOverride", requestID, consumer, words)
	if err != nil {
		return nil, fmt.Errorf("fulfill request %s: %w", requestID, err)
	}
	return s.fulfillment(receipt)
}

func (s *Service) fulfillment(receipt *types.Receipt) (*Fulfillment, error) {
	var e struct {
		RequestId  *big.Int
		OutputSeed *big.Int
		Payment    *big.Int
		Success    bool
	}
	if err := transaction.FindSingleEvent(&coordinatorABI, receipt, s.address, coordinatorABI.Events["RandomWordsFulfilled"], &e); err != nil {
		return nil, err
	}
	return &Fulfillment{
		RequestID:  e.RequestId,
		OutputSeed: e.OutputSeed,
		Payment:    e.Payment,
		Success:    e.Success,
		TxHash:     receipt.TxHash,
	}, nil
}

// RandomWordsRequested returns the requests logged in the block range. A
// zero toBlock means the latest block.
func (s *Service) RandomWordsRequested(ctx context.Context, fromBlock, toBlock uint64) ([]RandomWordsRequest, error) {
	q := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(fromBlock),
		Addresses: []common.Address{s.address},
		Topics:    [][]common.Hash{{coordinatorABI.Events["RandomWordsRequested"].ID}},
	}
	if toBlock != 0 {
		q.ToBlock = new(big.Int).SetUint64(toBlock)
	}
	logs, err := s.backend.FilterLogs(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("filter logs: %w", err)
	}

	requests := make([]RandomWordsRequest, 0, len(logs))
	for _, l := range logs {
		var e struct {
			KeyHash                     [32]byte
			RequestId                   *big.Int
			PreSeed                     *big.Int
			SubId                       uint64
			MinimumRequestConfirmations uint16
			CallbackGasLimit            uint32
			NumWords                    uint32
			Sender                      common.Address
		}
		if err := transaction.ParseEvent(&coordinatorABI, "RandomWordsRequested", &e, l); err != nil {
			return nil, fmt.Errorf("parse request log: %w", err)
		}
		requests = append(requests, RandomWordsRequest{
			RandomWordsRequestedEvent: vrf.RandomWordsRequestedEvent{
				KeyHash:                     e.KeyHash,
				RequestID:                   e.RequestId,
				PreSeed:                     e.PreSeed,
				SubID:                       e.SubId,
				MinimumRequestConfirmations: e.MinimumRequestConfirmations,
				CallbackGasLimit:            e.CallbackGasLimit,
				NumWords:                    e.NumWords,
				Sender:                      e.Sender,
			},
			BlockNumber: l.BlockNumber,
			TxHash:      l.TxHash,
		})
	}
	return requests, nil
}

// DecodeError maps the revert data carried by err to the vrf errors.
func DecodeError(err error) error {
	data, ok := transaction.RevertData(err)
	if !ok {
		return err
	}
	if reason, rerr := abi.UnpackRevert(data); rerr == nil {
		if reason == vrf.ErrNonexistentRequest.Error() {
			return vrf.ErrNonexistentRequest
		}
		return fmt.Errorf("%w: %s", ErrReverted, reason)
	}
	if len(data) < 4 {
		return fmt.Errorf("%w: %v", ErrReverted, err)
	}
	for name, e := range coordinatorABI.Errors {
		if !bytes.Equal(e.ID[:4], data[:4]) {
			continue
		}
		switch name {
		case "InvalidSubscription":
			return vrf.ErrInvalidSubscription
		case "InsufficientBalance":
			return vrf.ErrInsufficientBalance
		case "InvalidConsumer":
			return vrf.ErrInvalidConsumer
		case "TooManyConsumers":
			return vrf.ErrTooManyConsumers
		case "InvalidRandomWords":
			return vrf.ErrInvalidRandomWords
		case "MustBeSubOwner":
			vals, uerr := e.Inputs.Unpack(data[4:])
			if uerr != nil {
				return fmt.Errorf("%w: %v", ErrReverted, uerr)
			}
			return &vrf.MustBeSubOwnerError{Owner: vals[0].(common.Address)}
		}
	}
	return fmt.Errorf("%w: %v", ErrReverted, err)
}

func (s *Service) call(ctx context.Context, method string, args ...interface{}) ([]interface{}, error) {
	callData, err := coordinatorABI.Pack(method, args...)
	if err != nil {
		return nil, err
	}
	result, err := s.txService.Call(ctx, &transaction.TxRequest{
		To:   &s.address,
		Data: callData,
	})
	if err != nil {
		return nil, DecodeError(err)
	}
	return coordinatorABI.Unpack(method, result)
}

func (s *Service) send(ctx context.Context, description, method string, args ...interface{}) (*types.Receipt, error) {
	callData, err := coordinatorABI.Pack(method, args...)
	if err != nil {
		return nil, err
	}
	txHash, err := s.txService.Send(ctx, &transaction.TxRequest{
		To:          &s.address,
		Data:        callData,
		Description: description,
	})
	if err != nil {
		return nil, DecodeError(err)
	}
	receipt, err := s.txService.WaitForReceipt(ctx, txHash)
	if err != nil {
		return nil, err
	}
	if receipt.Status == types.ReceiptStatusFailed {
		return nil, transaction.ErrTransactionReverted
	}
	return receipt, nil
}
