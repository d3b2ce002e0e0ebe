// Copyright 2024 The rafflekit Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package rafflecontract is the client of a deployed Raffle contract.
package rafflecontract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/rafflekit/rafflekit/pkg/artifacts"
	"github.com/rafflekit/rafflekit/pkg/logging"
	"github.com/rafflekit/rafflekit/pkg/raffle"
	"github.com/rafflekit/rafflekit/pkg/transaction"
	"golang.org/x/sync/errgroup"
)

var (
	raffleABI = artifacts.MustLoad(artifacts.RaffleName).MustParseABI()

	// ErrOnlyCoordinatorCanFulfill is returned when random words are
	// delivered by an account other than the coordinator.
	ErrOnlyCoordinatorCanFulfill = errors.New("only coordinator can fulfill")
	// ErrReverted is returned for reverts that carry no known error.
	ErrReverted = errors.New("execution reverted")
)

// cancelTimeout bounds sending the replacement of a stuck upkeep.
const cancelTimeout = 30 * time.Second

// ABI returns the Raffle contract interface.
func ABI() abi.ABI {
	return raffleABI
}

// ConstructorArgs packs the Raffle constructor arguments.
func ConstructorArgs(coordinator common.Address, entranceFee *big.Int, gasLane common.Hash, interval uint64, callbackGasLimit uint32, subscriptionID uint64) ([]byte, error) {
	return raffleABI.Pack("", coordinator, entranceFee, [32]byte(gasLane), new(big.Int).SetUint64(interval), callbackGasLimit, subscriptionID)
}

type Interface interface {
	Address() common.Address
	EnterRaffle(ctx context.Context, value *big.Int) (common.Hash, error)
	CheckUpkeep(ctx context.Context) (bool, error)
	PerformUpkeep(ctx context.Context) (requestID *big.Int, err error)
	EntranceFee(ctx context.Context) (*big.Int, error)
	Interval(ctx context.Context) (uint64, error)
	GasLane(ctx context.Context) (common.Hash, error)
	RaffleState(ctx context.Context) (raffle.State, error)
	Player(ctx context.Context, index uint64) (common.Address, error)
	NumberOfPlayers(ctx context.Context) (uint64, error)
	RecentWinner(ctx context.Context) (common.Address, error)
	LastTimestamp(ctx context.Context) (uint64, error)
	SubscriptionID(ctx context.Context) (uint64, error)
	CallbackGasLimit(ctx context.Context) (uint32, error)
	NumWords(ctx context.Context) (uint64, error)
	RequestConfirmations(ctx context.Context) (uint64, error)
	Balance(ctx context.Context) (*big.Int, error)
	Status(ctx context.Context) (*Status, error)
	WinnerPickedSince(ctx context.Context, fromBlock uint64) ([]WinnerPicked, error)
}

// Status is a view of the raffle at the latest block.
type Status struct {
	Address          common.Address   `json:"address"`
	State            raffle.State     `json:"state"`
	EntranceFee      *big.Int         `json:"entranceFee"`
	Interval         uint64           `json:"interval"`
	LastTimestamp    uint64           `json:"lastTimestamp"`
	RecentWinner     common.Address   `json:"recentWinner"`
	Players          []common.Address `json:"players"`
	Balance          *big.Int         `json:"balance"`
	UpkeepNeeded     bool             `json:"upkeepNeeded"`
	SubscriptionID   uint64           `json:"subscriptionId"`
	CallbackGasLimit uint32           `json:"callbackGasLimit"`
	GasLane          common.Hash      `json:"gasLane"`
}

// WinnerPicked is a WinnerPicked log.
type WinnerPicked struct {
	Winner      common.Address
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

// EnterRaffle pays value into the raffle from the transaction sender.
func (s *Service) EnterRaffle(ctx context.Context, value *big.Int) (common.Hash, error) {
	callData, err := raffleABI.Pack("enterRaffle")
	if err != nil {
		return common.Hash{}, err
	}
	receipt, err := s.sendAndWait(ctx, &transaction.TxRequest{
		To:          &s.address,
		Data:        callData,
		Value:       value,
		Description: "enter raffle",
	})
	if err != nil {
		return common.Hash{}, fmt.Errorf("enter raffle: %w", err)
	}
	s.logger.Debugf("raffle: %s entered %s with %s wei", s.txService.Sender(), s.address, value)
	return receipt.TxHash, nil
}

func (s *Service) CheckUpkeep(ctx context.Context) (bool, error) {
	results, err := s.call(ctx, "checkUpkeep", []byte{})
	if err != nil {
		return false, fmt.Errorf("check upkeep: %w", err)
	}
	return results[0].(bool), nil
}

// PerformUpkeep closes the round and returns the id of the randomness
// request it issued.
func (s *Service) PerformUpkeep(ctx context.Context) (*big.Int, error) {
	callData, err := raffleABI.Pack("performUpkeep", []byte{})
	if err != nil {
		return nil, err
	}
	request := &transaction.TxRequest{
		To:          &s.address,
		Data:        callData,
		Description: "perform upkeep",
	}
	txHash, err := s.txService.Send(ctx, request)
	if err != nil {
		return nil, fmt.Errorf("perform upkeep: %w", DecodeError(err))
	}
	receipt, err := s.txService.WaitForReceipt(ctx, txHash)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			s.cancelStuck(txHash)
		}
		return nil, fmt.Errorf("perform upkeep: %w", err)
	}
	if receipt.Status == types.ReceiptStatusFailed {
		return nil, fmt.Errorf("perform upkeep: %w", transaction.ErrTransactionReverted)
	}

	var e struct {
		RequestId *big.Int
	}
	if err := transaction.FindSingleEvent(&raffleABI, receipt, s.address, raffleABI.Events["RequestedRaffleWinner"], &e); err != nil {
		return nil, fmt.Errorf("perform upkeep: %w", err)
	}
	return e.RequestId, nil
}

func (s *Service) EntranceFee(ctx context.Context) (*big.Int, error) {
	return callOne[*big.Int](ctx, s, "getEntranceFee")
}

func (s *Service) Interval(ctx context.Context) (uint64, error) {
	v, err := callOne[*big.Int](ctx, s, "getInterval")
	if err != nil {
		return 0, err
	}
	return v.Uint64(), nil
}

func (s *Service) GasLane(ctx context.Context) (common.Hash, error) {
	v, err := callOne[[32]byte](ctx, s, "getGasLane")
	return common.Hash(v), err
}

func (s *Service) RaffleState(ctx context.Context) (raffle.State, error) {
	v, err := callOne[uint8](ctx, s, "getRaffleState")
	return raffle.State(v), err
}

func (s *Service) Player(ctx context.Context, index uint64) (common.Address, error) {
	return callOne[common.Address](ctx, s, "getPlayer", new(big.Int).SetUint64(index))
}

func (s *Service) NumberOfPlayers(ctx context.Context) (uint64, error) {
	v, err := callOne[*big.Int](ctx, s, "getNumberOfPlayers")
	if err != nil {
		return 0, err
	}
	return v.Uint64(), nil
}

func (s *Service) RecentWinner(ctx context.Context) (common.Address, error) {
	return callOne[common.Address](ctx, s, "getRecentWinner")
}

func (s *Service) LastTimestamp(ctx context.Context) (uint64, error) {
	v, err := callOne[*big.Int](ctx, s, "getLastTimeStamp")
	if err != nil {
		return 0, err
	}
	return v.Uint64(), nil
}

func (s *Service) SubscriptionID(ctx context.Context) (uint64, error) {
	return callOne[uint64](ctx, s, "getSubscriptionId")
}

func (s *Service) CallbackGasLimit(ctx context.Context) (uint32, error) {
	return callOne[uint32](ctx, s, "getCallbackGasLimit")
}

func (s *Service) NumWords(ctx context.Context) (uint64, error) {
	v, err := callOne[*big.Int](ctx, s, "getNumWords")
	if err != nil {
		return 0, err
	}
	return v.Uint64(), nil
}

func (s *Service) RequestConfirmations(ctx context.Context) (uint64, error) {
	v, err := callOne[*big.Int](ctx, s, "getRequestConfirmations")
	if err != nil {
		return 0, err
	}
	return v.Uint64(), nil
}

// Balance is the amount held by the contract, which is the prize of the
// current round.
func (s *Service) Balance(ctx context.Context) (*big.Int, error) {
	return s.backend.BalanceAt(ctx, s.address, nil)
}

// Status reads all getters concurrently.
func (s *Service) Status(ctx context.Context) (*Status, error) {
	st := &Status{Address: s.address}
	var numPlayers uint64

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) { st.State, err = s.RaffleState(gctx); return err })
	g.Go(func() (err error) { st.EntranceFee, err = s.EntranceFee(gctx); return err })
	g.Go(func() (err error) { st.Interval, err = s.Interval(gctx); return err })
	g.Go(func() (err error) { st.LastTimestamp, err = s.LastTimestamp(gctx); return err })
	g.Go(func() (err error) { st.RecentWinner, err = s.RecentWinner(gctx); return err })
	g.Go(func() (err error) { numPlayers, err = s.NumberOfPlayers(gctx); return err })
	g.Go(func() (err error) { st.Balance, err = s.Balance(gctx); return err })
	g.Go(func() (err error) { st.UpkeepNeeded, err = s.CheckUpkeep(gctx); return err })
	g.Go(func() (err error) { st.SubscriptionID, err = s.SubscriptionID(gctx); return err })
	g.Go(func() (err error) { st.CallbackGasLimit, err = s.CallbackGasLimit(gctx); return err })
	g.Go(func() (err error) { st.GasLane, err = s.GasLane(gctx); return err })
	if err := g.Wait(); err != nil {
		return nil, err
	}

	st.Players = make([]common.Address, numPlayers)
	g, gctx = errgroup.WithContext(ctx)
	g.SetLimit(8)
	for i := range st.Players {
		i := i
		g.Go(func() (err error) {
			st.Players[i], err = s.Player(gctx, uint64(i))
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return st, nil
}

// WinnerPickedSince returns the WinnerPicked logs from fromBlock on.
func (s *Service) WinnerPickedSince(ctx context.Context, fromBlock uint64) ([]WinnerPicked, error) {
	logs, err := s.backend.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(fromBlock),
		Addresses: []common.Address{s.address},
		Topics:    [][]common.Hash{{raffleABI.Events["WinnerPicked"].ID}},
	})
	if err != nil {
		return nil, err
	}
	winners := make([]WinnerPicked, 0, len(logs))
	for _, l := range logs {
		var e struct {
			Winner common.Address
		}
		if err := transaction.ParseEvent(&raffleABI, "WinnerPicked", &e, l); err != nil {
			return nil, err
		}
		winners = append(winners, WinnerPicked{
			Winner:      e.Winner,
			BlockNumber: l.BlockNumber,
			TxHash:      l.TxHash,
		})
	}
	return winners, nil
}

// ParseEvents decodes the raffle events among the logs of receipt.
func ParseEvents(address common.Address, receipt *types.Receipt) ([]raffle.Event, error) {
	var events []raffle.Event
	for _, l := range receipt.Logs {
		if l.Address != address || len(l.Topics) == 0 {
			continue
		}
		switch l.Topics[0] {
		case raffleABI.Events["RaffleEnter"].ID:
			var e struct{ Player common.Address }
			if err := transaction.ParseEvent(&raffleABI, "RaffleEnter", &e, *l); err != nil {
				return nil, err
			}
			events = append(events, raffle.EnterEvent{Player: e.Player})
		case raffleABI.Events["RequestedRaffleWinner"].ID:
			var e struct{ RequestId *big.Int }
			if err := transaction.ParseEvent(&raffleABI, "RequestedRaffleWinner", &e, *l); err != nil {
				return nil, err
			}
			events = append(events, raffle.RequestedRaffleWinnerEvent{RequestID: e.RequestId})
		case raffleABI.Events["WinnerPicked"].ID:
			var e struct{ Winner common.Address }
			if err := transaction.ParseEvent(&raffleABI, "WinnerPicked", &e, *l); err != nil {
				return nil, err
			}
			events = append(events, raffle.WinnerPickedEvent{Winner: e.Winner})
		}
	}
	return events, nil
}

// DecodeError maps the revert data carried by err to the raffle errors.
// Errors without known revert data are returned unchanged.
func DecodeError(err error) error {
	data, ok := transaction.RevertData(err)
	if !ok {
		return err
	}
	if reason, rerr := abi.UnpackRevert(data); rerr == nil {
		if reason == raffle.ErrNonexistentRequest.Error() {
			return raffle.ErrNonexistentRequest
		}
		return fmt.Errorf("%w: %s", ErrReverted, reason)
	}
	if len(data) < 4 {
		return fmt.Errorf("%w: %v", ErrReverted, err)
	}
	for name, e := range raffleABI.Errors {
		if !bytes.Equal(e.ID[:4], data[:4]) {
			continue
		}
		switch name {
		case "Raffle__NotEnoughETHEntered":
			return raffle.ErrNotEnoughETHEntered
		case "Raffle__NotOpen":
			return raffle.ErrNotOpen
		case "Raffle__TransferFailed":
			return raffle.ErrTransferFailed
		case "OnlyCoordinatorCanFulfill":
			return ErrOnlyCoordinatorCanFulfill
		case "Raffle__UpkeepNotNeeded":
			vals, uerr := e.Inputs.Unpack(data[4:])
			if uerr != nil {
				return fmt.Errorf("%w: %v", ErrReverted, uerr)
			}
			return &raffle.UpkeepNotNeededError{
				Balance: vals[0].(*big.Int),
				Players: vals[1].(*big.Int).Uint64(),
				State:   raffle.State(vals[2].(*big.Int).Uint64()),
			}
		}
	}
	return fmt.Errorf("%w: %v", ErrReverted, err)
}

func (s *Service) call(ctx context.Context, method string, args ...interface{}) ([]interface{}, error) {
	callData, err := raffleABI.Pack(method, args...)
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
	return raffleABI.Unpack(method, result)
}

func callOne[T any](ctx context.Context, s *Service, method string, args ...interface{}) (T, error) {
	var zero T
	results, err := s.call(ctx, method, args...)
	if err != nil {
		return zero, fmt.Errorf("%s: %w", method, err)
	}
	v, ok := results[0].(T)
	if !ok {
		return zero, fmt.Errorf("%s: unexpected result type %T", method, results[0])
	}
	return v, nil
}

// cancelStuck replaces an upkeep that was not mined in time so the next
// attempt does not queue behind it.
func (s *Service) cancelStuck(txHash common.Hash) {
	ctx, cancel := context.WithTimeout(context.Background(), cancelTimeout)
	defer cancel()

	cancelHash, err := s.txService.CancelTransaction(ctx, txHash)
	if err != nil {
		s.logger.Warningf("raffle: cancel stuck upkeep %s: %v", txHash, err)
		return
	}
	s.logger.Infof("raffle: stuck upkeep %s replaced by %s", txHash, cancelHash)
}

// sendAndWait sends the transaction and waits until it is mined or ctx is
// cancelled. Reverts found while estimating gas are decoded.
func (s *Service) sendAndWait(ctx context.Context, request *transaction.TxRequest) (*types.Receipt, error) {
	txHash, err := s.txService.Send(ctx, request)
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
