// Copyright 2024 The rafflekit Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package chain_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"math"
	"math/big"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/rafflekit/rafflekit/pkg/artifacts"
	"github.com/rafflekit/rafflekit/pkg/chain"
	"github.com/rafflekit/rafflekit/pkg/logging"
)

const (
	opIncrement byte = iota + 1
	opGet
	opRevert
	opIncrementAndRevert
	opCall
	opBurn
	opFailures
)

var incrementedTopic = crypto.Keccak256Hash([]byte("Incremented()"))

type counterState struct {
	value    uint64
	failures uint64
}

type counter struct {
	counterState
	commits atomic.Uint64
}

func (c *counter) committed() { c.commits.Add(1) }

func newCounter(env *chain.Env, args []byte) (chain.Contract, error) {
	c := &counter{}
	if len(args) > 0 {
		c.value = new(big.Int).SetBytes(args).Uint64()
	}
	return c, nil
}

func (c *counter) Snapshot() any { return c.counterState }
func (c *counter) Restore(s any) { c.counterState = s.(counterState) }

func (c *counter) Call(env *chain.Env, input []byte) ([]byte, error) {
	if len(input) == 0 {
		return nil, chain.Revert(nil)
	}
	if err := env.UseGas(5000); err != nil {
		return nil, err
	}
	switch input[0] {
	case opIncrement:
		c.value++
		env.Emit([]common.Hash{incrementedTopic}, nil)
		env.OnCommit(c.committed)
		return nil, nil
	case opGet:
		return common.BigToHash(new(big.Int).SetUint64(c.value)).Bytes(), nil
	case opFailures:
		return common.BigToHash(new(big.Int).SetUint64(c.failures)).Bytes(), nil
	case opRevert:
		return nil, chain.RevertReason("nope")
	case opIncrementAndRevert:
		c.value++
		env.OnCommit(c.committed)
		return nil, chain.RevertReason("undone")
	case opCall:
		c.value++
		target := common.BytesToAddress(input[1:21])
		if _, err := env.Call(target, input[21:], nil); err != nil {
			c.failures++
		}
		return nil, nil
	case opBurn:
		return nil, env.UseGas(math.MaxUint64)
	}
	return nil, chain.Revert(nil)
}

const counterName = "Counter"

var gasPrice = big.NewInt(2_000_000_000)

func newChain(t *testing.T) *chain.Chain {
	t.Helper()

	c, err := chain.New(chain.Options{
		Logger:      logging.New(io.Discard, 0),
		GenesisTime: 1_700_000_000,
		Contracts: map[string]chain.Factory{
			counterName: newCounter,
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func send(t *testing.T, c *chain.Chain, account int, to *common.Address, value *big.Int, gas uint64, data []byte) *types.Receipt {
	t.Helper()

	ctx := context.Background()
	key, err := c.Key(account)
	if err != nil {
		t.Fatal(err)
	}
	from := c.Accounts()[account]
	nonce, err := c.PendingNonceAt(ctx, from)
	if err != nil {
		t.Fatal(err)
	}
	if value == nil {
		value = new(big.Int)
	}
	var tx *types.Transaction
	if to == nil {
		tx = types.NewContractCreation(nonce, value, gas, gasPrice, data)
	} else {
		tx = types.NewTransaction(nonce, *to, value, gas, gasPrice, data)
	}
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(big.NewInt(chain.DefaultChainID)), key)
	if err != nil {
		t.Fatal(err)
	}
	if err := c.SendTransaction(ctx, signed); err != nil {
		t.Fatal(err)
	}
	receipt, err := c.TransactionReceipt(ctx, signed.Hash())
	if err != nil {
		t.Fatal(err)
	}
	return receipt
}

func deployCounter(t *testing.T, c *chain.Chain, initial uint64) common.Address {
	t.Helper()

	code := append(artifacts.NativeCode(counterName), common.BigToHash(new(big.Int).SetUint64(initial)).Bytes()...)
	receipt := send(t, c, 0, nil, nil, 1_000_000, code)
	if receipt.Status != types.ReceiptStatusSuccessful {
		t.Fatal("counter deployment failed")
	}
	return receipt.ContractAddress
}

func get(t *testing.T, c *chain.Chain, addr common.Address, op byte) uint64 {
	t.Helper()

	out, err := c.CallContract(context.Background(), ethereum.CallMsg{To: &addr, Data: []byte{op}}, nil)
	if err != nil {
		t.Fatal(err)
	}
	return new(big.Int).SetBytes(out).Uint64()
}

func commits(t *testing.T, c *chain.Chain, addr common.Address) uint64 {
	t.Helper()

	contract, ok := c.Contract(addr)
	if !ok {
		t.Fatalf("no contract at %s", addr)
	}
	return contract.(*counter).commits.Load()
}

func TestNew(t *testing.T) {
	c := newChain(t)
	ctx := context.Background()

	accounts := c.Accounts()
	if len(accounts) != chain.DefaultAccounts {
		t.Fatalf("got %d accounts, want %d", len(accounts), chain.DefaultAccounts)
	}
	if want := common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"); accounts[0] != want {
		t.Fatalf("got first account %s, want %s", accounts[0], want)
	}
	balance, err := c.BalanceAt(ctx, accounts[9], nil)
	if err != nil {
		t.Fatal(err)
	}
	if balance.Cmp(chain.DefaultBalance) != 0 {
		t.Fatalf("got balance %s, want %s", balance, chain.DefaultBalance)
	}
	n, err := c.BlockNumber(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Fatalf("got block number %d, want 0", n)
	}
	id, err := c.ChainID(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if id.Int64() != chain.DefaultChainID {
		t.Fatalf("got chain id %s", id)
	}
}

func TestTransfer(t *testing.T) {
	c := newChain(t)
	ctx := context.Background()
	accounts := c.Accounts()
	value := big.NewInt(1_000_000)

	receipt := send(t, c, 0, &accounts[1], value, 21000, nil)
	if receipt.Status != types.ReceiptStatusSuccessful {
		t.Fatal("transfer failed")
	}
	if receipt.GasUsed != 21000 {
		t.Fatalf("got gas used %d, want 21000", receipt.GasUsed)
	}
	if receipt.BlockNumber.Uint64() != 1 {
		t.Fatalf("got block %d, want 1", receipt.BlockNumber)
	}

	fee := new(big.Int).Mul(big.NewInt(21000), gasPrice)
	want := new(big.Int).Sub(chain.DefaultBalance, value)
	want.Sub(want, fee)
	got, err := c.BalanceAt(ctx, accounts[0], nil)
	if err != nil {
		t.Fatal(err)
	}
	if got.Cmp(want) != 0 {
		t.Fatalf("got sender balance %s, want %s", got, want)
	}
	got, err = c.BalanceAt(ctx, accounts[1], nil)
	if err != nil {
		t.Fatal(err)
	}
	if want := new(big.Int).Add(chain.DefaultBalance, value); got.Cmp(want) != 0 {
		t.Fatalf("got recipient balance %s, want %s", got, want)
	}
	nonce, err := c.NonceAt(ctx, accounts[0], nil)
	if err != nil {
		t.Fatal(err)
	}
	if nonce != 1 {
		t.Fatalf("got nonce %d, want 1", nonce)
	}

	tx, pending, err := c.TransactionByHash(ctx, receipt.TxHash)
	if err != nil {
		t.Fatal(err)
	}
	if pending {
		t.Fatal("mined transaction reported as pending")
	}
	sender, err := c.TransactionSender(tx)
	if err != nil {
		t.Fatal(err)
	}
	if sender != accounts[0] {
		t.Fatalf("got sender %s, want %s", sender, accounts[0])
	}
	header, err := c.HeaderByNumber(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	if header.Hash() != receipt.BlockHash {
		t.Fatal("receipt block hash does not match the latest header")
	}
}

func TestInvalidTransactions(t *testing.T) {
	c := newChain(t)
	ctx := context.Background()
	accounts := c.Accounts()
	key, err := c.Key(0)
	if err != nil {
		t.Fatal(err)
	}
	signer := types.LatestSignerForChainID(big.NewInt(chain.DefaultChainID))

	send(t, c, 0, &accounts[1], big.NewInt(1), 21000, nil)

	for _, tc := range []struct {
		name string
		tx   *types.Transaction
		err  error
	}{
		{
			name: "nonce too low",
			tx:   types.NewTransaction(0, accounts[1], big.NewInt(2), 21000, gasPrice, nil),
			err:  chain.ErrNonceTooLow,
		},
		{
			name: "nonce too high",
			tx:   types.NewTransaction(5, accounts[1], big.NewInt(1), 21000, gasPrice, nil),
			err:  chain.ErrNonceTooHigh,
		},
		{
			name: "intrinsic gas",
			tx:   types.NewTransaction(1, accounts[1], big.NewInt(1), 20000, gasPrice, nil),
			err:  chain.ErrIntrinsicGas,
		},
		{
			name: "fee cap",
			tx:   types.NewTransaction(1, accounts[1], big.NewInt(1), 21000, big.NewInt(1), nil),
			err:  chain.ErrFeeCapTooLow,
		},
		{
			name: "insufficient funds",
			tx:   types.NewTransaction(1, accounts[1], new(big.Int).Mul(chain.DefaultBalance, big.NewInt(2)), 21000, gasPrice, nil),
			err:  chain.ErrInsufficientFunds,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			signed, err := types.SignTx(tc.tx, signer, key)
			if err != nil {
				t.Fatal(err)
			}
			if err := c.SendTransaction(ctx, signed); !errors.Is(err, tc.err) {
				t.Fatalf("got error %v, want %v", err, tc.err)
			}
		})
	}

	n, err := c.BlockNumber(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("invalid transactions were mined: block number %d", n)
	}
}

func TestContracts(t *testing.T) {
	c := newChain(t)
	ctx := context.Background()

	creations := make(chan chain.Creation, 1)
	sub := c.SubscribeCreations(creations)
	defer sub.Unsubscribe()

	addr := deployCounter(t, c, 41)
	if want := crypto.CreateAddress(c.Accounts()[0], 0); addr != want {
		t.Fatalf("got contract address %s, want %s", addr, want)
	}
	select {
	case creation := <-creations:
		if creation.Address != addr || creation.Name != counterName {
			t.Fatalf("got creation %+v", creation)
		}
	case <-time.After(time.Second):
		t.Fatal("no creation published")
	}

	code, err := c.CodeAt(ctx, addr, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(code, artifacts.NativeCode(counterName)) {
		t.Fatalf("unexpected code %x", code)
	}
	if name, ok := c.ContractName(addr); !ok || name != counterName {
		t.Fatalf("got contract name %q", name)
	}

	if got := get(t, c, addr, opGet); got != 41 {
		t.Fatalf("got %d, want 41", got)
	}

	t.Run("increment", func(t *testing.T) {
		receipt := send(t, c, 1, &addr, nil, 100_000, []byte{opIncrement})
		if receipt.Status != types.ReceiptStatusSuccessful {
			t.Fatal("increment failed")
		}
		if len(receipt.Logs) != 1 || receipt.Logs[0].Topics[0] != incrementedTopic || receipt.Logs[0].Address != addr {
			t.Fatalf("unexpected logs %+v", receipt.Logs)
		}
		if receipt.Bloom == (types.Bloom{}) {
			t.Fatal("empty bloom")
		}
		if got := get(t, c, addr, opGet); got != 42 {
			t.Fatalf("got %d, want 42", got)
		}
		if got := commits(t, c, addr); got != 1 {
			t.Fatalf("got %d commit hooks run, want 1", got)
		}
		if _, err := c.CallContract(ctx, ethereum.CallMsg{To: &addr, Data: []byte{opIncrement}}, nil); err != nil {
			t.Fatal(err)
		}
		if got := commits(t, c, addr); got != 1 {
			t.Fatalf("call ran commit hooks: got %d", got)
		}

		logs, err := c.FilterLogs(ctx, ethereum.FilterQuery{
			Addresses: []common.Address{addr},
			Topics:    [][]common.Hash{{incrementedTopic}},
		})
		if err != nil {
			t.Fatal(err)
		}
		if len(logs) != 1 || logs[0].TxHash != receipt.TxHash || logs[0].BlockHash != receipt.BlockHash {
			t.Fatalf("unexpected filtered logs %+v", logs)
		}
	})

	t.Run("revert", func(t *testing.T) {
		receipt := send(t, c, 1, &addr, nil, 100_000, []byte{opIncrementAndRevert})
		if receipt.Status != types.ReceiptStatusFailed {
			t.Fatal("expected failed receipt")
		}
		if len(receipt.Logs) != 0 {
			t.Fatal("failed receipt has logs")
		}
		if got := get(t, c, addr, opGet); got != 42 {
			t.Fatalf("reverted increment was kept: got %d", got)
		}
		if got := commits(t, c, addr); got != 1 {
			t.Fatalf("reverted transaction ran commit hooks: got %d", got)
		}

		_, err := c.CallContract(ctx, ethereum.CallMsg{To: &addr, Data: []byte{opRevert}}, nil)
		var revert *chain.RevertError
		if !errors.As(err, &revert) {
			t.Fatalf("got error %v, want revert", err)
		}
		if revert.Error() != "execution reverted: nope" {
			t.Fatalf("got message %q", revert.Error())
		}
		if revert.ErrorCode() != 3 {
			t.Fatalf("got code %d", revert.ErrorCode())
		}
		if data, ok := revert.ErrorData().(string); !ok || data[:10] != "0x08c379a0" {
			t.Fatalf("got data %v", revert.ErrorData())
		}
	})

	t.Run("nested failure", func(t *testing.T) {
		other := deployCounter(t, c, 0)
		input := append([]byte{opCall}, other.Bytes()...)
		input = append(input, opIncrementAndRevert)

		receipt := send(t, c, 1, &addr, nil, 200_000, input)
		if receipt.Status != types.ReceiptStatusSuccessful {
			t.Fatal("outer call failed")
		}
		if got := get(t, c, addr, opGet); got != 43 {
			t.Fatalf("got outer value %d, want 43", got)
		}
		if got := get(t, c, addr, opFailures); got != 1 {
			t.Fatalf("got %d failures, want 1", got)
		}
		if got := get(t, c, other, opGet); got != 0 {
			t.Fatalf("nested increment was kept: got %d", got)
		}
		if got := commits(t, c, other); got != 0 {
			t.Fatalf("failed nested frame ran commit hooks: got %d", got)
		}
	})

	t.Run("reentrancy", func(t *testing.T) {
		input := append([]byte{opCall}, addr.Bytes()...)
		input = append(input, opIncrement)

		receipt := send(t, c, 1, &addr, nil, 200_000, input)
		if receipt.Status != types.ReceiptStatusSuccessful {
			t.Fatal("outer call failed")
		}
		if got := get(t, c, addr, opFailures); got != 2 {
			t.Fatalf("got %d failures, want 2", got)
		}
	})

	t.Run("out of gas", func(t *testing.T) {
		receipt := send(t, c, 1, &addr, nil, 100_000, []byte{opBurn})
		if receipt.Status != types.ReceiptStatusFailed {
			t.Fatal("expected failed receipt")
		}
		if receipt.GasUsed != 100_000 {
			t.Fatalf("got gas used %d, want the whole limit", receipt.GasUsed)
		}
	})

	t.Run("estimate", func(t *testing.T) {
		gas, err := c.EstimateGas(ctx, ethereum.CallMsg{From: c.Accounts()[1], To: &addr, Data: []byte{opIncrement}})
		if err != nil {
			t.Fatal(err)
		}
		if gas <= 21000 {
			t.Fatalf("got estimate %d", gas)
		}
		if _, err := c.EstimateGas(ctx, ethereum.CallMsg{From: c.Accounts()[1], To: &addr, Data: []byte{opRevert}}); err == nil {
			t.Fatal("expected estimate of a reverting call to fail")
		}
	})

	t.Run("unsupported code", func(t *testing.T) {
		_, err := c.EstimateGas(ctx, ethereum.CallMsg{From: c.Accounts()[0], Data: []byte{0x60, 0x80, 0x60, 0x40}})
		if !errors.Is(err, chain.ErrUnsupportedCode) {
			t.Fatalf("got error %v, want %v", err, chain.ErrUnsupportedCode)
		}
	})
}

func TestTime(t *testing.T) {
	c := newChain(t)
	ctx := context.Background()

	header := c.Mine()
	if header.Time != 1_700_000_001 {
		t.Fatalf("got timestamp %d, want %d", header.Time, 1_700_000_001)
	}

	if offset := c.IncreaseTime(30); offset != 30 {
		t.Fatalf("got offset %d", offset)
	}
	if ts := c.PendingTimestamp(); ts != 1_700_000_032 {
		t.Fatalf("got pending timestamp %d", ts)
	}
	header = c.Mine()
	if header.Time != 1_700_000_032 {
		t.Fatalf("got timestamp %d, want %d", header.Time, 1_700_000_032)
	}
	header = c.Mine()
	if header.Time != 1_700_000_033 {
		t.Fatalf("time adjustment was not consumed: got %d", header.Time)
	}

	if err := c.SetNextBlockTimestamp(header.Time); !errors.Is(err, chain.ErrInvalidTimestamp) {
		t.Fatalf("got error %v", err)
	}
	if err := c.SetNextBlockTimestamp(1_800_000_000); err != nil {
		t.Fatal(err)
	}
	if header = c.Mine(); header.Time != 1_800_000_000 {
		t.Fatalf("got timestamp %d", header.Time)
	}

	n, err := c.BlockNumber(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 4 {
		t.Fatalf("got block number %d, want 4", n)
	}
	if _, err := c.HeaderByNumber(ctx, big.NewInt(5)); !errors.Is(err, ethereum.NotFound) {
		t.Fatalf("got error %v, want not found", err)
	}
}

func TestWallClock(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	c, err := chain.New(chain.Options{
		Logger: logging.New(io.Discard, 0),
		Clock:  func() time.Time { return now },
	})
	if err != nil {
		t.Fatal(err)
	}

	now = now.Add(10 * time.Second)
	if header := c.Mine(); header.Time != 1_700_000_010 {
		t.Fatalf("got timestamp %d", header.Time)
	}
	c.IncreaseTime(100)
	now = now.Add(time.Second)
	if header := c.Mine(); header.Time != 1_700_000_111 {
		t.Fatalf("got timestamp %d", header.Time)
	}
	// the adjustment persists while following the clock
	now = now.Add(time.Second)
	if header := c.Mine(); header.Time != 1_700_000_112 {
		t.Fatalf("got timestamp %d", header.Time)
	}
}

func TestSnapshot(t *testing.T) {
	c := newChain(t)
	ctx := context.Background()
	addr := deployCounter(t, c, 0)

	id := c.Snapshot()
	send(t, c, 1, &addr, nil, 100_000, []byte{opIncrement})
	other := deployCounter(t, c, 7)
	c.IncreaseTime(1000)

	if !c.Revert(id) {
		t.Fatal("snapshot not found")
	}
	if got := get(t, c, addr, opGet); got != 0 {
		t.Fatalf("got %d after revert, want 0", got)
	}
	if _, ok := c.ContractName(other); ok {
		t.Fatal("contract deployed after the snapshot survived")
	}
	n, err := c.BlockNumber(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("got block number %d, want 1", n)
	}
	if c.Revert(id) {
		t.Fatal("snapshot reused after revert")
	}

	// the chain keeps working after a revert
	send(t, c, 1, &addr, nil, 100_000, []byte{opIncrement})
	if got := get(t, c, addr, opGet); got != 1 {
		t.Fatalf("got %d, want 1", got)
	}
}

func TestSubscribeFilterLogs(t *testing.T) {
	c := newChain(t)
	addr := deployCounter(t, c, 0)

	logs := make(chan types.Log, 1)
	sub, err := c.SubscribeFilterLogs(context.Background(), ethereum.FilterQuery{Addresses: []common.Address{addr}}, logs)
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Unsubscribe()

	receipt := send(t, c, 1, &addr, nil, 100_000, []byte{opIncrement})
	select {
	case l := <-logs:
		if l.TxHash != receipt.TxHash {
			t.Fatalf("got log of %s, want %s", l.TxHash, receipt.TxHash)
		}
	case <-time.After(time.Second):
		t.Fatal("no log delivered")
	}
}
