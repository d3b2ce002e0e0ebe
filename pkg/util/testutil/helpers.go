// Copyright 2024 The rafflekit Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package testutil

import (
	"context"
	"io"
	"math/big"
	"reflect"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/rafflekit/rafflekit/pkg/artifacts"
	"github.com/rafflekit/rafflekit/pkg/chain"
	"github.com/rafflekit/rafflekit/pkg/chain/natives"
	"github.com/rafflekit/rafflekit/pkg/crypto"
	"github.com/rafflekit/rafflekit/pkg/logging"
	storemock "github.com/rafflekit/rafflekit/pkg/statestore/mock"
	"github.com/rafflekit/rafflekit/pkg/transaction"
)

// GenesisTime is the timestamp of the genesis block of test chains.
const GenesisTime = 1_700_000_000

// CleanupCloser adds Cleanup function to Test which will close supplied Closers.
func CleanupCloser(t testing.TB, closers ...io.Closer) {
	t.Helper()

	t.Cleanup(func() {
		for _, c := range closers {
			if c == nil {
				continue
			}

			if err := c.Close(); err != nil {
				t.Fatalf("failed to gracefully close %s: %s", reflect.TypeOf(c), err)
			}
		}
	})
}

// NewDevChain returns a development chain hosting the native raffle and
// coordinator contracts.
func NewDevChain(t testing.TB) *chain.Chain {
	t.Helper()

	c, err := chain.New(chain.Options{
		Logger:      logging.New(io.Discard, 0),
		GenesisTime: GenesisTime,
		Contracts:   natives.Factories(),
	})
	if err != nil {
		t.Fatal(err)
	}
	return c
}

// NewTransactionService returns a transaction service that signs with the
// dev chain account at index account. It is closed on test cleanup.
func NewTransactionService(t testing.TB, c *chain.Chain, account int) transaction.Service {
	t.Helper()

	key, err := c.Key(account)
	if err != nil {
		t.Fatal(err)
	}
	logger := logging.New(io.Discard, 0)
	monitor := transaction.NewMonitor(logger, c, c.Accounts()[account], 5*time.Millisecond, 6)
	store := storemock.NewStateStore()
	txService, err := transaction.NewService(logger, c, crypto.NewDefaultSigner(key), store, big.NewInt(chain.DefaultChainID), monitor)
	if err != nil {
		t.Fatal(err)
	}
	CleanupCloser(t, txService, monitor, store)
	return txService
}

// Deploy creates the embedded artifact name with the packed constructor
// args and returns the contract address.
func Deploy(t testing.TB, txService transaction.Service, name string, args []byte) common.Address {
	t.Helper()

	ctx := context.Background()
	code := append(append([]byte(nil), artifacts.MustLoad(name).Bytecode...), args...)
	txHash, err := txService.Send(ctx, &transaction.TxRequest{Data: code, Description: "deploy " + name})
	if err != nil {
		t.Fatal(err)
	}
	receipt, err := txService.WaitForReceipt(ctx, txHash)
	if err != nil {
		t.Fatal(err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		t.Fatalf("deploy %s reverted", name)
	}
	return receipt.ContractAddress
}
