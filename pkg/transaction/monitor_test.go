// Copyright 2024 The rafflekit Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package transaction_test

import (
	"context"
	"errors"
	"io"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/rafflekit/rafflekit/pkg/chain"
	"github.com/rafflekit/rafflekit/pkg/logging"
	"github.com/rafflekit/rafflekit/pkg/transaction"
	"github.com/rafflekit/rafflekit/pkg/transaction/backendmock"
	"github.com/rafflekit/rafflekit/pkg/util/testutil"
)

func TestMonitorWatchTransaction(t *testing.T) {
	t.Parallel()

	logger := logging.New(io.Discard, 0)
	sender := common.HexToAddress("0xabcd")
	txHash := common.HexToHash("0xaaaa")
	nonce := uint64(3)
	pollingInterval := 5 * time.Millisecond
	cancellationDepth := uint64(5)

	t.Run("confirmed", func(t *testing.T) {
		t.Parallel()

		monitor := transaction.NewMonitor(logger, backendmock.New(
			backendmock.WithBlockNumberFunc(func(ctx context.Context) (uint64, error) {
				return 10, nil
			}),
			backendmock.WithNonceAtFunc(func(ctx context.Context, account common.Address, blockNumber *big.Int) (uint64, error) {
				if account != sender {
					t.Errorf("got account %s, want %s", account, sender)
				}
				return nonce + 1, nil
			}),
			backendmock.WithTransactionReceiptFunc(func(ctx context.Context, h common.Hash) (*types.Receipt, error) {
				return &types.Receipt{TxHash: h, BlockNumber: big.NewInt(10)}, nil
			}),
		), sender, pollingInterval, cancellationDepth)
		defer monitor.Close()

		receiptC, errC, err := monitor.WatchTransaction(txHash, nonce)
		if err != nil {
			t.Fatal(err)
		}
		select {
		case receipt := <-receiptC:
			if receipt.TxHash != txHash {
				t.Fatalf("got receipt for %s, want %s", receipt.TxHash, txHash)
			}
		case err := <-errC:
			t.Fatal(err)
		case <-time.After(time.Second):
			t.Fatal("timeout")
		}
	})

	t.Run("cancelled", func(t *testing.T) {
		t.Parallel()

		monitor := transaction.NewMonitor(logger, backendmock.New(
			backendmock.WithBlockNumberFunc(func(ctx context.Context) (uint64, error) {
				return 10, nil
			}),
			backendmock.WithNonceAtFunc(func(ctx context.Context, account common.Address, blockNumber *big.Int) (uint64, error) {
				return nonce + 1, nil
			}),
			backendmock.WithTransactionReceiptFunc(func(ctx context.Context, h common.Hash) (*types.Receipt, error) {
				return nil, ethereum.NotFound
			}),
		), sender, pollingInterval, cancellationDepth)
		defer monitor.Close()

		receiptC, errC, err := monitor.WatchTransaction(txHash, nonce)
		if err != nil {
			t.Fatal(err)
		}
		select {
		case <-receiptC:
			t.Fatal("got receipt for cancelled transaction")
		case err := <-errC:
			if !errors.Is(err, transaction.ErrTransactionCancelled) {
				t.Fatalf("got error %v, want %v", err, transaction.ErrTransactionCancelled)
			}
		case <-time.After(time.Second):
			t.Fatal("timeout")
		}
	})

	t.Run("wait block", func(t *testing.T) {
		t.Parallel()

		calls := 0
		monitor := transaction.NewMonitor(logger, backendmock.New(
			backendmock.WithHeaderbyNumberFunc(func(ctx context.Context, number *big.Int) (*types.Header, error) {
				calls++
				if calls < 3 {
					return nil, ethereum.NotFound
				}
				return &types.Header{Number: number}, nil
			}),
		), sender, pollingInterval, cancellationDepth)
		defer monitor.Close()

		header, err := monitor.WaitBlock(context.Background(), big.NewInt(12))
		if err != nil {
			t.Fatal(err)
		}
		if header.Number.Uint64() != 12 {
			t.Fatalf("got block %d, want 12", header.Number)
		}
	})
}

func TestMonitorNewHeads(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	c := testutil.NewDevChain(t)
	key, err := c.Key(1)
	if err != nil {
		t.Fatal(err)
	}

	// receipts arrive with the mined block, long before the next poll
	monitor := transaction.NewMonitor(logging.New(io.Discard, 0), c, c.Accounts()[1], time.Hour, 5)
	defer monitor.Close()

	tx, err := types.SignTx(
		types.NewTransaction(0, c.Accounts()[2], big.NewInt(1), 21000, big.NewInt(2_000_000_000), nil),
		types.LatestSignerForChainID(big.NewInt(chain.DefaultChainID)),
		key,
	)
	if err != nil {
		t.Fatal(err)
	}
	receiptC, errC, err := monitor.WatchTransaction(tx.Hash(), tx.Nonce())
	if err != nil {
		t.Fatal(err)
	}
	// let the check of the new watch pass before the block is mined
	time.Sleep(50 * time.Millisecond)

	if err := c.SendTransaction(ctx, tx); err != nil {
		t.Fatal(err)
	}
	select {
	case receipt := <-receiptC:
		if receipt.TxHash != tx.Hash() || receipt.Status != types.ReceiptStatusSuccessful {
			t.Fatalf("got receipt %+v", receipt)
		}
	case err := <-errC:
		t.Fatal(err)
	case <-time.After(5 * time.Second):
		t.Fatal("no receipt after the block was mined")
	}
}
