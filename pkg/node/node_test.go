// Copyright 2024 The rafflekit Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package node_test

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rafflekit/rafflekit/pkg/artifacts"
	"github.com/rafflekit/rafflekit/pkg/chain"
	"github.com/rafflekit/rafflekit/pkg/config"
	"github.com/rafflekit/rafflekit/pkg/logging"
	"github.com/rafflekit/rafflekit/pkg/node"
	"github.com/rafflekit/rafflekit/pkg/rafflecontract"
	storemock "github.com/rafflekit/rafflekit/pkg/statestore/mock"
	"github.com/rafflekit/rafflekit/pkg/transaction"
	transactionmock "github.com/rafflekit/rafflekit/pkg/transaction/mock"
	"github.com/rafflekit/rafflekit/pkg/util/testutil"
)

func newNode(t *testing.T, automation bool) *node.Node {
	t.Helper()

	n, err := node.New(logging.New(io.Discard, 0), node.Options{
		RPCAddr:           "127.0.0.1:0",
		DebugAPIAddr:      "127.0.0.1:0",
		Deploy:            true,
		Automation:        automation,
		KeeperInterval:    10 * time.Millisecond,
		ResponderInterval: 10 * time.Millisecond,
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := n.Shutdown(); err != nil {
			t.Errorf("shutdown: %v", err)
		}
	})
	return n
}

func TestNode(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	logger := logging.New(io.Discard, 0)
	n := newNode(t, true)
	c := n.Chain()

	raffleDeployment, err := n.Deployments().Get(artifacts.RaffleName)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := n.Deployments().Get(artifacts.CoordinatorMockName); err != nil {
		t.Fatal(err)
	}
	if n.Deployments().Network() != config.LocalhostNetwork {
		t.Fatalf("got deployments of network %q", n.Deployments().Network())
	}

	waitFor(t, "raffle under automation", func() bool {
		raffles := n.Raffles()
		return len(raffles) == 1 && raffles[0] == raffleDeployment.Address
	})
	waitFor(t, "responder", func() bool { return n.Responder() != nil })

	var (
		players []common.Address
		reader  *rafflecontract.Service
	)
	for i := 1; i <= 2; i++ {
		conn, err := node.Connect(ctx, logger, node.ConnectOptions{
			Network:    config.HardhatNetwork,
			Chain:      c,
			Account:    i,
			StateStore: storemock.NewStateStore(),
		})
		if err != nil {
			t.Fatal(err)
		}
		testutil.CleanupCloser(t, conn)

		player := rafflecontract.New(logger, conn.Backend, conn.TxService, raffleDeployment.Address)
		fee, err := player.EntranceFee(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := player.EnterRaffle(ctx, fee); err != nil {
			t.Fatal(err)
		}
		players = append(players, conn.Sender())
		reader = player
	}

	interval, err := reader.Interval(ctx)
	if err != nil {
		t.Fatal(err)
	}
	c.IncreaseTime(interval + 1)
	c.Mine()

	waitFor(t, "winner", func() bool {
		winner, err := reader.RecentWinner(ctx)
		if err != nil {
			t.Fatal(err)
		}
		return winner == players[0] || winner == players[1]
	})
}

func TestNodeWithoutAutomation(t *testing.T) {
	t.Parallel()

	n := newNode(t, false)

	if raffles := n.Raffles(); len(raffles) != 0 {
		t.Fatalf("got raffles %v without automation", raffles)
	}
	if n.Responder() != nil {
		t.Fatal("responder started without automation")
	}
	if n.RPCEndpoint() == "" {
		t.Fatal("no rpc endpoint")
	}
}

func TestConnect(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	logger := logging.New(io.Discard, 0)

	t.Run("unknown network", func(t *testing.T) {
		t.Parallel()

		_, err := node.Connect(ctx, logger, node.ConnectOptions{Network: "mainnet"})
		if !errors.Is(err, node.ErrUnknownNetwork) {
			t.Fatalf("got error %v, want %v", err, node.ErrUnknownNetwork)
		}
	})

	t.Run("live network without key", func(t *testing.T) {
		t.Parallel()

		_, err := node.Connect(ctx, logger, node.ConnectOptions{Network: config.SepoliaNetwork, URL: "http://127.0.0.1:1"})
		if !errors.Is(err, node.ErrMissingPrivateKey) {
			t.Fatalf("got error %v, want %v", err, node.ErrMissingPrivateKey)
		}
	})

	t.Run("live network without url", func(t *testing.T) {
		t.Parallel()

		_, err := node.Connect(ctx, logger, node.ConnectOptions{
			Network:    config.SepoliaNetwork,
			PrivateKey: "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80",
		})
		if !errors.Is(err, node.ErrMissingURL) {
			t.Fatalf("got error %v, want %v", err, node.ErrMissingURL)
		}
	})

	t.Run("in-process", func(t *testing.T) {
		t.Parallel()

		conn, err := node.Connect(ctx, logger, node.ConnectOptions{
			Network:    config.HardhatNetwork,
			StateStore: storemock.NewStateStore(),
		})
		if err != nil {
			t.Fatal(err)
		}
		testutil.CleanupCloser(t, conn)

		if conn.Chain == nil {
			t.Fatal("no in-process chain")
		}
		if conn.Sender() != conn.Chain.Accounts()[config.DeployerAccount] {
			t.Fatalf("got sender %s, want the deployer account", conn.Sender())
		}
		if conn.ChainID.Int64() != chain.DefaultChainID {
			t.Fatalf("got chain id %s", conn.ChainID)
		}
	})

	t.Run("localhost", func(t *testing.T) {
		t.Parallel()

		n := newNode(t, false)
		conn, err := node.Connect(ctx, logger, node.ConnectOptions{
			Network:    config.LocalhostNetwork,
			URL:        n.RPCEndpoint(),
			Account:    config.PlayerAccount,
			StateStore: storemock.NewStateStore(),
		})
		if err != nil {
			t.Fatal(err)
		}
		testutil.CleanupCloser(t, conn)

		if conn.Chain != nil {
			t.Fatal("localhost connection uses the in-process chain")
		}
		if conn.Sender() != n.Chain().Accounts()[config.PlayerAccount] {
			t.Fatalf("got sender %s, want the player account", conn.Sender())
		}
		want, err := n.Chain().BlockNumber(ctx)
		if err != nil {
			t.Fatal(err)
		}
		got, err := conn.Backend.BlockNumber(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if got != want {
			t.Fatalf("got block %d over rpc, want %d", got, want)
		}
	})
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(10 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestResendPendingTransactions(t *testing.T) {
	t.Parallel()

	var (
		mined   = common.HexToHash("0x01")
		dropped = common.HexToHash("0x02")
		known   = common.HexToHash("0x03")
		errGone = errors.New("nonce too low")
	)
	var resent []common.Hash
	txService := transactionmock.New(
		transactionmock.WithPendingTransactionsFunc(func() ([]common.Hash, error) {
			return []common.Hash{mined, dropped, known}, nil
		}),
		transactionmock.WithResendTransactionFunc(func(ctx context.Context, txHash common.Hash) error {
			resent = append(resent, txHash)
			switch txHash {
			case mined:
				return errGone
			case known:
				return transaction.ErrAlreadyImported
			}
			return nil
		}),
	)

	err := node.ResendPendingTransactions(context.Background(), logging.New(io.Discard, 0), txService)
	if !errors.Is(err, errGone) {
		t.Fatalf("got error %v, want %v", err, errGone)
	}
	if len(resent) != 3 {
		t.Fatalf("resent %v, want every pending transaction", resent)
	}

	empty := transactionmock.New(transactionmock.WithPendingTransactionsFunc(func() ([]common.Hash, error) {
		return nil, nil
	}))
	if err := node.ResendPendingTransactions(context.Background(), logging.New(io.Discard, 0), empty); err != nil {
		t.Fatal(err)
	}
}
