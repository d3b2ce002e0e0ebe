// Copyright 2024 The rafflekit Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rpcserver_test

import (
	"context"
	"errors"
	"io"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/rafflekit/rafflekit/pkg/artifacts"
	"github.com/rafflekit/rafflekit/pkg/chain"
	"github.com/rafflekit/rafflekit/pkg/chain/natives"
	"github.com/rafflekit/rafflekit/pkg/chain/rpcserver"
	"github.com/rafflekit/rafflekit/pkg/logging"
	"github.com/rafflekit/rafflekit/pkg/vrf"
)

func newClient(t *testing.T) (*chain.Chain, *rpc.Client, *ethclient.Client) {
	t.Helper()

	logger := logging.New(io.Discard, 0)
	c, err := chain.New(chain.Options{
		Logger:      logger,
		GenesisTime: 1_700_000_000,
		Contracts:   natives.Factories(),
	})
	if err != nil {
		t.Fatal(err)
	}
	srv, err := rpcserver.New(c, logger)
	if err != nil {
		t.Fatal(err)
	}
	client := rpc.DialInProc(srv)
	t.Cleanup(func() {
		client.Close()
		srv.Stop()
	})
	return c, client, ethclient.NewClient(client)
}

func sendTx(t *testing.T, c *chain.Chain, ec *ethclient.Client, to *common.Address, value *big.Int, data []byte) *types.Transaction {
	t.Helper()

	ctx := context.Background()
	key, err := c.Key(0)
	if err != nil {
		t.Fatal(err)
	}
	nonce, err := ec.PendingNonceAt(ctx, c.Accounts()[0])
	if err != nil {
		t.Fatal(err)
	}
	tx, err := types.SignNewTx(key, types.LatestSignerForChainID(big.NewInt(chain.DefaultChainID)), &types.DynamicFeeTx{
		ChainID:   big.NewInt(chain.DefaultChainID),
		Nonce:     nonce,
		To:        to,
		Value:     value,
		Gas:       1_000_000,
		GasFeeCap: big.NewInt(2_000_000_000),
		GasTipCap: big.NewInt(1_000_000_000),
		Data:      data,
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := ec.SendTransaction(ctx, tx); err != nil {
		t.Fatal(err)
	}
	return tx
}

func TestChainInfo(t *testing.T) {
	t.Parallel()

	c, client, ec := newClient(t)
	ctx := context.Background()

	id, err := ec.ChainID(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if id.Int64() != chain.DefaultChainID {
		t.Fatalf("got chain id %s", id)
	}

	var version string
	if err := client.CallContext(ctx, &version, "net_version"); err != nil {
		t.Fatal(err)
	}
	if version != "31337" {
		t.Fatalf("got net version %q", version)
	}

	var accounts []common.Address
	if err := client.CallContext(ctx, &accounts, "eth_accounts"); err != nil {
		t.Fatal(err)
	}
	if len(accounts) != len(c.Accounts()) || accounts[0] != c.Accounts()[0] {
		t.Fatalf("got accounts %v", accounts)
	}

	balance, err := ec.BalanceAt(ctx, accounts[1], nil)
	if err != nil {
		t.Fatal(err)
	}
	if balance.Cmp(chain.DefaultBalance) != 0 {
		t.Fatalf("got balance %s", balance)
	}

	header, err := ec.HeaderByNumber(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	if header.Number.Uint64() != 0 || header.Time != 1_700_000_000 {
		t.Fatalf("got genesis header %d at %d", header.Number, header.Time)
	}
	if _, err := ec.HeaderByNumber(ctx, big.NewInt(5)); !errors.Is(err, ethereum.NotFound) {
		t.Fatalf("got error %v, want %v", err, ethereum.NotFound)
	}
}

func TestTransactions(t *testing.T) {
	t.Parallel()

	c, _, ec := newClient(t)
	ctx := context.Background()
	to := c.Accounts()[5]

	tx := sendTx(t, c, ec, &to, big.NewInt(1000), nil)

	receipt, err := ec.TransactionReceipt(ctx, tx.Hash())
	if err != nil {
		t.Fatal(err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		t.Fatal("transfer failed")
	}
	if receipt.BlockNumber.Uint64() != 1 {
		t.Fatalf("got block %d, want 1", receipt.BlockNumber)
	}

	got, pending, err := ec.TransactionByHash(ctx, tx.Hash())
	if err != nil {
		t.Fatal(err)
	}
	if pending {
		t.Fatal("mined transaction reported pending")
	}
	if got.Hash() != tx.Hash() {
		t.Fatalf("got transaction %s, want %s", got.Hash(), tx.Hash())
	}

	block, err := ec.BlockByNumber(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(block.Transactions()) != 1 || block.Transactions()[0].Hash() != tx.Hash() {
		t.Fatalf("got block transactions %v", block.Transactions())
	}

	if _, err := ec.TransactionReceipt(ctx, common.HexToHash("0x01")); !errors.Is(err, ethereum.NotFound) {
		t.Fatalf("got error %v, want %v", err, ethereum.NotFound)
	}
}

func TestSendTransaction(t *testing.T) {
	t.Parallel()

	c, client, ec := newClient(t)
	ctx := context.Background()
	from, to := c.Accounts()[2], c.Accounts()[3]

	var hash common.Hash
	err := client.CallContext(ctx, &hash, "eth_sendTransaction", map[string]interface{}{
		"from":  from,
		"to":    to,
		"value": (*hexutil.Big)(big.NewInt(1e18)),
	})
	if err != nil {
		t.Fatal(err)
	}
	balance, err := ec.BalanceAt(ctx, to, nil)
	if err != nil {
		t.Fatal(err)
	}
	want := new(big.Int).Add(chain.DefaultBalance, big.NewInt(1e18))
	if balance.Cmp(want) != 0 {
		t.Fatalf("got balance %s, want %s", balance, want)
	}

	err = client.CallContext(ctx, &hash, "eth_sendTransaction", map[string]interface{}{
		"from": common.HexToAddress("0xabcd"),
		"to":   to,
	})
	if err == nil {
		t.Fatal("expected error for unknown account")
	}
}

func TestRevertData(t *testing.T) {
	t.Parallel()

	c, _, ec := newClient(t)
	ctx := context.Background()

	coordinatorABI := artifacts.MustLoad(artifacts.CoordinatorMockName).MustParseABI()
	args, err := coordinatorABI.Pack("", vrf.BaseFee, vrf.GasPriceLink)
	if err != nil {
		t.Fatal(err)
	}
	tx := sendTx(t, c, ec, nil, nil, append(artifacts.NativeCode(artifacts.CoordinatorMockName), args...))
	receipt, err := ec.TransactionReceipt(ctx, tx.Hash())
	if err != nil {
		t.Fatal(err)
	}
	coordinator := receipt.ContractAddress

	data, err := coordinatorABI.Pack("getSubscription", uint64(7))
	if err != nil {
		t.Fatal(err)
	}
	_, err = ec.CallContract(ctx, ethereum.CallMsg{To: &coordinator, Data: data}, nil)
	var dataErr rpc.DataError
	if !errors.As(err, &dataErr) {
		t.Fatalf("got error %v, want data error", err)
	}
	id := coordinatorABI.Errors["InvalidSubscription"].ID
	want := hexutil.Encode(id[:4])
	if dataErr.ErrorData() != want {
		t.Fatalf("got revert data %v, want %s", dataErr.ErrorData(), want)
	}
	var rpcErr rpc.Error
	if !errors.As(err, &rpcErr) || rpcErr.ErrorCode() != 3 {
		t.Fatalf("got error %v, want code 3", err)
	}
}

func TestEVM(t *testing.T) {
	t.Parallel()

	c, client, ec := newClient(t)
	ctx := context.Background()

	var snapshot hexutil.Uint64
	if err := client.CallContext(ctx, &snapshot, "evm_snapshot"); err != nil {
		t.Fatal(err)
	}

	var offset uint64
	if err := client.CallContext(ctx, &offset, "evm_increaseTime", 31); err != nil {
		t.Fatal(err)
	}
	if offset != 31 {
		t.Fatalf("got offset %d, want 31", offset)
	}
	if err := client.CallContext(ctx, nil, "evm_mine"); err != nil {
		t.Fatal(err)
	}
	header, err := ec.HeaderByNumber(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	if header.Number.Uint64() != 1 || header.Time != 1_700_000_032 {
		t.Fatalf("got block %d at %d", header.Number, header.Time)
	}

	if err := client.CallContext(ctx, nil, "evm_setNextBlockTimestamp", "0x6553f200"); err != nil {
		t.Fatal(err)
	}
	if err := client.CallContext(ctx, nil, "evm_setNextBlockTimestamp", 1); err == nil {
		t.Fatal("expected error for a timestamp in the past")
	}

	var ok bool
	if err := client.CallContext(ctx, &ok, "hardhat_setBalance", c.Accounts()[4], "0x1"); err != nil {
		t.Fatal(err)
	}
	balance, err := ec.BalanceAt(ctx, c.Accounts()[4], nil)
	if err != nil {
		t.Fatal(err)
	}
	if balance.Int64() != 1 {
		t.Fatalf("got balance %s, want 1", balance)
	}

	if err := client.CallContext(ctx, &ok, "evm_revert", snapshot); err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("revert failed")
	}
	n, err := ec.BlockNumber(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Fatalf("got block number %d after revert, want 0", n)
	}
}

func TestSubscribeLogs(t *testing.T) {
	t.Parallel()

	c, _, ec := newClient(t)
	ctx := context.Background()

	coordinatorABI := artifacts.MustLoad(artifacts.CoordinatorMockName).MustParseABI()
	args, err := coordinatorABI.Pack("", vrf.BaseFee, vrf.GasPriceLink)
	if err != nil {
		t.Fatal(err)
	}
	tx := sendTx(t, c, ec, nil, nil, append(artifacts.NativeCode(artifacts.CoordinatorMockName), args...))
	receipt, err := ec.TransactionReceipt(ctx, tx.Hash())
	if err != nil {
		t.Fatal(err)
	}
	coordinator := receipt.ContractAddress

	logs := make(chan types.Log, 1)
	sub, err := ec.SubscribeFilterLogs(ctx, ethereum.FilterQuery{Addresses: []common.Address{coordinator}}, logs)
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Unsubscribe()

	data, err := coordinatorABI.Pack("createSubscription")
	if err != nil {
		t.Fatal(err)
	}
	sendTx(t, c, ec, &coordinator, nil, data)

	l := <-logs
	if l.Topics[0] != coordinatorABI.Events["SubscriptionCreated"].ID {
		t.Fatalf("got topic %s", l.Topics[0])
	}

	filtered, err := ec.FilterLogs(ctx, ethereum.FilterQuery{
		Addresses: []common.Address{coordinator},
		Topics:    [][]common.Hash{{coordinatorABI.Events["SubscriptionCreated"].ID}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(filtered) != 1 {
		t.Fatalf("got %d logs, want 1", len(filtered))
	}
}
