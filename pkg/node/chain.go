// Copyright 2024 The rafflekit Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package node

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"io"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/hashicorp/go-multierror"
	"github.com/rafflekit/rafflekit/pkg/artifacts"
	"github.com/rafflekit/rafflekit/pkg/chain"
	"github.com/rafflekit/rafflekit/pkg/chain/natives"
	"github.com/rafflekit/rafflekit/pkg/config"
	"github.com/rafflekit/rafflekit/pkg/crypto"
	"github.com/rafflekit/rafflekit/pkg/deployments"
	"github.com/rafflekit/rafflekit/pkg/logging"
	"github.com/rafflekit/rafflekit/pkg/storage"
	"github.com/rafflekit/rafflekit/pkg/transaction"
)

const (
	maxDelay          = 1 * time.Minute
	cancellationDepth = 6

	// DefaultPollingInterval is how often remote networks are polled for
	// receipts.
	DefaultPollingInterval = 4 * time.Second
	devPollingInterval     = 50 * time.Millisecond
)

var (
	ErrUnknownNetwork    = errors.New("unknown network")
	ErrMissingPrivateKey = errors.New("private key required for live networks")
	ErrMissingURL        = errors.New("rpc url required")
	ErrChainIDMismatch   = errors.New("chain id mismatch")
)

// InitChain will initialize the Ethereum backend at the given endpoint and
// set up the Transaction Service to interact with it using the provided signer.
// Development chains are not checked for sync since their blocks only follow
// transactions.
func InitChain(
	ctx context.Context,
	logger logging.Logger,
	stateStore storage.StateStorer,
	endpoint string,
	signer crypto.Signer,
	pollingInterval time.Duration,
	checkSync bool,
) (*ethclient.Client, *big.Int, transaction.Monitor, transaction.Service, error) {
	backend, err := ethclient.DialContext(ctx, endpoint)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("dial eth client: %w", err)
	}

	chainID, err := backend.ChainID(ctx)
	if err != nil {
		logger.Infof("could not connect to backend at %v. Check your node or specify another endpoint.", endpoint)
		backend.Close()
		return nil, nil, nil, nil, fmt.Errorf("get chain id: %w", err)
	}

	sender, err := signer.EthereumAddress()
	if err != nil {
		backend.Close()
		return nil, nil, nil, nil, fmt.Errorf("eth address: %w", err)
	}

	if checkSync {
		isSynced, _, err := transaction.IsSynced(ctx, backend, maxDelay)
		if err != nil {
			backend.Close()
			return nil, nil, nil, nil, fmt.Errorf("is synced: %w", err)
		}
		if !isSynced {
			logger.Infof("waiting to sync with the Ethereum backend")
			if err := transaction.WaitSynced(ctx, backend, maxDelay); err != nil {
				backend.Close()
				return nil, nil, nil, nil, fmt.Errorf("waiting backend sync: %w", err)
			}
		}
	}

	transactionMonitor := transaction.NewMonitor(logger, backend, sender, pollingInterval, cancellationDepth)
	transactionService, err := transaction.NewService(logger, backend, signer, stateStore, chainID, transactionMonitor)
	if err != nil {
		_ = transactionMonitor.Close()
		backend.Close()
		return nil, nil, nil, nil, fmt.Errorf("new transaction service: %w", err)
	}
	return backend, chainID, transactionMonitor, transactionService, nil
}

// ConnectOptions select the network and the account a Connection signs with.
type ConnectOptions struct {
	Network string
	// URL overrides the RPC endpoint of the network.
	URL string
	// PrivateKey signs on live networks. Development networks use the
	// development account at index Account.
	PrivateKey string
	Account    int
	// Chain is the in-process chain the hardhat network runs on. A new one
	// is created when it is nil.
	Chain           *chain.Chain
	StateStore      storage.StateStorer
	PollingInterval time.Duration
}

// Connection is a network reached through a signing transaction service.
type Connection struct {
	Network   config.Network
	ChainID   *big.Int
	Backend   transaction.Backend
	TxService transaction.Service
	// Chain is the in-process chain, nil when the network is reached over
	// RPC.
	Chain *chain.Chain

	client  *ethclient.Client
	closers []io.Closer
}

// Connect resolves the network and sets up a transaction service on it.
func Connect(ctx context.Context, logger logging.Logger, o ConnectOptions) (*Connection, error) {
	network, ok := config.GetNetwork(o.Network)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownNetwork, o.Network)
	}
	url := o.URL
	if url == "" {
		url = network.URL
	}
	dev := config.IsDevelopmentChain(network.Name)

	key, err := signingKey(o, dev)
	if err != nil {
		return nil, err
	}
	signer := crypto.NewDefaultSigner(key)

	if network.Name == config.HardhatNetwork && url == "" {
		return connectInProcess(logger, network, o, signer)
	}
	if url == "" {
		return nil, fmt.Errorf("%w: set %s", ErrMissingURL, network.URLEnv)
	}

	interval := o.PollingInterval
	if interval <= 0 {
		interval = DefaultPollingInterval
		if dev {
			interval = devPollingInterval
		}
	}
	client, chainID, monitor, txService, err := InitChain(ctx, logger, o.StateStore, url, signer, interval, !dev)
	if err != nil {
		return nil, err
	}
	if chainID.Int64() != network.ChainID {
		_ = txService.Close()
		_ = monitor.Close()
		client.Close()
		return nil, fmt.Errorf("%w: %s is chain %d, endpoint reports %s", ErrChainIDMismatch, network.Name, network.ChainID, chainID)
	}
	logger.Infof("connected to %s (chain %s) as %s", network.Name, chainID, txService.Sender())

	if err := ResendPendingTransactions(ctx, logger, txService); err != nil {
		logger.Warningf("resend pending transactions: %v", err)
	}

	return &Connection{
		Network:   network,
		ChainID:   chainID,
		Backend:   client,
		TxService: txService,
		client:    client,
		closers:   []io.Closer{txService, monitor},
	}, nil
}

// ResendPendingTransactions broadcasts again the transactions a previous
// run sent without seeing them mined. Transactions the backend already
// knows are skipped.
func ResendPendingTransactions(ctx context.Context, logger logging.Logger, txService transaction.Service) error {
	pending, err := txService.PendingTransactions()
	if err != nil {
		return fmt.Errorf("pending transactions: %w", err)
	}

	var mErr error
	for _, txHash := range pending {
		err := txService.ResendTransaction(ctx, txHash)
		switch {
		case errors.Is(err, transaction.ErrAlreadyImported):
			logger.Debugf("pending transaction %s already known to the backend", txHash)
		case err != nil:
			mErr = multierror.Append(mErr, fmt.Errorf("resend %s: %w", txHash, err))
		default:
			logger.Infof("resent pending transaction %s", txHash)
		}
	}
	return mErr
}

// signingKey picks the development account on development networks, where
// the private key setting is ignored.
func signingKey(o ConnectOptions, dev bool) (*ecdsa.PrivateKey, error) {
	if !dev {
		if o.PrivateKey == "" {
			return nil, ErrMissingPrivateKey
		}
		return crypto.ParsePrivateKey(o.PrivateKey)
	}
	if o.Chain != nil {
		return o.Chain.Key(o.Account)
	}
	if o.Account < 0 {
		return nil, fmt.Errorf("invalid development account %d", o.Account)
	}
	keys, err := crypto.DevKeys(o.Account + 1)
	if err != nil {
		return nil, err
	}
	return keys[o.Account], nil
}

func connectInProcess(logger logging.Logger, network config.Network, o ConnectOptions, signer crypto.Signer) (*Connection, error) {
	c := o.Chain
	if c == nil {
		var err error
		c, err = NewDevChain(logger, DevChainOptions{})
		if err != nil {
			return nil, err
		}
	}
	sender, err := signer.EthereumAddress()
	if err != nil {
		return nil, err
	}
	chainID, err := c.ChainID(context.Background())
	if err != nil {
		return nil, err
	}
	monitor := transaction.NewMonitor(logger, c, sender, devPollingInterval, cancellationDepth)
	txService, err := transaction.NewService(logger, c, signer, o.StateStore, chainID, monitor)
	if err != nil {
		_ = monitor.Close()
		return nil, fmt.Errorf("new transaction service: %w", err)
	}
	return &Connection{
		Network:   network,
		ChainID:   chainID,
		Backend:   c,
		TxService: txService,
		Chain:     c,
		closers:   []io.Closer{txService, monitor},
	}, nil
}

// Sender is the account the connection signs with.
func (c *Connection) Sender() common.Address {
	return c.TxService.Sender()
}

// Env returns the environment deployment scripts run in.
func (c *Connection) Env(logger logging.Logger, store *deployments.Store, source artifacts.Source, getenv func(string) string) *deployments.Env {
	return &deployments.Env{
		Network:     c.Network,
		ChainID:     c.ChainID,
		Logger:      logger,
		Backend:     c.Backend,
		TxService:   c.TxService,
		Deployments: deployments.NewDeployer(logger, store, c.Backend, c.TxService, source),
		Getenv:      getenv,
	}
}

func (c *Connection) Close() error {
	var mErr error
	for _, closer := range c.closers {
		if err := closer.Close(); err != nil {
			mErr = multierror.Append(mErr, err)
		}
	}
	if c.client != nil {
		c.client.Close()
	}
	return mErr
}

// DevChainOptions configure the in-process development chain.
type DevChainOptions struct {
	ChainID  int64
	Accounts int
	// WallClock makes block timestamps follow the system time instead of
	// advancing only with blocks.
	WallClock bool
}

// NewDevChain creates a development chain hosting the raffle and the
// coordinator mock.
func NewDevChain(logger logging.Logger, o DevChainOptions) (*chain.Chain, error) {
	opts := chain.Options{
		ChainID:   o.ChainID,
		Accounts:  o.Accounts,
		Contracts: natives.Factories(),
		Logger:    logger,
	}
	if o.WallClock {
		opts.Clock = time.Now
	}
	return chain.New(opts)
}
