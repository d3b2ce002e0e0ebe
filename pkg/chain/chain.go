// Copyright 2024 The rafflekit Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package chain implements an in-process development chain. It mines one
// block per transaction, exposes the subset of the Ethereum JSON-RPC backend
// that rafflekit uses and hosts native contracts in place of EVM bytecode.
// Time only advances with blocks unless a wall clock is configured, which
// makes the chain deterministic in tests.
package chain

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/event"
	"github.com/ethereum/go-ethereum/params"
	"github.com/rafflekit/rafflekit/pkg/crypto"
	"github.com/rafflekit/rafflekit/pkg/logging"
)

const (
	DefaultChainID       = 31337
	DefaultAccounts      = 10
	DefaultBlockGasLimit = 30_000_000
)

var (
	// DefaultBalance is the initial balance of every development account.
	DefaultBalance = new(big.Int).Mul(big.NewInt(10_000), big.NewInt(params.Ether))
	// BaseFee is the constant base fee of every block.
	BaseFee = big.NewInt(params.GWei)
	// Coinbase receives nothing; fees are burned.
	Coinbase = common.HexToAddress("0xc014ba5ec014ba5ec014ba5ec014ba5ec014ba5e")
)

var (
	ErrNonceTooLow       = errors.New("nonce too low")
	ErrNonceTooHigh      = errors.New("nonce too high")
	ErrInsufficientFunds = errors.New("insufficient funds for gas * price + value")
	ErrIntrinsicGas      = errors.New("intrinsic gas too low")
	ErrFeeCapTooLow      = errors.New("max fee per gas less than block base fee")
	ErrGasLimit          = errors.New("exceeds block gas limit")
	ErrAlreadyKnown      = errors.New("already known")
	ErrOutOfGas          = errors.New("out of gas")
	ErrReentrantCall     = errors.New("reentrant call")
	ErrUnsupportedCode   = errors.New("unsupported bytecode: only native contracts can be deployed")
	ErrContractExists    = errors.New("contract address collision")
	ErrInvalidTimestamp  = errors.New("timestamp must be greater than the latest block timestamp")
)

// Contract is a native contract instance hosted by the chain.
type Contract interface {
	// Call executes input. The call value is already credited to the
	// contract when Call runs.
	Call(env *Env, input []byte) ([]byte, error)
	// Snapshot and Restore let the chain undo the effects of reverted
	// calls.
	Snapshot() any
	Restore(any)
}

// Factory constructs a native contract from its ABI encoded constructor
// arguments.
type Factory func(env *Env, args []byte) (Contract, error)

// Options configure a development chain.
type Options struct {
	ChainID       int64
	Accounts      int
	Balance       *big.Int
	BlockGasLimit uint64
	// Contracts maps artifact names to native contract factories.
	Contracts map[string]Factory
	// GenesisTime is the timestamp of block zero, defaulting to now.
	GenesisTime uint64
	// Clock makes block timestamps follow the wall clock.
	Clock  func() time.Time
	Logger logging.Logger
}

// Creation is published for every deployed contract.
type Creation struct {
	Address     common.Address
	Name        string
	TxHash      common.Hash
	BlockNumber uint64
}

type account struct {
	balance  *big.Int
	nonce    uint64
	code     []byte
	name     string
	contract Contract
}

type block struct {
	header  *types.Header
	tx      *types.Transaction
	receipt *types.Receipt
}

// Chain is an automining development chain.
type Chain struct {
	mu sync.Mutex

	chainID       *big.Int
	signer        types.Signer
	blockGasLimit uint64
	factories     map[string]Factory
	clock         func() time.Time
	logger        logging.Logger
	metrics       metrics

	keys     []*ecdsa.PrivateKey
	addrs    []common.Address
	accounts map[common.Address]*account

	blocks   []*block
	byHash   map[common.Hash]uint64
	txBlocks map[common.Hash]uint64

	offset   uint64
	nextTime uint64

	snapshots    map[uint64]*chainSnapshot
	nextSnapshot uint64

	creationFeed event.Feed
	logsFeed     event.Feed
	headFeed     event.FeedOf[*types.Header]
}

// New creates a chain with funded development accounts and a genesis block.
func New(o Options) (*Chain, error) {
	if o.ChainID == 0 {
		o.ChainID = DefaultChainID
	}
	if o.Accounts == 0 {
		o.Accounts = DefaultAccounts
	}
	if o.Balance == nil {
		o.Balance = DefaultBalance
	}
	if o.BlockGasLimit == 0 {
		o.BlockGasLimit = DefaultBlockGasLimit
	}
	if o.GenesisTime == 0 {
		now := time.Now
		if o.Clock != nil {
			now = o.Clock
		}
		o.GenesisTime = uint64(now().Unix())
	}
	if o.Logger == nil {
		return nil, errors.New("chain: logger is required")
	}

	keys, err := crypto.DevKeys(o.Accounts)
	if err != nil {
		return nil, fmt.Errorf("derive development accounts: %w", err)
	}

	chainID := big.NewInt(o.ChainID)
	c := &Chain{
		chainID:       chainID,
		signer:        types.LatestSignerForChainID(chainID),
		blockGasLimit: o.BlockGasLimit,
		factories:     o.Contracts,
		clock:         o.Clock,
		logger:        o.Logger,
		metrics:       newMetrics(),
		keys:          keys,
		accounts:      make(map[common.Address]*account),
		byHash:        make(map[common.Hash]uint64),
		txBlocks:      make(map[common.Hash]uint64),
		snapshots:     make(map[uint64]*chainSnapshot),
		nextSnapshot:  1,
	}
	for _, k := range keys {
		addr := ecdsaAddress(k)
		c.addrs = append(c.addrs, addr)
		c.accounts[addr] = &account{balance: new(big.Int).Set(o.Balance)}
	}

	genesis := &types.Header{
		ParentHash:  common.Hash{},
		UncleHash:   types.EmptyUncleHash,
		Coinbase:    Coinbase,
		Root:        types.EmptyRootHash,
		TxHash:      types.EmptyTxsHash,
		ReceiptHash: types.EmptyReceiptsHash,
		Difficulty:  new(big.Int),
		Number:      new(big.Int),
		GasLimit:    c.blockGasLimit,
		Time:        o.GenesisTime,
		BaseFee:     new(big.Int).Set(BaseFee),
	}
	c.appendBlock(&block{header: genesis})

	return c, nil
}

// Accounts returns the development accounts in derivation order.
func (c *Chain) Accounts() []common.Address {
	return append([]common.Address(nil), c.addrs...)
}

// Key returns the private key of the i-th development account.
func (c *Chain) Key(i int) (*ecdsa.PrivateKey, error) {
	if i < 0 || i >= len(c.keys) {
		return nil, fmt.Errorf("account %d out of range", i)
	}
	return c.keys[i], nil
}

// ContractName returns the artifact name of the native contract at addr.
func (c *Chain) ContractName(addr common.Address) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	a, ok := c.accounts[addr]
	if !ok || a.contract == nil {
		return "", false
	}
	return a.name, true
}

// Contract returns the native contract instance at addr.
func (c *Chain) Contract(addr common.Address) (Contract, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	a, ok := c.accounts[addr]
	if !ok || a.contract == nil {
		return nil, false
	}
	return a.contract, true
}

// SubscribeCreations delivers every contract deployment to ch.
func (c *Chain) SubscribeCreations(ch chan<- Creation) event.Subscription {
	return c.creationFeed.Subscribe(ch)
}

func (c *Chain) account(addr common.Address) *account {
	a, ok := c.accounts[addr]
	if !ok {
		a = &account{balance: new(big.Int)}
		c.accounts[addr] = a
	}
	return a
}

func (c *Chain) balance(addr common.Address) *big.Int {
	a, ok := c.accounts[addr]
	if !ok {
		return new(big.Int)
	}
	return new(big.Int).Set(a.balance)
}

func (c *Chain) transfer(from, to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	src := c.account(from)
	if src.balance.Cmp(amount) < 0 {
		return ErrInsufficientFunds
	}
	dst := c.account(to)
	src.balance = new(big.Int).Sub(src.balance, amount)
	dst.balance = new(big.Int).Add(dst.balance, amount)
	return nil
}

func (c *Chain) latest() *block {
	return c.blocks[len(c.blocks)-1]
}

func (c *Chain) appendBlock(b *block) {
	n := b.header.Number.Uint64()
	c.blocks = append(c.blocks, b)
	c.byHash[b.header.Hash()] = n
	if b.tx != nil {
		c.txBlocks[b.tx.Hash()] = n
	}
	c.metrics.BlockNumber.Set(float64(n))
}

func ecdsaAddress(k *ecdsa.PrivateKey) common.Address {
	addr, _ := crypto.NewDefaultSigner(k).EthereumAddress()
	return addr
}
