// Copyright 2024 The rafflekit Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package config

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

var (
	// chain ID
	goerliChainID  = int64(5)
	sepoliaChainID = int64(11155111)
	hardhatChainID = int64(31337)

	// vrf coordinator
	goerliVRFCoordinator  = common.HexToAddress("0x2Ca8E0C643bDe4C2E08ab1fA0da3401AdAD7734D")
	sepoliaVRFCoordinator = common.HexToAddress("0x8103B0A8A00be2DDC778e6e7eaa21791Cd364625")

	// gas lane (key hash)
	goerliGasLane  = common.HexToHash("0x79d3d8832d904592c0bf9818b621522c988bb8b0c05cdc3b15aea1b6e8db0c15")
	sepoliaGasLane = common.HexToHash("0x474e34a077df58807dbe9c96d3c009b23b3c6d0cce433e59bbf5b34f823bc56c")

	// entrance fee of 0.01 ether
	defaultEntranceFee = big.NewInt(1e16)
)

const (
	defaultCallbackGasLimit = uint32(500000)
	defaultInterval         = uint64(30)
)

// ChainConfig holds the raffle constructor parameters of a chain. The
// coordinator is the zero address on development chains where it is
// deployed as a mock.
type ChainConfig struct {
	Name             string
	VRFCoordinator   common.Address
	EntranceFee      *big.Int
	GasLane          common.Hash
	SubscriptionID   uint64
	CallbackGasLimit uint32
	Interval         uint64
}

func GetChainConfig(chainID int64) (*ChainConfig, bool) {
	cfg := ChainConfig{
		EntranceFee:      new(big.Int).Set(defaultEntranceFee),
		CallbackGasLimit: defaultCallbackGasLimit,
		Interval:         defaultInterval,
	}
	switch chainID {
	case goerliChainID:
		cfg.Name = "goerli"
		cfg.VRFCoordinator = goerliVRFCoordinator
		cfg.GasLane = goerliGasLane
		return &cfg, true
	case sepoliaChainID:
		cfg.Name = "sepolia"
		cfg.VRFCoordinator = sepoliaVRFCoordinator
		cfg.GasLane = sepoliaGasLane
		return &cfg, true
	case hardhatChainID:
		cfg.Name = "hardhat"
		cfg.GasLane = goerliGasLane
		return &cfg, true
	default:
		return &cfg, false
	}
}
