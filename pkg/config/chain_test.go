// Copyright 2024 The rafflekit Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package config_test

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/rafflekit/rafflekit/pkg/config"
)

func TestGetChainConfig(t *testing.T) {
	t.Parallel()

	tests := []struct {
		chainID     int64
		name        string
		coordinator common.Address
		found       bool
	}{
		{chainID: 5, name: "goerli", coordinator: common.HexToAddress("0x2Ca8E0C643bDe4C2E08ab1fA0da3401AdAD7734D"), found: true},
		{chainID: 11155111, name: "sepolia", coordinator: common.HexToAddress("0x8103B0A8A00be2DDC778e6e7eaa21791Cd364625"), found: true},
		{chainID: 31337, name: "hardhat", found: true},
		{chainID: 1, found: false},
	}

	for _, tc := range tests {
		cfg, ok := config.GetChainConfig(tc.chainID)
		if ok != tc.found {
			t.Fatalf("chain %d: got found %v, want %v", tc.chainID, ok, tc.found)
		}
		if !ok {
			continue
		}
		if cfg.Name != tc.name {
			t.Errorf("chain %d: got name %q, want %q", tc.chainID, cfg.Name, tc.name)
		}
		if cfg.VRFCoordinator != tc.coordinator {
			t.Errorf("chain %d: got coordinator %s, want %s", tc.chainID, cfg.VRFCoordinator, tc.coordinator)
		}
		if cfg.EntranceFee.Cmp(big.NewInt(1e16)) != 0 {
			t.Errorf("chain %d: got entrance fee %s", tc.chainID, cfg.EntranceFee)
		}
		if cfg.Interval != 30 || cfg.CallbackGasLimit != 500000 {
			t.Errorf("chain %d: got interval %d callback gas limit %d", tc.chainID, cfg.Interval, cfg.CallbackGasLimit)
		}
	}
}

func TestChainConfigIsolated(t *testing.T) {
	t.Parallel()

	a, _ := config.GetChainConfig(31337)
	a.EntranceFee.SetInt64(1)

	b, _ := config.GetChainConfig(31337)
	if b.EntranceFee.Int64() == 1 {
		t.Fatal("entrance fee shared between configs")
	}
}

func TestDevelopmentChains(t *testing.T) {
	t.Parallel()

	for name, want := range map[string]bool{
		"hardhat":   true,
		"localhost": true,
		"goerli":    false,
		"sepolia":   false,
		"mainnet":   false,
	} {
		if got := config.IsDevelopmentChain(name); got != want {
			t.Errorf("%s: got %v, want %v", name, got, want)
		}
	}

	n, ok := config.GetNetwork("localhost")
	if !ok {
		t.Fatal("localhost network missing")
	}
	if n.URL != config.DefaultLocalhostURL || n.ChainID != 31337 {
		t.Fatalf("unexpected localhost network %+v", n)
	}
}
