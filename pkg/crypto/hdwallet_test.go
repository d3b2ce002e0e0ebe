// Copyright 2024 The rafflekit Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package crypto_test

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/rafflekit/rafflekit/pkg/crypto"
)

func TestDevKeys(t *testing.T) {
	t.Parallel()

	keys, err := crypto.DevKeys(3)
	if err != nil {
		t.Fatal(err)
	}

	want := []common.Address{
		common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"),
		common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8"),
		common.HexToAddress("0x3C44CdDdB6a900fa2b585dd299e03d12FA4293BC"),
	}
	for i, k := range keys {
		if got := ethcrypto.PubkeyToAddress(k.PublicKey); got != want[i] {
			t.Errorf("account %d: got %s, want %s", i, got, want[i])
		}
	}

	if got := common.Bytes2Hex(crypto.EncodeSecp256k1PrivateKey(keys[0])); got != "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80" {
		t.Errorf("got account 0 key %s", got)
	}
}

func TestDeriveKeyInvalidPath(t *testing.T) {
	t.Parallel()

	seed := crypto.SeedFromMnemonic(crypto.DevMnemonic, "")
	for _, p := range []string{"", "44'/60'", "m/x", "m/44''"} {
		if _, err := crypto.DeriveKey(seed, p); !errors.Is(err, crypto.ErrInvalidPath) {
			t.Errorf("path %q: got error %v, want %v", p, err, crypto.ErrInvalidPath)
		}
	}
}

func TestParsePrivateKey(t *testing.T) {
	t.Parallel()

	k, err := crypto.ParsePrivateKey("0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80")
	if err != nil {
		t.Fatal(err)
	}
	if got := ethcrypto.PubkeyToAddress(k.PublicKey); got != common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266") {
		t.Fatalf("got address %s", got)
	}

	if _, err := crypto.ParsePrivateKey("0x1234"); err == nil {
		t.Fatal("expected error for short key")
	}
}
