// Copyright 2024 The rafflekit Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package crypto

import (
	"crypto/ecdsa"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	"golang.org/x/crypto/pbkdf2"
)

const (
	// DevMnemonic is the well known mnemonic of local development chains.
	DevMnemonic = "test test test test test test test test test test test junk"
	// DevPath is the derivation path prefix of development accounts. The
	// account index is appended to it.
	DevPath = "m/44'/60'/0'/0"

	hardenedOffset = 0x80000000
)

var ErrInvalidPath = errors.New("invalid derivation path")

type extendedKey struct {
	key       [32]byte
	chainCode [32]byte
}

// SeedFromMnemonic returns the BIP-39 seed of a mnemonic sentence.
func SeedFromMnemonic(mnemonic, password string) []byte {
	return pbkdf2.Key([]byte(mnemonic), []byte("mnemonic"+password), 2048, 64, sha512.New)
}

// DeriveKey derives the BIP-32 private key at path from seed.
func DeriveKey(seed []byte, path string) (*ecdsa.PrivateKey, error) {
	indexes, err := parsePath(path)
	if err != nil {
		return nil, err
	}

	mac := hmac.New(sha512.New, []byte("Bitcoin seed"))
	_, _ = mac.Write(seed)
	sum := mac.Sum(nil)

	var k extendedKey
	copy(k.key[:], sum[:32])
	copy(k.chainCode[:], sum[32:])

	for _, i := range indexes {
		k, err = k.child(i)
		if err != nil {
			return nil, err
		}
	}

	privk, _ := btcec.PrivKeyFromBytes(k.key[:])
	return privk.ToECDSA(), nil
}

// DevKeys returns the first n development account keys.
func DevKeys(n int) ([]*ecdsa.PrivateKey, error) {
	seed := SeedFromMnemonic(DevMnemonic, "")
	keys := make([]*ecdsa.PrivateKey, 0, n)
	for i := 0; i < n; i++ {
		k, err := DeriveKey(seed, fmt.Sprintf("%s/%d", DevPath, i))
		if err != nil {
			return nil, fmt.Errorf("derive account %d: %w", i, err)
		}
		keys = append(keys, k)
	}
	return keys, nil
}

func (k extendedKey) child(i uint32) (extendedKey, error) {
	data := make([]byte, 0, 37)
	if i >= hardenedOffset {
		data = append(data, 0)
		data = append(data, k.key[:]...)
	} else {
		_, pub := btcec.PrivKeyFromBytes(k.key[:])
		data = append(data, pub.SerializeCompressed()...)
	}
	data = binary.BigEndian.AppendUint32(data, i)

	mac := hmac.New(sha512.New, k.chainCode[:])
	_, _ = mac.Write(data)
	sum := mac.Sum(nil)

	var il, parent btcec.ModNScalar
	if overflow := il.SetByteSlice(sum[:32]); overflow {
		return extendedKey{}, fmt.Errorf("%w: index %d yields an invalid key", ErrInvalidPath, i)
	}
	parent.SetByteSlice(k.key[:])
	il.Add(&parent)
	if il.IsZero() {
		return extendedKey{}, fmt.Errorf("%w: index %d yields an invalid key", ErrInvalidPath, i)
	}

	var c extendedKey
	c.key = il.Bytes()
	copy(c.chainCode[:], sum[32:])
	return c, nil
}

func parsePath(path string) ([]uint32, error) {
	parts := strings.Split(path, "/")
	if len(parts) == 0 || parts[0] != "m" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPath, path)
	}
	indexes := make([]uint32, 0, len(parts)-1)
	for _, p := range parts[1:] {
		var offset uint32
		if strings.HasSuffix(p, "'") {
			offset = hardenedOffset
			p = strings.TrimSuffix(p, "'")
		}
		n, err := strconv.ParseUint(p, 10, 31)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrInvalidPath, path)
		}
		indexes = append(indexes, uint32(n)+offset)
	}
	return indexes, nil
}
