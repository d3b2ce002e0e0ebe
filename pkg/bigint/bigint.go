// Copyright 2024 The rafflekit Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package bigint carries wei amounts through JSON as decimal strings and
// converts them from and to ether.
package bigint

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"
)

const etherDecimals = 18

var (
	ErrInvalidAmount = errors.New("invalid amount")

	wei = new(big.Int).Exp(big.NewInt(10), big.NewInt(etherDecimals), nil)
)

type BigInt struct {
	big.Int
}

func (i BigInt) MarshalJSON() ([]byte, error) {
	return []byte(fmt.Sprintf(`"%s"`, i.String())), nil
}

func (i *BigInt) UnmarshalJSON(b []byte) error {
	var val string
	err := json.Unmarshal(b, &val)
	if err != nil {
		return err
	}

	if _, ok := i.SetString(val, 10); !ok {
		return fmt.Errorf("%w: %q", ErrInvalidAmount, val)
	}

	return nil
}

// Ether formats the amount in ether without trailing zeros.
func (i *BigInt) Ether() string {
	return FormatEther(&i.Int)
}

func NewBigInt(x int64) *BigInt {
	b := new(BigInt)
	b.SetInt64(x)
	return b
}

// Wrap copies i into a BigInt. A nil i wraps zero.
func Wrap(i *big.Int) *BigInt {
	if i == nil {
		return new(BigInt)
	}
	return &BigInt{*new(big.Int).Set(i)}
}

// ParseEther converts a decimal ether amount such as "0.1" to wei.
func ParseEther(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	whole, frac, _ := strings.Cut(s, ".")
	if whole == "" && frac == "" || strings.HasPrefix(whole, "-") || strings.HasPrefix(whole, "+") {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	if len(frac) > etherDecimals {
		return nil, fmt.Errorf("%w: %q has more than %d decimals", ErrInvalidAmount, s, etherDecimals)
	}
	digits := whole + frac + strings.Repeat("0", etherDecimals-len(frac))
	v, ok := new(big.Int).SetString(digits, 10)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	return v, nil
}

// FormatEther formats a wei amount in ether.
func FormatEther(v *big.Int) string {
	if v == nil {
		return "0"
	}
	q, r := new(big.Int).QuoRem(new(big.Int).Abs(v), wei, new(big.Int))
	s := q.String()
	if r.Sign() != 0 {
		rs := r.String()
		frac := strings.Repeat("0", etherDecimals-len(rs)) + rs
		s += "." + strings.TrimRight(frac, "0")
	}
	if v.Sign() < 0 {
		s = "-" + s
	}
	return s
}
