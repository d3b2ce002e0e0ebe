// Copyright 2024 The rafflekit Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package sctx provides convenience methods for context
// value injection and extraction.
package sctx

import (
	"context"
	"math/big"
)

type (
	gasPriceKey struct{}
	gasLimitKey struct{}
)

// SetGasLimit overrides the gas limit of transactions sent with ctx.
func SetGasLimit(ctx context.Context, limit uint64) context.Context {
	return context.WithValue(ctx, gasLimitKey{}, limit)
}

func GetGasLimit(ctx context.Context) uint64 {
	v, ok := ctx.Value(gasLimitKey{}).(uint64)
	if ok {
		return v
	}
	return 0
}

// GetGasLimitWithDefault returns the gas limit set on ctx or defaultLimit.
// A zero defaultLimit asks the transaction service to estimate.
func GetGasLimitWithDefault(ctx context.Context, defaultLimit uint64) uint64 {
	limit := GetGasLimit(ctx)
	if limit == 0 {
		return defaultLimit
	}
	return limit
}

// SetGasPrice overrides the gas price of transactions sent with ctx.
func SetGasPrice(ctx context.Context, price *big.Int) context.Context {
	return context.WithValue(ctx, gasPriceKey{}, price)
}

func GetGasPrice(ctx context.Context) *big.Int {
	v, ok := ctx.Value(gasPriceKey{}).(*big.Int)
	if ok {
		return v
	}
	return nil
}
