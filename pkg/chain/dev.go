// Copyright 2024 The rafflekit Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package chain

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// IncreaseTime moves the timestamp of the next block forward by seconds and
// returns the pending adjustment.
func (c *Chain) IncreaseTime(seconds uint64) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.offset += seconds
	return c.offset
}

// SetNextBlockTimestamp fixes the timestamp of the next block.
func (c *Chain) SetNextBlockTimestamp(ts uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if latest := c.latest().header.Time; ts <= latest {
		return fmt.Errorf("%w: %d <= %d", ErrInvalidTimestamp, ts, latest)
	}
	c.nextTime = ts
	return nil
}

// Mine mines an empty block and returns its header.
func (c *Chain) Mine() *types.Header {
	c.mu.Lock()
	b := &block{header: c.pendingHeader()}
	c.seal(b)
	c.mu.Unlock()

	c.headFeed.Send(types.CopyHeader(b.header))
	return types.CopyHeader(b.header)
}

// SetBalance overwrites the balance of addr.
func (c *Chain) SetBalance(addr common.Address, balance *big.Int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.account(addr).balance = new(big.Int).Set(balance)
}

// PendingTimestamp is the timestamp the next block would get.
func (c *Chain) PendingTimestamp() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.nextTimestamp()
}
