// Copyright 2024 The rafflekit Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package chain

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

type stateSnapshot struct {
	accounts  map[common.Address]account
	contracts map[common.Address]any
}

// snapshotState copies the world state. Contracts on the active call stack
// are skipped: they cannot be re-entered, so a nested frame never changes
// them.
func (c *Chain) snapshotState(active []common.Address) *stateSnapshot {
	s := &stateSnapshot{
		accounts:  make(map[common.Address]account, len(c.accounts)),
		contracts: make(map[common.Address]any),
	}
	for addr, a := range c.accounts {
		cp := *a
		cp.balance = new(big.Int).Set(a.balance)
		s.accounts[addr] = cp
		if a.contract != nil && !contains(active, addr) {
			s.contracts[addr] = a.contract.Snapshot()
		}
	}
	return s
}

func (c *Chain) restoreState(s *stateSnapshot) {
	accounts := make(map[common.Address]*account, len(s.accounts))
	for addr, a := range s.accounts {
		cp := a
		cp.balance = new(big.Int).Set(a.balance)
		accounts[addr] = &cp
	}
	c.accounts = accounts
	for addr, snap := range s.contracts {
		accounts[addr].contract.Restore(snap)
	}
}

type chainSnapshot struct {
	state    *stateSnapshot
	blocks   int
	offset   uint64
	nextTime uint64
}

// Snapshot saves the whole chain and returns an id for Revert.
func (c *Chain) Snapshot() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.nextSnapshot
	c.nextSnapshot++
	c.snapshots[id] = &chainSnapshot{
		state:    c.snapshotState(nil),
		blocks:   len(c.blocks),
		offset:   c.offset,
		nextTime: c.nextTime,
	}
	return id
}

// Revert restores the chain to the snapshot id. The snapshot and every
// later one are invalidated. It reports whether the snapshot existed.
func (c *Chain) Revert(id uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.snapshots[id]
	if !ok {
		return false
	}
	for sid := range c.snapshots {
		if sid >= id {
			delete(c.snapshots, sid)
		}
	}

	c.restoreState(s.state)
	for _, b := range c.blocks[s.blocks:] {
		delete(c.byHash, b.header.Hash())
		if b.tx != nil {
			delete(c.txBlocks, b.tx.Hash())
		}
	}
	c.blocks = c.blocks[:s.blocks]
	c.offset = s.offset
	c.nextTime = s.nextTime
	c.metrics.BlockNumber.Set(float64(len(c.blocks) - 1))
	return true
}

func contains(as []common.Address, a common.Address) bool {
	for _, x := range as {
		if x == a {
			return true
		}
	}
	return false
}
