// Copyright 2024 The rafflekit Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package deployments

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// Snapshotter is a chain that can be rewound, like the development chain.
type Snapshotter interface {
	Snapshot() uint64
	Revert(id uint64) bool
}

type fixtureSnapshot struct {
	id          uint64
	deployments []*Deployment
}

// Fixture runs deployment scripts once per tag set and rewinds the chain
// and the deployment records on later runs.
type Fixture struct {
	chain     Snapshotter
	mu        sync.Mutex
	snapshots map[string]fixtureSnapshot
}

func NewFixture(chain Snapshotter) *Fixture {
	return &Fixture{
		chain:     chain,
		snapshots: make(map[string]fixtureSnapshot),
	}
}

// Run brings env to the state right after the scripts tagged with tags ran.
func (f *Fixture) Run(ctx context.Context, env *Env, scripts []Script, tags ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	key := fixtureKey(tags)
	store := env.Deployments.Store()
	if s, ok := f.snapshots[key]; ok && f.chain.Revert(s.id) {
		if err := store.Reset(); err != nil {
			return err
		}
		for _, d := range s.deployments {
			if err := store.Save(d); err != nil {
				return err
			}
		}
		f.snapshot(key, s.deployments)
		return nil
	}

	if err := Run(ctx, env, scripts, tags...); err != nil {
		return err
	}
	all, err := store.All()
	if err != nil {
		return err
	}
	f.snapshot(key, all)
	return nil
}

// snapshot is taken again after every revert since reverting consumes it.
func (f *Fixture) snapshot(key string, deployments []*Deployment) {
	f.snapshots[key] = fixtureSnapshot{
		id:          f.chain.Snapshot(),
		deployments: deployments,
	}
}

func fixtureKey(tags []string) string {
	sorted := append([]string(nil), tags...)
	sort.Strings(sorted)
	return strings.Join(sorted, ",")
}
