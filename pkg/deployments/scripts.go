// Copyright 2024 The rafflekit Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package deployments

import (
	"context"
	"fmt"
	"math/big"
	"sort"

	"github.com/rafflekit/rafflekit/pkg/config"
	"github.com/rafflekit/rafflekit/pkg/logging"
	"github.com/rafflekit/rafflekit/pkg/transaction"
)

// Env is what deployment scripts run against.
type Env struct {
	Network     config.Network
	ChainID     *big.Int
	Logger      logging.Logger
	Backend     transaction.Backend
	TxService   transaction.Service
	Deployments *Deployer
	// Getenv looks up a setting such as ETHERSCAN_API_KEY. An empty value
	// means unset.
	Getenv func(key string) string
}

// IsDevelopmentChain reports whether the scripts run against a local chain.
func (e *Env) IsDevelopmentChain() bool {
	return config.IsDevelopmentChain(e.Network.Name)
}

// Setting returns the value of a setting, empty when unset.
func (e *Env) Setting(key string) string {
	if e.Getenv == nil {
		return ""
	}
	return e.Getenv(key)
}

// Func is the body of a deployment script.
type Func func(ctx context.Context, env *Env) error

// Script is a tagged deployment step. Scripts run in ID order.
type Script struct {
	ID   string
	Tags []string
	Func Func
}

func (s Script) hasAnyTag(tags []string) bool {
	if len(tags) == 0 {
		return true
	}
	for _, want := range tags {
		for _, have := range s.Tags {
			if want == have {
				return true
			}
		}
	}
	return false
}

// Select returns the scripts carrying any of tags ordered by ID. All
// scripts are selected when no tags are given.
func Select(scripts []Script, tags ...string) []Script {
	var selected []Script
	for _, s := range scripts {
		if s.hasAnyTag(tags) {
			selected = append(selected, s)
		}
	}
	sort.SliceStable(selected, func(i, j int) bool { return selected[i].ID < selected[j].ID })
	return selected
}

// Run runs the selected scripts and stops at the first failure.
func Run(ctx context.Context, env *Env, scripts []Script, tags ...string) error {
	for _, s := range Select(scripts, tags...) {
		if err := ctx.Err(); err != nil {
			return err
		}
		env.Logger.Debugf("deployments: running script %s on %s", s.ID, env.Network.Name)
		if err := s.Func(ctx, env); err != nil {
			return fmt.Errorf("script %s: %w", s.ID, err)
		}
	}
	return nil
}
