// Copyright 2024 The rafflekit Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package natives hosts the Raffle and VRFCoordinatorV2Mock contracts on the
// development chain. Calls are decoded with the contracts' ABIs and served
// by the raffle and vrf packages; their errors are encoded as the custom
// errors the ABIs declare.
package natives

import (
	"github.com/rafflekit/rafflekit/pkg/artifacts"
	"github.com/rafflekit/rafflekit/pkg/chain"
)

// Factories returns the factories of every native contract keyed by
// artifact name.
func Factories() map[string]chain.Factory {
	return map[string]chain.Factory{
		artifacts.RaffleName:          NewRaffle,
		artifacts.CoordinatorMockName: NewCoordinator,
	}
}
