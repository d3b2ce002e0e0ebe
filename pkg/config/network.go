// Copyright 2024 The rafflekit Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package config

import "sort"

const (
	HardhatNetwork   = "hardhat"
	LocalhostNetwork = "localhost"
	GoerliNetwork    = "goerli"
	SepoliaNetwork   = "sepolia"

	DefaultNetwork = HardhatNetwork

	DefaultLocalhostURL = "http://127.0.0.1:8545"
)

// Named accounts, as indexes into the signer list of a network.
const (
	DeployerAccount = 0
	PlayerAccount   = 1
)

// DevelopmentChains lists the networks on which mocks are deployed and
// explorer verification is skipped.
var DevelopmentChains = []string{HardhatNetwork, LocalhostNetwork}

// Network describes an entry of the networks table. An empty URL on the
// hardhat network means the in-process development chain.
type Network struct {
	Name               string
	ChainID            int64
	URL                string
	BlockConfirmations uint64
	// URLEnv is the environment variable the RPC endpoint is read from.
	URLEnv string
}

var networks = map[string]Network{
	HardhatNetwork: {
		Name:               HardhatNetwork,
		ChainID:            hardhatChainID,
		BlockConfirmations: 1,
	},
	LocalhostNetwork: {
		Name:               LocalhostNetwork,
		ChainID:            hardhatChainID,
		URL:                DefaultLocalhostURL,
		BlockConfirmations: 1,
	},
	GoerliNetwork: {
		Name:               GoerliNetwork,
		ChainID:            goerliChainID,
		BlockConfirmations: 6,
		URLEnv:             "GOERLI_RPC_URL",
	},
	SepoliaNetwork: {
		Name:               SepoliaNetwork,
		ChainID:            sepoliaChainID,
		BlockConfirmations: 6,
		URLEnv:             "SEPOLIA_RPC_URL",
	},
}

func GetNetwork(name string) (Network, bool) {
	n, ok := networks[name]
	return n, ok
}

// Networks returns the names of all configured networks.
func Networks() []string {
	names := make([]string, 0, len(networks))
	for n := range networks {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func IsDevelopmentChain(name string) bool {
	for _, n := range DevelopmentChains {
		if n == name {
			return true
		}
	}
	return false
}
