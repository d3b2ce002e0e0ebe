// Copyright 2024 The rafflekit Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package deploy holds the deployment scripts of the raffle: the
// coordinator mock, the raffle itself and the frontend export.
package deploy

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/rafflekit/rafflekit/pkg/artifacts"
	"github.com/rafflekit/rafflekit/pkg/bigint"
	"github.com/rafflekit/rafflekit/pkg/config"
	"github.com/rafflekit/rafflekit/pkg/deployments"
	"github.com/rafflekit/rafflekit/pkg/frontend"
	"github.com/rafflekit/rafflekit/pkg/verify"
	"github.com/rafflekit/rafflekit/pkg/vrf"
	"github.com/rafflekit/rafflekit/pkg/vrfcontract"
	"github.com/spf13/afero"
)

const (
	MocksScript    = "00-deploy-mocks"
	RaffleScript   = "01-deploy-raffle"
	FrontendScript = "99-update-frontend"

	TagAll      = "all"
	TagMock     = "mock"
	TagRaffle   = "raffle"
	TagFrontend = "frontend"

	// RaffleSource is the source file the raffle is compiled from.
	RaffleSource = "contracts/Raffle.sol"

	EtherscanAPIKey = "ETHERSCAN_API_KEY"
	UpdateFrontend  = "UPDATE_FRONTEND"

	// Settings that override the chain configuration of the raffle. The
	// entrance fee is in ether and the interval in seconds.
	SubscriptionID   = "SUBSCRIPTION_ID"
	VRFCoordinator   = "VRF_COORDINATOR"
	GasLane          = "GAS_LANE"
	EntranceFee      = "ENTRANCE_FEE"
	UpkeepInterval   = "UPKEEP_INTERVAL"
	CallbackGasLimit = "CALLBACK_GAS_LIMIT"
)

// SubscriptionFundAmount is what a new development subscription is funded
// with, 2 ether.
var SubscriptionFundAmount = new(big.Int).Mul(big.NewInt(2), big.NewInt(1e18))

var (
	ErrNoChainConfig  = errors.New("no raffle configuration for chain")
	ErrInvalidSetting = errors.New("invalid setting")
)

// Options configure the parts of the scripts that reach outside the chain.
type Options struct {
	// Frontend receives the raffle address and ABI. The export is skipped
	// when it is nil.
	Frontend *frontend.Exporter
	// FS and ArtifactsDir locate the hardhat build-info used for explorer
	// verification.
	FS           afero.Fs
	ArtifactsDir string
	Verify       verify.Options
}

// Scripts returns the deployment scripts in the order they run.
func Scripts(o Options) []deployments.Script {
	s := &scripts{o: o}
	return []deployments.Script{
		{ID: MocksScript, Tags: []string{TagAll, TagMock}, Func: s.deployMocks},
		{ID: RaffleScript, Tags: []string{TagAll, TagRaffle}, Func: s.deployRaffle},
		{ID: FrontendScript, Tags: []string{TagAll, TagFrontend}, Func: s.updateFrontend},
	}
}

type scripts struct {
	o Options
}

func (s *scripts) deployMocks(ctx context.Context, env *deployments.Env) error {
	if !env.IsDevelopmentChain() {
		return nil
	}
	env.Logger.Info("local network detected, deploying mocks...")
	if _, err := env.Deployments.Deploy(ctx, artifacts.CoordinatorMockName, deployments.DeployOptions{
		Args: []interface{}{vrf.BaseFee, vrf.GasPriceLink},
		Log:  true,
	}); err != nil {
		return err
	}
	env.Logger.Info("mocks deployed")
	return nil
}

func (s *scripts) deployRaffle(ctx context.Context, env *deployments.Env) error {
	cfg, err := ChainConfig(env)
	if err != nil {
		return err
	}

	coordinatorAddress, subscriptionID := cfg.VRFCoordinator, cfg.SubscriptionID
	var coordinator *vrfcontract.Service
	if env.IsDevelopmentChain() {
		mock, err := env.Deployments.Get(artifacts.CoordinatorMockName)
		if err != nil {
			return err
		}
		coordinatorAddress = mock.Address
		coordinator = vrfcontract.New(env.Logger, env.Backend, env.TxService, mock.Address)

		// a configured subscription of the mock is reused as is
		if subscriptionID == 0 {
			subscriptionID, err = coordinator.CreateSubscription(ctx)
			if err != nil {
				return fmt.Errorf("create subscription: %w", err)
			}
			if err := coordinator.FundSubscription(ctx, subscriptionID, SubscriptionFundAmount); err != nil {
				return fmt.Errorf("fund subscription %d: %w", subscriptionID, err)
			}
		}
	} else if subscriptionID == 0 {
		env.Logger.Warningf("no VRF subscription configured for %s, set %s", env.Network.Name, SubscriptionID)
	}

	confirmations := env.Network.BlockConfirmations
	if confirmations == 0 {
		confirmations = 1
	}
	raffle, err := env.Deployments.Deploy(ctx, artifacts.RaffleName, deployments.DeployOptions{
		Args: []interface{}{
			coordinatorAddress,
			cfg.EntranceFee,
			[32]byte(cfg.GasLane),
			new(big.Int).SetUint64(cfg.Interval),
			cfg.CallbackGasLimit,
			subscriptionID,
		},
		Log:               true,
		WaitConfirmations: confirmations,
	})
	if err != nil {
		return err
	}

	if coordinator != nil {
		added, err := coordinator.ConsumerIsAdded(ctx, subscriptionID, raffle.Address)
		if err != nil {
			return err
		}
		if !added {
			if err := coordinator.AddConsumer(ctx, subscriptionID, raffle.Address); err != nil {
				return fmt.Errorf("add consumer %s: %w", raffle.Address, err)
			}
		}
	}

	if !env.IsDevelopmentChain() {
		if key := env.Setting(EtherscanAPIKey); key != "" {
			if err := Verify(ctx, env, s.o, key, raffle); err != nil {
				env.Logger.Warningf("verification of %s failed: %v", raffle.Address, err)
			}
		}
	}

	env.Logger.Info("raffle deployed")
	return nil
}

// ChainConfig returns the raffle parameters of the chain env runs on with
// the overrides of its settings applied. The coordinator setting is ignored
// on development chains, which always use the deployed mock.
func ChainConfig(env *deployments.Env) (*config.ChainConfig, error) {
	cfg, ok := config.GetChainConfig(env.ChainID.Int64())
	if !ok {
		return nil, fmt.Errorf("%w %s", ErrNoChainConfig, env.ChainID)
	}

	if v := env.Setting(SubscriptionID); v != "" {
		id, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %s %q", ErrInvalidSetting, SubscriptionID, v)
		}
		cfg.SubscriptionID = id
	}
	if v := env.Setting(VRFCoordinator); v != "" {
		if !common.IsHexAddress(v) {
			return nil, fmt.Errorf("%w: %s %q", ErrInvalidSetting, VRFCoordinator, v)
		}
		cfg.VRFCoordinator = common.HexToAddress(v)
	}
	if v := env.Setting(GasLane); v != "" {
		b, err := hexutil.Decode(v)
		if err != nil || len(b) != common.HashLength {
			return nil, fmt.Errorf("%w: %s %q", ErrInvalidSetting, GasLane, v)
		}
		cfg.GasLane = common.BytesToHash(b)
	}
	if v := env.Setting(EntranceFee); v != "" {
		fee, err := bigint.ParseEther(v)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidSetting, EntranceFee, err)
		}
		cfg.EntranceFee = fee
	}
	if v := env.Setting(UpkeepInterval); v != "" {
		interval, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %s %q", ErrInvalidSetting, UpkeepInterval, v)
		}
		cfg.Interval = interval
	}
	if v := env.Setting(CallbackGasLimit); v != "" {
		limit, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("%w: %s %q", ErrInvalidSetting, CallbackGasLimit, v)
		}
		cfg.CallbackGasLimit = uint32(limit)
	}
	return cfg, nil
}

// Verify submits the source of the raffle deployment d to the block
// explorer of the chain env runs on.
func Verify(ctx context.Context, env *deployments.Env, o Options, apiKey string, d *deployments.Deployment) error {
	fsys := o.FS
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	dir := o.ArtifactsDir
	if dir == "" {
		dir = "artifacts"
	}
	buildInfo, err := verify.LoadBuildInfo(fsys, dir, RaffleSource, d.Contract)
	if err != nil {
		return err
	}
	client, err := verify.New(env.Logger, apiKey, env.ChainID.Int64(), o.Verify)
	if err != nil {
		return err
	}
	return client.Verify(ctx, verify.Request{
		Address:         d.Address,
		ContractName:    RaffleSource + ":" + d.Contract,
		CompilerVersion: buildInfo.CompilerVersion(),
		ConstructorArgs: d.Args,
		Source:          buildInfo.Input,
	})
}

func (s *scripts) updateFrontend(_ context.Context, env *deployments.Env) error {
	if env.Setting(UpdateFrontend) == "" || s.o.Frontend == nil {
		return nil
	}
	raffle, err := env.Deployments.Get(artifacts.RaffleName)
	if err != nil {
		return err
	}
	return s.o.Frontend.Export(env.ChainID.Int64(), raffle.Address, raffle.ABI)
}
