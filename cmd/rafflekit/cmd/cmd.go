// Copyright 2024 The rafflekit Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rafflekit/rafflekit/pkg/config"
	"github.com/rafflekit/rafflekit/pkg/deploy"
	"github.com/rafflekit/rafflekit/pkg/deployments"
	"github.com/rafflekit/rafflekit/pkg/logging"
	"github.com/rafflekit/rafflekit/pkg/node"
	"github.com/rafflekit/rafflekit/pkg/storage"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	optionNameDataDir            = "data-dir"
	optionNameVerbosity          = "verbosity"
	optionNameNetwork            = "network"
	optionNameAccount            = "account"
	optionNameTags               = "tags"
	optionNameReset              = "reset"
	optionNameFrontendDir        = "frontend-dir"
	optionNameArtifactsDir       = "artifacts-dir"
	optionNameRPCAddr            = "rpc-addr"
	optionNameDebugAPIAddr       = "debug-api-addr"
	optionNameCORSAllowedOrigins = "cors-allowed-origins"
	optionNameNoDeploy           = "no-deploy"
	optionNameAutomation         = "automation"
	optionNameWallClock          = "wall-clock"
	optionNameKeeperInterval     = "keeper-interval"
	optionNameValue              = "value"
	optionNameGoerliRPCURL       = "goerli-rpc-url"
	optionNameSepoliaRPCURL      = "sepolia-rpc-url"
	optionNamePrivateKey         = "private-key"
	optionNameEtherscanAPIKey    = "etherscan-api-key"
	optionNameUpdateFrontend     = "update-frontend"
	optionNameSubscriptionID     = "subscription-id"
	optionNameVRFCoordinator     = "vrf-coordinator"
	optionNameGasLane            = "gas-lane"
	optionNameEntranceFee        = "entrance-fee"
	optionNameUpkeepInterval     = "upkeep-interval"
	optionNameCallbackGasLimit   = "callback-gas-limit"
)

// envOptions maps the unprefixed environment variables deployment tooling
// conventionally reads to the options they set.
var envOptions = map[string]string{
	"GOERLI_RPC_URL":        optionNameGoerliRPCURL,
	"SEPOLIA_RPC_URL":       optionNameSepoliaRPCURL,
	"PRIVATE_KEY":           optionNamePrivateKey,
	deploy.EtherscanAPIKey:  optionNameEtherscanAPIKey,
	deploy.UpdateFrontend:   optionNameUpdateFrontend,
	deploy.SubscriptionID:   optionNameSubscriptionID,
	deploy.VRFCoordinator:   optionNameVRFCoordinator,
	deploy.GasLane:          optionNameGasLane,
	deploy.EntranceFee:      optionNameEntranceFee,
	deploy.UpkeepInterval:   optionNameUpkeepInterval,
	deploy.CallbackGasLimit: optionNameCallbackGasLimit,
}

func init() {
	cobra.EnableCommandSorting = false
}

type command struct {
	root        *cobra.Command
	config      *viper.Viper
	cfgFile     string
	homeDir     string
	dotenvFile  string
	interrupted func() <-chan os.Signal
}

type option func(*command)

func newCommand(opts ...option) (c *command, err error) {
	c = &command{
		root: &cobra.Command{
			Use:           "rafflekit",
			Short:         "Deploy, automate and inspect a verifiably random raffle",
			SilenceErrors: true,
			SilenceUsage:  true,
			PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
				return c.initConfig()
			},
		},
		dotenvFile:  ".env",
		interrupted: interruptSignals,
	}

	for _, o := range opts {
		o(c)
	}

	// Find home directory.
	if err := c.setHomeDir(); err != nil {
		return nil, err
	}

	c.initGlobalFlags()

	for _, init := range []func() error{
		c.initDeployCmd,
		c.initNodeCmd,
		c.initKeeperCmd,
		c.initStatusCmd,
		c.initEnterCmd,
		c.initVerifyCmd,
	} {
		if err := init(); err != nil {
			return nil, err
		}
	}
	c.initConfigurateOptionsCmd()
	c.initVersionCmd()

	return c, nil
}

func (c *command) Execute() (err error) {
	return c.root.Execute()
}

// Execute parses command line arguments and runs appropriate functions.
func Execute() (err error) {
	c, err := newCommand()
	if err != nil {
		return err
	}
	return c.Execute()
}

func (c *command) initGlobalFlags() {
	globalFlags := c.root.PersistentFlags()
	globalFlags.StringVar(&c.cfgFile, "config", "", "config file (default is $HOME/.rafflekit.yaml)")
	globalFlags.String(optionNameDataDir, filepath.Join(c.homeDir, ".rafflekit"), "data directory")
	globalFlags.String(optionNameVerbosity, "info", "log verbosity level 0=silent, 1=error, 2=warn, 3=info, 4=debug, 5=trace")
	globalFlags.String(optionNameNetwork, config.DefaultNetwork, fmt.Sprintf("network to use, one of %s", strings.Join(config.Networks(), ", ")))
}

func (c *command) initConfig() (err error) {
	cfg := viper.New()
	configName := ".rafflekit"
	if c.cfgFile != "" {
		// Use config file from the flag.
		cfg.SetConfigFile(c.cfgFile)
	} else {
		// Search config in home directory with name ".rafflekit" (without extension).
		cfg.AddConfigPath(c.homeDir)
		cfg.SetConfigName(configName)
	}

	// Environment
	cfg.SetEnvPrefix("rafflekit")
	cfg.AutomaticEnv() // read in environment variables that match
	cfg.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	dotenv, err := readDotenv(c.dotenvFile)
	if err != nil {
		return err
	}
	for env, option := range envOptions {
		if err := cfg.BindEnv(option, "RAFFLEKIT_"+env, env); err != nil {
			return err
		}
		if dotenv.IsSet(env) {
			cfg.SetDefault(option, dotenv.GetString(env))
		}
	}

	// If a config file is found, read it in.
	if err := cfg.ReadInConfig(); err != nil {
		var e viper.ConfigFileNotFoundError
		if !errors.As(err, &e) {
			return err
		}
	}

	if err := cfg.BindPFlags(c.root.PersistentFlags()); err != nil {
		return err
	}
	c.config = cfg
	return nil
}

// readDotenv reads KEY=value lines from path. A missing file reads as empty.
func readDotenv(path string) (*viper.Viper, error) {
	dotenv := viper.New()
	if path == "" {
		return dotenv, nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return dotenv, nil
	}
	dotenv.SetConfigFile(path)
	dotenv.SetConfigType("env")
	if err := dotenv.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return dotenv, nil
}

func (c *command) setHomeDir() (err error) {
	if c.homeDir != "" {
		return
	}
	dir, err := os.UserHomeDir()
	if err != nil {
		return err
	}
	c.homeDir = dir
	return nil
}

// bindFlags makes the command flags visible through the configuration. It
// runs before the command so that flags of one command do not shadow the
// same option of another.
func (c *command) bindFlags(cmd *cobra.Command) error {
	return c.config.BindPFlags(cmd.Flags())
}

// getenv resolves the settings deployment scripts read by their environment
// variable name.
func (c *command) getenv(key string) string {
	if option, ok := envOptions[key]; ok {
		return c.config.GetString(option)
	}
	return ""
}

func newLogger(cmd *cobra.Command, verbosity string) (logging.Logger, error) {
	level, silent, err := logging.ParseVerbosity(verbosity)
	if err != nil {
		return nil, err
	}
	if silent {
		return logging.New(io.Discard, 0), nil
	}
	return logging.New(cmd.ErrOrStderr(), level), nil
}

func (c *command) logger(cmd *cobra.Command) (logging.Logger, error) {
	return newLogger(cmd, c.config.GetString(optionNameVerbosity))
}

// stateStore opens the data directory. The in-process hardhat network
// starts empty on every run, so its records are kept in memory.
func (c *command) stateStore(logger logging.Logger, network string) (storage.StateStorer, error) {
	if network == config.HardhatNetwork {
		return node.InitStateStore(logger, "")
	}
	return node.InitStateStore(logger, c.config.GetString(optionNameDataDir))
}

// session is a connection to the selected network with its deployment
// records.
type session struct {
	logger      logging.Logger
	store       storage.StateStorer
	conn        *node.Connection
	deployments *deployments.Store
}

func (c *command) openSession(ctx context.Context, cmd *cobra.Command, account int) (s *session, err error) {
	logger, err := c.logger(cmd)
	if err != nil {
		return nil, err
	}
	networkName := c.config.GetString(optionNameNetwork)
	network, ok := config.GetNetwork(networkName)
	if !ok {
		return nil, fmt.Errorf("%w: %s", node.ErrUnknownNetwork, networkName)
	}

	store, err := c.stateStore(logger, network.Name)
	if err != nil {
		return nil, fmt.Errorf("statestore: %w", err)
	}

	var url string
	if network.URLEnv != "" {
		url = c.getenv(network.URLEnv)
	}
	conn, err := node.Connect(ctx, logger, node.ConnectOptions{
		Network:    network.Name,
		URL:        url,
		PrivateKey: c.config.GetString(optionNamePrivateKey),
		Account:    account,
		StateStore: store,
	})
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	return &session{
		logger:      logger,
		store:       store,
		conn:        conn,
		deployments: deployments.NewStore(store, network.Name),
	}, nil
}

func (s *session) Close() error {
	return errors.Join(s.conn.Close(), s.store.Close())
}
