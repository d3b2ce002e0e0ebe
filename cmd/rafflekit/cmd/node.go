// Copyright 2024 The rafflekit Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rafflekit/rafflekit/pkg/keeper"
	"github.com/rafflekit/rafflekit/pkg/node"
	"github.com/spf13/cobra"
)

func interruptSignals() <-chan os.Signal {
	interruptChannel := make(chan os.Signal, 1)
	signal.Notify(interruptChannel, syscall.SIGINT, syscall.SIGTERM)
	return interruptChannel
}

func (c *command) initNodeCmd() error {
	cmd := &cobra.Command{
		Use:   "node",
		Short: "Run a development chain with the raffle deployed",
		Long: `Run an in-process development chain with a JSON-RPC endpoint.

The deployment scripts run on start and every deployed raffle is put under
automation: upkeeps are performed once the interval passed and randomness
requests are answered by the coordinator mock. Connect with --network
localhost.`,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			if err := c.bindFlags(cmd); err != nil {
				return err
			}
			logger, err := c.logger(cmd)
			if err != nil {
				return err
			}
			interval := c.config.GetDuration(optionNameKeeperInterval)

			n, err := node.New(logger, node.Options{
				RPCAddr:            c.config.GetString(optionNameRPCAddr),
				DebugAPIAddr:       c.config.GetString(optionNameDebugAPIAddr),
				CORSAllowedOrigins: c.config.GetStringSlice(optionNameCORSAllowedOrigins),
				WallClock:          c.config.GetBool(optionNameWallClock),
				Deploy:             !c.config.GetBool(optionNameNoDeploy),
				DeployTags:         c.config.GetStringSlice(optionNameTags),
				DeployOptions:      c.deployOptions(logger),
				Getenv:             c.getenv,
				Automation:         c.config.GetBool(optionNameAutomation),
				KeeperInterval:     interval,
				ResponderInterval:  interval,
			})
			if err != nil {
				return err
			}

			for i, addr := range n.Chain().Accounts() {
				fmt.Fprintf(cmd.OutOrStdout(), "Account #%d: %s\n", i, addr)
			}
			if endpoint := n.RPCEndpoint(); endpoint != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "JSON-RPC server at %s\n", endpoint)
			}

			// Wait for termination or interrupt signals.
			// We want to clean up things at the end.
			interruptChannel := c.interrupted()

			waitErr := make(chan error, 1)
			go func() { waitErr <- n.Wait() }()

			// Block main goroutine until it is interrupted
			select {
			case sig := <-interruptChannel:
				logger.Debugf("received signal: %v", sig)
			case err := <-waitErr:
				if err != nil {
					logger.Errorf("node: %v", err)
				}
			}
			logger.Info("shutting down")

			// Shutdown
			done := make(chan error, 1)
			go func() {
				defer func() {
					if r := recover(); r != nil {
						done <- fmt.Errorf("shutdown panic: %v", r)
					}
				}()
				done <- n.Shutdown()
			}()

			// If shutdown function is blocking too long,
			// allow process termination by receiving another signal.
			select {
			case sig := <-interruptChannel:
				logger.Debugf("received signal: %v", sig)
				return nil
			case err := <-done:
				return err
			}
		},
	}

	cmd.Flags().String(optionNameRPCAddr, "127.0.0.1:8545", "JSON-RPC listen address")
	cmd.Flags().String(optionNameDebugAPIAddr, "127.0.0.1:1635", "debug HTTP API listen address, empty to disable")
	cmd.Flags().StringSlice(optionNameCORSAllowedOrigins, []string{"*"}, "origins with CORS headers enabled")
	cmd.Flags().Bool(optionNameNoDeploy, false, "do not run the deployment scripts on start")
	cmd.Flags().StringSlice(optionNameTags, nil, "run only the deployment scripts with these tags")
	cmd.Flags().Bool(optionNameAutomation, true, "perform upkeeps and answer randomness requests")
	cmd.Flags().Bool(optionNameWallClock, true, "follow the system clock for block timestamps")
	cmd.Flags().Duration(optionNameKeeperInterval, keeper.DefaultPollInterval, "automation polling interval")
	c.setDeployFlags(cmd)

	c.root.AddCommand(cmd)
	return nil
}
