// Copyright 2024 The rafflekit Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cmd

import (
	"fmt"

	"github.com/rafflekit/rafflekit/pkg/artifacts"
	"github.com/rafflekit/rafflekit/pkg/config"
	"github.com/rafflekit/rafflekit/pkg/deploy"
	"github.com/rafflekit/rafflekit/pkg/deployments"
	"github.com/rafflekit/rafflekit/pkg/frontend"
	"github.com/rafflekit/rafflekit/pkg/logging"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

func (c *command) initDeployCmd() error {
	cmd := &cobra.Command{
		Use:   "deploy",
		Short: "Run the deployment scripts",
		Long: `Run the deployment scripts against the selected network.

On development networks the coordinator mock is deployed and a funded
subscription is created for the raffle. On live networks the raffle is
verified on the block explorer when an explorer API key is set. The frontend
constants are updated when UPDATE_FRONTEND is set.`,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			if err := c.bindFlags(cmd); err != nil {
				return err
			}
			s, err := c.openSession(cmd.Context(), cmd, 0)
			if err != nil {
				return err
			}
			defer func() {
				if closeErr := s.Close(); err == nil {
					err = closeErr
				}
			}()

			if c.config.GetBool(optionNameReset) {
				s.logger.Infof("removing the deployments of %s", s.deployments.Network())
				if err := s.deployments.Reset(); err != nil {
					return fmt.Errorf("reset deployments: %w", err)
				}
			}

			env := s.conn.Env(s.logger, s.deployments, c.artifacts(s.conn.Network), c.getenv)
			if err := deployments.Run(cmd.Context(), env, deploy.Scripts(c.deployOptions(s.logger)), c.config.GetStringSlice(optionNameTags)...); err != nil {
				return err
			}

			all, err := s.deployments.All()
			if err != nil {
				return err
			}
			for _, d := range all {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", d.Name, d.Address)
			}
			return nil
		},
	}

	cmd.Flags().StringSlice(optionNameTags, nil, fmt.Sprintf("run only the scripts with these tags (%s, %s, %s, %s)", deploy.TagAll, deploy.TagMock, deploy.TagRaffle, deploy.TagFrontend))
	cmd.Flags().Bool(optionNameReset, false, "forget earlier deployments on the network")
	c.setDeployFlags(cmd)

	c.root.AddCommand(cmd)
	return nil
}

func (c *command) setDeployFlags(cmd *cobra.Command) {
	cmd.Flags().String(optionNameFrontendDir, frontend.DefaultDir, "directory of the frontend constants")
	cmd.Flags().String(optionNameArtifactsDir, "artifacts", "directory of the compiler artifacts and build info")
	cmd.Flags().String(optionNameSubscriptionID, "", "VRF subscription paying for the randomness requests (default per network)")
	cmd.Flags().String(optionNameVRFCoordinator, "", "VRF coordinator address on live networks (default per network)")
	cmd.Flags().String(optionNameGasLane, "", "VRF key hash (default per network)")
	cmd.Flags().String(optionNameEntranceFee, "", "raffle entrance fee in ether (default 0.01)")
	cmd.Flags().String(optionNameUpkeepInterval, "", "seconds between two rounds (default 30)")
	cmd.Flags().String(optionNameCallbackGasLimit, "", "gas limit of the fulfillment callback (default 500000)")
}

func (c *command) deployOptions(logger logging.Logger) deploy.Options {
	fsys := afero.NewOsFs()
	return deploy.Options{
		Frontend:     frontend.New(logger, fsys, c.config.GetString(optionNameFrontendDir)),
		FS:           fsys,
		ArtifactsDir: c.config.GetString(optionNameArtifactsDir),
	}
}

// artifacts returns the embedded native contracts for development networks
// and the compiled artifacts of the artifacts directory for live ones.
func (c *command) artifacts(network config.Network) artifacts.Source {
	if config.IsDevelopmentChain(network.Name) {
		return artifacts.Embedded()
	}
	return artifacts.NewDirSource(afero.NewOsFs(), c.config.GetString(optionNameArtifactsDir), nil)
}
