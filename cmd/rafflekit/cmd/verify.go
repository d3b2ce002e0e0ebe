// Copyright 2024 The rafflekit Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cmd

import (
	"fmt"

	"github.com/rafflekit/rafflekit/pkg/artifacts"
	"github.com/rafflekit/rafflekit/pkg/deploy"
	"github.com/rafflekit/rafflekit/pkg/verify"
	"github.com/spf13/cobra"
)

func (c *command) initVerifyCmd() error {
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Verify the deployed raffle on the block explorer",
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			if err := c.bindFlags(cmd); err != nil {
				return err
			}
			apiKey := c.getenv(deploy.EtherscanAPIKey)
			if apiKey == "" {
				return verify.ErrMissingAPIKey
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

			d, err := s.deployments.Get(artifacts.RaffleName)
			if err != nil {
				return err
			}
			env := s.conn.Env(s.logger, s.deployments, c.artifacts(s.conn.Network), c.getenv)
			if err := deploy.Verify(cmd.Context(), env, c.deployOptions(s.logger), apiKey, d); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s verified at %s\n", d.Name, d.Address)
			return nil
		},
	}

	c.setDeployFlags(cmd)

	c.root.AddCommand(cmd)
	return nil
}
