// Copyright 2024 The rafflekit Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cmd

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/hashicorp/go-multierror"
	"github.com/rafflekit/rafflekit/pkg/artifacts"
	"github.com/rafflekit/rafflekit/pkg/config"
	"github.com/rafflekit/rafflekit/pkg/deployments"
	"github.com/rafflekit/rafflekit/pkg/keeper"
	"github.com/rafflekit/rafflekit/pkg/rafflecontract"
	"github.com/rafflekit/rafflekit/pkg/vrfcontract"
	"github.com/spf13/cobra"
)

const optionNameRaffle = "raffle"

func (c *command) initKeeperCmd() error {
	cmd := &cobra.Command{
		Use:   "keeper",
		Short: "Perform raffle upkeeps",
		Long: `Watch the deployed raffle and perform its upkeep whenever it is needed.

On development networks the randomness requests are answered as well, in
place of the oracle network.`,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			if err := c.bindFlags(cmd); err != nil {
				return err
			}
			s, err := c.openSession(cmd.Context(), cmd, c.config.GetInt(optionNameAccount))
			if err != nil {
				return err
			}
			defer func() {
				if closeErr := s.Close(); err == nil {
					err = closeErr
				}
			}()

			address, err := c.raffleAddress(s)
			if err != nil {
				return err
			}
			interval := c.config.GetDuration(optionNameKeeperInterval)

			agent := keeper.New(s.logger, interval)
			defer func() {
				if closeErr := agent.Close(); closeErr != nil {
					err = multierror.Append(err, closeErr)
				}
			}()
			agent.AddRaffle(rafflecontract.New(s.logger, s.conn.Backend, s.conn.TxService, address))
			s.logger.Infof("keeping raffle %s on %s", address, s.conn.Network.Name)

			if config.IsDevelopmentChain(s.conn.Network.Name) {
				mock, err := s.deployments.Get(artifacts.CoordinatorMockName)
				if err != nil {
					return err
				}
				coordinator := vrfcontract.New(s.logger, s.conn.Backend, s.conn.TxService, mock.Address)
				responder, err := keeper.NewResponder(s.logger, s.conn.Backend, coordinator, s.store, interval)
				if err != nil {
					return err
				}
				defer func() {
					if closeErr := responder.Close(); closeErr != nil {
						err = multierror.Append(err, closeErr)
					}
				}()
				s.logger.Infof("answering randomness requests of %s", mock.Address)
			}

			select {
			case sig := <-c.interrupted():
				s.logger.Debugf("received signal: %v", sig)
			case <-cmd.Context().Done():
			}
			return nil
		},
	}

	cmd.Flags().Int(optionNameAccount, config.DeployerAccount, "development account performing the upkeeps")
	cmd.Flags().String(optionNameRaffle, "", "raffle address, defaults to the deployed raffle")
	cmd.Flags().Duration(optionNameKeeperInterval, keeper.DefaultPollInterval, "polling interval")

	c.root.AddCommand(cmd)
	return nil
}

// raffleAddress is the --raffle flag or the recorded raffle deployment.
func (c *command) raffleAddress(s *session) (common.Address, error) {
	if v := c.config.GetString(optionNameRaffle); v != "" {
		if !common.IsHexAddress(v) {
			return common.Address{}, fmt.Errorf("malformed raffle address %q", v)
		}
		return common.HexToAddress(v), nil
	}
	d, err := s.deployments.Get(artifacts.RaffleName)
	if errors.Is(err, deployments.ErrNotFound) {
		return common.Address{}, fmt.Errorf("no raffle deployed on %s, run deploy first", s.conn.Network.Name)
	}
	if err != nil {
		return common.Address{}, err
	}
	return d.Address, nil
}
