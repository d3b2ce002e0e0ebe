// Copyright 2024 The rafflekit Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cmd

import (
	"fmt"

	"github.com/rafflekit/rafflekit/pkg/bigint"
	"github.com/rafflekit/rafflekit/pkg/config"
	"github.com/rafflekit/rafflekit/pkg/rafflecontract"
	"github.com/spf13/cobra"
)

func (c *command) initEnterCmd() error {
	cmd := &cobra.Command{
		Use:   "enter",
		Short: "Enter the deployed raffle",
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
			raffle := rafflecontract.New(s.logger, s.conn.Backend, s.conn.TxService, address)

			value, err := raffle.EntranceFee(cmd.Context())
			if err != nil {
				return err
			}
			if v := c.config.GetString(optionNameValue); v != "" {
				if value, err = bigint.ParseEther(v); err != nil {
					return fmt.Errorf("value: %w", err)
				}
			}

			txHash, err := raffle.EnterRaffle(cmd.Context(), value)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s entered with %s ETH (tx: %s)\n", s.conn.Sender(), bigint.FormatEther(value), txHash)
			return nil
		},
	}

	cmd.Flags().String(optionNameValue, "", "amount in ETH to pay, defaults to the entrance fee")
	cmd.Flags().Int(optionNameAccount, config.PlayerAccount, "development account entering the raffle")
	cmd.Flags().String(optionNameRaffle, "", "raffle address, defaults to the deployed raffle")

	c.root.AddCommand(cmd)
	return nil
}
