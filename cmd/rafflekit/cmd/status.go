// Copyright 2024 The rafflekit Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cmd

import (
	"fmt"

	"github.com/rafflekit/rafflekit/pkg/bigint"
	"github.com/rafflekit/rafflekit/pkg/rafflecontract"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v2"
)

type statusOutput struct {
	Network          string   `yaml:"network"`
	Address          string   `yaml:"address"`
	State            string   `yaml:"state"`
	EntranceFee      string   `yaml:"entranceFee"`
	Interval         uint64   `yaml:"interval"`
	LastTimestamp    uint64   `yaml:"lastTimestamp"`
	UpkeepNeeded     bool     `yaml:"upkeepNeeded"`
	RecentWinner     string   `yaml:"recentWinner"`
	Balance          string   `yaml:"balance"`
	Players          []string `yaml:"players"`
	SubscriptionID   uint64   `yaml:"subscriptionId"`
	CallbackGasLimit uint32   `yaml:"callbackGasLimit"`
	GasLane          string   `yaml:"gasLane"`
}

func (c *command) initStatusCmd() error {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Print the state of the deployed raffle",
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

			address, err := c.raffleAddress(s)
			if err != nil {
				return err
			}
			status, err := rafflecontract.New(s.logger, s.conn.Backend, s.conn.TxService, address).Status(cmd.Context())
			if err != nil {
				return err
			}

			out := statusOutput{
				Network:          s.conn.Network.Name,
				Address:          status.Address.Hex(),
				State:            status.State.String(),
				EntranceFee:      bigint.FormatEther(status.EntranceFee) + " ETH",
				Interval:         status.Interval,
				LastTimestamp:    status.LastTimestamp,
				UpkeepNeeded:     status.UpkeepNeeded,
				RecentWinner:     status.RecentWinner.Hex(),
				Balance:          bigint.FormatEther(status.Balance) + " ETH",
				Players:          make([]string, 0, len(status.Players)),
				SubscriptionID:   status.SubscriptionID,
				CallbackGasLimit: status.CallbackGasLimit,
				GasLane:          status.GasLane.Hex(),
			}
			for _, p := range status.Players {
				out.Players = append(out.Players, p.Hex())
			}
			data, err := yaml.Marshal(out)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), string(data))
			return nil
		},
	}

	cmd.Flags().String(optionNameRaffle, "", "raffle address, defaults to the deployed raffle")

	c.root.AddCommand(cmd)
	return nil
}
