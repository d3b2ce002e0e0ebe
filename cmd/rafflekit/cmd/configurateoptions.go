// Copyright 2024 The rafflekit Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v2"
)

// secretOptions are masked when the configuration is printed.
var secretOptions = []string{optionNamePrivateKey, optionNameEtherscanAPIKey}

func (c *command) initConfigurateOptionsCmd() {
	c.root.AddCommand(&cobra.Command{
		Use:   "config",
		Short: "Print configuration options",
		RunE: func(cmd *cobra.Command, args []string) error {
			d := c.config.AllSettings()
			for _, o := range secretOptions {
				if v, ok := d[o].(string); ok && v != "" {
					d[o] = "********"
				}
			}
			data, err := yaml.Marshal(d)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), string(data))
			return nil
		},
	})
}
