// Copyright 2024 The rafflekit Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package frontend exports the deployed raffle to the constants directory
// of the web frontend.
package frontend

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rafflekit/rafflekit/pkg/logging"
	"github.com/spf13/afero"
)

const (
	DefaultDir = "../nextjs-smartcontract-lottery/constants"

	AddressesFile = "contractAddresses.json"
	ABIFile       = "abi.json"
)

// Addresses maps a chain id to the raffle addresses deployed on it.
type Addresses map[string][]string

// Add appends address to the list of chainID unless it is already there.
// It reports whether the list changed.
func (a Addresses) Add(chainID int64, address common.Address) bool {
	key := strconv.FormatInt(chainID, 10)
	for _, have := range a[key] {
		if common.IsHexAddress(have) && common.HexToAddress(have) == address {
			return false
		}
	}
	a[key] = append(a[key], address.Hex())
	return true
}

type Exporter struct {
	logger logging.Logger
	fs     afero.Fs
	dir    string
}

func New(logger logging.Logger, fsys afero.Fs, dir string) *Exporter {
	if dir == "" {
		dir = DefaultDir
	}
	return &Exporter{logger: logger, fs: fsys, dir: dir}
}

func (e *Exporter) AddressesPath() string { return filepath.Join(e.dir, AddressesFile) }

func (e *Exporter) ABIPath() string { return filepath.Join(e.dir, ABIFile) }

// Export records address under chainID and writes the contract ABI.
func (e *Exporter) Export(chainID int64, address common.Address, contractABI json.RawMessage) error {
	e.logger.Info("updating front end...")
	if err := e.UpdateAddresses(chainID, address); err != nil {
		return err
	}
	return e.UpdateABI(contractABI)
}

// Addresses reads the addresses file. A missing file reads as empty.
func (e *Exporter) Addresses() (Addresses, error) {
	addresses := make(Addresses)
	data, err := afero.ReadFile(e.fs, e.AddressesPath())
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) || errors.Is(err, os.ErrNotExist) {
			return addresses, nil
		}
		return nil, err
	}
	if err := json.Unmarshal(data, &addresses); err != nil {
		return nil, fmt.Errorf("decode %s: %w", e.AddressesPath(), err)
	}
	return addresses, nil
}

func (e *Exporter) UpdateAddresses(chainID int64, address common.Address) error {
	addresses, err := e.Addresses()
	if err != nil {
		return err
	}
	if !addresses.Add(chainID, address) {
		e.logger.Debugf("frontend: %s already recorded for chain %d", address, chainID)
		return nil
	}
	data, err := json.Marshal(addresses)
	if err != nil {
		return err
	}
	if err := e.write(e.AddressesPath(), data); err != nil {
		return err
	}
	e.logger.Infof("recorded %s for chain %d in %s", address, chainID, e.AddressesPath())
	return nil
}

// UpdateABI writes the ABI as compact JSON.
func (e *Exporter) UpdateABI(contractABI json.RawMessage) error {
	var v interface{}
	if err := json.Unmarshal(contractABI, &v); err != nil {
		return fmt.Errorf("decode abi: %w", err)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if err := e.write(e.ABIPath(), data); err != nil {
		return err
	}
	e.logger.Infof("updated abi in %s", e.ABIPath())
	return nil
}

func (e *Exporter) write(path string, data []byte) error {
	if err := e.fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return afero.WriteFile(e.fs, path, data, 0o644)
}
