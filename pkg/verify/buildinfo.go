// Copyright 2024 The rafflekit Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package verify

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// ErrNoBuildInfo is returned when no build-info file compiled the contract.
var ErrNoBuildInfo = errors.New("no build info for contract")

// BuildInfo is the compiler input and version of a hardhat compilation.
type BuildInfo struct {
	SolcVersion     string          `json:"solcVersion"`
	SolcLongVersion string          `json:"solcLongVersion"`
	Input           json.RawMessage `json:"input"`
	Output          struct {
		Contracts map[string]map[string]json.RawMessage `json:"contracts"`
	} `json:"output"`
}

// Compiles reports whether the compilation produced contract from source.
func (b *BuildInfo) Compiles(source, contract string) bool {
	_, ok := b.Output.Contracts[source][contract]
	return ok
}

// CompilerVersion is the version in the form explorers expect, like
// v0.8.17+commit.8df45f5f.
func (b *BuildInfo) CompilerVersion() string {
	v := b.SolcLongVersion
	if v == "" {
		v = b.SolcVersion
	}
	return "v" + strings.TrimPrefix(v, "v")
}

// LoadBuildInfo finds the build-info file below dir that compiled contract
// from source.
func LoadBuildInfo(fsys afero.Fs, dir, source, contract string) (*BuildInfo, error) {
	files, err := afero.ReadDir(fsys, filepath.Join(dir, "build-info"))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) || errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s:%s", ErrNoBuildInfo, source, contract)
		}
		return nil, err
	}
	for _, f := range files {
		if f.IsDir() || filepath.Ext(f.Name()) != ".json" {
			continue
		}
		data, err := afero.ReadFile(fsys, filepath.Join(dir, "build-info", f.Name()))
		if err != nil {
			return nil, err
		}
		b := new(BuildInfo)
		if err := json.Unmarshal(data, b); err != nil {
			return nil, fmt.Errorf("decode build info %s: %w", f.Name(), err)
		}
		if b.Compiles(source, contract) {
			return b, nil
		}
	}
	return nil, fmt.Errorf("%w: %s:%s", ErrNoBuildInfo, source, contract)
}
