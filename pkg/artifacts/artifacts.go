// Copyright 2024 The rafflekit Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package artifacts loads compiled contract artifacts in the hardhat
// format. The Raffle and VRFCoordinatorV2Mock artifacts are embedded; their
// bytecode selects the native implementations of the development chain.
package artifacts

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/spf13/afero"
)

const (
	RaffleName          = "Raffle"
	CoordinatorMockName = "VRFCoordinatorV2Mock"
)

var ErrNotFound = errors.New("artifact not found")

//go:embed contracts/*.json
var embedded embed.FS

var nativePrefix = append([]byte{0xfe}, "rafflekit:native:"...)

// Artifact is a compiled contract.
type Artifact struct {
	Format                 string          `json:"_format"`
	ContractName           string          `json:"contractName"`
	SourceName             string          `json:"sourceName"`
	ABI                    json.RawMessage `json:"abi"`
	Bytecode               hexutil.Bytes   `json:"bytecode"`
	DeployedBytecode       hexutil.Bytes   `json:"deployedBytecode"`
	LinkReferences         json.RawMessage `json:"linkReferences,omitempty"`
	DeployedLinkReferences json.RawMessage `json:"deployedLinkReferences,omitempty"`
}

// ParsedABI parses the contract interface.
func (a *Artifact) ParsedABI() (abi.ABI, error) {
	return abi.JSON(bytes.NewReader(a.ABI))
}

// MustParseABI parses the contract interface and panics on error. It is
// meant for the embedded artifacts.
func (a *Artifact) MustParseABI() abi.ABI {
	cabi, err := a.ParsedABI()
	if err != nil {
		panic(fmt.Sprintf("error creating ABI for contract %s: %v", a.ContractName, err))
	}
	return cabi
}

// IsNative reports whether the artifact carries a native marker instead of
// EVM bytecode.
func (a *Artifact) IsNative() bool {
	_, ok := NativeName(a.Bytecode)
	return ok
}

// Source provides artifacts by contract name.
type Source interface {
	Artifact(name string) (*Artifact, error)
}

type embeddedSource struct{}

// Embedded returns the source of the artifacts built into the binary.
func Embedded() Source {
	return embeddedSource{}
}

func (embeddedSource) Artifact(name string) (*Artifact, error) {
	data, err := embedded.ReadFile("contracts/" + name + ".json")
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return nil, err
	}
	return decode(data)
}

// MustLoad returns an embedded artifact and panics when it is missing.
func MustLoad(name string) *Artifact {
	a, err := Embedded().Artifact(name)
	if err != nil {
		panic(err)
	}
	return a
}

type dirSource struct {
	fs       afero.Fs
	dir      string
	fallback Source
}

// NewDirSource returns a source that looks up <name>.json anywhere below
// dir, which is the layout of a hardhat artifacts directory. Missing
// artifacts are looked up in fallback when it is not nil.
func NewDirSource(fsys afero.Fs, dir string, fallback Source) Source {
	return &dirSource{fs: fsys, dir: dir, fallback: fallback}
}

var errFound = errors.New("found")

func (s *dirSource) Artifact(name string) (*Artifact, error) {
	var path string
	err := afero.Walk(s.fs, s.dir, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || filepath.Base(p) != name+".json" || strings.Contains(p, "build-info") {
			return nil
		}
		path = p
		return errFound
	})
	if err != nil && !errors.Is(err, errFound) && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("walk artifacts directory: %w", err)
	}
	if path == "" {
		if s.fallback != nil {
			return s.fallback.Artifact(name)
		}
		return nil, fmt.Errorf("%w: %s in %s", ErrNotFound, name, s.dir)
	}
	data, err := afero.ReadFile(s.fs, path)
	if err != nil {
		return nil, err
	}
	return decode(data)
}

func decode(data []byte) (*Artifact, error) {
	a := new(Artifact)
	if err := json.Unmarshal(data, a); err != nil {
		return nil, fmt.Errorf("decode artifact: %w", err)
	}
	if a.ContractName == "" {
		return nil, errors.New("decode artifact: missing contract name")
	}
	return a, nil
}

// NativeCode returns the marker code of a native contract.
func NativeCode(name string) []byte {
	return append(append([]byte(nil), nativePrefix...), name...)
}

// NativeName returns the contract name of a native marker. Trailing
// constructor arguments are ignored.
func NativeName(code []byte) (string, bool) {
	if !bytes.HasPrefix(code, nativePrefix) {
		return "", false
	}
	rest := code[len(nativePrefix):]
	for _, name := range []string{RaffleName, CoordinatorMockName} {
		if bytes.HasPrefix(rest, []byte(name)) {
			return name, true
		}
	}
	return "", false
}
