// Copyright 2024 The rafflekit Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package deployments keeps track of deployed contracts per network and
// runs tagged deployment scripts against them.
package deployments

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/rafflekit/rafflekit/pkg/storage"
	"github.com/vmihailenco/msgpack/v5"
)

const keyPrefix = "deployment_"

// ErrNotFound is returned when no deployment is recorded under a name.
var ErrNotFound = errors.New("deployment not found")

// Deployment is a contract deployed on a network.
type Deployment struct {
	Name        string          `json:"name"`
	Contract    string          `json:"contract"`
	Address     common.Address  `json:"address"`
	TxHash      common.Hash     `json:"transactionHash"`
	Deployer    common.Address  `json:"deployer"`
	Bytecode    hexutil.Bytes   `json:"bytecode"`
	Args        hexutil.Bytes   `json:"args"`
	ABI         json.RawMessage `json:"abi"`
	BlockNumber uint64          `json:"blockNumber"`
	GasUsed     uint64          `json:"gasUsed"`
}

type deploymentRecord struct {
	Name        string `msgpack:"name"`
	Contract    string `msgpack:"contract"`
	Address     []byte `msgpack:"address"`
	TxHash      []byte `msgpack:"tx"`
	Deployer    []byte `msgpack:"deployer"`
	Bytecode    []byte `msgpack:"bytecode"`
	Args        []byte `msgpack:"args"`
	ABI         []byte `msgpack:"abi"`
	BlockNumber uint64 `msgpack:"block"`
	GasUsed     uint64 `msgpack:"gas"`
}

func (d *Deployment) MarshalBinary() ([]byte, error) {
	return msgpack.Marshal(&deploymentRecord{
		Name:        d.Name,
		Contract:    d.Contract,
		Address:     d.Address.Bytes(),
		TxHash:      d.TxHash.Bytes(),
		Deployer:    d.Deployer.Bytes(),
		Bytecode:    d.Bytecode,
		Args:        d.Args,
		ABI:         d.ABI,
		BlockNumber: d.BlockNumber,
		GasUsed:     d.GasUsed,
	})
}

func (d *Deployment) UnmarshalBinary(data []byte) error {
	var r deploymentRecord
	if err := msgpack.Unmarshal(data, &r); err != nil {
		return fmt.Errorf("decode deployment: %w", err)
	}
	*d = Deployment{
		Name:        r.Name,
		Contract:    r.Contract,
		Address:     common.BytesToAddress(r.Address),
		TxHash:      common.BytesToHash(r.TxHash),
		Deployer:    common.BytesToAddress(r.Deployer),
		Bytecode:    r.Bytecode,
		Args:        r.Args,
		ABI:         r.ABI,
		BlockNumber: r.BlockNumber,
		GasUsed:     r.GasUsed,
	}
	return nil
}

// Store persists the deployments of one network.
type Store struct {
	store   storage.StateStorer
	network string
}

func NewStore(store storage.StateStorer, network string) *Store {
	return &Store{store: store, network: network}
}

// Network is the name of the network the store records.
func (s *Store) Network() string {
	return s.network
}

func (s *Store) prefix() string {
	return keyPrefix + s.network + "_"
}

func (s *Store) key(name string) string {
	return s.prefix() + name
}

func (s *Store) Get(name string) (*Deployment, error) {
	d := new(Deployment)
	if err := s.store.Get(s.key(name), d); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s on %s", ErrNotFound, name, s.network)
		}
		return nil, err
	}
	return d, nil
}

func (s *Store) Save(d *Deployment) error {
	return s.store.Put(s.key(d.Name), d)
}

func (s *Store) Delete(name string) error {
	return s.store.Delete(s.key(name))
}

// All returns the deployments ordered by name.
func (s *Store) All() ([]*Deployment, error) {
	var all []*Deployment
	err := s.store.Iterate(s.prefix(), func(key, value []byte) (bool, error) {
		if !strings.HasPrefix(string(key), s.prefix()) {
			return true, nil
		}
		d := new(Deployment)
		if err := d.UnmarshalBinary(value); err != nil {
			return true, err
		}
		all = append(all, d)
		return false, nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Name < all[j].Name })
	return all, nil
}

// Reset deletes every deployment of the network.
func (s *Store) Reset() error {
	all, err := s.All()
	if err != nil {
		return err
	}
	for _, d := range all {
		if err := s.Delete(d.Name); err != nil {
			return err
		}
	}
	return nil
}
