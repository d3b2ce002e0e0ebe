// Copyright 2024 The rafflekit Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package deployments

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/rafflekit/rafflekit/pkg/artifacts"
	"github.com/rafflekit/rafflekit/pkg/logging"
	"github.com/rafflekit/rafflekit/pkg/transaction"
)

// DeployOptions configures a single deployment.
type DeployOptions struct {
	// Contract is the artifact name. It defaults to the deployment name.
	Contract string
	// Args are the constructor arguments.
	Args []interface{}
	// Log reports the deployment at info level.
	Log bool
	// WaitConfirmations is the number of blocks to wait for, at least 1.
	WaitConfirmations uint64
}

// Deployer deploys contracts from artifacts and records them.
type Deployer struct {
	logger    logging.Logger
	store     *Store
	backend   transaction.Backend
	txService transaction.Service
	artifacts artifacts.Source
}

func NewDeployer(logger logging.Logger, store *Store, backend transaction.Backend, txService transaction.Service, source artifacts.Source) *Deployer {
	return &Deployer{
		logger:    logger,
		store:     store,
		backend:   backend,
		txService: txService,
		artifacts: source,
	}
}

func (d *Deployer) Store() *Store {
	return d.store
}

// Get returns the deployment recorded under name.
func (d *Deployer) Get(name string) (*Deployment, error) {
	return d.store.Get(name)
}

// Deploy deploys the contract under name. An existing deployment with the
// same bytecode and constructor arguments whose code is still on chain is
// reused.
func (d *Deployer) Deploy(ctx context.Context, name string, opts DeployOptions) (*Deployment, error) {
	contract := opts.Contract
	if contract == "" {
		contract = name
	}
	artifact, err := d.artifacts.Artifact(contract)
	if err != nil {
		return nil, err
	}
	contractABI, err := artifact.ParsedABI()
	if err != nil {
		return nil, fmt.Errorf("parse %s abi: %w", contract, err)
	}
	args, err := contractABI.Pack("", opts.Args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s constructor arguments: %w", contract, err)
	}

	existing, err := d.store.Get(name)
	switch {
	case err == nil:
		if bytes.Equal(existing.Bytecode, artifact.Bytecode) && bytes.Equal(existing.Args, args) {
			code, err := d.backend.CodeAt(ctx, existing.Address, nil)
			if err != nil {
				return nil, err
			}
			if len(code) > 0 {
				if opts.Log {
					d.logger.Infof("reusing %q at %s", name, existing.Address)
				}
				return existing, nil
			}
		}
	case !errors.Is(err, ErrNotFound):
		return nil, err
	}

	data := make([]byte, 0, len(artifact.Bytecode)+len(args))
	data = append(append(data, artifact.Bytecode...), args...)
	txHash, err := d.txService.Send(ctx, &transaction.TxRequest{
		Data:        data,
		Description: "deploy " + name,
	})
	if err != nil {
		return nil, fmt.Errorf("deploy %s: %w", name, err)
	}
	if opts.Log {
		d.logger.Infof("deploying %q (tx: %s)...", name, txHash)
	}

	confirmations := opts.WaitConfirmations
	if confirmations == 0 {
		confirmations = 1
	}
	receipt, err := d.txService.WaitForConfirmations(ctx, txHash, confirmations)
	if err != nil {
		return nil, fmt.Errorf("deploy %s: %w", name, err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return nil, fmt.Errorf("deploy %s: %w", name, transaction.ErrTransactionReverted)
	}

	deployment := &Deployment{
		Name:        name,
		Contract:    contract,
		Address:     receipt.ContractAddress,
		TxHash:      txHash,
		Deployer:    d.txService.Sender(),
		Bytecode:    artifact.Bytecode,
		Args:        args,
		ABI:         artifact.ABI,
		BlockNumber: receipt.BlockNumber.Uint64(),
		GasUsed:     receipt.GasUsed,
	}
	if err := d.store.Save(deployment); err != nil {
		return nil, fmt.Errorf("save deployment %s: %w", name, err)
	}
	if opts.Log {
		d.logger.Infof("deployed %q at %s with %d gas", name, deployment.Address, deployment.GasUsed)
	}
	return deployment, nil
}
