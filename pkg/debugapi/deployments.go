// Copyright 2024 The rafflekit Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package debugapi

import (
	"errors"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"
	"github.com/rafflekit/rafflekit/pkg/deployments"
	"github.com/rafflekit/rafflekit/pkg/jsonhttp"
)

type deploymentSummary struct {
	Name        string         `json:"name"`
	Contract    string         `json:"contract"`
	Address     common.Address `json:"address"`
	TxHash      common.Hash    `json:"transactionHash"`
	BlockNumber uint64         `json:"blockNumber"`
	GasUsed     uint64         `json:"gasUsed"`
}

type deploymentsResponse struct {
	Network     string              `json:"network"`
	Deployments []deploymentSummary `json:"deployments"`
}

func (s *Service) deploymentsHandler(w http.ResponseWriter, _ *http.Request) {
	all, err := s.deployments.All()
	if err != nil {
		s.logger.Debugf("debug api: deployments: %v", err)
		s.logger.Error("debug api: deployments: cannot list deployments")
		jsonhttp.InternalServerError(w, "cannot list deployments")
		return
	}

	summaries := make([]deploymentSummary, 0, len(all))
	for _, d := range all {
		summaries = append(summaries, deploymentSummary{
			Name:        d.Name,
			Contract:    d.Contract,
			Address:     d.Address,
			TxHash:      d.TxHash,
			BlockNumber: d.BlockNumber,
			GasUsed:     d.GasUsed,
		})
	}
	jsonhttp.OK(w, deploymentsResponse{
		Network:     s.deployments.Network(),
		Deployments: summaries,
	})
}

func (s *Service) deploymentHandler(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	d, err := s.deployments.Get(name)
	if err != nil {
		if errors.Is(err, deployments.ErrNotFound) {
			jsonhttp.NotFound(w, "deployment not found")
			return
		}
		s.logger.Debugf("debug api: deployment %s: %v", name, err)
		s.logger.Errorf("debug api: deployment %s: cannot get deployment", name)
		jsonhttp.InternalServerError(w, "cannot get deployment")
		return
	}
	jsonhttp.OK(w, d)
}
