// Copyright 2024 The rafflekit Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package debugapi

import (
	"math/big"
	"net/http"

	"github.com/rafflekit/rafflekit/pkg/bigint"
	"github.com/rafflekit/rafflekit/pkg/config"
	"github.com/rafflekit/rafflekit/pkg/jsonhttp"
)

type chainResponse struct {
	Network          string         `json:"network"`
	ChainID          *bigint.BigInt `json:"chainId"`
	DevelopmentChain bool           `json:"developmentChain"`
	BlockNumber      uint64         `json:"blockNumber"`
	BlockTimestamp   uint64         `json:"blockTimestamp"`
}

func (s *Service) chainHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	chainID, err := s.backend.ChainID(ctx)
	if err != nil {
		s.logger.Debugf("debug api: chain: chain id: %v", err)
		s.logger.Error("debug api: chain: cannot get chain id")
		jsonhttp.InternalServerError(w, "cannot get chain id")
		return
	}
	header, err := s.backend.HeaderByNumber(ctx, nil)
	if err != nil {
		s.logger.Debugf("debug api: chain: latest header: %v", err)
		s.logger.Error("debug api: chain: cannot get latest block")
		jsonhttp.InternalServerError(w, "cannot get latest block")
		return
	}

	jsonhttp.OK(w, chainResponse{
		Network:          s.network,
		ChainID:          bigint.Wrap(chainID),
		DevelopmentChain: config.IsDevelopmentChain(s.network),
		BlockNumber:      new(big.Int).Set(header.Number).Uint64(),
		BlockTimestamp:   header.Time,
	})
}
