// Copyright 2024 The rafflekit Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package rpcserver exposes a development chain over Ethereum JSON-RPC,
// including the evm_* and hardhat_* test methods used by deployment and
// test tooling.
package rpcserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/rpc"
	"github.com/gorilla/handlers"
	"github.com/rafflekit/rafflekit"
	"github.com/rafflekit/rafflekit/pkg/chain"
	"github.com/rafflekit/rafflekit/pkg/logging"
)

// New returns an RPC server serving c.
func New(c *chain.Chain, logger logging.Logger) (*rpc.Server, error) {
	srv := rpc.NewServer()
	apis := []struct {
		namespace string
		service   interface{}
	}{
		{"eth", &ethAPI{chain: c, logger: logger}},
		{"net", &netAPI{chain: c}},
		{"web3", &web3API{}},
		{"evm", &evmAPI{chain: c, logger: logger}},
		{"hardhat", &hardhatAPI{chain: c}},
	}
	for _, api := range apis {
		if err := srv.RegisterName(api.namespace, api.service); err != nil {
			srv.Stop()
			return nil, fmt.Errorf("register %s api: %w", api.namespace, err)
		}
	}
	return srv, nil
}

// NewHTTPHandler serves JSON-RPC over HTTP POST and WebSocket on the same
// endpoint, with CORS enabled for browser frontends.
func NewHTTPHandler(srv *rpc.Server, corsOrigins []string) http.Handler {
	ws := srv.WebsocketHandler(corsOrigins)
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
			ws.ServeHTTP(w, r)
			return
		}
		srv.ServeHTTP(w, r)
	})
	return handlers.CORS(
		handlers.AllowedOrigins(corsOrigins),
		handlers.AllowedHeaders([]string{"Content-Type"}),
		handlers.AllowedMethods([]string{http.MethodPost, http.MethodOptions}),
	)(h)
}

type netAPI struct {
	chain *chain.Chain
}

func (api *netAPI) Version(ctx context.Context) (string, error) {
	id, err := api.chain.ChainID(ctx)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

type web3API struct{}

func (web3API) ClientVersion() string {
	return "rafflekit/v" + rafflekit.Version
}

// merge adds fields to the JSON object encoding of v.
func merge(v interface{}, fields map[string]interface{}) (map[string]json.RawMessage, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	m := make(map[string]json.RawMessage)
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	for k, f := range fields {
		fb, err := json.Marshal(f)
		if err != nil {
			return nil, err
		}
		m[k] = fb
	}
	return m, nil
}
