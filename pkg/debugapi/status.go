// Copyright 2024 The rafflekit Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package debugapi

import (
	"net/http"

	"github.com/rafflekit/rafflekit"
	"github.com/rafflekit/rafflekit/pkg/jsonhttp"
)

type statusResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

func statusHandler(w http.ResponseWriter, _ *http.Request) {
	jsonhttp.OK(w, statusResponse{
		Status:  "ok",
		Version: rafflekit.Version,
	})
}
