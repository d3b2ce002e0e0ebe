// Copyright 2024 The rafflekit Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package jsonhttp writes JSON HTTP responses with a uniform error body.
package jsonhttp

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
)

var (
	// DefaultContentTypeHeader is the value of the Content-Type header of
	// every response that does not set its own.
	DefaultContentTypeHeader = "application/json; charset=utf-8"
	// EscapeHTML controls the escaping of HTML characters in JSON strings.
	EscapeHTML = false
)

// StatusResponse is the body of responses that carry no other data.
type StatusResponse struct {
	Message string   `json:"message,omitempty"`
	Code    int      `json:"code,omitempty"`
	Reasons []Reason `json:"reasons,omitempty"`
}

// Reason explains why a request field was rejected.
type Reason struct {
	Field string `json:"field"`
	Error string `json:"error"`
}

// Respond writes response as JSON with statusCode. A nil response writes
// the status text. Strings, errors and Stringers are wrapped in a
// StatusResponse.
func Respond(w http.ResponseWriter, statusCode int, response interface{}) {
	if statusCode == 0 {
		statusCode = http.StatusOK
	}
	if response == nil {
		response = &StatusResponse{
			Message: http.StatusText(statusCode),
			Code:    statusCode,
		}
	} else {
		switch message := response.(type) {
		case string:
			response = &StatusResponse{Message: message, Code: statusCode}
		case error:
			response = &StatusResponse{Message: message.Error(), Code: statusCode}
		case interface{ String() string }:
			response = &StatusResponse{Message: message.String(), Code: statusCode}
		}
	}

	var b bytes.Buffer
	enc := json.NewEncoder(&b)
	enc.SetEscapeHTML(EscapeHTML)
	if err := enc.Encode(response); err != nil {
		panic(err)
	}
	if w.Header().Get("Content-Type") == "" {
		w.Header().Set("Content-Type", DefaultContentTypeHeader)
	}
	w.WriteHeader(statusCode)
	fmt.Fprint(w, b.String())
}

func OK(w http.ResponseWriter, response interface{}) {
	Respond(w, http.StatusOK, response)
}

func BadRequest(w http.ResponseWriter, response interface{}) {
	Respond(w, http.StatusBadRequest, response)
}

func NotFound(w http.ResponseWriter, response interface{}) {
	Respond(w, http.StatusNotFound, response)
}

func MethodNotAllowed(w http.ResponseWriter, response interface{}) {
	Respond(w, http.StatusMethodNotAllowed, response)
}

func RequestEntityTooLarge(w http.ResponseWriter, response interface{}) {
	Respond(w, http.StatusRequestEntityTooLarge, response)
}

func TooManyRequests(w http.ResponseWriter, response interface{}) {
	Respond(w, http.StatusTooManyRequests, response)
}

func InternalServerError(w http.ResponseWriter, response interface{}) {
	Respond(w, http.StatusInternalServerError, response)
}

func ServiceUnavailable(w http.ResponseWriter, response interface{}) {
	Respond(w, http.StatusServiceUnavailable, response)
}
