// Copyright 2024 The rafflekit Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package jsonhttp_test

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/rafflekit/rafflekit/pkg/jsonhttp"
)

func TestMethodHandler(t *testing.T) {
	t.Parallel()

	h := jsonhttp.MethodHandler{
		"POST": http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got, err := io.ReadAll(r.Body)
			if err != nil {
				t.Fatal(err)
			}
			fmt.Fprint(w, "got: ", string(got))
		}),
	}

	t.Run("method allowed", func(t *testing.T) {
		body := "test body"

		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
		w := httptest.NewRecorder()

		h.ServeHTTP(w, r)

		statusCode := w.Result().StatusCode
		if statusCode != http.StatusOK {
			t.Errorf("got status code %d, want %d", statusCode, http.StatusOK)
		}

		wantBody := "got: " + body
		gotBody := w.Body.String()

		if gotBody != wantBody {
			t.Errorf("got body %q, want %q", gotBody, wantBody)
		}
	})

	t.Run("method not allowed", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		w := httptest.NewRecorder()

		h.ServeHTTP(w, r)

		statusCode := w.Result().StatusCode
		wantCode := http.StatusMethodNotAllowed
		if statusCode != wantCode {
			t.Errorf("got status code %d, want %d", statusCode, wantCode)
		}

		var m *jsonhttp.StatusResponse

		if err := json.Unmarshal(w.Body.Bytes(), &m); err != nil {
			t.Errorf("json unmarshal response body: %s", err)
		}

		if m.Code != wantCode {
			t.Errorf("got message code %d, want %d", m.Code, wantCode)
		}

		wantMessage := http.StatusText(wantCode)
		if m.Message != wantMessage {
			t.Errorf("got message message %q, want %q", m.Message, wantMessage)
		}
	})
}

func TestNotFoundHandler(t *testing.T) {
	t.Parallel()

	w := httptest.NewRecorder()

	jsonhttp.NotFoundHandler(w, nil)

	statusCode := w.Result().StatusCode
	wantCode := http.StatusNotFound
	if statusCode != wantCode {
		t.Errorf("got status code %d, want %d", statusCode, wantCode)
	}

	var m *jsonhttp.StatusResponse

	if err := json.Unmarshal(w.Body.Bytes(), &m); err != nil {
		t.Errorf("json unmarshal response body: %s", err)
	}

	if m.Code != wantCode {
		t.Errorf("got message code %d, want %d", m.Code, wantCode)
	}

	wantMessage := http.StatusText(wantCode)
	if m.Message != wantMessage {
		t.Errorf("got message message %q, want %q", m.Message, wantMessage)
	}
}

func TestNewMaxBodyBytesHandler(t *testing.T) {
	t.Parallel()

	var limit int64 = 10

	h := jsonhttp.NewMaxBodyBytesHandler(limit)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, err := io.ReadAll(r.Body)
		if jsonhttp.HandleBodyReadError(err, w) {
			return
		}
		if err != nil {
			jsonhttp.InternalServerError(w, nil)
			return
		}
		jsonhttp.OK(w, nil)
	}))

	for _, tc := range []struct {
		name                 string
		body                 string
		withoutContentLength bool
		wantCode             int
	}{
		{name: "empty", wantCode: http.StatusOK},
		{name: "within limit", body: "data", wantCode: http.StatusOK},
		{name: "over limit", body: "long test data", wantCode: http.StatusRequestEntityTooLarge},
		{name: "over limit without content length", body: "long test data", withoutContentLength: true, wantCode: http.StatusRequestEntityTooLarge},
	} {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tc.body))
			if tc.withoutContentLength {
				r.ContentLength = -1
			}
			w := httptest.NewRecorder()
			h.ServeHTTP(w, r)

			if w.Code != tc.wantCode {
				t.Fatalf("got status code %d, want %d", w.Code, tc.wantCode)
			}
		})
	}
}

type hexString string

func (h hexString) String() string { return "0x" + string(h) }

func TestRespond(t *testing.T) {
	t.Parallel()

	for _, tc := range []struct {
		name     string
		code     int
		response interface{}
		want     string
	}{
		{name: "nil", code: http.StatusServiceUnavailable, want: `{"message":"Service Unavailable","code":503}`},
		{name: "default code", response: "fine", want: `{"message":"fine","code":200}`},
		{name: "string", code: http.StatusBadRequest, response: "bad entrance fee", want: `{"message":"bad entrance fee","code":400}`},
		{name: "error", code: http.StatusInternalServerError, response: errors.New("chain <down>"), want: `{"message":"chain <down>","code":500}`},
		{name: "stringer", code: http.StatusOK, response: hexString("cafe"), want: `{"message":"0xcafe","code":200}`},
		{name: "struct", code: http.StatusOK, response: struct {
			Players []string `json:"players"`
		}{Players: []string{"0x01"}}, want: `{"players":["0x01"]}`},
		{name: "reasons", code: http.StatusBadRequest, response: &jsonhttp.StatusResponse{
			Message: "invalid query",
			Code:    http.StatusBadRequest,
			Reasons: []jsonhttp.Reason{{Field: "value", Error: "not a number"}},
		}, want: `{"message":"invalid query","code":400,"reasons":[{"field":"value","error":"not a number"}]}`},
	} {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			w := httptest.NewRecorder()
			jsonhttp.Respond(w, tc.code, tc.response)

			wantCode := tc.code
			if wantCode == 0 {
				wantCode = http.StatusOK
			}
			if w.Code != wantCode {
				t.Fatalf("got status code %d, want %d", w.Code, wantCode)
			}
			if got := w.Header().Get("Content-Type"); got != jsonhttp.DefaultContentTypeHeader {
				t.Fatalf("got content type %q", got)
			}
			if diff := cmp.Diff(tc.want, strings.TrimSpace(w.Body.String())); diff != "" {
				t.Fatalf("body mismatch (-want +have):\n%s", diff)
			}
		})
	}
}
