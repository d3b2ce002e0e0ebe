// Copyright 2024 The rafflekit Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package chain

import (
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	errorSelector = crypto.Keccak256([]byte("Error(string)"))[:4]
	panicSelector = crypto.Keccak256([]byte("Panic(uint256)"))[:4]

	stringArgs = abi.Arguments{{Type: mustType("string")}}
	uintArgs   = abi.Arguments{{Type: mustType("uint256")}}
)

// Panic codes used by native contracts.
const (
	PanicArrayOutOfBounds = 0x32
)

func mustType(t string) abi.Type {
	typ, err := abi.NewType(t, "", nil)
	if err != nil {
		panic(err)
	}
	return typ
}

// RevertError is returned when a call reverts. It implements the
// rpc.DataError interface so the revert data reaches JSON-RPC clients.
type RevertError struct {
	reason string
	data   []byte
}

// Revert returns a revert carrying raw ABI encoded error data.
func Revert(data []byte) *RevertError {
	e := &RevertError{data: append([]byte(nil), data...)}
	if reason, err := abi.UnpackRevert(data); err == nil {
		e.reason = reason
	}
	return e
}

// RevertReason returns a revert with an Error(string) payload.
func RevertReason(reason string) *RevertError {
	packed, _ := stringArgs.Pack(reason)
	return &RevertError{
		reason: reason,
		data:   append(append([]byte(nil), errorSelector...), packed...),
	}
}

// RevertPanic returns a revert with a Panic(uint256) payload.
func RevertPanic(code uint64) *RevertError {
	packed, _ := uintArgs.Pack(new(big.Int).SetUint64(code))
	return &RevertError{
		data: append(append([]byte(nil), panicSelector...), packed...),
	}
}

func (e *RevertError) Error() string {
	if e.reason == "" {
		return "execution reverted"
	}
	return "execution reverted: " + e.reason
}

// ErrorCode is the JSON-RPC error code of reverted executions.
func (e *RevertError) ErrorCode() int { return 3 }

// ErrorData returns the hex encoded revert data.
func (e *RevertError) ErrorData() interface{} { return hexutil.Encode(e.data) }

// Data returns the raw revert data.
func (e *RevertError) Data() []byte { return append([]byte(nil), e.data...) }

// RevertData extracts revert data from err, if it carries any.
func RevertData(err error) ([]byte, bool) {
	var re *RevertError
	if errors.As(err, &re) {
		return re.Data(), true
	}
	return nil, false
}
