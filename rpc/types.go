// Package rpc exposes chain, account, kitty and claim state over JSON-RPC 2.0.
package rpc

import (
	"encoding/json"
	"errors"

	"github.com/tolelom/kittychain/core"
	"github.com/tolelom/kittychain/kitty"
	"github.com/tolelom/kittychain/poe"
)

type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

type Response struct {
	JSONRPC string `json:"jsonrpc"`
	ID      any    `json:"id"`
	Result  any    `json:"result,omitempty"`
	Error   *Error `json:"error,omitempty"`
}

type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// JSON-RPC error codes. The -320xx range is server defined.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
	CodeUnauthorized   = -32000
	CodeNotFound       = -32001
	CodeRateLimited    = -32002
)

func errResponse(id any, code int, msg string) Response {
	return Response{JSONRPC: "2.0", ID: id, Error: &Error{Code: code, Message: msg}}
}

// failResponse reports err with the code its kind maps to: a missing kitty
// or block is CodeNotFound, anything else is internal.
func failResponse(id any, err error) Response {
	code := CodeInternalError
	switch {
	case errors.Is(err, kitty.ErrInvalidKittyIndex), errors.Is(err, poe.ErrNoSuchProof), errors.Is(err, core.ErrNotFound):
		code = CodeNotFound
	case errors.Is(err, poe.ErrInvalidProof), errors.Is(err, poe.ErrProofTooLong), errors.Is(err, poe.ErrEmptyProof):
		code = CodeInvalidParams
	}
	return errResponse(id, code, err.Error())
}

func okResponse(id, result any) Response {
	return Response{JSONRPC: "2.0", ID: id, Result: result}
}
