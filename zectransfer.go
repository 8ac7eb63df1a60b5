// Copyright (c) 2025-2026 complex (complex@ft.hn)
// See LICENSE for licensing information

// Package zectransfer sends Zcash (ZEC) and reads wallet state through an
// external wallet. It holds no keys and builds no transactions: every
// operation is a single call into a Wallet, with input validation before the
// call and error capture after it.
//
// The production Wallet is RPCWallet, which talks to a zcashd node over
// JSON-RPC. Tests and other front ends can supply their own.
package zectransfer

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
)

// Balance keys, in ZEC.
const (
	BalanceTransparent = "transparent"
	BalanceShielded    = "shielded"
	BalanceTotal       = "total"
)

// Address kinds accepted by Manager.Address.
const (
	AddressShielded    = "shielded"
	AddressTransparent = "transparent"
)

// StatusSent is the status reported for a transfer the wallet accepted.
const StatusSent = "sent"

// DefaultTransactionLimit is how many records the transactions command asks for.
const DefaultTransactionLimit = 10

// Balance maps BalanceTransparent, BalanceShielded and BalanceTotal to ZEC
// amounts. An empty Balance means the query failed.
type Balance map[string]float64

var balanceKeys = []string{BalanceTransparent, BalanceShielded, BalanceTotal}

// MarshalJSON writes the known keys in transparent, shielded, total order,
// followed by any others sorted.
func (b Balance) MarshalJSON() ([]byte, error) {
	if b == nil {
		return []byte("{}"), nil
	}
	keys := make([]string, 0, len(b))
	for _, k := range balanceKeys {
		if _, ok := b[k]; ok {
			keys = append(keys, k)
		}
	}
	var extra []string
	for k := range b {
		if !slices.Contains(balanceKeys, k) {
			extra = append(extra, k)
		}
	}
	slices.Sort(extra)
	keys = append(keys, extra...)

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err //nolint:wrapcheck
		}
		vb, err := json.Marshal(b[k])
		if err != nil {
			return nil, err //nolint:wrapcheck
		}
		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// TransferRequest describes one outgoing payment.
type TransferRequest struct {
	Recipient string
	Amount    float64
	// Memo is attached to the payment when non-empty. Only shielded
	// recipients can receive memos.
	Memo     string
	Shielded bool
}

// TransferResult is the outcome of Manager.Transfer. Exactly one of the
// success fields (TxID, Amount, Recipient, Status) or Error is set.
type TransferResult struct {
	Success   bool    `json:"success"`
	TxID      string  `json:"txid,omitempty"`
	Amount    float64 `json:"amount,omitempty"`
	Recipient string  `json:"recipient,omitempty"`
	Status    string  `json:"status,omitempty"`
	Error     string  `json:"error,omitempty"`

	// Kind classifies a failure. It is zero on success.
	Kind ErrorKind `json:"-"`
}

// ErrorKind separates bad input from failures inside the wallet.
type ErrorKind int

const (
	// KindValidation is malformed input, detected before any wallet call.
	KindValidation ErrorKind = iota + 1
	// KindWallet is a failure reported by, or talking to, the wallet.
	KindWallet
)

func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindWallet:
		return "wallet"
	}
	return "unknown"
}

// ErrValidation matches every validation error with errors.Is.
var ErrValidation = errors.New("validation error")

// Error is returned by Manager operations that can fail.
type Error struct {
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string {
	return e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports validation errors as ErrValidation.
func (e *Error) Is(target error) bool {
	return target == ErrValidation && e.Kind == KindValidation
}

func validationError(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Err: fmt.Errorf(format, args...)}
}

func walletError(err error) *Error {
	return &Error{Kind: KindWallet, Err: err}
}

// IsValidation reports whether err is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}
