// Copyright (c) 2025-2026 complex (complex@ft.hn)
// See LICENSE for licensing information

package zectransfer

import (
	"context"
	"encoding/json"
)

// Wallet is everything the Manager needs from a Zcash wallet. Implementations
// own all key handling, note selection, proving and broadcast.
type Wallet interface {
	// Balance returns any subset of the BalanceTransparent,
	// BalanceShielded and BalanceTotal keys.
	Balance(ctx context.Context) (Balance, error)
	// Send submits a payment and returns once the wallet reports a txid.
	Send(ctx context.Context, req SendRequest, shielded bool) (*SendResult, error)
	ShieldedAddress(ctx context.Context) (string, error)
	TransparentAddress(ctx context.Context) (string, error)
	// ListTransactions returns at most limit recent records, as the wallet
	// encodes them.
	ListTransactions(ctx context.Context, limit int) ([]json.RawMessage, error)
}

// SendRequest is a single payment as handed to the wallet.
type SendRequest struct {
	To     string
	Amount float64
	Memo   string
}

// SendResult is what the wallet returns for an accepted payment.
type SendResult struct {
	TxID string `json:"txid"`
}

// OpenFunc opens a wallet from a configuration path. An empty path selects
// the wallet's default location.
type OpenFunc func(ctx context.Context, path string) (Wallet, error)
