// Copyright (c) 2025-2026 complex (complex@ft.hn)
// See LICENSE for licensing information

package zectransfer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
)

// Manager adapts a Wallet to uniform request and result shapes. It reports
// recoverable failures to its console writer and returns empty results
// instead of failing the caller.
//
// A Manager owns its Wallet for its whole lifetime and is not safe for
// concurrent use.
type Manager struct {
	wallet Wallet
	out    io.Writer
}

// NewManager wraps an already-open wallet. Console reports go to out.
func NewManager(wallet Wallet, out io.Writer) *Manager {
	if out == nil {
		out = io.Discard
	}
	return &Manager{wallet: wallet, out: out}
}

// Initialize opens the wallet at path, or the default location when path is
// empty. A wallet that cannot be opened is unusable, so callers are expected
// to stop on error.
func Initialize(ctx context.Context, open OpenFunc, path string, out io.Writer) (*Manager, error) {
	m := NewManager(nil, out)
	wallet, err := open(ctx, path)
	if err != nil {
		m.printf("✗ Failed to initialize wallet: %v\n", err)
		return nil, walletError(fmt.Errorf("could not open wallet: %w", err))
	}
	m.wallet = wallet
	m.printf("✓ Wallet initialized successfully\n")
	return m, nil
}

// Close releases the wallet handle if it holds any resources.
func (m *Manager) Close() error {
	if c, ok := m.wallet.(io.Closer); ok {
		return c.Close() //nolint:wrapcheck
	}
	return nil
}

// Balance returns all three balance keys, zero-filling any the wallet left
// out. On failure it reports the error and returns an empty Balance.
func (m *Manager) Balance(ctx context.Context) Balance {
	bal, err := m.wallet.Balance(ctx)
	if err != nil {
		m.printf("✗ Failed to get balance: %v\n", err)
		return Balance{}
	}
	return Balance{
		BalanceTransparent: bal[BalanceTransparent],
		BalanceShielded:    bal[BalanceShielded],
		BalanceTotal:       bal[BalanceTotal],
	}
}

// Transfer validates req and, if it is well formed, sends it with a single
// wallet call. Every failure comes back inside the result.
func (m *Manager) Transfer(ctx context.Context, req TransferRequest) *TransferResult {
	if err := validateTransfer(req); err != nil {
		return failedTransfer(err, "Validation error")
	}

	m.printf("Preparing transfer...\n")
	m.printf("  Recipient: %s\n", req.Recipient)
	m.printf("  Amount: %s ZEC\n", formatAmount(req.Amount))
	if req.Memo != "" {
		m.printf("  Memo: %s\n", req.Memo)
	}
	if req.Shielded {
		m.printf("  Type: Shielded\n")
	} else {
		m.printf("  Type: Transparent\n")
	}

	res, err := m.wallet.Send(ctx, SendRequest{
		To:     req.Recipient,
		Amount: req.Amount,
		Memo:   req.Memo,
	}, req.Shielded)
	if err == nil && (res == nil || res.TxID == "") {
		err = errors.New("wallet returned no txid")
	}
	if err != nil {
		return failedTransfer(walletError(err), "Transfer failed")
	}

	return &TransferResult{
		Success:   true,
		TxID:      res.TxID,
		Amount:    req.Amount,
		Recipient: req.Recipient,
		Status:    StatusSent,
	}
}

func validateTransfer(req TransferRequest) *Error {
	if req.Recipient == "" {
		return validationError("Recipient address cannot be empty")
	}
	if math.IsNaN(req.Amount) || math.IsInf(req.Amount, 0) {
		return validationError("Amount must be a finite number")
	}
	if req.Amount <= 0 {
		return validationError("Amount must be greater than 0")
	}
	return nil
}

func failedTransfer(err *Error, prefix string) *TransferResult {
	return &TransferResult{
		Success: false,
		Error:   prefix + ": " + err.Error(),
		Kind:    err.Kind,
	}
}

// Address returns the wallet's address of the given kind, AddressShielded or
// AddressTransparent. Any other kind is a validation error.
func (m *Manager) Address(ctx context.Context, kind string) (string, error) {
	var (
		addr string
		err  error
	)
	switch kind {
	case AddressShielded:
		addr, err = m.wallet.ShieldedAddress(ctx)
	case AddressTransparent:
		addr, err = m.wallet.TransparentAddress(ctx)
	default:
		verr := validationError("Invalid address type: %s", kind)
		m.printf("✗ Failed to get %s address: %v\n", kind, verr)
		return "", verr
	}
	if err == nil && addr == "" {
		err = errors.New("wallet returned no address")
	}
	if err != nil {
		m.printf("✗ Failed to get %s address: %v\n", kind, err)
		return "", walletError(err)
	}
	return addr, nil
}

// Transactions returns up to limit recent records unchanged. On failure it
// reports the error and returns an empty slice.
func (m *Manager) Transactions(ctx context.Context, limit int) []json.RawMessage {
	txs, err := m.wallet.ListTransactions(ctx, limit)
	if err != nil {
		m.printf("✗ Failed to get transactions: %v\n", err)
		return []json.RawMessage{}
	}
	if txs == nil {
		txs = []json.RawMessage{}
	}
	return txs
}

func (m *Manager) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(m.out, format, args...)
}

func formatAmount(amt float64) string {
	return strconv.FormatFloat(amt, 'f', -1, 64)
}
