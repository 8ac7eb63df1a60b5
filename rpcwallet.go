// Copyright (c) 2025-2026 complex (complex@ft.hn)
// See LICENSE for licensing information

package zectransfer

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/btcsuite/btcd/btcjson"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/rpcclient"
	"github.com/decred/slog"
)

const (
	methodGetWalletInfo          = "getwalletinfo"
	methodListTransactions       = "listtransactions"
	methodZGetTotalBalance       = "z_gettotalbalance"
	methodZSendMany              = "z_sendmany"
	methodZGetOperationStatus    = "z_getoperationstatus"
	methodZListAccounts          = "z_listaccounts"
	methodZGetNewAccount         = "z_getnewaccount"
	methodZGetAddressForAccount  = "z_getaddressforaccount"
	methodZListUnifiedReceivers  = "z_listunifiedreceivers"
	anyTransparentSource         = "ANY_TADDR"
	policyAllowRevealedAmounts   = "AllowRevealedAmounts"
	policyAllowFullyTransparent  = "AllowFullyTransparent"
	defaultOperationPollInterval = time.Second
	sendMinConf                  = 1
)

// Receiver types requested for the account's unified address.
var unifiedReceiverTypes = []string{"p2pkh", "sapling", "orchard"}

// rawRequester is the part of rpcclient.Client the wallet uses. Tests satisfy
// it with a stub.
type rawRequester interface {
	RawRequest(method string, params []json.RawMessage) (json.RawMessage, error)
}

// RPCWallet is a Wallet backed by a zcashd node's JSON-RPC server.
type RPCWallet struct {
	requester    rawRequester
	shutdown     func()
	log          slog.Logger
	pollInterval time.Duration

	// unified is the account's unified address, looked up once.
	unified string
}

// RPCWalletOption configures an RPCWallet.
type RPCWalletOption func(*RPCWallet)

// WithLogger logs every RPC at debug level to log.
func WithLogger(log slog.Logger) RPCWalletOption {
	return func(w *RPCWallet) {
		w.log = log
	}
}

// WithPollInterval sets how often a submitted send is checked for completion.
func WithPollInterval(d time.Duration) RPCWalletOption {
	return func(w *RPCWallet) {
		w.pollInterval = d
	}
}

func newRPCWallet(requester rawRequester, opts ...RPCWalletOption) *RPCWallet {
	w := &RPCWallet{
		requester:    requester,
		log:          slog.Disabled,
		pollInterval: defaultOperationPollInterval,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// OpenRPCWallet connects to the node described by cfg and checks that its
// wallet answers.
func OpenRPCWallet(ctx context.Context, cfg *Config, opts ...RPCWalletOption) (*RPCWallet, error) {
	client, err := rpcclient.New(&rpcclient.ConnConfig{
		HTTPPostMode: true,
		DisableTLS:   true,
		Host:         cfg.Host,
		User:         cfg.User,
		Pass:         cfg.Pass,
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("error creating zcashd RPC client: %w", err)
	}

	w := newRPCWallet(client, opts...)
	w.shutdown = client.Shutdown

	if _, err := w.walletInfo(ctx); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("zcashd wallet at %s not available: %w", cfg.Host, err)
	}
	w.log.Debugf("Connected to zcashd at %s (config %s)", cfg.Host, cfg.Path)
	return w, nil
}

// RPCOpener returns an OpenFunc that loads zcash.conf from the given path and
// opens an RPCWallet. getenv supplies credential overrides and may be nil.
func RPCOpener(getenv func(string) string, opts ...RPCWalletOption) OpenFunc {
	return func(ctx context.Context, path string) (Wallet, error) {
		cfg, err := LoadConfig(path, getenv)
		if err != nil {
			return nil, err
		}
		return OpenRPCWallet(ctx, cfg, opts...)
	}
}

// Close shuts down the RPC client.
func (w *RPCWallet) Close() error {
	if w.shutdown != nil {
		w.shutdown()
		w.shutdown = nil
	}
	return nil
}

// call marshals args, sends method to the node and decodes the result into
// thing, which may be nil.
func (w *RPCWallet) call(ctx context.Context, method string, args []any, thing any) error {
	if err := ctx.Err(); err != nil {
		return err //nolint:wrapcheck
	}
	params := make([]json.RawMessage, 0, len(args))
	for i := range args {
		p, err := json.Marshal(args[i])
		if err != nil {
			return fmt.Errorf("%s: could not encode argument %d: %w", method, i, err)
		}
		params = append(params, p)
	}
	w.log.Debugf("RPC %s %s", method, params)
	b, err := w.requester.RawRequest(method, params)
	if err != nil {
		w.log.Debugf("RPC %s failed: %v", method, err)
		return fmt.Errorf("%s: %w", method, err)
	}
	if thing != nil {
		if err := json.Unmarshal(b, thing); err != nil {
			return fmt.Errorf("%s: could not decode result: %w", method, err)
		}
	}
	return nil
}

func isMethodNotFound(err error) bool {
	var rpcErr *btcjson.RPCError
	return errors.As(err, &rpcErr) && rpcErr.Code == btcjson.ErrRPCMethodNotFound.Code
}

type walletInfoRes struct {
	WalletVersion   int     `json:"walletversion"`
	Balance         float64 `json:"balance"`
	ShieldedBalance string  `json:"shielded_balance"`
	TxCount         int     `json:"txcount"`
}

// getwalletinfo
func (w *RPCWallet) walletInfo(ctx context.Context) (*walletInfoRes, error) {
	var res walletInfoRes
	return &res, w.call(ctx, methodGetWalletInfo, nil, &res)
}

// Balance reads z_gettotalbalance. Nodes that have the call disabled as
// deprecated are answered from getwalletinfo instead.
func (w *RPCWallet) Balance(ctx context.Context) (Balance, error) {
	var res map[string]any
	err := w.call(ctx, methodZGetTotalBalance, nil, &res)
	if isMethodNotFound(err) {
		return w.walletInfoBalance(ctx)
	}
	if err != nil {
		return nil, err
	}

	bal := make(Balance, 3) //nolint:mnd
	for rpcKey, key := range map[string]string{
		"transparent": BalanceTransparent,
		"private":     BalanceShielded,
		"total":       BalanceTotal,
	} {
		v, ok := res[rpcKey]
		if !ok {
			continue
		}
		amt, err := parseZEC(v)
		if err != nil {
			return nil, fmt.Errorf("%s: bad %s amount: %w", methodZGetTotalBalance, rpcKey, err)
		}
		bal[key] = amt
	}
	return bal, nil
}

func (w *RPCWallet) walletInfoBalance(ctx context.Context) (Balance, error) {
	info, err := w.walletInfo(ctx)
	if err != nil {
		return nil, err
	}
	bal := Balance{BalanceTransparent: info.Balance}
	if info.ShieldedBalance != "" {
		shielded, err := parseZEC(info.ShieldedBalance)
		if err != nil {
			return nil, fmt.Errorf("%s: bad shielded_balance: %w", methodGetWalletInfo, err)
		}
		bal[BalanceShielded] = shielded
	}
	bal[BalanceTotal] = roundZEC(bal[BalanceTransparent] + bal[BalanceShielded])
	return bal, nil
}

// parseZEC accepts the node's amounts as JSON numbers or decimal strings.
func parseZEC(v any) (float64, error) {
	switch v := v.(type) {
	case float64:
		return v, nil
	case string:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, err //nolint:wrapcheck
		}
		return f, nil
	}
	return 0, fmt.Errorf("unexpected amount type %T", v)
}

// roundZEC rounds to whole zatoshis. ZEC uses the same 1e8 unit scale as BTC.
func roundZEC(amt float64) float64 {
	a, err := btcutil.NewAmount(amt)
	if err != nil {
		return amt
	}
	return a.ToBTC()
}

type sendManyRecipient struct {
	Address string  `json:"address"`
	Amount  float64 `json:"amount"`
	Memo    string  `json:"memo,omitempty"`
}

// Send submits req with z_sendmany and waits for the node to finish the
// operation. Shielded sends spend from the account's unified address;
// transparent sends spend from any transparent address.
func (w *RPCWallet) Send(ctx context.Context, req SendRequest, shielded bool) (*SendResult, error) {
	amt, err := btcutil.NewAmount(req.Amount)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %v: %w", req.Amount, err)
	}

	from := anyTransparentSource
	policy := policyAllowFullyTransparent
	if shielded {
		from, err = w.unifiedAddress(ctx)
		if err != nil {
			return nil, err
		}
		policy = policyAllowRevealedAmounts
	}

	recipient := sendManyRecipient{
		Address: req.To,
		Amount:  amt.ToBTC(),
	}
	if req.Memo != "" {
		recipient.Memo = hex.EncodeToString([]byte(req.Memo))
	}

	var opid string
	// z_sendmany "fromaddress" [{"address":..,"amount":..,"memo":..}] minconf fee privacyPolicy
	args := []any{from, []sendManyRecipient{recipient}, sendMinConf, nil, policy}
	if err := w.call(ctx, methodZSendMany, args, &opid); err != nil {
		return nil, err
	}
	w.log.Debugf("Submitted operation %s", opid)

	txid, err := w.waitForOperation(ctx, opid)
	if err != nil {
		return nil, err
	}
	return &SendResult{TxID: txid}, nil
}

type operationStatus struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Result *struct {
		TxID string `json:"txid"`
	} `json:"result"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// z_getoperationstatus ["opid"]
func (w *RPCWallet) operationStatus(ctx context.Context, opid string) (*operationStatus, error) {
	var res []*operationStatus
	if err := w.call(ctx, methodZGetOperationStatus, []any{[]string{opid}}, &res); err != nil {
		return nil, err
	}
	for _, op := range res {
		if op != nil && op.ID == opid {
			return op, nil
		}
	}
	return nil, fmt.Errorf("operation %s not found", opid)
}

// waitForOperation polls a submitted operation until it leaves the queued and
// executing states or ctx is done.
func (w *RPCWallet) waitForOperation(ctx context.Context, opid string) (string, error) {
	for {
		op, err := w.operationStatus(ctx, opid)
		if err != nil {
			return "", err
		}
		switch op.Status {
		case "success":
			if op.Result == nil || op.Result.TxID == "" {
				return "", fmt.Errorf("operation %s succeeded without a txid", opid)
			}
			return op.Result.TxID, nil
		case "failed", "cancelled":
			if op.Error != nil {
				return "", fmt.Errorf("operation %s %s: %s (code %d)", opid, op.Status, op.Error.Message, op.Error.Code)
			}
			return "", fmt.Errorf("operation %s %s", opid, op.Status)
		}

		select {
		case <-ctx.Done():
			return "", fmt.Errorf("waiting for operation %s: %w", opid, ctx.Err())
		case <-time.After(w.pollInterval):
		}
	}
}

type zListAccountsResult struct {
	Number    uint32 `json:"account"`
	Addresses []struct {
		Diversifier uint32 `json:"diversifier"`
		UnifiedAddr string `json:"ua"`
	} `json:"addresses"`
}

// z_listaccounts
func (w *RPCWallet) listAccounts(ctx context.Context) ([]zListAccountsResult, error) {
	var accts []zListAccountsResult
	if err := w.call(ctx, methodZListAccounts, nil, &accts); err != nil {
		return nil, err
	}
	return accts, nil
}

// z_getnewaccount
func (w *RPCWallet) newAccount(ctx context.Context) (uint32, error) {
	var res struct {
		Number uint32 `json:"account"`
	}
	if err := w.call(ctx, methodZGetNewAccount, nil, &res); err != nil {
		return 0, err
	}
	return res.Number, nil
}

// z_getaddressforaccount account ["receiver_type", ...] diversifier_index
func (w *RPCWallet) addressForAccount(ctx context.Context, acct uint32) (string, error) {
	var res struct {
		Address string `json:"address"`
	}
	if err := w.call(ctx, methodZGetAddressForAccount, []any{acct, unifiedReceiverTypes, 0}, &res); err != nil {
		return "", err
	}
	if res.Address == "" {
		return "", fmt.Errorf("%s returned no address for account %d", methodZGetAddressForAccount, acct)
	}
	return res.Address, nil
}

type unifiedReceivers struct {
	Transparent string `json:"p2pkh"`
	Orchard     string `json:"orchard"`
	Sapling     string `json:"sapling"`
}

// z_listunifiedreceivers unified_address
func (w *RPCWallet) receivers(ctx context.Context, unified string) (*unifiedReceivers, error) {
	var res unifiedReceivers
	return &res, w.call(ctx, methodZListUnifiedReceivers, []any{unified}, &res)
}

// unifiedAddress returns the first account's unified address at diversifier
// index 0, creating the account if the wallet has none.
func (w *RPCWallet) unifiedAddress(ctx context.Context) (string, error) {
	if w.unified != "" {
		return w.unified, nil
	}
	accts, err := w.listAccounts(ctx)
	if err != nil {
		return "", err
	}
	var acct uint32
	if len(accts) > 0 {
		acct = accts[0].Number
	} else {
		if acct, err = w.newAccount(ctx); err != nil {
			return "", err
		}
		w.log.Infof("Created wallet account %d", acct)
	}
	ua, err := w.addressForAccount(ctx, acct)
	if err != nil {
		return "", err
	}
	w.unified = ua
	return ua, nil
}

// ShieldedAddress returns the Sapling receiver of the account's unified
// address, or the Orchard receiver if there is no Sapling one.
func (w *RPCWallet) ShieldedAddress(ctx context.Context) (string, error) {
	ua, err := w.unifiedAddress(ctx)
	if err != nil {
		return "", err
	}
	rcv, err := w.receivers(ctx, ua)
	if err != nil {
		return "", err
	}
	switch {
	case rcv.Sapling != "":
		return rcv.Sapling, nil
	case rcv.Orchard != "":
		return rcv.Orchard, nil
	}
	return "", fmt.Errorf("unified address %s has no shielded receiver", ua)
}

// TransparentAddress returns the P2PKH receiver of the account's unified
// address.
func (w *RPCWallet) TransparentAddress(ctx context.Context) (string, error) {
	ua, err := w.unifiedAddress(ctx)
	if err != nil {
		return "", err
	}
	rcv, err := w.receivers(ctx, ua)
	if err != nil {
		return "", err
	}
	if rcv.Transparent == "" {
		return "", fmt.Errorf("unified address %s has no transparent receiver", ua)
	}
	return rcv.Transparent, nil
}

// ListTransactions returns the node's listtransactions records as-is.
func (w *RPCWallet) ListTransactions(ctx context.Context, limit int) ([]json.RawMessage, error) {
	if limit <= 0 {
		return []json.RawMessage{}, nil
	}
	var txs []json.RawMessage
	// listtransactions "account" count from includeWatchonly
	if err := w.call(ctx, methodListTransactions, []any{"*", limit, 0, false}, &txs); err != nil {
		return nil, err
	}
	if txs == nil {
		txs = []json.RawMessage{}
	}
	return txs, nil
}
