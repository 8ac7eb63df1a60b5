// Copyright (c) 2025-2026 complex (complex@ft.hn)
// See LICENSE for licensing information

package zectransfer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcjson"
	"github.com/matryer/is"
)

type rpcCall struct {
	method string
	params []json.RawMessage
}

// stubRequester answers RPCs from a table of handlers keyed by method.
type stubRequester struct {
	handlers map[string]func(params []json.RawMessage) (any, error)
	calls    []rpcCall
}

func (r *stubRequester) RawRequest(method string, params []json.RawMessage) (json.RawMessage, error) {
	r.calls = append(r.calls, rpcCall{method: method, params: params})
	h, ok := r.handlers[method]
	if !ok {
		return nil, btcjson.NewRPCError(btcjson.ErrRPCMethodNotFound.Code, "Method not found")
	}
	res, err := h(params)
	if err != nil {
		return nil, err
	}
	return json.Marshal(res)
}

func (r *stubRequester) count(method string) int {
	var n int
	for _, c := range r.calls {
		if c.method == method {
			n++
		}
	}
	return n
}

func (r *stubRequester) last(method string) []json.RawMessage {
	for i := len(r.calls) - 1; i >= 0; i-- {
		if r.calls[i].method == method {
			return r.calls[i].params
		}
	}
	return nil
}

func reply(v any) func([]json.RawMessage) (any, error) {
	return func([]json.RawMessage) (any, error) { return v, nil }
}

func accountHandlers(receivers map[string]string) map[string]func([]json.RawMessage) (any, error) {
	return map[string]func([]json.RawMessage) (any, error){
		methodZListAccounts: reply([]map[string]any{{"account": 0, "addresses": []any{}}}),
		methodZGetAddressForAccount: reply(map[string]any{
			"account":           0,
			"diversifier_index": 0,
			"receiver_types":    unifiedReceiverTypes,
			"address":           "u1unified",
		}),
		methodZListUnifiedReceivers: reply(receivers),
	}
}

// TestRPCWallet_Balance verifies z_gettotalbalance keys are renamed and parsed
func TestRPCWallet_Balance(t *testing.T) {
	is := is.New(t)
	r := &stubRequester{handlers: map[string]func([]json.RawMessage) (any, error){
		methodZGetTotalBalance: reply(map[string]string{
			"transparent": "1.25",
			"private":     "2.50000001",
			"total":       "3.75000001",
		}),
	}}
	w := newRPCWallet(r)

	bal, err := w.Balance(context.Background())
	is.NoErr(err)
	is.Equal(bal[BalanceTransparent], 1.25)
	is.Equal(bal[BalanceShielded], 2.50000001)
	is.Equal(bal[BalanceTotal], 3.75000001)
}

// TestRPCWallet_BalanceSubset verifies absent keys stay absent for the
// manager to fill in
func TestRPCWallet_BalanceSubset(t *testing.T) {
	is := is.New(t)
	r := &stubRequester{handlers: map[string]func([]json.RawMessage) (any, error){
		methodZGetTotalBalance: reply(map[string]any{"private": 4.0}),
	}}
	w := newRPCWallet(r)

	bal, err := w.Balance(context.Background())
	is.NoErr(err)
	is.Equal(len(bal), 1)
	is.Equal(bal[BalanceShielded], 4.0)
}

// TestRPCWallet_BalanceDeprecatedFallback verifies getwalletinfo is used when
// z_gettotalbalance is disabled
func TestRPCWallet_BalanceDeprecatedFallback(t *testing.T) {
	is := is.New(t)
	r := &stubRequester{handlers: map[string]func([]json.RawMessage) (any, error){
		methodGetWalletInfo: reply(map[string]any{
			"walletversion":    60000,
			"balance":          0.5,
			"shielded_balance": "1.25",
		}),
	}}
	w := newRPCWallet(r)

	bal, err := w.Balance(context.Background())
	is.NoErr(err)
	is.Equal(r.count(methodZGetTotalBalance), 1)
	is.Equal(bal[BalanceTransparent], 0.5)
	is.Equal(bal[BalanceShielded], 1.25)
	is.Equal(bal[BalanceTotal], 1.75)
}

// TestRPCWallet_BalanceError verifies other RPC errors are not masked
func TestRPCWallet_BalanceError(t *testing.T) {
	is := is.New(t)
	r := &stubRequester{handlers: map[string]func([]json.RawMessage) (any, error){
		methodZGetTotalBalance: func([]json.RawMessage) (any, error) {
			return nil, btcjson.NewRPCError(-28, "Loading block index...")
		},
	}}
	w := newRPCWallet(r)

	_, err := w.Balance(context.Background())
	is.True(err != nil)
	is.True(strings.Contains(err.Error(), "Loading block index"))
	is.Equal(r.count(methodGetWalletInfo), 0)
}

// TestRPCWallet_SendShielded verifies z_sendmany arguments and operation polling
func TestRPCWallet_SendShielded(t *testing.T) {
	is := is.New(t)
	handlers := accountHandlers(map[string]string{"sapling": "zs1mine"})
	handlers[methodZSendMany] = reply("opid-1")
	var polls int
	handlers[methodZGetOperationStatus] = func([]json.RawMessage) (any, error) {
		polls++
		if polls < 3 {
			return []map[string]any{{"id": "opid-1", "status": "executing"}}, nil
		}
		return []map[string]any{{
			"id":     "opid-1",
			"status": "success",
			"result": map[string]string{"txid": "abc123"},
		}}, nil
	}
	r := &stubRequester{handlers: handlers}
	w := newRPCWallet(r, WithPollInterval(time.Millisecond))

	res, err := w.Send(context.Background(), SendRequest{To: "zs1abc", Amount: 1.5, Memo: "hi"}, true)
	is.NoErr(err)
	is.Equal(res.TxID, "abc123")
	is.Equal(polls, 3)

	params := r.last(methodZSendMany)
	is.Equal(len(params), 5)
	is.Equal(string(params[0]), `"u1unified"`)
	is.Equal(string(params[1]), `[{"address":"zs1abc","amount":1.5,"memo":"6869"}]`)
	is.Equal(string(params[2]), `1`)
	is.Equal(string(params[3]), `null`)
	is.Equal(string(params[4]), `"AllowRevealedAmounts"`)

	is.Equal(string(r.last(methodZGetOperationStatus)[0]), `["opid-1"]`)
}

// TestRPCWallet_SendTransparent verifies transparent sends spend from any
// transparent address without resolving the account
func TestRPCWallet_SendTransparent(t *testing.T) {
	is := is.New(t)
	r := &stubRequester{handlers: map[string]func([]json.RawMessage) (any, error){
		methodZSendMany: reply("opid-2"),
		methodZGetOperationStatus: reply([]map[string]any{{
			"id":     "opid-2",
			"status": "success",
			"result": map[string]string{"txid": "def456"},
		}}),
	}}
	w := newRPCWallet(r)

	res, err := w.Send(context.Background(), SendRequest{To: "t1abc", Amount: 0.123456789}, false)
	is.NoErr(err)
	is.Equal(res.TxID, "def456")
	is.Equal(r.count(methodZListAccounts), 0)

	params := r.last(methodZSendMany)
	is.Equal(string(params[0]), `"ANY_TADDR"`)
	// rounded to whole zatoshis, memo omitted
	is.Equal(string(params[1]), `[{"address":"t1abc","amount":0.12345679}]`)
	is.Equal(string(params[4]), `"AllowFullyTransparent"`)
}

// TestRPCWallet_SendFailed verifies a failed operation carries the node's message
func TestRPCWallet_SendFailed(t *testing.T) {
	is := is.New(t)
	r := &stubRequester{handlers: map[string]func([]json.RawMessage) (any, error){
		methodZSendMany: reply("opid-3"),
		methodZGetOperationStatus: reply([]map[string]any{{
			"id":     "opid-3",
			"status": "failed",
			"error":  map[string]any{"code": -6, "message": "Insufficient funds"},
		}}),
	}}
	w := newRPCWallet(r)

	_, err := w.Send(context.Background(), SendRequest{To: "t1abc", Amount: 1}, false)
	is.True(err != nil)
	is.True(strings.Contains(err.Error(), "Insufficient funds"))
}

// TestRPCWallet_SendRejected verifies a z_sendmany error is returned directly
func TestRPCWallet_SendRejected(t *testing.T) {
	is := is.New(t)
	r := &stubRequester{handlers: map[string]func([]json.RawMessage) (any, error){
		methodZSendMany: func([]json.RawMessage) (any, error) {
			return nil, errors.New("Invalid parameter, unknown address format")
		},
	}}
	w := newRPCWallet(r)

	_, err := w.Send(context.Background(), SendRequest{To: "bogus", Amount: 1}, false)
	is.True(err != nil)
	is.True(strings.HasPrefix(err.Error(), methodZSendMany+": "))
	is.Equal(r.count(methodZGetOperationStatus), 0)
}

// TestRPCWallet_SendCanceled verifies polling stops when the context ends
func TestRPCWallet_SendCanceled(t *testing.T) {
	is := is.New(t)
	ctx, cancel := context.WithCancel(context.Background())
	r := &stubRequester{handlers: map[string]func([]json.RawMessage) (any, error){
		methodZSendMany: reply("opid-4"),
		methodZGetOperationStatus: func([]json.RawMessage) (any, error) {
			cancel()
			return []map[string]any{{"id": "opid-4", "status": "queued"}}, nil
		},
	}}
	w := newRPCWallet(r, WithPollInterval(time.Hour))

	_, err := w.Send(ctx, SendRequest{To: "t1abc", Amount: 1}, false)
	is.True(errors.Is(err, context.Canceled))
}

// TestRPCWallet_Addresses verifies receiver selection for each address kind
func TestRPCWallet_Addresses(t *testing.T) {
	is := is.New(t)
	r := &stubRequester{handlers: accountHandlers(map[string]string{
		"p2pkh":   "t1mine",
		"sapling": "zs1mine",
		"orchard": "u1orchardonly",
	})}
	w := newRPCWallet(r)

	addr, err := w.ShieldedAddress(context.Background())
	is.NoErr(err)
	is.Equal(addr, "zs1mine")

	addr, err = w.TransparentAddress(context.Background())
	is.NoErr(err)
	is.Equal(addr, "t1mine")

	// the unified address is looked up once per handle
	is.Equal(r.count(methodZGetAddressForAccount), 1)
	is.Equal(string(r.last(methodZGetAddressForAccount)[2]), `0`)
}

// TestRPCWallet_AddressMissingReceiver verifies missing receivers are errors
func TestRPCWallet_AddressMissingReceiver(t *testing.T) {
	is := is.New(t)
	r := &stubRequester{handlers: accountHandlers(map[string]string{"orchard": "u1orchard"})}
	w := newRPCWallet(r)

	addr, err := w.ShieldedAddress(context.Background())
	is.NoErr(err)
	is.Equal(addr, "u1orchard")

	_, err = w.TransparentAddress(context.Background())
	is.True(err != nil)
}

// TestRPCWallet_CreatesAccount verifies an account is created for an empty wallet
func TestRPCWallet_CreatesAccount(t *testing.T) {
	is := is.New(t)
	handlers := accountHandlers(map[string]string{"sapling": "zs1new"})
	handlers[methodZListAccounts] = reply([]any{})
	handlers[methodZGetNewAccount] = reply(map[string]any{"account": 7})
	r := &stubRequester{handlers: handlers}
	w := newRPCWallet(r)

	addr, err := w.ShieldedAddress(context.Background())
	is.NoErr(err)
	is.Equal(addr, "zs1new")
	is.Equal(r.count(methodZGetNewAccount), 1)
	is.Equal(string(r.last(methodZGetAddressForAccount)[0]), `7`)
}

// TestRPCWallet_ListTransactions verifies records pass through untouched
func TestRPCWallet_ListTransactions(t *testing.T) {
	is := is.New(t)
	r := &stubRequester{handlers: map[string]func([]json.RawMessage) (any, error){
		methodListTransactions: func(params []json.RawMessage) (any, error) {
			var limit int
			if err := json.Unmarshal(params[1], &limit); err != nil {
				return nil, err
			}
			out := make([]json.RawMessage, 0, limit)
			for i := 0; i < limit; i++ {
				out = append(out, json.RawMessage(fmt.Sprintf(`{"txid":"%d","category":"receive"}`, i)))
			}
			return out, nil
		},
	}}
	w := newRPCWallet(r)

	txs, err := w.ListTransactions(context.Background(), 3)
	is.NoErr(err)
	is.Equal(len(txs), 3)
	is.Equal(string(txs[2]), `{"txid":"2","category":"receive"}`)
	is.Equal(string(r.last(methodListTransactions)[0]), `"*"`)

	txs, err = w.ListTransactions(context.Background(), 0)
	is.NoErr(err)
	is.Equal(len(txs), 0)
	is.Equal(r.count(methodListTransactions), 1)
}
