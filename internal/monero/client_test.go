package monero

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/moneroswap/swapd/internal/mcrypto"
)

// fakeWalletRPC serves canned monero-wallet-rpc responses keyed by method
// and records the calls it saw, including which wallet file each
// open_wallet and generate_from_keys named.
type fakeWalletRPC struct {
	t         *testing.T
	responses map[string]string
	calls     []string
	opened    []string
}

func (f *fakeWalletRPC) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Method string          `json:"method"`
		Params json.RawMessage `json:"params"`
		ID     uint64          `json:"id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		f.t.Errorf("decode request: %v", err)
		return
	}
	f.calls = append(f.calls, req.Method)

	if req.Method == "open_wallet" || req.Method == "generate_from_keys" {
		var p struct {
			Filename string `json:"filename"`
		}
		if err := json.Unmarshal(req.Params, &p); err != nil {
			f.t.Errorf("decode %s params: %v", req.Method, err)
		}
		f.opened = append(f.opened, p.Filename)
	}

	result, ok := f.responses[req.Method]
	if !ok {
		fmt.Fprintf(w, `{"jsonrpc":"2.0","id":%d,"error":{"code":-1,"message":"unknown method"}}`, req.ID)
		return
	}
	fmt.Fprintf(w, `{"jsonrpc":"2.0","id":%d,"result":%s}`, req.ID, result)
}

func newTestClient(t *testing.T, responses map[string]string) (*Client, *fakeWalletRPC) {
	t.Helper()
	fake := &fakeWalletRPC{t: t, responses: responses}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	client := NewClient(&Config{
		RPCURL:     srv.URL,
		WalletFile: "funding-wallet",
	})
	return client, fake
}

func TestBalance(t *testing.T) {
	client, _ := newTestClient(t, map[string]string{
		"get_balance": `{"balance":5000000000000,"unlocked_balance":3000000000000,"blocks_to_unlock":7}`,
	})

	balance, err := client.Balance(context.Background(), 0)
	if err != nil {
		t.Fatalf("Balance: %v", err)
	}
	if balance.Total != 5000000000000 {
		t.Errorf("Total = %d, want 5000000000000", balance.Total)
	}
	if balance.Unlocked != 3000000000000 {
		t.Errorf("Unlocked = %d, want 3000000000000", balance.Unlocked)
	}
	if balance.BlocksToUnlock != 7 {
		t.Errorf("BlocksToUnlock = %d, want 7", balance.BlocksToUnlock)
	}
}

func TestPrimaryAddress(t *testing.T) {
	client, _ := newTestClient(t, map[string]string{
		"get_address": `{"address":"44abc"}`,
	})

	addr, err := client.PrimaryAddress(context.Background(), 0)
	if err != nil {
		t.Fatalf("PrimaryAddress: %v", err)
	}
	if addr != "44abc" {
		t.Errorf("address = %q, want %q", addr, "44abc")
	}
}

func TestTransfer(t *testing.T) {
	client, fake := newTestClient(t, map[string]string{
		"get_balance": `{"balance":5000000000000,"unlocked_balance":5000000000000}`,
		"transfer":    `{"tx_hash":"deadbeef","tx_key":"cafe","amount":1000000000000,"fee":30000000}`,
	})

	result, err := client.Transfer(context.Background(), 0, "44abc", 1000000000000)
	if err != nil {
		t.Fatalf("Transfer: %v", err)
	}
	if result.TxHash != "deadbeef" {
		t.Errorf("TxHash = %q, want %q", result.TxHash, "deadbeef")
	}
	if result.Fee != 30000000 {
		t.Errorf("Fee = %d, want 30000000", result.Fee)
	}

	want := []string{"get_balance", "transfer"}
	if len(fake.calls) != len(want) {
		t.Fatalf("calls = %v, want %v", fake.calls, want)
	}
	for i := range want {
		if fake.calls[i] != want[i] {
			t.Errorf("call %d = %q, want %q", i, fake.calls[i], want[i])
		}
	}
}

func TestTransferInsufficientBalance(t *testing.T) {
	client, fake := newTestClient(t, map[string]string{
		"get_balance": `{"balance":5000000000000,"unlocked_balance":100}`,
	})

	_, err := client.Transfer(context.Background(), 0, "44abc", 1000000000000)
	if !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("err = %v, want ErrInsufficientBalance", err)
	}
	for _, call := range fake.calls {
		if call == "transfer" {
			t.Error("transfer was attempted despite insufficient balance")
		}
	}
}

func TestCallRPCError(t *testing.T) {
	client, _ := newTestClient(t, map[string]string{})

	_, err := client.Balance(context.Background(), 0)
	if err == nil {
		t.Fatal("expected error from RPC error response")
	}
}

func TestWatchOnlyBalanceReopensFundingWallet(t *testing.T) {
	client, fake := newTestClient(t, map[string]string{
		"generate_from_keys": `{"address":"4shared","info":"Generated"}`,
		"refresh":            `{"blocks_fetched":10}`,
		"get_balance":        `{"balance":7000000000000}`,
		"open_wallet":        `{}`,
	})

	keys, err := mcrypto.GenerateKeys()
	if err != nil {
		t.Fatalf("GenerateKeys: %v", err)
	}

	balance, err := client.WatchOnlyBalance(context.Background(), keys.ViewKey, "4sharedlockaddressxyz")
	if err != nil {
		t.Fatalf("WatchOnlyBalance: %v", err)
	}
	if balance != 7000000000000 {
		t.Errorf("balance = %d, want 7000000000000", balance)
	}

	if last := fake.calls[len(fake.calls)-1]; last != "open_wallet" {
		t.Fatalf("last call = %q, want open_wallet", last)
	}
	if got := fake.opened[len(fake.opened)-1]; got != "funding-wallet" {
		t.Errorf("reopened wallet %q, want funding-wallet", got)
	}
}

func TestSweepFromKeysReopensFundingWallet(t *testing.T) {
	client, fake := newTestClient(t, map[string]string{
		"generate_from_keys": `{"address":"4shared","info":"Generated"}`,
		"refresh":            `{"blocks_fetched":10}`,
		"sweep_all":          `{"tx_hash_list":["aa"],"amount_list":[5]}`,
		"open_wallet":        `{}`,
	})

	keys, err := mcrypto.GenerateKeys()
	if err != nil {
		t.Fatalf("GenerateKeys: %v", err)
	}

	result, err := client.SweepFromKeys(context.Background(),
		keys.SpendKey, keys.ViewKey, "4sharedlockaddressxyz", "44dest")
	if err != nil {
		t.Fatalf("SweepFromKeys: %v", err)
	}
	if len(result.TxHashes) != 1 || result.TxHashes[0] != "aa" {
		t.Errorf("tx hashes = %v", result.TxHashes)
	}

	if last := fake.calls[len(fake.calls)-1]; last != "open_wallet" {
		t.Fatalf("last call = %q, want open_wallet", last)
	}
	if got := fake.opened[len(fake.opened)-1]; got != "funding-wallet" {
		t.Errorf("reopened wallet %q, want funding-wallet", got)
	}
}
