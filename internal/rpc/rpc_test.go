package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/moneroswap/swapd/internal/contracts/swapevm"
	"github.com/moneroswap/swapd/internal/mcrypto"
	"github.com/moneroswap/swapd/internal/monero"
	"github.com/moneroswap/swapd/internal/swap"
	"github.com/moneroswap/swapd/internal/swapid"
)

type stubEVM struct {
	addr common.Address
}

func (s *stubEVM) Address() common.Address { return s.addr }

func (s *stubEVM) NewSwap(_ context.Context, p *swapevm.CreateSwapParams) (*swapevm.CreateSwapResult, error) {
	now := time.Now().Unix()
	t1 := new(big.Int).Add(big.NewInt(now), p.TimeoutDuration1)
	t2 := new(big.Int).Add(t1, p.TimeoutDuration2)
	cs := &swapevm.ContractSwap{
		Owner:            s.addr,
		Claimer:          p.Claimer,
		ClaimCommitment:  p.ClaimCommitment,
		RefundCommitment: p.RefundCommitment,
		Timeout1:         t1,
		Timeout2:         t2,
		Asset:            p.Asset,
		Value:            p.Value,
		Nonce:            p.Nonce,
	}
	id, err := swapid.Compute(
		cs.Owner, cs.Claimer, cs.ClaimCommitment, cs.RefundCommitment,
		cs.Timeout1, cs.Timeout2, cs.Asset, cs.Value, cs.Nonce,
	)
	if err != nil {
		return nil, err
	}
	return &swapevm.CreateSwapResult{SwapID: id, Swap: cs, TxHash: common.HexToHash("0x01")}, nil
}

func (s *stubEVM) SetReady(context.Context, *swapevm.ContractSwap) (common.Hash, error) {
	return common.HexToHash("0x02"), nil
}

func (s *stubEVM) Claim(context.Context, *swapevm.ContractSwap, [32]byte) (common.Hash, error) {
	return common.HexToHash("0x03"), nil
}

func (s *stubEVM) Refund(context.Context, *swapevm.ContractSwap, [32]byte) (common.Hash, error) {
	return common.HexToHash("0x04"), nil
}

func (s *stubEVM) Stage(context.Context, [32]byte) (swapevm.Stage, error) {
	return swapevm.StagePending, nil
}

func (s *stubEVM) RevealedSecret(context.Context, [32]byte) ([32]byte, bool, error) {
	return [32]byte{}, false, nil
}

type stubXMR struct{}

func (stubXMR) PrimaryAddress(context.Context, uint32) (string, error) { return "addr", nil }

func (stubXMR) Transfer(_ context.Context, _ uint32, _ string, amount uint64) (*monero.TransferResult, error) {
	return &monero.TransferResult{TxHash: "tx", Amount: amount}, nil
}

func (stubXMR) WatchOnlyBalance(context.Context, *mcrypto.PrivateViewKey, string) (uint64, error) {
	return 0, nil
}

func (stubXMR) SweepFromKeys(context.Context, *mcrypto.PrivateSpendKey, *mcrypto.PrivateViewKey, string, string) (*monero.SweepResult, error) {
	return &monero.SweepResult{TxHashes: []string{"sweep"}}, nil
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	controller, err := swap.NewController(&swap.Config{
		Store:   swap.NewStore(),
		EVM:     &stubEVM{addr: common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")},
		XMR:     stubXMR{},
		Network: mcrypto.Mainnet,
	})
	if err != nil {
		t.Fatalf("NewController: %v", err)
	}
	return NewServer(controller)
}

func doRPC(t *testing.T, s *Server, body string) *Response {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader([]byte(body)))
	w := httptest.NewRecorder()
	s.handleRPC(w, req)

	var resp Response
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v (body %q)", err, w.Body.String())
	}
	return &resp
}

func TestHandleRPCParseError(t *testing.T) {
	s := newTestServer(t)
	resp := doRPC(t, s, `{not json`)
	if resp.Error == nil || resp.Error.Code != ParseError {
		t.Fatalf("error = %+v, want ParseError", resp.Error)
	}
}

func TestHandleRPCInvalidVersion(t *testing.T) {
	s := newTestServer(t)
	resp := doRPC(t, s, `{"jsonrpc":"1.0","method":"swap_list","id":1}`)
	if resp.Error == nil || resp.Error.Code != InvalidRequest {
		t.Fatalf("error = %+v, want InvalidRequest", resp.Error)
	}
}

func TestHandleRPCMethodNotFound(t *testing.T) {
	s := newTestServer(t)
	resp := doRPC(t, s, `{"jsonrpc":"2.0","method":"swap_destroy","id":1}`)
	if resp.Error == nil || resp.Error.Code != MethodNotFound {
		t.Fatalf("error = %+v, want MethodNotFound", resp.Error)
	}
}

func TestSwapListEmpty(t *testing.T) {
	s := newTestServer(t)
	resp := doRPC(t, s, `{"jsonrpc":"2.0","method":"swap_list","id":1}`)
	if resp.Error != nil {
		t.Fatalf("unexpected error: %+v", resp.Error)
	}
	result, ok := resp.Result.(map[string]interface{})
	if !ok {
		t.Fatalf("result type %T", resp.Result)
	}
	if swaps, ok := result["swaps"].([]interface{}); !ok || len(swaps) != 0 {
		t.Errorf("swaps = %v", result["swaps"])
	}
}

func TestCreateAndGetViaRPC(t *testing.T) {
	s := newTestServer(t)

	keys, err := mcrypto.GenerateKeys()
	if err != nil {
		t.Fatalf("GenerateKeys: %v", err)
	}
	// any 32-byte value works as the counterparty commitment here; the
	// contract stub accepts it unchecked
	createReq := map[string]interface{}{
		"jsonrpc": "2.0",
		"method":  "swap_createAssetToXMR",
		"id":      1,
		"params": map[string]interface{}{
			"claimer":                "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb",
			"value":                  "1000000",
			"xmr_amount":             1000000000000,
			"timeout1_seconds":       3600,
			"timeout2_seconds":       3600,
			"claim_commitment":       "0x00000000000000000000000011111111111111111111111111111111111111ff",
			"their_public_spend_key": keys.SpendKey.Public().Hex(),
			"their_private_view_key": keys.ViewKey.Hex(),
		},
	}
	body, _ := json.Marshal(createReq)
	resp := doRPC(t, s, string(body))
	if resp.Error != nil {
		t.Fatalf("create error: %+v", resp.Error)
	}

	var info SwapInfo
	raw, _ := json.Marshal(resp.Result)
	if err := json.Unmarshal(raw, &info); err != nil {
		t.Fatalf("decode swap info: %v", err)
	}
	if info.Status != string(swap.StatusPending) {
		t.Errorf("status = %q, want %q", info.Status, swap.StatusPending)
	}
	if info.Contract == nil || info.Contract.Timeout2 <= info.Contract.Timeout1 {
		t.Errorf("bad contract timeouts: %+v", info.Contract)
	}

	getResp := doRPC(t, s,
		`{"jsonrpc":"2.0","method":"swap_get","id":2,"params":{"swap_id":"`+info.ID+`"}}`)
	if getResp.Error != nil {
		t.Fatalf("get error: %+v", getResp.Error)
	}

	missing := doRPC(t, s,
		`{"jsonrpc":"2.0","method":"swap_get","id":3,"params":{"swap_id":"0x`+
			"00000000000000000000000000000000000000000000000000000000000000aa"+`"}}`)
	if missing.Error == nil || missing.Error.Code != CodeSwapNotFound {
		t.Fatalf("error = %+v, want CodeSwapNotFound", missing.Error)
	}
}

func TestErrorCodeMapping(t *testing.T) {
	cases := map[error]int{
		swap.ErrInvalidParameters:        InvalidParams,
		swap.ErrSwapNotFound:             CodeSwapNotFound,
		swap.ErrInvalidState:             CodeInvalidState,
		swap.ErrTooEarlyToClaim:          CodeWindowClosed,
		swap.ErrTooLateToClaim:           CodeWindowClosed,
		swap.ErrNotTimeToRefund:          CodeWindowClosed,
		swap.ErrChainSubmission:          CodeChainFailure,
		swap.ErrChainConfirmationTimeout: CodeChainFailure,
		swap.ErrInsufficientBalance:      CodeChainFailure,
		swap.ErrSecretMismatch:           CodeSecretFailure,
		swap.ErrSecretNotAvailable:       CodeSecretFailure,
	}
	for err, want := range cases {
		if got := errorCode(err); got != want {
			t.Errorf("errorCode(%v) = %d, want %d", err, got, want)
		}
	}
}
