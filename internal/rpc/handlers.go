package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/moneroswap/swapd/internal/contracts/swapevm"
	"github.com/moneroswap/swapd/internal/swap"
	"github.com/moneroswap/swapd/pkg/helpers"
)

// SwapInfo is the externally visible view of a swap. Key material and
// unrevealed secrets are deliberately absent.
type SwapInfo struct {
	ID            string        `json:"id"`
	Direction     string        `json:"direction"`
	Status        string        `json:"status"`
	CreatedAt     time.Time     `json:"created_at"`
	SharedAddress string        `json:"shared_address"`
	XMRAmount     uint64        `json:"xmr_amount"`
	Contract      *ContractInfo `json:"contract,omitempty"`

	CreateTx   string   `json:"create_tx,omitempty"`
	XMRLockTx  string   `json:"xmr_lock_tx,omitempty"`
	SetReadyTx string   `json:"set_ready_tx,omitempty"`
	ClaimTx    string   `json:"claim_tx,omitempty"`
	RefundTx   string   `json:"refund_tx,omitempty"`
	SweepTxs   []string `json:"sweep_txs,omitempty"`
}

// ContractInfo mirrors the on-chain parameter tuple in wire-friendly form.
type ContractInfo struct {
	Owner            string `json:"owner"`
	Claimer          string `json:"claimer"`
	ClaimCommitment  string `json:"claim_commitment"`
	RefundCommitment string `json:"refund_commitment"`
	Timeout1         int64  `json:"timeout1"`
	Timeout2         int64  `json:"timeout2"`
	Asset            string `json:"asset"`
	Value            string `json:"value"`
	Nonce            string `json:"nonce"`
}

func contractInfo(c *swapevm.ContractSwap) *ContractInfo {
	if c == nil {
		return nil
	}
	return &ContractInfo{
		Owner:            c.Owner.Hex(),
		Claimer:          c.Claimer.Hex(),
		ClaimCommitment:  helpers.EncodeHex(c.ClaimCommitment[:]),
		RefundCommitment: helpers.EncodeHex(c.RefundCommitment[:]),
		Timeout1:         c.Timeout1.Int64(),
		Timeout2:         c.Timeout2.Int64(),
		Asset:            c.Asset.Hex(),
		Value:            c.Value.String(),
		Nonce:            c.Nonce.String(),
	}
}

func parseContractInfo(ci *ContractInfo) (*swapevm.ContractSwap, error) {
	if ci == nil {
		return nil, fmt.Errorf("%w: contract parameters required", swap.ErrInvalidParameters)
	}
	claimCommitment, err := helpers.DecodeHex32(ci.ClaimCommitment)
	if err != nil {
		return nil, fmt.Errorf("%w: claim commitment: %s", swap.ErrInvalidParameters, err)
	}
	refundCommitment, err := helpers.DecodeHex32(ci.RefundCommitment)
	if err != nil {
		return nil, fmt.Errorf("%w: refund commitment: %s", swap.ErrInvalidParameters, err)
	}
	value, ok := new(big.Int).SetString(ci.Value, 10)
	if !ok {
		return nil, fmt.Errorf("%w: invalid value %q", swap.ErrInvalidParameters, ci.Value)
	}
	nonce, ok := new(big.Int).SetString(ci.Nonce, 10)
	if !ok {
		return nil, fmt.Errorf("%w: invalid nonce %q", swap.ErrInvalidParameters, ci.Nonce)
	}
	return &swapevm.ContractSwap{
		Owner:            common.HexToAddress(ci.Owner),
		Claimer:          common.HexToAddress(ci.Claimer),
		ClaimCommitment:  claimCommitment,
		RefundCommitment: refundCommitment,
		Timeout1:         big.NewInt(ci.Timeout1),
		Timeout2:         big.NewInt(ci.Timeout2),
		Asset:            common.HexToAddress(ci.Asset),
		Value:            value,
		Nonce:            nonce,
	}, nil
}

func swapInfo(s *swap.Swap) *SwapInfo {
	info := &SwapInfo{
		ID:            s.IDHex(),
		Direction:     string(s.Direction),
		Status:        string(s.Status),
		CreatedAt:     s.CreatedAt,
		SharedAddress: s.SharedAddress,
		XMRAmount:     s.XMRAmount,
		Contract:      contractInfo(s.Contract),
		XMRLockTx:     s.XMRLockTxHash,
		SweepTxs:      s.SweepTxHashes,
	}
	if s.CreateTxHash != (common.Hash{}) {
		info.CreateTx = s.CreateTxHash.Hex()
	}
	if s.SetReadyTx != (common.Hash{}) {
		info.SetReadyTx = s.SetReadyTx.Hex()
	}
	if s.ClaimTx != (common.Hash{}) {
		info.ClaimTx = s.ClaimTx.Hex()
	}
	if s.RefundTx != (common.Hash{}) {
		info.RefundTx = s.RefundTx.Hex()
	}
	return info
}

// CreateAssetToXMRRequest is the params object for swap_createAssetToXMR.
type CreateAssetToXMRRequest struct {
	Claimer             string `json:"claimer"`
	Asset               string `json:"asset,omitempty"` // empty for native token
	Value               string `json:"value"`           // decimal, asset base units
	XMRAmount           uint64 `json:"xmr_amount"`      // piconero
	Timeout1Seconds     int64  `json:"timeout1_seconds"`
	Timeout2Seconds     int64  `json:"timeout2_seconds"`
	ClaimCommitment     string `json:"claim_commitment"`
	TheirPublicSpendKey string `json:"their_public_spend_key"`
	TheirPrivateViewKey string `json:"their_private_view_key"`
}

func (s *Server) swapCreateAssetToXMR(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var req CreateAssetToXMRRequest
	if err := json.Unmarshal(params, &req); err != nil {
		return nil, fmt.Errorf("%w: %s", swap.ErrInvalidParameters, err)
	}
	value, ok := new(big.Int).SetString(req.Value, 10)
	if !ok {
		return nil, fmt.Errorf("%w: invalid value %q", swap.ErrInvalidParameters, req.Value)
	}
	claimCommitment, err := helpers.DecodeHex32(req.ClaimCommitment)
	if err != nil {
		return nil, fmt.Errorf("%w: claim commitment: %s", swap.ErrInvalidParameters, err)
	}

	sw, err := s.controller.CreateAssetToXMR(ctx, &swap.CreateAssetToXMRParams{
		Claimer:             common.HexToAddress(req.Claimer),
		Asset:               common.HexToAddress(req.Asset),
		Value:               value,
		XMRAmount:           req.XMRAmount,
		TimeoutDuration1:    time.Duration(req.Timeout1Seconds) * time.Second,
		TimeoutDuration2:    time.Duration(req.Timeout2Seconds) * time.Second,
		ClaimCommitment:     claimCommitment,
		TheirPublicSpendKey: req.TheirPublicSpendKey,
		TheirPrivateViewKey: req.TheirPrivateViewKey,
	})
	if err != nil {
		return nil, err
	}
	return swapInfo(sw), nil
}

// CreateXMRToAssetRequest is the params object for swap_createXMRToAsset.
type CreateXMRToAssetRequest struct {
	XMRAmount           uint64 `json:"xmr_amount"` // piconero
	TheirPublicSpendKey string `json:"their_public_spend_key"`
	TheirPrivateViewKey string `json:"their_private_view_key"`
}

// CreateXMRToAssetResponse carries the material the caller forwards to the
// counterparty so they can fund the settlement contract.
type CreateXMRToAssetResponse struct {
	Swap            *SwapInfo `json:"swap"`
	ClaimCommitment string    `json:"claim_commitment"`
	PublicSpendKey  string    `json:"public_spend_key"`
	PrivateViewKey  string    `json:"private_view_key"`
}

func (s *Server) swapCreateXMRToAsset(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var req CreateXMRToAssetRequest
	if err := json.Unmarshal(params, &req); err != nil {
		return nil, fmt.Errorf("%w: %s", swap.ErrInvalidParameters, err)
	}

	result, err := s.controller.CreateXMRToAsset(ctx, &swap.CreateXMRToAssetParams{
		XMRAmount:           req.XMRAmount,
		TheirPublicSpendKey: req.TheirPublicSpendKey,
		TheirPrivateViewKey: req.TheirPrivateViewKey,
	})
	if err != nil {
		return nil, err
	}
	return &CreateXMRToAssetResponse{
		Swap:            swapInfo(result.Swap),
		ClaimCommitment: helpers.EncodeHex(result.ClaimCommitment[:]),
		PublicSpendKey:  result.PublicSpendKey,
		PrivateViewKey:  result.PrivateViewKey,
	}, nil
}

// LockXMRRequest is the params object for swap_lockXMR.
type LockXMRRequest struct {
	// SwapID is the provisional id from swap_createXMRToAsset, or the
	// contract id when resuming a previously attempted lock.
	SwapID   string        `json:"swap_id"`
	Contract *ContractInfo `json:"contract"`
}

func (s *Server) swapLockXMR(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var req LockXMRRequest
	if err := json.Unmarshal(params, &req); err != nil {
		return nil, fmt.Errorf("%w: %s", swap.ErrInvalidParameters, err)
	}
	id, err := helpers.DecodeHex32(req.SwapID)
	if err != nil {
		return nil, fmt.Errorf("%w: swap id: %s", swap.ErrInvalidParameters, err)
	}
	contract, err := parseContractInfo(req.Contract)
	if err != nil {
		return nil, err
	}

	sw, err := s.controller.LockXMR(ctx, id, contract)
	if err != nil {
		return nil, err
	}
	return swapInfo(sw), nil
}

// swapIDRequest is the params object for all single-id methods.
type swapIDRequest struct {
	SwapID string `json:"swap_id"`
}

func parseSwapID(params json.RawMessage) ([32]byte, error) {
	var req swapIDRequest
	if err := json.Unmarshal(params, &req); err != nil {
		return [32]byte{}, fmt.Errorf("%w: %s", swap.ErrInvalidParameters, err)
	}
	id, err := helpers.DecodeHex32(req.SwapID)
	if err != nil {
		return [32]byte{}, fmt.Errorf("%w: swap id: %s", swap.ErrInvalidParameters, err)
	}
	return id, nil
}

func (s *Server) swapConfirmXMRLock(ctx context.Context, params json.RawMessage) (interface{}, error) {
	id, err := parseSwapID(params)
	if err != nil {
		return nil, err
	}
	sw, err := s.controller.ConfirmXMRLock(ctx, id)
	if err != nil {
		return nil, err
	}
	return swapInfo(sw), nil
}

func (s *Server) swapSetReady(ctx context.Context, params json.RawMessage) (interface{}, error) {
	id, err := parseSwapID(params)
	if err != nil {
		return nil, err
	}
	sw, err := s.controller.SetReady(ctx, id)
	if err != nil {
		return nil, err
	}
	return swapInfo(sw), nil
}

func (s *Server) swapClaim(ctx context.Context, params json.RawMessage) (interface{}, error) {
	id, err := parseSwapID(params)
	if err != nil {
		return nil, err
	}
	sw, err := s.controller.Claim(ctx, id)
	if err != nil {
		return nil, err
	}
	return swapInfo(sw), nil
}

func (s *Server) swapRefund(ctx context.Context, params json.RawMessage) (interface{}, error) {
	id, err := parseSwapID(params)
	if err != nil {
		return nil, err
	}
	sw, err := s.controller.Refund(ctx, id)
	if err != nil {
		return nil, err
	}
	return swapInfo(sw), nil
}

func (s *Server) swapSweepXMR(ctx context.Context, params json.RawMessage) (interface{}, error) {
	id, err := parseSwapID(params)
	if err != nil {
		return nil, err
	}
	sw, err := s.controller.SweepXMR(ctx, id)
	if err != nil {
		return nil, err
	}
	return swapInfo(sw), nil
}

func (s *Server) swapGet(_ context.Context, params json.RawMessage) (interface{}, error) {
	id, err := parseSwapID(params)
	if err != nil {
		return nil, err
	}
	sw, err := s.controller.GetSwap(id)
	if err != nil {
		return nil, err
	}
	return swapInfo(sw), nil
}

func (s *Server) swapList(context.Context, json.RawMessage) (interface{}, error) {
	swaps := s.controller.ListSwaps()
	infos := make([]*SwapInfo, 0, len(swaps))
	for _, sw := range swaps {
		infos = append(infos, swapInfo(sw))
	}
	return map[string]interface{}{"swaps": infos}, nil
}
