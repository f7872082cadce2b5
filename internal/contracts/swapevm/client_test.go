package swapevm

import (
	"bytes"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/moneroswap/swapd/internal/swapid"
)

func testSwap() *ContractSwap {
	return &ContractSwap{
		Owner:            common.HexToAddress("0x1111111111111111111111111111111111111111"),
		Claimer:          common.HexToAddress("0x2222222222222222222222222222222222222222"),
		ClaimCommitment:  [32]byte{0xaa, 1},
		RefundCommitment: [32]byte{0xbb, 2},
		Timeout1:         big.NewInt(1_700_000_000),
		Timeout2:         big.NewInt(1_700_003_600),
		Asset:            common.HexToAddress("0x3333333333333333333333333333333333333333"),
		Value:            big.NewInt(1_000_000),
		Nonce:            big.NewInt(42),
	}
}

// The contract computes the swap id as keccak of the abi-encoded swap
// struct. A static tuple encodes as its fields laid out in order, so the
// flat encoding used by swapid must hash to the same id as the tuple
// encoding the contract sees.
func TestSwapIDMatchesTupleEncoding(t *testing.T) {
	swap := testSwap()

	packed, err := parsedABI.Methods["setReady"].Inputs.Pack(*swap)
	if err != nil {
		t.Fatalf("pack swap tuple: %v", err)
	}
	want := ethcrypto.Keccak256Hash(packed)

	got, err := swapid.Compute(
		swap.Owner, swap.Claimer, swap.ClaimCommitment, swap.RefundCommitment,
		swap.Timeout1, swap.Timeout2, swap.Asset, swap.Value, swap.Nonce,
	)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if common.Hash(got) != want {
		t.Errorf("swap id = %x, tuple hash = %x", got, want)
	}
}

func TestNewSwapPack(t *testing.T) {
	swap := testSwap()
	data, err := parsedABI.Pack("newSwap",
		swap.ClaimCommitment, swap.RefundCommitment, swap.Claimer,
		big.NewInt(120), big.NewInt(3600), swap.Asset, swap.Value, swap.Nonce,
	)
	if err != nil {
		t.Fatalf("pack newSwap: %v", err)
	}
	// 4-byte selector plus 8 static words.
	if len(data) != 4+8*32 {
		t.Errorf("packed length = %d, want %d", len(data), 4+8*32)
	}
	if !bytes.Equal(data[:4], parsedABI.Methods["newSwap"].ID) {
		t.Errorf("selector mismatch")
	}
}

func TestClaimPack(t *testing.T) {
	swap := testSwap()
	secret := [32]byte{0xcc}
	data, err := parsedABI.Pack("claim", *swap, secret)
	if err != nil {
		t.Fatalf("pack claim: %v", err)
	}
	// 9 tuple words plus the secret.
	if len(data) != 4+10*32 {
		t.Errorf("packed length = %d, want %d", len(data), 4+10*32)
	}
}

func TestFindNewEvent(t *testing.T) {
	contractAddr := common.HexToAddress("0x4444444444444444444444444444444444444444")
	c := &Client{
		contract:     bind.NewBoundContract(contractAddr, parsedABI, nil, nil, nil),
		contractAddr: contractAddr,
	}

	swapID := [32]byte{0xd1}
	data, err := parsedABI.Events["New"].Inputs.Pack(
		swapID, [32]byte{0xaa}, [32]byte{0xbb},
		big.NewInt(1000), big.NewInt(2000),
		common.HexToAddress("0x3333333333333333333333333333333333333333"),
		big.NewInt(7),
	)
	if err != nil {
		t.Fatalf("pack New event: %v", err)
	}

	receipt := &types.Receipt{
		Logs: []*types.Log{
			{
				// unrelated log from another contract
				Address: common.HexToAddress("0x5555555555555555555555555555555555555555"),
				Topics:  []common.Hash{parsedABI.Events["New"].ID},
			},
			{
				Address: contractAddr,
				Topics:  []common.Hash{parsedABI.Events["New"].ID},
				Data:    data,
			},
		},
	}

	ev, err := c.findNewEvent(receipt)
	if err != nil {
		t.Fatalf("findNewEvent: %v", err)
	}
	if ev.SwapID != swapID {
		t.Errorf("event swap id = %x, want %x", ev.SwapID, swapID)
	}
	if ev.Timeout1.Int64() != 1000 || ev.Timeout2.Int64() != 2000 {
		t.Errorf("timeouts = %s, %s", ev.Timeout1, ev.Timeout2)
	}
	if ev.Value.Int64() != 7 {
		t.Errorf("value = %s", ev.Value)
	}
}

func TestFindNewEventMissing(t *testing.T) {
	contractAddr := common.HexToAddress("0x4444444444444444444444444444444444444444")
	c := &Client{
		contract:     bind.NewBoundContract(contractAddr, parsedABI, nil, nil, nil),
		contractAddr: contractAddr,
	}
	if _, err := c.findNewEvent(&types.Receipt{}); err == nil {
		t.Fatal("expected error for receipt without New event")
	}
}

func TestStageString(t *testing.T) {
	cases := map[Stage]string{
		StageEmpty:     "empty",
		StagePending:   "pending",
		StageReady:     "ready",
		StageCompleted: "completed",
		Stage(9):       "unknown",
	}
	for stage, want := range cases {
		if got := stage.String(); got != want {
			t.Errorf("Stage(%d).String() = %q, want %q", stage, got, want)
		}
	}
}
