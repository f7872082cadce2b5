// Package swapid derives the deterministic swap identifier both sides use to
// correlate off-chain state with the settlement contract. The id is the
// keccak256 hash of the ABI encoding of the contract's swap struct, in the
// contract's field order. Any divergence from that encoding silently
// desynchronizes the two sides, so the layout here is load-bearing.
package swapid

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// swapArgs mirrors the contract's Swap struct. All members are statically
// sized, so packing the fields flat is byte-identical to abi.encode(struct).
var swapArgs abi.Arguments

func init() {
	mustType := func(t string) abi.Type {
		typ, err := abi.NewType(t, "", nil)
		if err != nil {
			panic(fmt.Sprintf("swapid: bad abi type %s: %v", t, err))
		}
		return typ
	}

	address := mustType("address")
	bytes32 := mustType("bytes32")
	uint256 := mustType("uint256")

	swapArgs = abi.Arguments{
		{Name: "owner", Type: address},
		{Name: "claimer", Type: address},
		{Name: "claimCommitment", Type: bytes32},
		{Name: "refundCommitment", Type: bytes32},
		{Name: "timeout1", Type: uint256},
		{Name: "timeout2", Type: uint256},
		{Name: "asset", Type: address},
		{Name: "value", Type: uint256},
		{Name: "nonce", Type: uint256},
	}
}

// Compute returns the swap id for the given contract-confirmed parameters.
// Pure and deterministic; the timeouts must come from the chain, not from a
// locally computed estimate.
func Compute(
	owner, claimer common.Address,
	claimCommitment, refundCommitment [32]byte,
	timeout1, timeout2 *big.Int,
	asset common.Address,
	value, nonce *big.Int,
) ([32]byte, error) {
	if value == nil || timeout1 == nil || timeout2 == nil || nonce == nil {
		return [32]byte{}, fmt.Errorf("swapid: nil numeric field")
	}

	packed, err := swapArgs.Pack(
		owner, claimer,
		claimCommitment, refundCommitment,
		timeout1, timeout2,
		asset, value, nonce,
	)
	if err != nil {
		return [32]byte{}, fmt.Errorf("swapid: pack: %w", err)
	}

	var id [32]byte
	copy(id[:], crypto.Keccak256(packed))
	return id, nil
}
