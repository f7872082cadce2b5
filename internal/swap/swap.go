// Package swap implements the XMR / EVM-asset atomic swap lifecycle: the
// per-swap state machine, the in-memory swap set, and the controller that
// drives each swap through the settlement contract and the Monero wallet.
//
// The protocol is commit-reveal. Each party generates a secret scalar and
// publishes only its commitment; the settlement contract stores the two
// commitments and forces whoever moves the asset to reveal their scalar.
// The revealed scalar is simultaneously a Monero spend-key half, so every
// on-chain outcome hands one side the full key to the shared lock address.
package swap

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/moneroswap/swapd/internal/contracts/swapevm"
	"github.com/moneroswap/swapd/internal/mcrypto"
)

// Direction says which side of the trade this node holds.
type Direction string

const (
	// DirectionAssetToXMR: we own the EVM asset, fund the settlement
	// contract, and end up with XMR. We are the contract owner and hold the
	// refund secret.
	DirectionAssetToXMR Direction = "asset_to_xmr"

	// DirectionXMRToAsset: we own XMR, lock it to the shared address, and
	// claim the EVM asset. We are the contract claimer and hold the claim
	// secret.
	DirectionXMRToAsset Direction = "xmr_to_asset"
)

// Status is the lifecycle status of a swap.
type Status string

const (
	StatusNone      Status = ""
	StatusPending   Status = "PENDING"    // contract funded, XMR not yet locked
	StatusXMRLocked Status = "XMR_LOCKED" // XMR locked to the shared address
	StatusReady     Status = "READY"      // owner opened the claim window
	StatusCompleted Status = "COMPLETED"  // asset claimed, claim secret revealed
	StatusRefunded  Status = "REFUNDED"   // asset refunded, refund secret revealed
)

// Swap is the full local record of one swap. Secret material lives only
// here and in the owner-only database; it must never appear in logs or RPC
// responses before its on-chain reveal.
type Swap struct {
	ID        [32]byte
	Direction Direction
	Status    Status
	CreatedAt time.Time

	// Contract is the confirmed parameter tuple. Timeout1 and Timeout2 are
	// absolute unix seconds read back from the funding event.
	Contract     *swapevm.ContractSwap
	CreateTxHash common.Hash

	// OurSecret is the secret scalar we generated, in the big-endian form
	// the contract verifies. Under DirectionAssetToXMR it opens the refund
	// commitment; under DirectionXMRToAsset, the claim commitment.
	OurSecret [32]byte

	// Monero key halves for the shared lock address. Parties exchange their
	// public spend key and private view key, so both can watch the shared
	// address but neither can spend it alone.
	OurSpendKey      *mcrypto.PrivateSpendKey
	OurViewKey       *mcrypto.PrivateViewKey
	TheirPublicSpend *mcrypto.PublicSpendKey
	SharedViewKey    *mcrypto.PrivateViewKey
	SharedAddress    string

	// XMRAmount is the lock amount in piconero.
	XMRAmount uint64

	// Counterparty's secret once revealed on chain.
	RevealedSecret    [32]byte
	HasRevealedSecret bool

	// Transaction references.
	XMRLockTxHash string
	SetReadyTx    common.Hash
	ClaimTx       common.Hash
	RefundTx      common.Hash
	SweepTxHashes []string
}

// TransitionTo moves the swap to a new status if the transition is legal.
// The machine is forward-only; terminal states allow nothing.
func (s *Swap) TransitionTo(next Status) error {
	valid := map[Status][]Status{
		StatusPending:   {StatusXMRLocked, StatusRefunded},
		StatusXMRLocked: {StatusReady, StatusCompleted, StatusRefunded},
		StatusReady:     {StatusCompleted, StatusRefunded},
		StatusCompleted: {},
		StatusRefunded:  {},
	}

	transitions, ok := valid[s.Status]
	if !ok {
		return fmt.Errorf("%w: unknown current status %q", ErrInvalidState, s.Status)
	}
	for _, t := range transitions {
		if t == next {
			s.Status = next
			return nil
		}
	}
	return fmt.Errorf("%w: cannot transition from %s to %s", ErrInvalidState, s.Status, next)
}

// IsTerminal reports whether the swap has reached a final status.
func (s *Swap) IsTerminal() bool {
	return s.Status == StatusCompleted || s.Status == StatusRefunded
}

// Timeout1 is the claim window start as wall-clock time.
func (s *Swap) Timeout1() time.Time {
	return time.Unix(s.Contract.Timeout1.Int64(), 0)
}

// Timeout2 is the late-refund start (claim window end) as wall-clock time.
func (s *Swap) Timeout2() time.Time {
	return time.Unix(s.Contract.Timeout2.Int64(), 0)
}

// IDHex is the swap id as 0x-prefixed hex, the form used in RPC and logs.
func (s *Swap) IDHex() string {
	return fmt.Sprintf("0x%x", s.ID)
}
