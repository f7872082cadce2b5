package swap

import (
	"context"
	"fmt"

	"github.com/moneroswap/swapd/internal/commit"
	"github.com/moneroswap/swapd/internal/contracts/swapevm"
	"github.com/moneroswap/swapd/internal/mcrypto"
)

// Claim spends the settlement contract to us, revealing our claim secret on
// chain. Only valid for XMR-to-asset swaps inside the claim window: after
// the owner set ready (or timeout1 passed), and before timeout2.
func (c *Controller) Claim(ctx context.Context, id [32]byte) (*Swap, error) {
	var out Swap
	err := c.store.WithSwap(id, func(s *Swap) error {
		if s.Direction != DirectionXMRToAsset {
			return fmt.Errorf("%w: Claim only applies to XMR-to-asset swaps", ErrInvalidState)
		}
		switch s.Status {
		case StatusXMRLocked, StatusReady:
		default:
			return fmt.Errorf("%w: swap is %s", ErrInvalidState, s.Status)
		}

		// The chain is authoritative: the owner may have set ready, or
		// an earlier claim may have mined after its confirmation wait
		// gave up.
		stage, err := c.evm.Stage(ctx, s.ID)
		if err != nil {
			return chainErr(err)
		}
		if stage == swapevm.StageCompleted {
			secret, revealed, err := c.evm.RevealedSecret(ctx, s.ID)
			if err != nil {
				return chainErr(err)
			}
			if revealed && secret == s.OurSecret {
				if err := s.TransitionTo(StatusCompleted); err != nil {
					return err
				}
				c.finalize(s)
				out = *s
				return nil
			}
			return fmt.Errorf("%w: contract already settled by the counterparty", ErrInvalidState)
		}

		now := c.clock.Now()
		if !now.Before(s.Timeout2()) {
			return fmt.Errorf("%w: claim window closed at %s", ErrTooLateToClaim, s.Timeout2())
		}
		if s.Status == StatusXMRLocked {
			if stage == swapevm.StageReady {
				if err := s.TransitionTo(StatusReady); err != nil {
					return err
				}
			} else if now.Before(s.Timeout1()) {
				return fmt.Errorf("%w: swap not ready and claim window opens at %s",
					ErrTooEarlyToClaim, s.Timeout1())
			}
		}

		tx, err := c.evm.Claim(ctx, s.Contract, s.OurSecret)
		if err != nil {
			return chainErr(err)
		}

		s.ClaimTx = tx
		if err := s.TransitionTo(StatusCompleted); err != nil {
			return err
		}
		c.finalize(s)
		out = *s
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// SweepXMR completes the Monero leg after the counterparty revealed their
// secret on chain. For asset-to-XMR swaps that is the claim secret; for
// XMR-to-asset swaps the refund secret, reclaiming our own lock. The
// revealed scalar is combined with our spend-key half, checked against the
// shared address, and the address is swept to our primary wallet.
func (c *Controller) SweepXMR(ctx context.Context, id [32]byte) (*Swap, error) {
	var out Swap
	err := c.store.WithSwap(id, func(s *Swap) error {
		if s.Contract == nil {
			return fmt.Errorf("%w: swap has no contract parameters", ErrInvalidState)
		}
		switch s.Status {
		case StatusXMRLocked, StatusReady:
		default:
			return fmt.Errorf("%w: swap is %s", ErrInvalidState, s.Status)
		}

		secret, revealed, err := c.evm.RevealedSecret(ctx, s.ID)
		if err != nil {
			return chainErr(err)
		}
		if !revealed {
			return ErrSecretNotAvailable
		}

		var expectedCommitment [32]byte
		var finalStatus Status
		switch s.Direction {
		case DirectionAssetToXMR:
			expectedCommitment = s.Contract.ClaimCommitment
			finalStatus = StatusCompleted
		case DirectionXMRToAsset:
			expectedCommitment = s.Contract.RefundCommitment
			finalStatus = StatusRefunded
		}
		if !commit.VerifySecret(secret, expectedCommitment) {
			return fmt.Errorf("%w: revealed secret does not open the expected commitment",
				ErrSecretMismatch)
		}

		theirSpend, err := mcrypto.NewPrivateSpendKeyFromSecret(secret)
		if err != nil {
			return fmt.Errorf("%w: %s", ErrSecretMismatch, err)
		}
		combined := mcrypto.SumPrivateSpendKeys(s.OurSpendKey, theirSpend)

		// The combined key must reproduce the shared address spend key,
		// otherwise the revealed scalar is not the counterparty's half.
		wantPub := mcrypto.SumPublicSpendKeys(s.OurSpendKey.Public(), s.TheirPublicSpend)
		if combined.Public().Hex() != wantPub.Hex() {
			return fmt.Errorf("%w: combined key does not control the shared address",
				ErrSecretMismatch)
		}

		dest, err := c.xmr.PrimaryAddress(ctx, c.accountIndex)
		if err != nil {
			return chainErr(err)
		}
		sweep, err := c.xmr.SweepFromKeys(ctx, combined, s.SharedViewKey, s.SharedAddress, dest)
		if err != nil {
			return chainErr(err)
		}

		s.RevealedSecret = secret
		s.HasRevealedSecret = true
		s.SweepTxHashes = sweep.TxHashes
		if err := s.TransitionTo(finalStatus); err != nil {
			return err
		}
		c.finalize(s)
		out = *s
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}
