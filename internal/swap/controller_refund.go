package swap

import (
	"context"
	"fmt"

	"github.com/moneroswap/swapd/internal/contracts/swapevm"
)

// Refund reclaims the asset from the settlement contract, revealing our
// refund secret on chain. Only valid for asset-to-XMR swaps, and only in
// the contract's two refund windows: before timeout1 while the swap is
// still PENDING, or after timeout2.
//
// Inside the claim window a swap whose counterparty has locked XMR is not
// refundable: the honest path there is SetReady. Once timeout2 passes a
// direct XMR_LOCKED refund is allowed, sparing the owner a pointless
// set-ready transaction.
func (c *Controller) Refund(ctx context.Context, id [32]byte) (*Swap, error) {
	var out Swap
	err := c.store.WithSwap(id, func(s *Swap) error {
		if s.Direction != DirectionAssetToXMR {
			return fmt.Errorf("%w: Refund only applies to asset-to-XMR swaps", ErrInvalidState)
		}
		switch s.Status {
		case StatusPending, StatusXMRLocked, StatusReady:
		default:
			return fmt.Errorf("%w: swap is %s", ErrInvalidState, s.Status)
		}

		// An earlier refund may have mined after its confirmation wait
		// gave up; the chain is authoritative.
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
				if err := s.TransitionTo(StatusRefunded); err != nil {
					return err
				}
				c.finalize(s)
				out = *s
				return nil
			}
			return fmt.Errorf("%w: contract already settled by the counterparty", ErrInvalidState)
		}

		now := c.clock.Now()
		switch s.Status {
		case StatusPending:
			if !now.Before(s.Timeout1()) {
				return fmt.Errorf("%w: claim window opened at %s, early refund closed",
					ErrNotTimeToRefund, s.Timeout1())
			}
		case StatusXMRLocked, StatusReady:
			if now.Before(s.Timeout2()) {
				return fmt.Errorf("%w: late refund opens at %s", ErrNotTimeToRefund, s.Timeout2())
			}
		}

		tx, err := c.evm.Refund(ctx, s.Contract, s.OurSecret)
		if err != nil {
			return chainErr(err)
		}

		s.RefundTx = tx
		if err := s.TransitionTo(StatusRefunded); err != nil {
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
