package swap

import (
	"context"
	"fmt"

	"github.com/moneroswap/swapd/internal/contracts/swapevm"
)

// SetReady opens the claim window for an asset-to-XMR swap. A swap still in
// PENDING has the counterparty's XMR lock confirmed first, so one call takes
// it through XMR_LOCKED to READY. Once ready, the swap can no longer be
// refunded until timeout2.
func (c *Controller) SetReady(ctx context.Context, id [32]byte) (*Swap, error) {
	var out Swap
	err := c.store.WithSwap(id, func(s *Swap) error {
		if s.Direction != DirectionAssetToXMR {
			return fmt.Errorf("%w: SetReady only applies to asset-to-XMR swaps", ErrInvalidState)
		}
		switch s.Status {
		case StatusPending, StatusXMRLocked:
		default:
			return fmt.Errorf("%w: swap is %s", ErrInvalidState, s.Status)
		}

		// An earlier submission may have mined after its confirmation
		// wait gave up; the chain is authoritative.
		stage, err := c.evm.Stage(ctx, s.ID)
		if err != nil {
			return chainErr(err)
		}
		switch stage {
		case swapevm.StageReady:
			if s.Status == StatusPending {
				if err := s.TransitionTo(StatusXMRLocked); err != nil {
					return err
				}
			}
			if err := s.TransitionTo(StatusReady); err != nil {
				return err
			}
			c.finalize(s)
			out = *s
			return nil
		case swapevm.StageCompleted:
			return fmt.Errorf("%w: contract already settled", ErrInvalidState)
		}

		if !c.clock.Now().Before(s.Timeout2()) {
			return fmt.Errorf("%w: claim window closed at %s", ErrTooLateToClaim, s.Timeout2())
		}

		if s.Status == StatusPending {
			balance, err := c.xmr.WatchOnlyBalance(ctx, s.SharedViewKey, s.SharedAddress)
			if err != nil {
				return chainErr(err)
			}
			if balance < s.XMRAmount {
				return fmt.Errorf("%w: shared address holds %d of %d piconero",
					ErrInsufficientBalance, balance, s.XMRAmount)
			}
			if err := s.TransitionTo(StatusXMRLocked); err != nil {
				return err
			}
		}

		tx, err := c.evm.SetReady(ctx, s.Contract)
		if err != nil {
			return chainErr(err)
		}

		s.SetReadyTx = tx
		if err := s.TransitionTo(StatusReady); err != nil {
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
