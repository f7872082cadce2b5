package swap

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/moneroswap/swapd/internal/commit"
	"github.com/moneroswap/swapd/internal/contracts/swapevm"
	"github.com/moneroswap/swapd/internal/mcrypto"
	"github.com/moneroswap/swapd/internal/swapid"
	"github.com/moneroswap/swapd/pkg/helpers"
)

// CreateAssetToXMRParams starts a swap where this node funds the settlement
// contract with an EVM asset and receives XMR. The counterparty material
// (claim commitment, key halves) is exchanged out of band before this call.
type CreateAssetToXMRParams struct {
	Claimer          common.Address
	Asset            common.Address // zero address means the native token
	Value            *big.Int
	XMRAmount        uint64 // expected lock amount in piconero
	TimeoutDuration1 time.Duration
	TimeoutDuration2 time.Duration

	ClaimCommitment     [32]byte
	TheirPublicSpendKey string // hex
	TheirPrivateViewKey string // hex
}

// CreateAssetToXMR generates our refund secret, funds the contract, and
// registers the swap as PENDING. The returned snapshot carries the swap id
// and the confirmed timeouts.
func (c *Controller) CreateAssetToXMR(ctx context.Context, p *CreateAssetToXMRParams) (*Swap, error) {
	if p.Value == nil || p.Value.Sign() <= 0 {
		return nil, fmt.Errorf("%w: value must be positive", ErrInvalidParameters)
	}
	if p.XMRAmount == 0 {
		return nil, fmt.Errorf("%w: XMR amount must be positive", ErrInvalidParameters)
	}
	if p.Claimer == (common.Address{}) {
		return nil, fmt.Errorf("%w: claimer address required", ErrInvalidParameters)
	}
	if p.ClaimCommitment == ([32]byte{}) {
		return nil, fmt.Errorf("%w: claim commitment required", ErrInvalidParameters)
	}
	if p.TimeoutDuration1 <= 0 || p.TimeoutDuration2 <= 0 {
		return nil, fmt.Errorf("%w: timeout durations must be positive", ErrInvalidParameters)
	}

	theirSpend, theirView, err := parseTheirKeys(p.TheirPublicSpendKey, p.TheirPrivateViewKey)
	if err != nil {
		return nil, err
	}

	keys, secret, err := generateSwapSecret()
	if err != nil {
		return nil, err
	}
	refundCommitment := secret.Commitment()

	nonce, err := randomNonce()
	if err != nil {
		return nil, err
	}

	result, err := c.evm.NewSwap(ctx, &swapevm.CreateSwapParams{
		ClaimCommitment:  p.ClaimCommitment,
		RefundCommitment: refundCommitment,
		Claimer:          p.Claimer,
		TimeoutDuration1: big.NewInt(int64(p.TimeoutDuration1 / time.Second)),
		TimeoutDuration2: big.NewInt(int64(p.TimeoutDuration2 / time.Second)),
		Asset:            p.Asset,
		Value:            p.Value,
		Nonce:            nonce,
	})
	if err != nil {
		return nil, chainErr(err)
	}

	sharedAddr, sharedView := c.sharedAddressFor(keys, theirSpend, theirView)

	s := &Swap{
		ID:               result.SwapID,
		Direction:        DirectionAssetToXMR,
		Status:           StatusPending,
		CreatedAt:        c.clock.Now(),
		Contract:         result.Swap,
		CreateTxHash:     result.TxHash,
		OurSecret:        secret.Bytes(),
		OurSpendKey:      keys.SpendKey,
		OurViewKey:       keys.ViewKey,
		TheirPublicSpend: theirSpend,
		SharedViewKey:    sharedView,
		SharedAddress:    sharedAddr,
		XMRAmount:        p.XMRAmount,
	}
	if err := c.store.Put(s); err != nil {
		return nil, err
	}
	c.finalize(s)

	snapshot := *s
	return &snapshot, nil
}

// CreateXMRToAssetParams starts a swap where this node locks XMR and claims
// an EVM asset. The record is provisional until the counterparty funds the
// contract; LockXMR attaches the confirmed contract parameters.
type CreateXMRToAssetParams struct {
	XMRAmount           uint64 // lock amount in piconero
	TheirPublicSpendKey string // hex
	TheirPrivateViewKey string // hex
}

// CreateXMRToAssetResult returns the swap snapshot plus the material the
// caller must hand to the counterparty: our claim commitment and our key
// halves. The claim secret itself never leaves this process.
type CreateXMRToAssetResult struct {
	Swap *Swap

	ClaimCommitment [32]byte
	PublicSpendKey  string
	PrivateViewKey  string
}

// CreateXMRToAsset generates our claim secret and key halves and registers
// a provisional PENDING record keyed by the commitment hash. Once the
// counterparty funds the contract with our commitment, LockXMR verifies the
// tuple and rekeys the record to the contract swap id.
func (c *Controller) CreateXMRToAsset(ctx context.Context, p *CreateXMRToAssetParams) (*CreateXMRToAssetResult, error) {
	if p.XMRAmount == 0 {
		return nil, fmt.Errorf("%w: XMR amount must be positive", ErrInvalidParameters)
	}

	theirSpend, theirView, err := parseTheirKeys(p.TheirPublicSpendKey, p.TheirPrivateViewKey)
	if err != nil {
		return nil, err
	}

	keys, secret, err := generateSwapSecret()
	if err != nil {
		return nil, err
	}
	claimCommitment := secret.Commitment()

	sharedAddr, sharedView := c.sharedAddressFor(keys, theirSpend, theirView)

	// Provisional id until the contract assigns the real one.
	var provisionalID [32]byte
	copy(provisionalID[:], ethcrypto.Keccak256(claimCommitment[:]))

	s := &Swap{
		ID:               provisionalID,
		Direction:        DirectionXMRToAsset,
		Status:           StatusPending,
		CreatedAt:        c.clock.Now(),
		OurSecret:        secret.Bytes(),
		OurSpendKey:      keys.SpendKey,
		OurViewKey:       keys.ViewKey,
		TheirPublicSpend: theirSpend,
		SharedViewKey:    sharedView,
		SharedAddress:    sharedAddr,
		XMRAmount:        p.XMRAmount,
	}
	if err := c.store.Put(s); err != nil {
		return nil, err
	}
	c.finalize(s)

	snapshot := *s
	return &CreateXMRToAssetResult{
		Swap:            &snapshot,
		ClaimCommitment: claimCommitment,
		PublicSpendKey:  keys.SpendKey.Public().Hex(),
		PrivateViewKey:  keys.ViewKey.Hex(),
	}, nil
}

// LockXMR attaches the counterparty-funded contract parameters to a
// provisional XMR-to-asset swap, verifies them, and locks our XMR to the
// shared address. On success the record is rekeyed to the contract swap id
// and moves to XMR_LOCKED.
//
// The contract tuple is persisted under the final id before any XMR moves,
// and the shared address is checked before sending, so a retry after a
// mid-lock failure resumes instead of locking twice. On the resume path the
// swap is addressed by its contract id.
func (c *Controller) LockXMR(ctx context.Context, id [32]byte, contract *swapevm.ContractSwap) (*Swap, error) {
	if contract == nil {
		return nil, fmt.Errorf("%w: contract parameters required", ErrInvalidParameters)
	}

	var out Swap
	err := c.store.WithSwap(id, func(s *Swap) error {
		if s.Direction != DirectionXMRToAsset {
			return fmt.Errorf("%w: LockXMR only applies to XMR-to-asset swaps", ErrInvalidState)
		}
		if s.Status != StatusPending {
			return fmt.Errorf("%w: swap is %s, want %s", ErrInvalidState, s.Status, StatusPending)
		}

		// The funded tuple must commit to our claim secret and name us as
		// claimer, otherwise claiming would reveal our secret for nothing.
		if !commit.VerifySecret(s.OurSecret, contract.ClaimCommitment) {
			return fmt.Errorf("%w: contract claim commitment is not ours", ErrSecretMismatch)
		}
		if contract.Claimer != c.evm.Address() {
			return fmt.Errorf("%w: contract claimer is not our address", ErrInvalidParameters)
		}

		contractID, err := swapid.Compute(
			contract.Owner, contract.Claimer, contract.ClaimCommitment, contract.RefundCommitment,
			contract.Timeout1, contract.Timeout2, contract.Asset, contract.Value, contract.Nonce,
		)
		if err != nil {
			return fmt.Errorf("%w: %s", ErrInvalidParameters, err)
		}

		if s.Contract != nil {
			// Resuming an earlier attempt: the tuple must be the one
			// already recorded.
			if contractID != s.ID {
				return fmt.Errorf("%w: contract does not match the recorded tuple", ErrInvalidParameters)
			}
		} else {
			stage, err := c.evm.Stage(ctx, contractID)
			if err != nil {
				return chainErr(err)
			}
			if stage != swapevm.StagePending {
				return fmt.Errorf("%w: contract stage is %s, want pending", ErrInvalidState, stage)
			}

			if err := c.store.Rekey(id, contractID); err != nil {
				return err
			}
			if c.recorder != nil {
				if err := c.recorder.DeleteSwap(s.IDHex()); err != nil {
					c.log.Error("failed to drop provisional record", "swap_id", s.IDHex(), "error", err)
				}
			}
			s.ID = contractID
			s.Contract = contract
			if c.recorder != nil {
				if err := c.recorder.SaveSwap(s); err != nil {
					c.log.Error("failed to persist swap", "swap_id", s.IDHex(), "error", err)
				}
			}
		}

		// Check the shared address before sending: an earlier attempt may
		// have locked the XMR already.
		balance, err := c.xmr.WatchOnlyBalance(ctx, s.SharedViewKey, s.SharedAddress)
		if err != nil {
			return chainErr(err)
		}
		if balance < s.XMRAmount {
			transfer, err := c.xmr.Transfer(ctx, c.accountIndex, s.SharedAddress, s.XMRAmount)
			if err != nil {
				return chainErr(err)
			}
			s.XMRLockTxHash = transfer.TxHash
		}

		if err := s.TransitionTo(StatusXMRLocked); err != nil {
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

// ConfirmXMRLock checks, via a view-only wallet, that the counterparty has
// locked the agreed XMR amount to the shared address, and moves an
// asset-to-XMR swap to XMR_LOCKED.
func (c *Controller) ConfirmXMRLock(ctx context.Context, id [32]byte) (*Swap, error) {
	var out Swap
	err := c.store.WithSwap(id, func(s *Swap) error {
		if s.Direction != DirectionAssetToXMR {
			return fmt.Errorf("%w: ConfirmXMRLock only applies to asset-to-XMR swaps", ErrInvalidState)
		}
		if s.Status != StatusPending {
			return fmt.Errorf("%w: swap is %s, want %s", ErrInvalidState, s.Status, StatusPending)
		}

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
		c.finalize(s)
		out = *s
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// generateSwapSecret draws a key pair whose spend scalar doubles as the
// commit-reveal secret. Scalars below the Ed25519 group order are always
// valid secp256k1 scalars, so one secret serves both curves.
func generateSwapSecret() (*mcrypto.KeyPair, *commit.Secret, error) {
	keys, err := mcrypto.GenerateKeys()
	if err != nil {
		return nil, nil, err
	}
	secret, err := commit.NewSecretFromBytes(keys.SpendKey.AsSecret())
	if err != nil {
		return nil, nil, err
	}
	return keys, secret, nil
}

func parseTheirKeys(publicSpendHex, privateViewHex string) (*mcrypto.PublicSpendKey, *mcrypto.PrivateViewKey, error) {
	spend, err := mcrypto.NewPublicSpendKeyFromHex(publicSpendHex)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: counterparty spend key: %s", ErrInvalidParameters, err)
	}
	viewBytes, err := helpers.DecodeHex32(privateViewHex)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: counterparty view key: %s", ErrInvalidParameters, err)
	}
	view, err := mcrypto.NewPrivateViewKey(viewBytes[:])
	if err != nil {
		return nil, nil, fmt.Errorf("%w: counterparty view key: %s", ErrInvalidParameters, err)
	}
	return spend, view, nil
}

func randomNonce() (*big.Int, error) {
	var b [32]byte
	if _, err := rand.Read(b[:]); err != nil {
		return nil, fmt.Errorf("generate swap nonce: %w", err)
	}
	return new(big.Int).SetBytes(b[:]), nil
}
