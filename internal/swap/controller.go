package swap

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/moneroswap/swapd/internal/contracts/swapevm"
	"github.com/moneroswap/swapd/internal/mcrypto"
	"github.com/moneroswap/swapd/internal/monero"
	"github.com/moneroswap/swapd/pkg/logging"
)

// EVMClient is the settlement-contract surface the controller depends on.
type EVMClient interface {
	Address() common.Address
	NewSwap(ctx context.Context, p *swapevm.CreateSwapParams) (*swapevm.CreateSwapResult, error)
	SetReady(ctx context.Context, swap *swapevm.ContractSwap) (common.Hash, error)
	Claim(ctx context.Context, swap *swapevm.ContractSwap, secret [32]byte) (common.Hash, error)
	Refund(ctx context.Context, swap *swapevm.ContractSwap, secret [32]byte) (common.Hash, error)
	Stage(ctx context.Context, swapID [32]byte) (swapevm.Stage, error)
	RevealedSecret(ctx context.Context, swapID [32]byte) ([32]byte, bool, error)
}

// XMRClient is the Monero wallet surface the controller depends on.
type XMRClient interface {
	PrimaryAddress(ctx context.Context, accountIndex uint32) (string, error)
	Transfer(ctx context.Context, accountIndex uint32, dest string, amount uint64) (*monero.TransferResult, error)
	WatchOnlyBalance(ctx context.Context, viewKey *mcrypto.PrivateViewKey, address string) (uint64, error)
	SweepFromKeys(ctx context.Context, spendKey *mcrypto.PrivateSpendKey, viewKey *mcrypto.PrivateViewKey, address, dest string) (*monero.SweepResult, error)
}

// Recorder persists swap records across restarts. The sqlite store
// implements it; tests use a no-op.
type Recorder interface {
	SaveSwap(s *Swap) error
	DeleteSwap(idHex string) error
}

// Event is a lifecycle notification pushed to subscribers whenever a swap
// changes status.
type Event struct {
	SwapID    string    `json:"swap_id"`
	Direction Direction `json:"direction"`
	Status    Status    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// Config wires a Controller.
type Config struct {
	Store        *Store
	EVM          EVMClient
	XMR          XMRClient
	Clock        Clock
	Network      mcrypto.Network
	AccountIndex uint32
	Recorder     Recorder
	Notify       func(Event)
	Logger       *logging.Logger
}

// Controller drives swaps through their lifecycle. All per-swap work runs
// under the store's entry lock, so each swap sees a serialised sequence of
// operations even when RPC calls race.
type Controller struct {
	store        *Store
	evm          EVMClient
	xmr          XMRClient
	clock        Clock
	network      mcrypto.Network
	accountIndex uint32
	recorder     Recorder
	notify       func(Event)
	log          *logging.Logger
}

// NewController validates cfg and builds a Controller.
func NewController(cfg *Config) (*Controller, error) {
	if cfg.Store == nil {
		return nil, errors.New("swap: nil store")
	}
	if cfg.EVM == nil {
		return nil, errors.New("swap: nil EVM client")
	}
	if cfg.XMR == nil {
		return nil, errors.New("swap: nil XMR client")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = SystemClock()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.GetDefault().Component("swap")
	}
	return &Controller{
		store:        cfg.Store,
		evm:          cfg.EVM,
		xmr:          cfg.XMR,
		clock:        clock,
		network:      cfg.Network,
		accountIndex: cfg.AccountIndex,
		recorder:     cfg.Recorder,
		notify:       cfg.Notify,
		log:          logger,
	}, nil
}

// Restore loads a previously persisted swap into the in-memory store.
// Terminal swaps are skipped; they need no further driving.
func (c *Controller) Restore(s *Swap) error {
	if s == nil {
		return fmt.Errorf("%w: nil swap", ErrInvalidParameters)
	}
	if s.IsTerminal() {
		return nil
	}
	if err := c.store.Put(s); err != nil {
		return err
	}
	c.log.Info("restored swap", "swap_id", s.IDHex(), "status", s.Status)
	return nil
}

// GetSwap returns a snapshot of one swap.
func (c *Controller) GetSwap(id [32]byte) (*Swap, error) {
	return c.store.Get(id)
}

// ListSwaps returns snapshots of all swaps, newest first.
func (c *Controller) ListSwaps() []*Swap {
	return c.store.List()
}

// finalize persists and announces a status change. Called with the swap's
// entry lock held.
func (c *Controller) finalize(s *Swap) {
	if c.recorder != nil {
		if err := c.recorder.SaveSwap(s); err != nil {
			c.log.Error("failed to persist swap", "swap_id", s.IDHex(), "error", err)
		}
	}
	if c.notify != nil {
		c.notify(Event{
			SwapID:    s.IDHex(),
			Direction: s.Direction,
			Status:    s.Status,
			Timestamp: c.clock.Now(),
		})
	}
	c.log.Info("swap status changed", "swap_id", s.IDHex(), "status", s.Status)
}

// chainErr maps adapter errors onto the controller's error set.
func chainErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, swapevm.ErrConfirmationTimeout):
		return fmt.Errorf("%w: %s", ErrChainConfirmationTimeout, err)
	case errors.Is(err, swapevm.ErrSubmissionFailed), errors.Is(err, swapevm.ErrTxReverted):
		return fmt.Errorf("%w: %s", ErrChainSubmission, err)
	case errors.Is(err, swapevm.ErrInsufficientBalance), errors.Is(err, monero.ErrInsufficientBalance):
		return fmt.Errorf("%w: %s", ErrInsufficientBalance, err)
	default:
		return err
	}
}

// sharedAddressFor derives the shared lock address and the full private
// view key from our key halves and the counterparty's exchanged material.
func (c *Controller) sharedAddressFor(
	ours *mcrypto.KeyPair,
	theirPublicSpend *mcrypto.PublicSpendKey,
	theirPrivateView *mcrypto.PrivateViewKey,
) (string, *mcrypto.PrivateViewKey) {
	sharedView := mcrypto.SumPrivateViewKeys(ours.ViewKey, theirPrivateView)
	spendSum := mcrypto.SumPublicSpendKeys(ours.SpendKey.Public(), theirPublicSpend)
	return mcrypto.Address(spendSum, sharedView.Public(), c.network), sharedView
}
