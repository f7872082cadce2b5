package swapevm

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/moneroswap/swapd/internal/swapid"
	"github.com/moneroswap/swapd/pkg/logging"
)

const (
	defaultConfirmTimeout = 2 * time.Minute
	maxSubmitAttempts     = 3
	submitRetryDelay      = 2 * time.Second
	receiptPollInterval   = time.Second
)

var (
	// ErrSubmissionFailed means the transaction could not be accepted by the
	// node after all retry attempts.
	ErrSubmissionFailed = errors.New("transaction submission failed")

	// ErrConfirmationTimeout means a submitted transaction was not mined
	// within the configured confirmation window.
	ErrConfirmationTimeout = errors.New("transaction confirmation timed out")

	// ErrInsufficientBalance means the funding account cannot cover the
	// swap value.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrTxReverted means the transaction was mined but reverted.
	ErrTxReverted = errors.New("transaction reverted")
)

// Config holds the settings needed to talk to the settlement contract.
type Config struct {
	EthClient       *ethclient.Client
	ContractAddress common.Address
	PrivateKey      *ecdsa.PrivateKey
	ChainID         *big.Int
	ConfirmTimeout  time.Duration
	Logger          *logging.Logger
}

// Client submits and observes settlement contract transactions. All state
// transitions go through a single funding key, so the client owns the nonce
// for that key and serialises submissions.
type Client struct {
	ec             *ethclient.Client
	contract       *bind.BoundContract
	contractAddr   common.Address
	key            *ecdsa.PrivateKey
	addr           common.Address
	chainID        *big.Int
	confirmTimeout time.Duration
	log            *logging.Logger

	nonceMu   sync.Mutex
	nextNonce uint64
	nonceInit bool
}

// NewClient connects a Client to the settlement contract. The account nonce
// is fetched lazily on first submission so that a read-only client never
// needs a funded key to start.
func NewClient(cfg *Config) (*Client, error) {
	if cfg.EthClient == nil {
		return nil, errors.New("swapevm: nil eth client")
	}
	if cfg.PrivateKey == nil {
		return nil, errors.New("swapevm: nil private key")
	}
	confirmTimeout := cfg.ConfirmTimeout
	if confirmTimeout == 0 {
		confirmTimeout = defaultConfirmTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.GetDefault().Component("swapevm")
	}

	chainID := cfg.ChainID
	if chainID == nil {
		var err error
		chainID, err = cfg.EthClient.ChainID(context.Background())
		if err != nil {
			return nil, fmt.Errorf("swapevm: fetch chain id: %w", err)
		}
	}

	contract := bind.NewBoundContract(
		cfg.ContractAddress, parsedABI, cfg.EthClient, cfg.EthClient, cfg.EthClient,
	)

	return &Client{
		ec:             cfg.EthClient,
		contract:       contract,
		contractAddr:   cfg.ContractAddress,
		key:            cfg.PrivateKey,
		addr:           ethcrypto.PubkeyToAddress(cfg.PrivateKey.PublicKey),
		chainID:        chainID,
		confirmTimeout: confirmTimeout,
		log:            logger,
	}, nil
}

// Address returns the funding account address.
func (c *Client) Address() common.Address {
	return c.addr
}

// CreateSwapParams are the caller-chosen inputs to NewSwap.
type CreateSwapParams struct {
	ClaimCommitment  [32]byte
	RefundCommitment [32]byte
	Claimer          common.Address
	TimeoutDuration1 *big.Int
	TimeoutDuration2 *big.Int
	Asset            common.Address
	Value            *big.Int
	Nonce            *big.Int
}

// CreateSwapResult carries everything the caller must retain to interact
// with the swap later: the id, the exact confirmed parameter tuple, and the
// funding transaction hash.
type CreateSwapResult struct {
	SwapID [32]byte
	Swap   *ContractSwap
	TxHash common.Hash
}

// NewSwap funds a new swap on chain and waits for the funding transaction to
// confirm. The absolute timeouts are read back from the confirmed New event,
// never computed locally, so the retained tuple always hashes to the
// contract's swap id.
func (c *Client) NewSwap(ctx context.Context, p *CreateSwapParams) (*CreateSwapResult, error) {
	if p.Value == nil || p.Value.Sign() <= 0 {
		return nil, errors.New("swapevm: swap value must be positive")
	}

	if err := c.checkBalance(ctx, p.Asset, p.Value); err != nil {
		return nil, err
	}

	var callValue *big.Int
	if p.Asset == (common.Address{}) {
		callValue = p.Value
	}

	tx, err := c.transact(ctx, callValue, "newSwap",
		p.ClaimCommitment, p.RefundCommitment, p.Claimer,
		p.TimeoutDuration1, p.TimeoutDuration2, p.Asset, p.Value, p.Nonce,
	)
	if err != nil {
		return nil, err
	}

	receipt, err := c.waitMined(ctx, tx)
	if err != nil {
		return nil, err
	}

	ev, err := c.findNewEvent(receipt)
	if err != nil {
		return nil, err
	}

	swap := &ContractSwap{
		Owner:            c.addr,
		Claimer:          p.Claimer,
		ClaimCommitment:  p.ClaimCommitment,
		RefundCommitment: p.RefundCommitment,
		Timeout1:         ev.Timeout1,
		Timeout2:         ev.Timeout2,
		Asset:            p.Asset,
		Value:            p.Value,
		Nonce:            p.Nonce,
	}

	id, err := swapid.Compute(
		swap.Owner, swap.Claimer, swap.ClaimCommitment, swap.RefundCommitment,
		swap.Timeout1, swap.Timeout2, swap.Asset, swap.Value, swap.Nonce,
	)
	if err != nil {
		return nil, fmt.Errorf("swapevm: compute swap id: %w", err)
	}
	if id != ev.SwapID {
		return nil, fmt.Errorf("swapevm: local swap id %x does not match chain id %x", id, ev.SwapID)
	}

	c.log.Info("swap funded on chain",
		"swap_id", fmt.Sprintf("%x", id),
		"tx", tx.Hash(),
		"timeout1", ev.Timeout1,
		"timeout2", ev.Timeout2,
	)

	return &CreateSwapResult{SwapID: id, Swap: swap, TxHash: tx.Hash()}, nil
}

// SetReady marks the swap ready, opening the claim window before timeout1.
func (c *Client) SetReady(ctx context.Context, swap *ContractSwap) (common.Hash, error) {
	return c.transactConfirmed(ctx, nil, "setReady", *swap)
}

// Claim spends the swap to the claimer, revealing the claim secret on chain.
func (c *Client) Claim(ctx context.Context, swap *ContractSwap, secret [32]byte) (common.Hash, error) {
	return c.transactConfirmed(ctx, nil, "claim", *swap, secret)
}

// Refund returns the swap value to the owner, revealing the refund secret on
// chain.
func (c *Client) Refund(ctx context.Context, swap *ContractSwap, secret [32]byte) (common.Hash, error) {
	return c.transactConfirmed(ctx, nil, "refund", *swap, secret)
}

// Stage reads the contract-side stage for a swap id.
func (c *Client) Stage(ctx context.Context, swapID [32]byte) (Stage, error) {
	var out []interface{}
	err := c.contract.Call(&bind.CallOpts{Context: ctx}, &out, "swaps", swapID)
	if err != nil {
		return StageEmpty, fmt.Errorf("swapevm: query swap stage: %w", err)
	}
	return Stage(out[0].(uint8)), nil
}

// MulVerify asks the contract whether keccak(scalar*G) matches the
// commitment, using the same check claim and refund perform.
func (c *Client) MulVerify(ctx context.Context, scalar, commitment [32]byte) (bool, error) {
	var out []interface{}
	err := c.contract.Call(&bind.CallOpts{Context: ctx}, &out, "mulVerify",
		new(big.Int).SetBytes(scalar[:]), new(big.Int).SetBytes(commitment[:]))
	if err != nil {
		return false, fmt.Errorf("swapevm: mulVerify: %w", err)
	}
	return out[0].(bool), nil
}

// RevealedSecret scans Claimed and Refunded events for the swap and returns
// the secret the counterparty published, if any.
func (c *Client) RevealedSecret(ctx context.Context, swapID [32]byte) ([32]byte, bool, error) {
	var secret [32]byte

	query := ethereum.FilterQuery{
		Addresses: []common.Address{c.contractAddr},
		Topics: [][]common.Hash{
			{parsedABI.Events["Claimed"].ID, parsedABI.Events["Refunded"].ID},
			{common.Hash(swapID)},
		},
	}
	logs, err := c.ec.FilterLogs(ctx, query)
	if err != nil {
		return secret, false, fmt.Errorf("swapevm: filter reveal events: %w", err)
	}
	if len(logs) == 0 {
		return secret, false, nil
	}
	if len(logs[0].Data) < 32 {
		return secret, false, errors.New("swapevm: malformed reveal event data")
	}
	copy(secret[:], logs[0].Data[:32])
	return secret, true, nil
}

// ERC20Balance reads the token balance of an account.
func (c *Client) ERC20Balance(ctx context.Context, asset, owner common.Address) (*big.Int, error) {
	token := bind.NewBoundContract(asset, parsedERC20ABI, c.ec, c.ec, c.ec)
	var out []interface{}
	err := token.Call(&bind.CallOpts{Context: ctx}, &out, "balanceOf", owner)
	if err != nil {
		return nil, fmt.Errorf("swapevm: erc20 balanceOf: %w", err)
	}
	return out[0].(*big.Int), nil
}

// ApproveERC20 grants the settlement contract an allowance so newSwap can
// pull the token value.
func (c *Client) ApproveERC20(ctx context.Context, asset common.Address, value *big.Int) (common.Hash, error) {
	token := bind.NewBoundContract(asset, parsedERC20ABI, c.ec, c.ec, c.ec)

	c.nonceMu.Lock()
	opts, err := c.txOpts(ctx, nil)
	if err != nil {
		c.nonceMu.Unlock()
		return common.Hash{}, err
	}
	tx, err := token.Transact(opts, "approve", c.contractAddr, value)
	if err != nil {
		c.nonceMu.Unlock()
		return common.Hash{}, fmt.Errorf("%w: approve: %s", ErrSubmissionFailed, err)
	}
	c.nextNonce++
	c.nonceMu.Unlock()

	if _, err := c.waitMined(ctx, tx); err != nil {
		return common.Hash{}, err
	}
	return tx.Hash(), nil
}

func (c *Client) checkBalance(ctx context.Context, asset common.Address, value *big.Int) error {
	var balance *big.Int
	var err error
	if asset == (common.Address{}) {
		balance, err = c.ec.BalanceAt(ctx, c.addr, nil)
	} else {
		balance, err = c.ERC20Balance(ctx, asset, c.addr)
	}
	if err != nil {
		return fmt.Errorf("swapevm: query balance: %w", err)
	}
	if balance.Cmp(value) < 0 {
		return fmt.Errorf("%w: have %s, need %s", ErrInsufficientBalance, balance, value)
	}
	return nil
}

// transactConfirmed submits a state transition, waits for it to mine, and
// returns the transaction hash.
func (c *Client) transactConfirmed(ctx context.Context, value *big.Int, method string, args ...interface{}) (common.Hash, error) {
	tx, err := c.transact(ctx, value, method, args...)
	if err != nil {
		return common.Hash{}, err
	}
	if _, err := c.waitMined(ctx, tx); err != nil {
		return common.Hash{}, err
	}
	c.log.Debug("transaction confirmed", "method", method, "tx", tx.Hash())
	return tx.Hash(), nil
}

// transact holds the nonce lock across sign and send so concurrent swaps
// never race for a nonce. The counter only advances on accepted
// transactions, keeping the sequence gapless.
func (c *Client) transact(ctx context.Context, value *big.Int, method string, args ...interface{}) (*types.Transaction, error) {
	c.nonceMu.Lock()
	defer c.nonceMu.Unlock()

	var lastErr error
	for attempt := 0; attempt < maxSubmitAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(submitRetryDelay * time.Duration(attempt)):
			}
		}

		opts, err := c.txOpts(ctx, value)
		if err != nil {
			lastErr = err
			continue
		}
		tx, err := c.contract.Transact(opts, method, args...)
		if err != nil {
			lastErr = err
			c.log.Warn("transaction submission failed",
				"method", method, "attempt", attempt+1, "error", err)
			continue
		}
		c.nextNonce++
		return tx, nil
	}
	return nil, fmt.Errorf("%w: %s: %s", ErrSubmissionFailed, method, lastErr)
}

// txOpts builds transact opts pinned to the locally tracked nonce. Callers
// must hold nonceMu.
func (c *Client) txOpts(ctx context.Context, value *big.Int) (*bind.TransactOpts, error) {
	if !c.nonceInit {
		nonce, err := c.ec.PendingNonceAt(ctx, c.addr)
		if err != nil {
			return nil, fmt.Errorf("swapevm: fetch account nonce: %w", err)
		}
		c.nextNonce = nonce
		c.nonceInit = true
	}

	opts, err := bind.NewKeyedTransactorWithChainID(c.key, c.chainID)
	if err != nil {
		return nil, fmt.Errorf("swapevm: build transactor: %w", err)
	}
	opts.Context = ctx
	opts.Nonce = new(big.Int).SetUint64(c.nextNonce)
	opts.Value = value
	return opts, nil
}

// waitMined polls for the receipt until it appears or the confirmation
// window closes.
func (c *Client) waitMined(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, c.confirmTimeout)
	defer cancel()

	ticker := time.NewTicker(receiptPollInterval)
	defer ticker.Stop()

	for {
		receipt, err := c.ec.TransactionReceipt(ctx, tx.Hash())
		if err == nil {
			if receipt.Status != types.ReceiptStatusSuccessful {
				return nil, fmt.Errorf("%w: tx %s", ErrTxReverted, tx.Hash())
			}
			return receipt, nil
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: tx %s", ErrConfirmationTimeout, tx.Hash())
		case <-ticker.C:
		}
	}
}

func (c *Client) findNewEvent(receipt *types.Receipt) (*newEvent, error) {
	newID := parsedABI.Events["New"].ID
	for _, l := range receipt.Logs {
		if l.Address != c.contractAddr || len(l.Topics) == 0 || l.Topics[0] != newID {
			continue
		}
		ev := new(newEvent)
		if err := c.contract.UnpackLog(ev, "New", *l); err != nil {
			return nil, fmt.Errorf("swapevm: unpack New event: %w", err)
		}
		return ev, nil
	}
	return nil, errors.New("swapevm: funding receipt missing New event")
}
