package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/moneroswap/swapd/internal/contracts/swapevm"
	"github.com/moneroswap/swapd/internal/mcrypto"
	"github.com/moneroswap/swapd/internal/swap"
	"github.com/moneroswap/swapd/pkg/helpers"
)

// ErrSwapNotFound is returned when a swap id is not in the database.
var ErrSwapNotFound = errors.New("swap not found in storage")

// contractJSON is the stored form of the contract parameter tuple. Values
// are strings so 256-bit integers round-trip exactly.
type contractJSON struct {
	Owner            string `json:"owner"`
	Claimer          string `json:"claimer"`
	ClaimCommitment  string `json:"claim_commitment"`
	RefundCommitment string `json:"refund_commitment"`
	Timeout1         string `json:"timeout1"`
	Timeout2         string `json:"timeout2"`
	Asset            string `json:"asset"`
	Value            string `json:"value"`
	Nonce            string `json:"nonce"`
}

func encodeContract(c *swapevm.ContractSwap) (string, error) {
	if c == nil {
		return "", nil
	}
	data, err := json.Marshal(&contractJSON{
		Owner:            c.Owner.Hex(),
		Claimer:          c.Claimer.Hex(),
		ClaimCommitment:  helpers.EncodeHex(c.ClaimCommitment[:]),
		RefundCommitment: helpers.EncodeHex(c.RefundCommitment[:]),
		Timeout1:         c.Timeout1.String(),
		Timeout2:         c.Timeout2.String(),
		Asset:            c.Asset.Hex(),
		Value:            c.Value.String(),
		Nonce:            c.Nonce.String(),
	})
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func decodeContract(s string) (*swapevm.ContractSwap, error) {
	if s == "" {
		return nil, nil
	}
	var cj contractJSON
	if err := json.Unmarshal([]byte(s), &cj); err != nil {
		return nil, err
	}

	claimCommitment, err := helpers.DecodeHex32(cj.ClaimCommitment)
	if err != nil {
		return nil, fmt.Errorf("claim commitment: %w", err)
	}
	refundCommitment, err := helpers.DecodeHex32(cj.RefundCommitment)
	if err != nil {
		return nil, fmt.Errorf("refund commitment: %w", err)
	}

	timeout1, ok := new(big.Int).SetString(cj.Timeout1, 10)
	if !ok {
		return nil, fmt.Errorf("invalid timeout1 %q", cj.Timeout1)
	}
	timeout2, ok := new(big.Int).SetString(cj.Timeout2, 10)
	if !ok {
		return nil, fmt.Errorf("invalid timeout2 %q", cj.Timeout2)
	}
	value, ok := new(big.Int).SetString(cj.Value, 10)
	if !ok {
		return nil, fmt.Errorf("invalid value %q", cj.Value)
	}
	nonce, ok := new(big.Int).SetString(cj.Nonce, 10)
	if !ok {
		return nil, fmt.Errorf("invalid nonce %q", cj.Nonce)
	}

	return &swapevm.ContractSwap{
		Owner:            common.HexToAddress(cj.Owner),
		Claimer:          common.HexToAddress(cj.Claimer),
		ClaimCommitment:  claimCommitment,
		RefundCommitment: refundCommitment,
		Timeout1:         timeout1,
		Timeout2:         timeout2,
		Asset:            common.HexToAddress(cj.Asset),
		Value:            value,
		Nonce:            nonce,
	}, nil
}

const swapColumns = `swap_id, direction, status, created_at, contract_json,
	create_tx, our_secret, our_spend_key, our_view_key, their_public_spend,
	shared_view_key, shared_address, xmr_amount, revealed_secret,
	xmr_lock_tx, set_ready_tx, claim_tx, refund_tx, sweep_txs`

// SaveSwap upserts a swap record. It implements swap.Recorder.
func (s *Storage) SaveSwap(sw *swap.Swap) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	contractStr, err := encodeContract(sw.Contract)
	if err != nil {
		return fmt.Errorf("encode contract: %w", err)
	}
	sweepTxs, err := json.Marshal(sw.SweepTxHashes)
	if err != nil {
		return err
	}

	revealedSecret := ""
	if sw.HasRevealedSecret {
		revealedSecret = helpers.EncodeHex(sw.RevealedSecret[:])
	}

	query := `
		INSERT INTO swaps (` + swapColumns + `, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(swap_id) DO UPDATE SET
			status = excluded.status,
			contract_json = excluded.contract_json,
			revealed_secret = excluded.revealed_secret,
			xmr_lock_tx = excluded.xmr_lock_tx,
			set_ready_tx = excluded.set_ready_tx,
			claim_tx = excluded.claim_tx,
			refund_tx = excluded.refund_tx,
			sweep_txs = excluded.sweep_txs,
			updated_at = excluded.updated_at
	`
	_, err = s.db.Exec(query,
		sw.IDHex(),
		string(sw.Direction),
		string(sw.Status),
		sw.CreatedAt.Unix(),
		contractStr,
		sw.CreateTxHash.Hex(),
		helpers.EncodeHex(sw.OurSecret[:]),
		sw.OurSpendKey.Hex(),
		sw.OurViewKey.Hex(),
		sw.TheirPublicSpend.Hex(),
		sw.SharedViewKey.Hex(),
		sw.SharedAddress,
		int64(sw.XMRAmount),
		revealedSecret,
		sw.XMRLockTxHash,
		sw.SetReadyTx.Hex(),
		sw.ClaimTx.Hex(),
		sw.RefundTx.Hex(),
		string(sweepTxs),
		time.Now().Unix(),
	)
	return err
}

// DeleteSwap removes a stale record, e.g. after a provisional swap is
// rekeyed to its contract id.
func (s *Storage) DeleteSwap(idHex string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`DELETE FROM swaps WHERE swap_id = ?`, idHex)
	return err
}

// GetSwap loads one swap by its 0x-prefixed hex id.
func (s *Storage) GetSwap(idHex string) (*swap.Swap, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(`SELECT `+swapColumns+` FROM swaps WHERE swap_id = ?`, idHex)
	return scanSwap(row)
}

// UnfinishedSwaps returns all swaps not in a terminal status, for recovery
// at startup.
func (s *Storage) UnfinishedSwaps() ([]*swap.Swap, error) {
	return s.querySwaps(`SELECT ` + swapColumns + ` FROM swaps
		WHERE status NOT IN ('COMPLETED', 'REFUNDED') ORDER BY created_at`)
}

// ListSwaps returns every stored swap, newest first.
func (s *Storage) ListSwaps() ([]*swap.Swap, error) {
	return s.querySwaps(`SELECT ` + swapColumns + ` FROM swaps ORDER BY created_at DESC`)
}

func (s *Storage) querySwaps(query string) ([]*swap.Swap, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var swaps []*swap.Swap
	for rows.Next() {
		sw, err := scanSwap(rows)
		if err != nil {
			return nil, err
		}
		swaps = append(swaps, sw)
	}
	return swaps, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSwap(row rowScanner) (*swap.Swap, error) {
	var (
		idHex, direction, status, contractStr  string
		createTx, ourSecret, ourSpend, ourView string
		theirSpend, sharedView, sharedAddr     string
		revealedSecret, lockTx, readyTx        string
		claimTx, refundTx, sweepTxs            string
		createdAt, xmrAmount                   int64
	)
	err := row.Scan(
		&idHex, &direction, &status, &createdAt, &contractStr,
		&createTx, &ourSecret, &ourSpend, &ourView, &theirSpend,
		&sharedView, &sharedAddr, &xmrAmount, &revealedSecret,
		&lockTx, &readyTx, &claimTx, &refundTx, &sweepTxs,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSwapNotFound
	}
	if err != nil {
		return nil, err
	}

	id, err := helpers.DecodeHex32(idHex)
	if err != nil {
		return nil, fmt.Errorf("swap id: %w", err)
	}
	contract, err := decodeContract(contractStr)
	if err != nil {
		return nil, fmt.Errorf("contract: %w", err)
	}

	secret, err := helpers.DecodeHex32(ourSecret)
	if err != nil {
		return nil, fmt.Errorf("our secret: %w", err)
	}
	spendBytes, err := helpers.DecodeHex(ourSpend)
	if err != nil {
		return nil, fmt.Errorf("our spend key: %w", err)
	}
	spendKey, err := mcrypto.NewPrivateSpendKey(spendBytes)
	if err != nil {
		return nil, fmt.Errorf("our spend key: %w", err)
	}
	viewBytes, err := helpers.DecodeHex(ourView)
	if err != nil {
		return nil, fmt.Errorf("our view key: %w", err)
	}
	viewKey, err := mcrypto.NewPrivateViewKey(viewBytes)
	if err != nil {
		return nil, fmt.Errorf("our view key: %w", err)
	}
	theirSpendKey, err := mcrypto.NewPublicSpendKeyFromHex(theirSpend)
	if err != nil {
		return nil, fmt.Errorf("their spend key: %w", err)
	}
	sharedViewBytes, err := helpers.DecodeHex(sharedView)
	if err != nil {
		return nil, fmt.Errorf("shared view key: %w", err)
	}
	sharedViewKey, err := mcrypto.NewPrivateViewKey(sharedViewBytes)
	if err != nil {
		return nil, fmt.Errorf("shared view key: %w", err)
	}

	sw := &swap.Swap{
		ID:               id,
		Direction:        swap.Direction(direction),
		Status:           swap.Status(status),
		CreatedAt:        time.Unix(createdAt, 0),
		Contract:         contract,
		CreateTxHash:     common.HexToHash(createTx),
		OurSecret:        secret,
		OurSpendKey:      spendKey,
		OurViewKey:       viewKey,
		TheirPublicSpend: theirSpendKey,
		SharedViewKey:    sharedViewKey,
		SharedAddress:    sharedAddr,
		XMRAmount:        uint64(xmrAmount),
		XMRLockTxHash:    lockTx,
		SetReadyTx:       common.HexToHash(readyTx),
		ClaimTx:          common.HexToHash(claimTx),
		RefundTx:         common.HexToHash(refundTx),
	}
	if revealedSecret != "" {
		rs, err := helpers.DecodeHex32(revealedSecret)
		if err != nil {
			return nil, fmt.Errorf("revealed secret: %w", err)
		}
		sw.RevealedSecret = rs
		sw.HasRevealedSecret = true
	}
	if sweepTxs != "" {
		if err := json.Unmarshal([]byte(sweepTxs), &sw.SweepTxHashes); err != nil {
			return nil, fmt.Errorf("sweep txs: %w", err)
		}
	}
	return sw, nil
}
