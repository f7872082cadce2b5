// Package swapevm provides the Go client for the on-chain swap settlement
// contract. The contract stores only the hash of each swap's parameters, so
// every mutating call re-submits the full parameter tuple; the client's job
// is to keep that tuple bit-for-bit aligned with what the chain confirmed.
package swapevm

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// contractABI is the settlement contract interface consumed by this service.
const contractABI = `[
	{"type":"function","name":"newSwap","stateMutability":"payable","inputs":[
		{"name":"claimCommitment","type":"bytes32"},
		{"name":"refundCommitment","type":"bytes32"},
		{"name":"claimer","type":"address"},
		{"name":"timeoutDuration1","type":"uint256"},
		{"name":"timeoutDuration2","type":"uint256"},
		{"name":"asset","type":"address"},
		{"name":"value","type":"uint256"},
		{"name":"nonce","type":"uint256"}],
		"outputs":[{"name":"","type":"bytes32"}]},
	{"type":"function","name":"setReady","stateMutability":"nonpayable","inputs":[
		{"name":"swap","type":"tuple","components":[
			{"name":"owner","type":"address"},
			{"name":"claimer","type":"address"},
			{"name":"claimCommitment","type":"bytes32"},
			{"name":"refundCommitment","type":"bytes32"},
			{"name":"timeout1","type":"uint256"},
			{"name":"timeout2","type":"uint256"},
			{"name":"asset","type":"address"},
			{"name":"value","type":"uint256"},
			{"name":"nonce","type":"uint256"}]}],
		"outputs":[]},
	{"type":"function","name":"claim","stateMutability":"nonpayable","inputs":[
		{"name":"swap","type":"tuple","components":[
			{"name":"owner","type":"address"},
			{"name":"claimer","type":"address"},
			{"name":"claimCommitment","type":"bytes32"},
			{"name":"refundCommitment","type":"bytes32"},
			{"name":"timeout1","type":"uint256"},
			{"name":"timeout2","type":"uint256"},
			{"name":"asset","type":"address"},
			{"name":"value","type":"uint256"},
			{"name":"nonce","type":"uint256"}]},
		{"name":"s","type":"bytes32"}],
		"outputs":[]},
	{"type":"function","name":"refund","stateMutability":"nonpayable","inputs":[
		{"name":"swap","type":"tuple","components":[
			{"name":"owner","type":"address"},
			{"name":"claimer","type":"address"},
			{"name":"claimCommitment","type":"bytes32"},
			{"name":"refundCommitment","type":"bytes32"},
			{"name":"timeout1","type":"uint256"},
			{"name":"timeout2","type":"uint256"},
			{"name":"asset","type":"address"},
			{"name":"value","type":"uint256"},
			{"name":"nonce","type":"uint256"}]},
		{"name":"s","type":"bytes32"}],
		"outputs":[]},
	{"type":"function","name":"mulVerify","stateMutability":"pure","inputs":[
		{"name":"scalar","type":"uint256"},
		{"name":"qKeccak","type":"uint256"}],
		"outputs":[{"name":"","type":"bool"}]},
	{"type":"function","name":"swaps","stateMutability":"view","inputs":[
		{"name":"","type":"bytes32"}],
		"outputs":[{"name":"","type":"uint8"}]},
	{"type":"event","name":"New","anonymous":false,"inputs":[
		{"name":"swapID","type":"bytes32","indexed":false},
		{"name":"claimKey","type":"bytes32","indexed":false},
		{"name":"refundKey","type":"bytes32","indexed":false},
		{"name":"timeout1","type":"uint256","indexed":false},
		{"name":"timeout2","type":"uint256","indexed":false},
		{"name":"asset","type":"address","indexed":false},
		{"name":"value","type":"uint256","indexed":false}]},
	{"type":"event","name":"Ready","anonymous":false,"inputs":[
		{"name":"swapID","type":"bytes32","indexed":true}]},
	{"type":"event","name":"Claimed","anonymous":false,"inputs":[
		{"name":"swapID","type":"bytes32","indexed":true},
		{"name":"s","type":"bytes32","indexed":false}]},
	{"type":"event","name":"Refunded","anonymous":false,"inputs":[
		{"name":"swapID","type":"bytes32","indexed":true},
		{"name":"s","type":"bytes32","indexed":false}]}
]`

// erc20ABI covers the two calls this service makes against swap assets.
const erc20ABI = `[
	{"type":"function","name":"balanceOf","stateMutability":"view","inputs":[
		{"name":"owner","type":"address"}],
		"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"approve","stateMutability":"nonpayable","inputs":[
		{"name":"spender","type":"address"},
		{"name":"value","type":"uint256"}],
		"outputs":[{"name":"","type":"bool"}]}
]`

var (
	parsedABI      abi.ABI
	parsedERC20ABI abi.ABI
)

func init() {
	var err error
	parsedABI, err = abi.JSON(strings.NewReader(contractABI))
	if err != nil {
		panic("swapevm: invalid contract ABI: " + err.Error())
	}
	parsedERC20ABI, err = abi.JSON(strings.NewReader(erc20ABI))
	if err != nil {
		panic("swapevm: invalid erc20 ABI: " + err.Error())
	}
}

// Stage is the contract-side swap stage.
type Stage uint8

const (
	StageEmpty Stage = iota
	StagePending
	StageReady
	StageCompleted
)

func (s Stage) String() string {
	switch s {
	case StageEmpty:
		return "empty"
	case StagePending:
		return "pending"
	case StageReady:
		return "ready"
	case StageCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

// ContractSwap is the full parameter tuple the contract hashes into the swap
// id. Field order mirrors the contract struct.
type ContractSwap struct {
	Owner            common.Address
	Claimer          common.Address
	ClaimCommitment  [32]byte
	RefundCommitment [32]byte
	Timeout1         *big.Int
	Timeout2         *big.Int
	Asset            common.Address
	Value            *big.Int
	Nonce            *big.Int
}

// IsNativeAsset reports whether the swap value is the chain's native token.
func (s *ContractSwap) IsNativeAsset() bool {
	return s.Asset == (common.Address{})
}

// newEvent is the unpacked New event payload.
type newEvent struct {
	SwapID    [32]byte
	ClaimKey  [32]byte
	RefundKey [32]byte
	Timeout1  *big.Int
	Timeout2  *big.Int
	Asset     common.Address
	Value     *big.Int
}
