package swapid

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

type params struct {
	owner, claimer                    common.Address
	claimCommitment, refundCommitment [32]byte
	timeout1, timeout2                *big.Int
	asset                             common.Address
	value, nonce                      *big.Int
}

func baseParams() params {
	var claimC, refundC [32]byte
	claimC[31] = 0x01
	refundC[31] = 0x02

	return params{
		owner:            common.HexToAddress("0x1111111111111111111111111111111111111111"),
		claimer:          common.HexToAddress("0x2222222222222222222222222222222222222222"),
		claimCommitment:  claimC,
		refundCommitment: refundC,
		timeout1:         big.NewInt(1700000000),
		timeout2:         big.NewInt(1700003600),
		asset:            common.HexToAddress("0x3333333333333333333333333333333333333333"),
		value:            big.NewInt(10000),
		nonce:            big.NewInt(42),
	}
}

func compute(t *testing.T, p params) [32]byte {
	t.Helper()
	id, err := Compute(p.owner, p.claimer, p.claimCommitment, p.refundCommitment,
		p.timeout1, p.timeout2, p.asset, p.value, p.nonce)
	if err != nil {
		t.Fatalf("Compute() error = %v", err)
	}
	return id
}

func TestComputeDeterministic(t *testing.T) {
	a := compute(t, baseParams())
	b := compute(t, baseParams())
	if a != b {
		t.Errorf("identical inputs produced different ids: %x vs %x", a, b)
	}
	if a == ([32]byte{}) {
		t.Error("id is all zeros")
	}
}

func TestComputeFieldSensitivity(t *testing.T) {
	base := compute(t, baseParams())

	mutations := map[string]func(*params){
		"owner":            func(p *params) { p.owner = common.HexToAddress("0xaaaa111111111111111111111111111111111111") },
		"claimer":          func(p *params) { p.claimer = common.HexToAddress("0xbbbb222222222222222222222222222222222222") },
		"claimCommitment":  func(p *params) { p.claimCommitment[0] = 0xff },
		"refundCommitment": func(p *params) { p.refundCommitment[0] = 0xff },
		"timeout1":         func(p *params) { p.timeout1 = big.NewInt(1700000001) },
		"timeout2":         func(p *params) { p.timeout2 = big.NewInt(1700003601) },
		"asset":            func(p *params) { p.asset = common.HexToAddress("0xcccc333333333333333333333333333333333333") },
		"value":            func(p *params) { p.value = big.NewInt(10001) },
		"nonce":            func(p *params) { p.nonce = big.NewInt(43) },
	}

	for name, mutate := range mutations {
		p := baseParams()
		mutate(&p)
		if compute(t, p) == base {
			t.Errorf("changing %s did not change the swap id", name)
		}
	}
}

func TestComputeRejectsNilFields(t *testing.T) {
	p := baseParams()
	p.value = nil
	if _, err := Compute(p.owner, p.claimer, p.claimCommitment, p.refundCommitment,
		p.timeout1, p.timeout2, p.asset, p.value, p.nonce); err == nil {
		t.Error("Compute() accepted nil value")
	}
}
