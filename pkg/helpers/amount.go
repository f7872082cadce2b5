package helpers

import (
	"fmt"
	"math/big"
	"strconv"
)

// PiconeroPerXMR is the number of atomic units in one XMR.
const PiconeroPerXMR = 1e12

// XMRToPiconero converts an XMR amount to atomic units (piconero).
func XMRToPiconero(xmr float64) uint64 {
	return uint64(xmr * PiconeroPerXMR)
}

// PiconeroToXMR converts atomic units to a display XMR amount.
func PiconeroToXMR(pico uint64) float64 {
	return float64(pico) / PiconeroPerXMR
}

// FormatPiconero renders an atomic-unit amount as a decimal XMR string.
func FormatPiconero(pico uint64) string {
	whole := pico / uint64(PiconeroPerXMR)
	frac := pico % uint64(PiconeroPerXMR)
	if frac == 0 {
		return strconv.FormatUint(whole, 10)
	}
	s := fmt.Sprintf("%d.%012d", whole, frac)
	// trim trailing zeros of the fractional part
	for s[len(s)-1] == '0' {
		s = s[:len(s)-1]
	}
	return s
}

// TokenUnits converts a whole-token amount to smallest units for the given decimals.
func TokenUnits(amount float64, decimals uint8) *big.Int {
	scale := new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil))
	scaled := new(big.Float).Mul(big.NewFloat(amount), scale)
	out, _ := scaled.Int(nil)
	return out
}
