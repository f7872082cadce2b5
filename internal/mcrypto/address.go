package mcrypto

import (
	"github.com/mr-tron/base58"
)

// Network selects the Monero address network byte.
type Network byte

const (
	Mainnet  Network = 18
	Testnet  Network = 53
	Stagenet Network = 24
)

// Monero base58 encodes in fixed 8-byte blocks of 11 characters; a trailing
// partial block of n bytes encodes to encodedBlockSizes[n] characters.
var encodedBlockSizes = [9]int{0, 2, 3, 5, 6, 7, 9, 10, 11}

const (
	fullBlockSize        = 8
	fullEncodedBlockSize = 11
)

// Address returns the standard Monero address for a spend/view public key
// pair: network byte || spend || view || 4-byte keccak checksum, block
// base58 encoded.
func Address(spend *PublicSpendKey, view *PublicViewKey, net Network) string {
	data := make([]byte, 0, 69)
	data = append(data, byte(net))
	data = append(data, spend.Bytes()...)
	data = append(data, view.Bytes()...)
	data = append(data, keccak256(data)[:4]...)
	return encodeMoneroBase58(data)
}

// SharedAddress composes the one-time destination address for a swap from
// both parties' public key material. The resulting output is spendable only
// by the sum of the corresponding private spend keys.
func SharedAddress(spendA, spendB *PublicSpendKey, viewA, viewB *PublicViewKey, net Network) string {
	spend := SumPublicSpendKeys(spendA, spendB)
	view := SumPublicViewKeys(viewA, viewB)
	return Address(spend, view, net)
}

func encodeMoneroBase58(data []byte) string {
	var out []byte
	for len(data) > 0 {
		n := len(data)
		if n > fullBlockSize {
			n = fullBlockSize
		}
		enc := base58.Encode(data[:n])
		want := encodedBlockSizes[n]
		// pad to the fixed block width with the zero symbol
		for len(enc) < want {
			enc = "1" + enc
		}
		out = append(out, enc...)
		data = data[n:]
	}
	return string(out)
}
