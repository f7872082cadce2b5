// Package commit implements the secret/commitment scheme verified by the
// settlement contract. A secret is a secp256k1 scalar; its commitment is the
// keccak256 hash of the corresponding uncompressed public key, truncated to
// the low 160 bits and zero-extended to 32 bytes. The contract re-derives
// exactly this value from the revealed scalar at claim/refund time.
package commit

import (
	"crypto/subtle"
	"errors"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"golang.org/x/crypto/sha3"
)

var (
	ErrInvalidScalar = errors.New("scalar is zero or not in the secp256k1 group")
)

// Secret is a secp256k1 scalar known only to its generator until revealed
// by an on-chain claim or refund call.
type Secret struct {
	priv *secp256k1.PrivateKey
}

// GenerateSecret returns a uniformly random secret scalar.
func GenerateSecret() (*Secret, error) {
	priv, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return nil, err
	}
	return &Secret{priv: priv}, nil
}

// NewSecretFromBytes interprets b as a big-endian scalar.
// Rejects zero and values not below the group order.
func NewSecretFromBytes(b [32]byte) (*Secret, error) {
	var s secp256k1.ModNScalar
	overflow := s.SetBytes(&b)
	if overflow != 0 || s.IsZero() {
		return nil, ErrInvalidScalar
	}
	return &Secret{priv: secp256k1.NewPrivateKey(&s)}, nil
}

// Bytes returns the 32-byte big-endian scalar.
func (s *Secret) Bytes() [32]byte {
	var out [32]byte
	s.priv.Key.PutBytes(&out)
	return out
}

// Commitment derives the chain-verifiable commitment for the secret:
// keccak256 of the 64-byte uncompressed public key (prefix stripped),
// low 160 bits kept, left-padded with zeros to 32 bytes.
func (s *Secret) Commitment() [32]byte {
	pub := s.priv.PubKey().SerializeUncompressed()

	h := sha3.NewLegacyKeccak256()
	h.Write(pub[1:]) // drop the 0x04 marker
	digest := h.Sum(nil)

	var c [32]byte
	copy(c[12:], digest[12:])
	return c
}

// VerifySecret reports whether scalar opens commitment. The comparison is
// constant time; scalar parsing necessarily leaks validity.
func VerifySecret(scalar [32]byte, commitment [32]byte) bool {
	s, err := NewSecretFromBytes(scalar)
	if err != nil {
		return false
	}
	derived := s.Commitment()
	return subtle.ConstantTimeCompare(derived[:], commitment[:]) == 1
}
