// Package mcrypto implements the Monero-side key arithmetic for atomic swaps:
// Ed25519 spend/view key pairs, additive key combination under the curve's
// scalar field, and shared one-time address derivation. The shared address is
// spendable only by the sum of both parties' private spend keys, which is what
// turns an on-chain secret reveal into a deterministic claim key.
package mcrypto

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"

	"filippo.io/edwards25519"
	"golang.org/x/crypto/sha3"
)

var (
	ErrInvalidScalar = errors.New("scalar is not canonical (must be reduced mod l)")
	ErrInvalidPoint  = errors.New("invalid curve point")
)

// PrivateSpendKey is an Ed25519 scalar controlling (a share of) a Monero output.
type PrivateSpendKey struct {
	s *edwards25519.Scalar
}

// PrivateViewKey is an Ed25519 scalar granting view access to an output.
type PrivateViewKey struct {
	s *edwards25519.Scalar
}

// PublicSpendKey is the curve point for a private spend key.
type PublicSpendKey struct {
	p *edwards25519.Point
}

// PublicViewKey is the curve point for a private view key.
type PublicViewKey struct {
	p *edwards25519.Point
}

// KeyPair bundles the private spend and view keys of one party.
type KeyPair struct {
	SpendKey *PrivateSpendKey
	ViewKey  *PrivateViewKey
}

// GenerateKeys returns a fresh key pair. The spend scalar is drawn uniformly
// below the group order l; the view scalar is derived Monero-style by hashing
// the spend scalar and reducing, so a spend key alone recovers its pair.
func GenerateKeys() (*KeyPair, error) {
	var seed [64]byte
	if _, err := rand.Read(seed[:]); err != nil {
		return nil, fmt.Errorf("failed to read randomness: %w", err)
	}

	spend, err := edwards25519.NewScalar().SetUniformBytes(seed[:])
	if err != nil {
		return nil, err
	}

	sk := &PrivateSpendKey{s: spend}
	return &KeyPair{SpendKey: sk, ViewKey: sk.DeriveViewKey()}, nil
}

// NewPrivateSpendKey parses a canonical little-endian scalar.
// Scalars >= l are rejected rather than reduced.
func NewPrivateSpendKey(b []byte) (*PrivateSpendKey, error) {
	s, err := edwards25519.NewScalar().SetCanonicalBytes(b)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidScalar, err)
	}
	return &PrivateSpendKey{s: s}, nil
}

// NewPrivateSpendKeyFromSecret parses a swap secret: the 32-byte big-endian
// integer form revealed on the settlement chain. The bytes are reversed into
// the curve's little-endian convention and must be canonical.
func NewPrivateSpendKeyFromSecret(secret [32]byte) (*PrivateSpendKey, error) {
	return NewPrivateSpendKey(reverse32(secret))
}

// Bytes returns the canonical little-endian scalar encoding.
func (k *PrivateSpendKey) Bytes() []byte {
	return k.s.Bytes()
}

// Hex returns the little-endian scalar as hex, the form wallet RPC expects.
func (k *PrivateSpendKey) Hex() string {
	return hex.EncodeToString(k.Bytes())
}

// AsSecret returns the big-endian integer form of the scalar, the encoding
// the settlement contract sees when the scalar is revealed.
func (k *PrivateSpendKey) AsSecret() [32]byte {
	var le [32]byte
	copy(le[:], k.s.Bytes())
	return reverse32Arr(le)
}

// Public returns the public spend key for k.
func (k *PrivateSpendKey) Public() *PublicSpendKey {
	return &PublicSpendKey{p: new(edwards25519.Point).ScalarBaseMult(k.s)}
}

// DeriveViewKey derives the Monero-style view key: keccak of the spend
// scalar, reduced mod l.
func (k *PrivateSpendKey) DeriveViewKey() *PrivateViewKey {
	var wide [64]byte
	copy(wide[:32], keccak256(k.s.Bytes()))

	// SetUniformBytes performs the mod-l reduction; the high half is zero so
	// this matches sc_reduce32 on the digest.
	v, err := edwards25519.NewScalar().SetUniformBytes(wide[:])
	if err != nil {
		// only reachable on a wrong-length slice
		panic(err)
	}
	return &PrivateViewKey{s: v}
}

// Public returns the public view key for v.
func (v *PrivateViewKey) Public() *PublicViewKey {
	return &PublicViewKey{p: new(edwards25519.Point).ScalarBaseMult(v.s)}
}

// Bytes returns the canonical little-endian scalar encoding.
func (v *PrivateViewKey) Bytes() []byte {
	return v.s.Bytes()
}

// Hex returns the little-endian scalar as hex, the form wallet RPC expects.
func (v *PrivateViewKey) Hex() string {
	return hex.EncodeToString(v.Bytes())
}

// NewPrivateViewKey parses a canonical little-endian view-key scalar.
func NewPrivateViewKey(b []byte) (*PrivateViewKey, error) {
	s, err := edwards25519.NewScalar().SetCanonicalBytes(b)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidScalar, err)
	}
	return &PrivateViewKey{s: s}, nil
}

// NewPublicSpendKey parses a compressed Ed25519 point.
func NewPublicSpendKey(b []byte) (*PublicSpendKey, error) {
	p, err := new(edwards25519.Point).SetBytes(b)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPoint, err)
	}
	return &PublicSpendKey{p: p}, nil
}

// NewPublicSpendKeyFromHex parses a hex-encoded compressed point.
func NewPublicSpendKeyFromHex(s string) (*PublicSpendKey, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPoint, err)
	}
	return NewPublicSpendKey(b)
}

// Bytes returns the compressed point encoding.
func (k *PublicSpendKey) Bytes() []byte {
	return k.p.Bytes()
}

// Hex returns the hex-encoded compressed point.
func (k *PublicSpendKey) Hex() string {
	return hex.EncodeToString(k.p.Bytes())
}

// NewPublicViewKey parses a compressed Ed25519 point.
func NewPublicViewKey(b []byte) (*PublicViewKey, error) {
	p, err := new(edwards25519.Point).SetBytes(b)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPoint, err)
	}
	return &PublicViewKey{p: p}, nil
}

// NewPublicViewKeyFromHex parses a hex-encoded compressed point.
func NewPublicViewKeyFromHex(s string) (*PublicViewKey, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPoint, err)
	}
	return NewPublicViewKey(b)
}

// Bytes returns the compressed point encoding.
func (k *PublicViewKey) Bytes() []byte {
	return k.p.Bytes()
}

// Hex returns the hex-encoded compressed point.
func (k *PublicViewKey) Hex() string {
	return hex.EncodeToString(k.p.Bytes())
}

// SumPrivateSpendKeys returns (a + b) mod l. Addition is commutative and
// homomorphic with SumPublicSpendKeys over Public().
func SumPrivateSpendKeys(a, b *PrivateSpendKey) *PrivateSpendKey {
	return &PrivateSpendKey{s: edwards25519.NewScalar().Add(a.s, b.s)}
}

// SumPrivateViewKeys returns (a + b) mod l.
func SumPrivateViewKeys(a, b *PrivateViewKey) *PrivateViewKey {
	return &PrivateViewKey{s: edwards25519.NewScalar().Add(a.s, b.s)}
}

// SumPublicSpendKeys returns the point addition A + B.
func SumPublicSpendKeys(a, b *PublicSpendKey) *PublicSpendKey {
	return &PublicSpendKey{p: new(edwards25519.Point).Add(a.p, b.p)}
}

// SumPublicViewKeys returns the point addition A + B.
func SumPublicViewKeys(a, b *PublicViewKey) *PublicViewKey {
	return &PublicViewKey{p: new(edwards25519.Point).Add(a.p, b.p)}
}

func keccak256(data ...[]byte) []byte {
	h := sha3.NewLegacyKeccak256()
	for _, d := range data {
		h.Write(d)
	}
	return h.Sum(nil)
}

func reverse32(b [32]byte) []byte {
	out := make([]byte, 32)
	for i := 0; i < 32; i++ {
		out[i] = b[31-i]
	}
	return out
}

func reverse32Arr(b [32]byte) [32]byte {
	var out [32]byte
	for i := 0; i < 32; i++ {
		out[i] = b[31-i]
	}
	return out
}
