package commit

import (
	"bytes"
	"testing"
)

func TestCommitVerifyRoundtrip(t *testing.T) {
	for i := 0; i < 16; i++ {
		s, err := GenerateSecret()
		if err != nil {
			t.Fatalf("GenerateSecret() error = %v", err)
		}
		if !VerifySecret(s.Bytes(), s.Commitment()) {
			t.Fatal("VerifySecret() = false for matching secret")
		}
	}
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	a, err := GenerateSecret()
	if err != nil {
		t.Fatalf("GenerateSecret() error = %v", err)
	}
	b, err := GenerateSecret()
	if err != nil {
		t.Fatalf("GenerateSecret() error = %v", err)
	}

	if VerifySecret(b.Bytes(), a.Commitment()) {
		t.Error("VerifySecret accepted an unrelated secret")
	}

	// Flipping a single scalar bit must break verification.
	flipped := a.Bytes()
	flipped[31] ^= 0x01
	if VerifySecret(flipped, a.Commitment()) {
		t.Error("VerifySecret accepted a bit-flipped secret")
	}
}

func TestCommitmentFormat(t *testing.T) {
	s, err := GenerateSecret()
	if err != nil {
		t.Fatalf("GenerateSecret() error = %v", err)
	}
	c := s.Commitment()

	// Only the low 160 bits carry the commitment.
	if !bytes.Equal(c[:12], make([]byte, 12)) {
		t.Errorf("commitment high 12 bytes = %x, want zeros", c[:12])
	}
	if bytes.Equal(c[12:], make([]byte, 20)) {
		t.Error("commitment low 20 bytes are all zero")
	}
}

func TestCommitmentDeterministic(t *testing.T) {
	s, err := GenerateSecret()
	if err != nil {
		t.Fatalf("GenerateSecret() error = %v", err)
	}
	if s.Commitment() != s.Commitment() {
		t.Error("Commitment() is not deterministic")
	}

	restored, err := NewSecretFromBytes(s.Bytes())
	if err != nil {
		t.Fatalf("NewSecretFromBytes() error = %v", err)
	}
	if restored.Commitment() != s.Commitment() {
		t.Error("commitment differs after scalar round-trip")
	}
}

func TestNewSecretFromBytesRejectsInvalid(t *testing.T) {
	var zero [32]byte
	if _, err := NewSecretFromBytes(zero); err != ErrInvalidScalar {
		t.Errorf("zero scalar: err = %v, want ErrInvalidScalar", err)
	}

	var overflow [32]byte
	for i := range overflow {
		overflow[i] = 0xff
	}
	if _, err := NewSecretFromBytes(overflow); err != ErrInvalidScalar {
		t.Errorf("overflowing scalar: err = %v, want ErrInvalidScalar", err)
	}
}
