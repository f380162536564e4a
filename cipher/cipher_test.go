package cipher

import (
	"bytes"
	"crypto/rand"
	"testing"
)

func testKey(t *testing.T) []byte {
	t.Helper()
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		t.Fatalf("rand.Read error: %v", err)
	}
	return key
}

func TestXChaCha20Poly1305SealOpen(t *testing.T) {
	crypt, err := XChaCha20Poly1305()(testKey(t))
	if err != nil {
		t.Fatalf("factory error: %v", err)
	}
	if crypt.Algorithm() != AlgXChaCha20Poly1305 {
		t.Fatalf("Algorithm() = %d, want %d", crypt.Algorithm(), AlgXChaCha20Poly1305)
	}
	if crypt.NonceSize() != 24 {
		t.Fatalf("NonceSize() = %d, want 24", crypt.NonceSize())
	}
	if crypt.Overhead() != 16 {
		t.Fatalf("Overhead() = %d, want 16", crypt.Overhead())
	}

	nonce := make([]byte, crypt.NonceSize())
	plaintext := []byte("chunk payload")
	aad := []byte("stream header bytes")

	ct, err := crypt.Seal(nil, nonce, plaintext, aad)
	if err != nil {
		t.Fatalf("Seal error: %v", err)
	}
	if len(ct) != len(plaintext)+crypt.Overhead() {
		t.Fatalf("ciphertext is %d bytes, want %d", len(ct), len(plaintext)+crypt.Overhead())
	}

	pt, err := crypt.Open(nil, nonce, ct, aad)
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	if !bytes.Equal(pt, plaintext) {
		t.Fatalf("plaintext mismatch after seal/open")
	}
}

func TestOpenRejectsTamper(t *testing.T) {
	crypt, _ := XChaCha20Poly1305()(testKey(t))
	nonce := make([]byte, crypt.NonceSize())
	aad := []byte("aad")
	ct, err := crypt.Seal(nil, nonce, []byte("payload"), aad)
	if err != nil {
		t.Fatalf("Seal error: %v", err)
	}

	flipped := append([]byte(nil), ct...)
	flipped[0] ^= 0x01
	if _, err := crypt.Open(nil, nonce, flipped, aad); err == nil {
		t.Fatalf("Open accepted tampered ciphertext")
	}
	if _, err := crypt.Open(nil, nonce, ct, []byte("different aad")); err == nil {
		t.Fatalf("Open accepted mismatched AAD")
	}
	wrongNonce := make([]byte, crypt.NonceSize())
	wrongNonce[len(wrongNonce)-1] = 1
	if _, err := crypt.Open(nil, wrongNonce, ct, aad); err == nil {
		t.Fatalf("Open accepted wrong nonce")
	}
}

func TestSealOpenNonceLengthChecked(t *testing.T) {
	crypt, _ := XChaCha20Poly1305()(testKey(t))
	if _, err := crypt.Seal(nil, make([]byte, 12), []byte("x"), nil); err == nil {
		t.Fatalf("Seal accepted short nonce")
	}
	if _, err := crypt.Open(nil, make([]byte, 12), make([]byte, 17), nil); err == nil {
		t.Fatalf("Open accepted short nonce")
	}
}

func TestFactoryRejectsBadKey(t *testing.T) {
	for _, n := range []int{0, 16, 31, 33} {
		if _, err := XChaCha20Poly1305()(make([]byte, n)); err == nil {
			t.Fatalf("factory accepted %d-byte key", n)
		}
	}
}

func TestForAlgorithm(t *testing.T) {
	factory, err := ForAlgorithm(AlgXChaCha20Poly1305)
	if err != nil {
		t.Fatalf("ForAlgorithm error: %v", err)
	}
	crypt, err := factory(testKey(t))
	if err != nil {
		t.Fatalf("factory error: %v", err)
	}
	if crypt.Algorithm() != AlgXChaCha20Poly1305 {
		t.Fatalf("Algorithm() = %d", crypt.Algorithm())
	}

	for _, id := range []Algorithm{0, 2, 0x7F, 0xFF} {
		if _, err := ForAlgorithm(id); err == nil {
			t.Fatalf("ForAlgorithm(%d) accepted unknown algorithm", id)
		}
	}
}
