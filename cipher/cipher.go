// Package cipher abstracts the AEAD primitives used to seal and open stream
// chunk payloads.
package cipher

import (
	stdcipher "crypto/cipher"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// Algorithm identifies a sealing backend in the stream header. The set is
// closed: decryptors refuse headers whose algorithm does not match the cipher
// they were configured with.
type Algorithm uint8

const (
	// AlgXChaCha20Poly1305 is the default and only secure algorithm:
	// XChaCha20-Poly1305 with a 24-byte nonce and a 16-byte tag.
	AlgXChaCha20Poly1305 Algorithm = 1
)

// Cipher encapsulates the primitives required to seal and open chunk payloads.
type Cipher interface {
	Algorithm() Algorithm
	NonceSize() int
	Overhead() int
	Seal(dst, nonce, plaintext, aad []byte) ([]byte, error)
	Open(dst, nonce, ciphertext, aad []byte) ([]byte, error)
}

// Factory constructs a Cipher instance from the provided key material.
type Factory func(key []byte) (Cipher, error)

// XChaCha20Poly1305 returns the factory for the default stream cipher. The
// key must be 32 bytes.
func XChaCha20Poly1305() Factory {
	return func(key []byte) (Cipher, error) {
		aead, err := chacha20poly1305.NewX(key)
		if err != nil {
			return nil, fmt.Errorf("sealstream/cipher: %w", err)
		}
		return &aeadCipher{aead: aead, id: AlgXChaCha20Poly1305}, nil
	}
}

// ForAlgorithm maps a header algorithm identifier to its factory. Identifiers
// outside the registry are rejected rather than guessed at.
func ForAlgorithm(id Algorithm) (Factory, error) {
	switch id {
	case AlgXChaCha20Poly1305:
		return XChaCha20Poly1305(), nil
	default:
		return nil, fmt.Errorf("sealstream/cipher: unknown algorithm %d", id)
	}
}

type aeadCipher struct {
	aead stdcipher.AEAD
	id   Algorithm
}

func (c *aeadCipher) Algorithm() Algorithm { return c.id }

func (c *aeadCipher) NonceSize() int { return c.aead.NonceSize() }

func (c *aeadCipher) Overhead() int { return c.aead.Overhead() }

func (c *aeadCipher) Seal(dst, nonce, plaintext, aad []byte) ([]byte, error) {
	if len(nonce) != c.aead.NonceSize() {
		return nil, fmt.Errorf("sealstream/cipher: invalid nonce length")
	}
	return c.aead.Seal(dst, nonce, plaintext, aad), nil
}

func (c *aeadCipher) Open(dst, nonce, ciphertext, aad []byte) ([]byte, error) {
	if len(nonce) != c.aead.NonceSize() {
		return nil, fmt.Errorf("sealstream/cipher: invalid nonce length")
	}
	return c.aead.Open(dst, nonce, ciphertext, aad)
}
