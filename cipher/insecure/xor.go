// Package insecure holds demonstration sealing backends that do not meet the
// security bar of the stream format. Nothing in this package is accepted by a
// decryptor unless the caller explicitly configures it on both ends. Do not
// use outside demos and tests.
package insecure

import (
	"crypto/sha256"
	"crypto/subtle"
	"fmt"

	"pkt.systems/sealstream/cipher"
)

// AlgXOR is the header identifier for the demo XOR cipher. It is deliberately
// outside the registry consulted by cipher.ForAlgorithm.
const AlgXOR cipher.Algorithm = 0xFF

const (
	xorNonceSize = 24
	xorTagSize   = 16
)

// XOR returns a factory producing a toy cipher: payload bytes XORed with the
// key and nonce cycled over them, followed by a truncated SHA-256 checksum of
// key, nonce and ciphertext. The checksum exists so the stream engine's
// final-chunk detection has something to verify; it is not a real MAC and the
// keystream is trivially recoverable from known plaintext.
func XOR() cipher.Factory {
	return func(key []byte) (cipher.Cipher, error) {
		if len(key) == 0 {
			return nil, fmt.Errorf("sealstream/insecure: empty key")
		}
		k := make([]byte, len(key))
		copy(k, key)
		return &xorCipher{key: k}, nil
	}
}

type xorCipher struct {
	key []byte
}

func (c *xorCipher) Algorithm() cipher.Algorithm { return AlgXOR }

func (c *xorCipher) NonceSize() int { return xorNonceSize }

func (c *xorCipher) Overhead() int { return xorTagSize }

func (c *xorCipher) Seal(dst, nonce, plaintext, aad []byte) ([]byte, error) {
	if len(nonce) != xorNonceSize {
		return nil, fmt.Errorf("sealstream/insecure: invalid nonce length")
	}
	start := len(dst)
	for i, b := range plaintext {
		dst = append(dst, b^c.key[i%len(c.key)]^nonce[i%xorNonceSize])
	}
	tag := c.checksum(nonce, aad, dst[start:])
	return append(dst, tag[:xorTagSize]...), nil
}

func (c *xorCipher) Open(dst, nonce, ciphertext, aad []byte) ([]byte, error) {
	if len(nonce) != xorNonceSize {
		return nil, fmt.Errorf("sealstream/insecure: invalid nonce length")
	}
	if len(ciphertext) < xorTagSize {
		return nil, fmt.Errorf("sealstream/insecure: ciphertext too short")
	}
	body := ciphertext[:len(ciphertext)-xorTagSize]
	tag := c.checksum(nonce, aad, body)
	if subtle.ConstantTimeCompare(tag[:xorTagSize], ciphertext[len(body):]) != 1 {
		return nil, fmt.Errorf("sealstream/insecure: checksum mismatch")
	}
	for i, b := range body {
		dst = append(dst, b^c.key[i%len(c.key)]^nonce[i%xorNonceSize])
	}
	return dst, nil
}

func (c *xorCipher) checksum(nonce, aad, body []byte) [sha256.Size]byte {
	h := sha256.New()
	h.Write(c.key)
	h.Write(nonce)
	h.Write(aad)
	h.Write(body)
	var sum [sha256.Size]byte
	h.Sum(sum[:0])
	return sum
}
