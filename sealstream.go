// Package sealstream encrypts data streams in authenticated chunks.
//
// A stream is a 34-byte header followed by length-prefixed records, each an
// independently sealed XChaCha20-Poly1305 chunk. The final chunk is bound
// cryptographically, so truncation is always detected; end of input is never
// trusted as end of stream.
//
// The root package offers one-shot helpers over byte slices. For streaming
// use, see package stream, which exposes io.WriteCloser/io.ReadCloser
// adapters, pipes and the underlying chunk sessions.
package sealstream

import (
	"bytes"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"pkt.systems/sealstream/stream"
)

// KeySize is the length in bytes of a stream key.
const KeySize = 32

// ErrInvalidKey indicates a key of the wrong length or encoding.
var ErrInvalidKey = errors.New("sealstream: invalid key")

// GenerateKey returns a fresh random 256-bit key.
func GenerateKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	return key, nil
}

// GenerateKeyString returns a fresh random key encoded as standard base64.
func GenerateKeyString() (string, error) {
	key, err := GenerateKey()
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(key), nil
}

// DecodeKeyString decodes a base64 key produced by GenerateKeyString.
func DecodeKeyString(s string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	if len(key) != KeySize {
		return nil, fmt.Errorf("%w: got %d bytes, want %d", ErrInvalidKey, len(key), KeySize)
	}
	return key, nil
}

// Encrypt seals plaintext into a complete stream and returns it. Convenience
// wrapper over stream.NewEncryptWriter for payloads that fit in memory.
func Encrypt(key, plaintext []byte, opts ...stream.Option) ([]byte, error) {
	var buf bytes.Buffer
	w, err := stream.NewEncryptWriter(&buf, key, opts...)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(plaintext); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decrypt opens a complete stream produced by Encrypt and returns the
// plaintext. Any tampering, truncation or trailing data fails the whole
// operation.
func Decrypt(key, ciphertext []byte, opts ...stream.Option) ([]byte, error) {
	r, err := stream.NewDecryptReader(bytes.NewReader(ciphertext), key, opts...)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	plaintext, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return plaintext, nil
}
