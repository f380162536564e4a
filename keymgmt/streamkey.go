package keymgmt

import (
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

const (
	// StreamKeyBytes is the key length required by the stream ciphers.
	StreamKeyBytes = 32

	saltBytes = 32
)

// MintStreamKey derives a fresh 32-byte stream key from root using
// HKDF-SHA256 with a random salt, bound to the caller-supplied context bytes
// (for example an object identifier). The salt is returned so the key can be
// reconstructed later; it is not secret.
func MintStreamKey(root RootKey, context []byte) (key, salt []byte, err error) {
	salt = make([]byte, saltBytes)
	if _, err := rand.Read(salt); err != nil {
		return nil, nil, fmt.Errorf("generate stream key salt: %w", err)
	}
	key, err = DeriveStreamKey(root, salt, context)
	if err != nil {
		return nil, nil, err
	}
	return key, salt, nil
}

// DeriveStreamKey reproduces a stream key from root, salt and context.
// Distinct contexts under the same root yield independent keys, so two
// streams never share a key unless the operator binds them to the same
// context on purpose.
func DeriveStreamKey(root RootKey, salt, context []byte) ([]byte, error) {
	if len(salt) == 0 {
		return nil, fmt.Errorf("sealstream/keymgmt: empty stream key salt")
	}
	reader := hkdf.New(sha256.New, root[:], salt, context)
	key := make([]byte, StreamKeyBytes)
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, fmt.Errorf("derive stream key: %w", err)
	}
	return key, nil
}
