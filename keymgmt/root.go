// Package keymgmt supplies the key acquisition collaborators for sealstream:
// root keys, per-stream key derivation, passphrase derivation, and key
// wrapping at rest. The stream packages never see anything here but a 32-byte
// key.
package keymgmt

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
)

const rootKeyBytes = 32

// RootKey is a 256-bit symmetric key from which per-stream keys are derived.
type RootKey [rootKeyBytes]byte

// ErrInvalidRootKeyLength indicates that key material did not contain exactly
// 32 bytes.
var ErrInvalidRootKeyLength = errors.New("sealstream/keymgmt: invalid root key length")

// GenerateRootKey produces a new cryptographically secure 256-bit root key.
func GenerateRootKey() (RootKey, error) {
	var k RootKey
	if _, err := rand.Read(k[:]); err != nil {
		return RootKey{}, fmt.Errorf("generate root key: %w", err)
	}
	return k, nil
}

// RootKeyFromBytes copies b into a RootKey.
func RootKeyFromBytes(b []byte) (RootKey, error) {
	if len(b) != rootKeyBytes {
		return RootKey{}, fmt.Errorf("%w: got %d bytes", ErrInvalidRootKeyLength, len(b))
	}
	var k RootKey
	copy(k[:], b)
	return k, nil
}

// RootKeyFromBase64 decodes a base64 raw standard encoded string into a
// RootKey.
func RootKeyFromBase64(encoded string) (RootKey, error) {
	data, err := base64.RawStdEncoding.DecodeString(encoded)
	if err != nil {
		return RootKey{}, fmt.Errorf("decode root key: %w", err)
	}
	return RootKeyFromBytes(data)
}

// EncodeToBase64 exports the root key as a base64 raw standard encoded string.
func (rk RootKey) EncodeToBase64() string {
	return base64.RawStdEncoding.EncodeToString(rk[:])
}

// Bytes returns the key material. The returned slice aliases the underlying
// array; callers must copy it if they intend to keep it past Zero.
func (rk RootKey) Bytes() []byte {
	return rk[:]
}

// Zero overwrites the key material with zeros.
func (rk *RootKey) Zero() {
	for i := range rk {
		rk[i] = 0
	}
}
