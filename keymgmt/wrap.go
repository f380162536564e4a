package keymgmt

import (
	"crypto/rand"
	"errors"
	"fmt"

	siv "github.com/secure-io/siv-go"
)

// ErrUnwrapFailed indicates the wrapped blob is corrupt or was wrapped under
// a different key-encryption key.
var ErrUnwrapFailed = errors.New("sealstream/keymgmt: key unwrap failed")

// WrapKey seals key under kek using AES-GCM-SIV and returns nonce||ciphertext.
// GCM-SIV is nonce-misuse-resistant, which is the property wanted for keys at
// rest: even a repeated nonce only leaks equality of plaintexts, never the
// key stream.
func WrapKey(kek RootKey, key []byte) ([]byte, error) {
	aead, err := siv.NewGCM(kek[:])
	if err != nil {
		return nil, fmt.Errorf("wrap key: %w", err)
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("wrap key nonce: %w", err)
	}
	return aead.Seal(nonce, nonce, key, nil), nil
}

// UnwrapKey opens a blob produced by WrapKey.
func UnwrapKey(kek RootKey, wrapped []byte) ([]byte, error) {
	aead, err := siv.NewGCM(kek[:])
	if err != nil {
		return nil, fmt.Errorf("unwrap key: %w", err)
	}
	if len(wrapped) < aead.NonceSize() {
		return nil, ErrUnwrapFailed
	}
	nonce, ct := wrapped[:aead.NonceSize()], wrapped[aead.NonceSize():]
	key, err := aead.Open(nil, nonce, ct, nil)
	if err != nil {
		return nil, ErrUnwrapFailed
	}
	return key, nil
}
