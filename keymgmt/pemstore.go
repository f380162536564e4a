package keymgmt

import (
	"encoding/pem"
	"fmt"
	"io"
)

const (
	pemTypeWrappedKey = "SEALSTREAM WRAPPED KEY"
	pemTypePBKDF2     = "SEALSTREAM PBKDF2 PARAMS"
	pemTypeSalt       = "SEALSTREAM KEY SALT"

	pemHeaderName = "Name"
)

// PEMBundle is a set of PEM blocks persisting non-secret key metadata
// (wrapped keys, derivation salts, PBKDF2 parameters) next to the ciphertext
// they belong to. Blocks of unknown types are preserved across load/store.
type PEMBundle struct {
	blocks []*pem.Block
}

// NewPEMBundle returns an empty bundle.
func NewPEMBundle() *PEMBundle {
	return &PEMBundle{}
}

// LoadPEMBundle reads all PEM blocks from r.
func LoadPEMBundle(r io.Reader) (*PEMBundle, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read PEM bundle: %w", err)
	}
	var blocks []*pem.Block
	for len(data) > 0 {
		block, rest := pem.Decode(data)
		if block == nil {
			return nil, fmt.Errorf("parse PEM bundle: invalid PEM data")
		}
		blocks = append(blocks, block)
		data = rest
	}
	return &PEMBundle{blocks: blocks}, nil
}

// WriteTo encodes every block in the bundle to w.
func (b *PEMBundle) WriteTo(w io.Writer) error {
	for _, block := range b.blocks {
		if err := pem.Encode(w, block); err != nil {
			return fmt.Errorf("encode PEM bundle: %w", err)
		}
	}
	return nil
}

// WrappedKey retrieves the wrapped key stored under name.
func (b *PEMBundle) WrappedKey(name string) ([]byte, bool) {
	block := b.find(pemTypeWrappedKey, name)
	if block == nil {
		return nil, false
	}
	out := make([]byte, len(block.Bytes))
	copy(out, block.Bytes)
	return out, true
}

// SetWrappedKey inserts or replaces the wrapped key stored under name.
func (b *PEMBundle) SetWrappedKey(name string, wrapped []byte) {
	b.upsert(pemTypeWrappedKey, name, wrapped)
}

// KeySalt retrieves the stream key derivation salt stored under name.
func (b *PEMBundle) KeySalt(name string) ([]byte, bool) {
	block := b.find(pemTypeSalt, name)
	if block == nil {
		return nil, false
	}
	out := make([]byte, len(block.Bytes))
	copy(out, block.Bytes)
	return out, true
}

// SetKeySalt inserts or replaces the derivation salt stored under name.
func (b *PEMBundle) SetKeySalt(name string, salt []byte) {
	b.upsert(pemTypeSalt, name, salt)
}

// PBKDF2Params retrieves the stored passphrase derivation parameters, if any.
func (b *PEMBundle) PBKDF2Params() (PBKDF2Params, bool, error) {
	block := b.find(pemTypePBKDF2, "")
	if block == nil {
		return PBKDF2Params{}, false, nil
	}
	params, err := UnmarshalPBKDF2Params(block.Bytes)
	if err != nil {
		return PBKDF2Params{}, false, err
	}
	return params, true, nil
}

// SetPBKDF2Params stores passphrase derivation parameters in the bundle.
func (b *PEMBundle) SetPBKDF2Params(params PBKDF2Params) error {
	data, err := MarshalPBKDF2Params(params)
	if err != nil {
		return err
	}
	b.upsert(pemTypePBKDF2, "", data)
	return nil
}

func (b *PEMBundle) find(pemType, name string) *pem.Block {
	for _, block := range b.blocks {
		if block.Type != pemType {
			continue
		}
		if name == "" || block.Headers[pemHeaderName] == name {
			return block
		}
	}
	return nil
}

func (b *PEMBundle) upsert(pemType, name string, data []byte) {
	payload := make([]byte, len(data))
	copy(payload, data)
	var headers map[string]string
	if name != "" {
		headers = map[string]string{pemHeaderName: name}
	}
	if existing := b.find(pemType, name); existing != nil {
		existing.Bytes = payload
		existing.Headers = headers
		return
	}
	b.blocks = append(b.blocks, &pem.Block{Type: pemType, Headers: headers, Bytes: payload})
}
