package chunkio

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	// NonceSize is the nonce length required by the stream format. The
	// extended-nonce AEAD primitives used by the stream packages (XChaCha20
	// family) take 24-byte nonces.
	NonceSize = 24

	// noncePrefixBytes is the number of leading base-nonce bytes carried
	// unmodified into every derived nonce. The remaining 9 bytes are the
	// structured suffix: 8 bytes of big-endian chunk index plus one
	// final-chunk flag byte.
	noncePrefixBytes = NonceSize - 9

	finalFlagSet   = 1
	finalFlagClear = 0
)

// ErrIndexExhausted indicates that the chunk index space is spent. The maximum
// uint64 value is reserved so the counter can never wrap into a reused nonce.
var ErrIndexExhausted = errors.New("sealstream/chunkio: chunk index exhausted")

// Sequencer derives per-chunk nonces from a session base nonce. One Sequencer
// belongs to exactly one stream session; sharing it across sessions reuses
// nonces under the same key and must never happen.
type Sequencer struct {
	base [NonceSize]byte
}

// NewSequencer copies base into a Sequencer. base must be NonceSize bytes.
func NewSequencer(base []byte) (*Sequencer, error) {
	if len(base) != NonceSize {
		return nil, fmt.Errorf("sealstream/chunkio: base nonce must be %d bytes, got %d", NonceSize, len(base))
	}
	s := &Sequencer{}
	copy(s.base[:], base)
	return s, nil
}

// Derive writes the nonce for (index, final) into dst. The mapping is
// injective: no two distinct (index, final) pairs produce the same nonce for a
// fixed base, because index and flag occupy disjoint suffix bytes rather than
// being mixed into the base by XOR.
func (s *Sequencer) Derive(dst []byte, index uint64, final bool) error {
	if len(dst) < NonceSize {
		return fmt.Errorf("sealstream/chunkio: nonce buffer too small")
	}
	if index == ^uint64(0) {
		return ErrIndexExhausted
	}
	copy(dst, s.base[:noncePrefixBytes])
	binary.BigEndian.PutUint64(dst[noncePrefixBytes:], index)
	if final {
		dst[NonceSize-1] = finalFlagSet
	} else {
		dst[NonceSize-1] = finalFlagClear
	}
	return nil
}

// NextIndex validates and increments a chunk index, returning
// ErrIndexExhausted when the counter space is spent.
func NextIndex(current uint64) (uint64, error) {
	if current >= ^uint64(0)-1 {
		return 0, ErrIndexExhausted
	}
	return current + 1, nil
}
