package stream

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"sync"

	"pkt.systems/sealstream/cipher"
	"pkt.systems/sealstream/internal/chunkio"
)

// ErrChunkIndexExhausted is returned when a session would need more than the
// representable number of chunks. The counter never wraps; wrapping would
// repeat nonces.
var ErrChunkIndexExhausted = errors.New("sealstream/stream: chunk index exhausted")

// Encryptor is a strictly sequential encryption session. It writes the stream
// header on construction, seals one chunk record per supplied plaintext chunk,
// and marks the last chunk via the nonce final flag on Finalize. An Encryptor
// must not be shared between goroutines; independent sessions may run in
// parallel.
//
// The session holds exactly one pending chunk: a chunk is sealed as non-final
// only once a successor arrives, so the final record carries the last
// plaintext rather than an empty marker.
type Encryptor struct {
	dst       io.Writer
	crypt     cipher.Cipher
	seq       *chunkio.Sequencer
	aad       []byte
	chunkSize int

	index       uint64
	nonce       [chunkio.NonceSize]byte
	pending     []byte
	havePending bool
	sealBuf     []byte

	bufs      *bufferSet
	pool      *sync.Pool
	finalized bool
	err       error
}

// OpenEncryptor starts an encryption session writing to dst. key must match
// the configured cipher (32 bytes for the default XChaCha20-Poly1305). A
// chunkSize of 0 selects DefaultChunkSize or the WithChunkSize option. The
// stream header, including a fresh random base nonce, is written before
// OpenEncryptor returns.
func OpenEncryptor(dst io.Writer, key []byte, chunkSize int, opts ...Option) (*Encryptor, error) {
	cfg := applyOptions(opts)
	if chunkSize == 0 {
		chunkSize = cfg.chunkSize
	}
	if chunkSize < MinChunkSize || chunkSize > MaxChunkSize {
		return nil, fmt.Errorf("sealstream/stream: chunk size %d out of range [%d, %d]", chunkSize, MinChunkSize, MaxChunkSize)
	}

	crypt, err := cfg.cipherFactory(key)
	if err != nil {
		return nil, fmt.Errorf("open encryptor: %w", err)
	}
	if crypt.NonceSize() != chunkio.NonceSize {
		return nil, fmt.Errorf("sealstream/stream: cipher nonce size %d, format requires %d", crypt.NonceSize(), chunkio.NonceSize)
	}

	var header chunkio.StreamHeader
	header.Version = chunkio.FormatVersion1
	header.Algorithm = uint8(crypt.Algorithm())
	header.ChunkSize = uint32(chunkSize)
	if _, err := rand.Read(header.BaseNonce[:]); err != nil {
		return nil, fmt.Errorf("generate base nonce: %w", err)
	}

	seq, err := chunkio.NewSequencer(header.BaseNonce[:])
	if err != nil {
		return nil, err
	}

	aad := make([]byte, chunkio.HeaderSize)
	chunkio.EncodeHeader(aad, header)
	if err := chunkio.WriteHeader(dst, header); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}

	bufs, pool := borrowBuffers(cfg, chunkSize, crypt.Overhead())
	return &Encryptor{
		dst:       dst,
		crypt:     crypt,
		seq:       seq,
		aad:       aad,
		chunkSize: chunkSize,
		pending:   bufs.plain[:0],
		sealBuf:   bufs.cipher[:0],
		bufs:      bufs,
		pool:      pool,
	}, nil
}

// EncryptChunk accepts up to chunkSize bytes of plaintext. The previous
// pending chunk, if any, is sealed as an interior chunk and appended to the
// sink; p becomes the new pending chunk. p is copied and may be reused by the
// caller immediately.
func (e *Encryptor) EncryptChunk(p []byte) error {
	if e.err != nil {
		return e.err
	}
	if e.finalized {
		return ErrSessionClosed
	}
	if len(p) > e.chunkSize {
		return ErrChunkTooLarge
	}
	if e.havePending {
		if err := e.seal(e.pending, false); err != nil {
			return err
		}
	}
	e.pending = append(e.pending[:0], p...)
	e.havePending = true
	return nil
}

// Finalize seals the pending chunk (empty when nothing was ever written) with
// the final flag and closes the session. Exactly one chunk per stream carries
// the flag, and only Finalize produces it.
func (e *Encryptor) Finalize() error {
	if e.err != nil {
		return e.err
	}
	if e.finalized {
		return ErrSessionClosed
	}
	if err := e.seal(e.pending, true); err != nil {
		return err
	}
	e.finalized = true
	e.release()
	return nil
}

// Finished reports whether the session has been finalized.
func (e *Encryptor) Finished() bool {
	return e.finalized
}

func (e *Encryptor) seal(plaintext []byte, final bool) error {
	if err := e.seq.Derive(e.nonce[:], e.index, final); err != nil {
		return e.fail(ErrChunkIndexExhausted)
	}
	ct, err := e.crypt.Seal(e.sealBuf[:0], e.nonce[:], plaintext, e.aad)
	if err != nil {
		return e.fail(err)
	}
	e.sealBuf = ct[:0]
	if err := chunkio.WriteRecord(e.dst, ct); err != nil {
		// Partial records are not resumable; the session is dead.
		return e.fail(err)
	}
	if final {
		return nil
	}
	next, err := chunkio.NextIndex(e.index)
	if err != nil {
		return e.fail(ErrChunkIndexExhausted)
	}
	e.index = next
	return nil
}

func (e *Encryptor) fail(err error) error {
	e.err = err
	e.release()
	return err
}

func (e *Encryptor) release() {
	if e.bufs == nil {
		return
	}
	releaseBuffers(e.pool, e.bufs)
	e.bufs = nil
	e.pending = nil
	e.sealBuf = nil
}

// Decryptor is the strictly sequential inverse session. It validates the
// stream header on construction and yields one plaintext chunk per call to
// ProcessNext, deriving each expected nonce from its own chunk counter so
// reordered or replayed records cannot authenticate. End of stream is
// signalled only by a record that authenticates under the final-flag nonce;
// end-of-input without such a record is truncation.
type Decryptor struct {
	src       io.Reader
	crypt     cipher.Cipher
	seq       *chunkio.Sequencer
	aad       []byte
	maxRecord int

	index  uint64
	nonce  [chunkio.NonceSize]byte
	record []byte
	plain  []byte

	bufs     *bufferSet
	pool     *sync.Pool
	complete bool
	closed   bool
	err      error
}

// OpenDecryptor reads and validates the stream header from src and prepares a
// decryption session. The chunk size is taken from the header, never from the
// caller.
func OpenDecryptor(src io.Reader, key []byte, opts ...Option) (*Decryptor, error) {
	cfg := applyOptions(opts)

	header, err := chunkio.ReadHeader(src)
	if err != nil {
		switch {
		case errors.Is(err, chunkio.ErrTruncatedHeader),
			errors.Is(err, chunkio.ErrBadMagic),
			errors.Is(err, chunkio.ErrVersionMismatch):
			return nil, ErrHeaderInvalid
		}
		return nil, err
	}

	chunkSize := int(header.ChunkSize)
	if chunkSize < MinChunkSize || chunkSize > MaxChunkSize {
		return nil, ErrHeaderInvalid
	}

	crypt, err := cfg.cipherFactory(key)
	if err != nil {
		return nil, fmt.Errorf("open decryptor: %w", err)
	}
	if crypt.Algorithm() != cipher.Algorithm(header.Algorithm) {
		return nil, ErrHeaderInvalid
	}
	if crypt.NonceSize() != chunkio.NonceSize {
		return nil, fmt.Errorf("sealstream/stream: cipher nonce size %d, format requires %d", crypt.NonceSize(), chunkio.NonceSize)
	}

	seq, err := chunkio.NewSequencer(header.BaseNonce[:])
	if err != nil {
		return nil, err
	}
	aad := make([]byte, chunkio.HeaderSize)
	chunkio.EncodeHeader(aad, header)

	bufs, pool := borrowBuffers(cfg, chunkSize, crypt.Overhead())
	return &Decryptor{
		src:       src,
		crypt:     crypt,
		seq:       seq,
		aad:       aad,
		maxRecord: chunkSize + crypt.Overhead(),
		record:    bufs.cipher[:0],
		plain:     bufs.plain[:0],
		bufs:      bufs,
		pool:      pool,
	}, nil
}

// ProcessNext reads, authenticates and decrypts the next chunk record. The
// returned slice is valid until the next call on the session. After the final
// chunk has been returned, Finished reports true and further calls return
// io.EOF. Any integrity failure permanently fails the session; plaintext from
// a chunk that did not authenticate is never released.
func (d *Decryptor) ProcessNext() ([]byte, error) {
	if d.err != nil {
		return nil, d.err
	}
	if d.closed {
		return nil, ErrSessionClosed
	}
	if d.complete {
		return nil, io.EOF
	}

	ct, err := chunkio.ReadRecord(d.src, d.record[:0], d.maxRecord)
	if err != nil {
		switch {
		case errors.Is(err, io.EOF), errors.Is(err, chunkio.ErrTruncatedRecord):
			// EOF is not a termination signal; only the final flag is.
			return nil, d.fail(ErrTruncatedStream)
		case errors.Is(err, chunkio.ErrRecordTooLarge):
			return nil, d.fail(ErrStreamInvalid)
		}
		return nil, d.fail(err)
	}
	d.record = ct[:0]

	if err := d.seq.Derive(d.nonce[:], d.index, false); err != nil {
		return nil, d.fail(ErrStreamInvalid)
	}
	plain, openErr := d.crypt.Open(d.plain[:0], d.nonce[:], ct, d.aad)
	if openErr == nil {
		d.plain = plain
		next, err := chunkio.NextIndex(d.index)
		if err != nil {
			return nil, d.fail(ErrStreamInvalid)
		}
		d.index = next
		return plain, nil
	}

	// The record did not open as an interior chunk; it is either the final
	// chunk or garbage.
	if err := d.seq.Derive(d.nonce[:], d.index, true); err != nil {
		return nil, d.fail(ErrStreamInvalid)
	}
	plain, openErr = d.crypt.Open(d.plain[:0], d.nonce[:], ct, d.aad)
	if openErr != nil {
		return nil, d.fail(ErrAuthenticationFailure)
	}

	var one [1]byte
	if _, err := io.ReadFull(d.src, one[:]); err == nil {
		return nil, d.fail(ErrTrailingData)
	} else if !errors.Is(err, io.EOF) {
		return nil, d.fail(err)
	}

	d.plain = plain
	d.complete = true
	return plain, nil
}

// Finished reports whether the final chunk has been consumed.
func (d *Decryptor) Finished() bool {
	return d.complete
}

// Close releases (and zeroes, when pooled) the session's scratch buffers.
// Plaintext returned by ProcessNext becomes invalid.
func (d *Decryptor) Close() error {
	if d.closed {
		return nil
	}
	d.closed = true
	d.release()
	return nil
}

func (d *Decryptor) fail(err error) error {
	d.err = err
	d.release()
	return err
}

func (d *Decryptor) release() {
	if d.bufs == nil {
		return
	}
	releaseBuffers(d.pool, d.bufs)
	d.bufs = nil
	d.record = nil
	d.plain = nil
}
