package stream

import (
	"fmt"
	"sync"

	"pkt.systems/sealstream/cipher"
	"pkt.systems/sealstream/compression"
)

const (
	// DefaultChunkSize is the plaintext chunk size used when none is given.
	DefaultChunkSize = 64 * 1024
	// MinChunkSize bounds framing overhead from below.
	MinChunkSize = 64
	// MaxChunkSize caps the allocation a stream header can demand before the
	// first record has been authenticated.
	MaxChunkSize = 64 * 1024 * 1024
)

type config struct {
	chunkSize     int
	codec         compression.Codec
	cipherFactory cipher.Factory
	bufferPool    *sync.Pool
}

// Option configures the behaviour of encrypting/decrypting streams.
type Option func(*config)

func applyOptions(opts []Option) config {
	cfg := config{
		chunkSize:     DefaultChunkSize,
		cipherFactory: cipher.XChaCha20Poly1305(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// WithChunkSize controls the plaintext bytes sealed per chunk record. Larger
// chunks reduce framing overhead but increase buffering requirements.
func WithChunkSize(n int) Option {
	return func(cfg *config) {
		if n < MinChunkSize || n > MaxChunkSize {
			panic(fmt.Sprintf("sealstream/stream: chunk size must be in [%d, %d]", MinChunkSize, MaxChunkSize))
		}
		cfg.chunkSize = n
	}
}

// WithCipher selects the sealing backend. Encryptor and decryptor must agree:
// a decryptor rejects headers whose algorithm id differs from the configured
// cipher's.
func WithCipher(factory cipher.Factory) Option {
	return func(cfg *config) {
		cfg.cipherFactory = factory
	}
}

// WithCompression selects the codec applied to plaintext before encryption
// and after decryption. The codec is not recorded in the stream header; both
// ends must configure the same one.
func WithCompression(codec compression.Codec) Option {
	return func(cfg *config) {
		cfg.codec = codec
	}
}

// WithGzip enables gzip compression at gzip.BestSpeed.
func WithGzip() Option {
	return WithCompression(compression.Gzip(0))
}

// WithSnappy enables Snappy compression.
func WithSnappy() Option {
	return WithCompression(compression.Snappy())
}

// WithLZ4 enables LZ4 compression.
func WithLZ4() Option {
	return WithCompression(compression.LZ4())
}

// WithBufferPool shares chunk scratch buffers across sessions to reduce
// allocations. The pool stores *bufferSet values; buffers are zeroed before
// being returned to the pool. Passing nil leaves pooling disabled.
func WithBufferPool(pool *sync.Pool) Option {
	return func(cfg *config) {
		cfg.bufferPool = pool
	}
}
