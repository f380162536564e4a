package stream

import "sync"

// bufferSet groups the plaintext and ciphertext scratch space of one session
// so both can be pooled together. Plaintext scratch may hold key-dependent
// data, so buffers are zeroed before going back to the pool.
type bufferSet struct {
	plain  []byte
	cipher []byte
}

// borrowBuffers returns a bufferSet sized for chunkSize/overhead, taken from
// cfg.bufferPool when one is configured and the pooled set is large enough.
// The second return is the pool the set must be released to, or nil when
// pooling is disabled.
func borrowBuffers(cfg config, chunkSize, overhead int) (*bufferSet, *sync.Pool) {
	if cfg.bufferPool != nil {
		if v := cfg.bufferPool.Get(); v != nil {
			if bs, ok := v.(*bufferSet); ok && cap(bs.plain) >= chunkSize && cap(bs.cipher) >= chunkSize+overhead {
				bs.plain = bs.plain[:0]
				bs.cipher = bs.cipher[:0]
				return bs, cfg.bufferPool
			}
		}
	}
	bs := &bufferSet{
		plain:  make([]byte, 0, chunkSize),
		cipher: make([]byte, 0, chunkSize+overhead),
	}
	return bs, cfg.bufferPool
}

func releaseBuffers(pool *sync.Pool, bs *bufferSet) {
	if bs == nil {
		return
	}
	zeroAll(bs.plain)
	zeroAll(bs.cipher)
	bs.plain = bs.plain[:0]
	bs.cipher = bs.cipher[:0]
	if pool != nil {
		pool.Put(bs)
	}
}

func zeroAll(buf []byte) {
	buf = buf[:cap(buf)]
	for i := range buf {
		buf[i] = 0
	}
}
