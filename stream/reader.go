package stream

import (
	"errors"
	"io"

	"pkt.systems/sealstream/compression"
)

// NewDecryptReader creates an io.ReadCloser that yields plaintext read from
// src. The stream must have been produced with the same key, cipher and codec
// configuration.
func NewDecryptReader(src io.Reader, key []byte, opts ...Option) (io.ReadCloser, error) {
	cfg := applyOptions(opts)
	dec, err := OpenDecryptor(src, key, opts...)
	if err != nil {
		return nil, err
	}

	r := &reader{dec: dec, closer: toCloser(src)}
	if cfg.codec != nil {
		return &lazyDecompressReader{codec: cfg.codec, base: r}, nil
	}
	return r, nil
}

type reader struct {
	dec    *Decryptor
	chunk  []byte
	offset int
	closer io.Closer
}

func (r *reader) Read(p []byte) (int, error) {
	for r.offset == len(r.chunk) {
		if r.dec.Finished() {
			return 0, io.EOF
		}
		chunk, err := r.dec.ProcessNext()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return 0, io.EOF
			}
			return 0, err
		}
		r.chunk = chunk
		r.offset = 0
	}

	n := copy(p, r.chunk[r.offset:])
	r.offset += n
	return n, nil
}

func (r *reader) Close() error {
	_ = r.dec.Close()
	if r.closer != nil {
		return r.closer.Close()
	}
	return nil
}

// lazyDecompressReader defers wrapping until the first Read because some
// codecs consume bytes from the underlying stream in their constructor.
type lazyDecompressReader struct {
	codec compression.Codec
	base  io.ReadCloser
	rc    io.ReadCloser
}

func (l *lazyDecompressReader) Read(p []byte) (int, error) {
	if l.rc == nil {
		rc, err := l.codec.WrapReader(l.base)
		if err != nil {
			return 0, err
		}
		l.rc = rc
	}
	return l.rc.Read(p)
}

func (l *lazyDecompressReader) Close() error {
	if l.rc != nil {
		_ = l.rc.Close()
	}
	return l.base.Close()
}
