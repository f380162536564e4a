package stream

import (
	"errors"
	"fmt"
	"io"
)

var errWriterClosed = errors.New("sealstream/stream: writer already closed")

// NewEncryptWriter creates an io.WriteCloser that chunks and encrypts all
// plaintext written to it. Close finalizes the stream; a stream that is never
// closed is truncated and will not decrypt.
func NewEncryptWriter(dst io.Writer, key []byte, opts ...Option) (io.WriteCloser, error) {
	cfg := applyOptions(opts)
	enc, err := OpenEncryptor(dst, key, cfg.chunkSize, opts...)
	if err != nil {
		return nil, err
	}

	w := &writer{
		enc:       enc,
		chunkSize: cfg.chunkSize,
		fill:      make([]byte, 0, cfg.chunkSize),
		closer:    toCloser(dst),
	}

	if cfg.codec != nil {
		comp, err := cfg.codec.WrapWriter(&plainSink{w: w})
		if err != nil {
			return nil, fmt.Errorf("stream encrypt writer: %w", err)
		}
		w.compressor = comp
	}
	return w, nil
}

type writer struct {
	enc       *Encryptor
	chunkSize int
	fill      []byte
	closer    io.Closer
	closed    bool

	compressor io.WriteCloser
}

func (w *writer) Write(p []byte) (int, error) {
	if w.compressor != nil {
		return w.compressor.Write(p)
	}
	return w.writePlain(p)
}

func (w *writer) writePlain(p []byte) (int, error) {
	if w.closed {
		return 0, errWriterClosed
	}
	written := 0

	if len(w.fill) > 0 {
		space := w.chunkSize - len(w.fill)
		if space > len(p) {
			w.fill = append(w.fill, p...)
			return len(p), nil
		}
		w.fill = append(w.fill, p[:space]...)
		if err := w.enc.EncryptChunk(w.fill); err != nil {
			return written, err
		}
		written += space
		w.fill = w.fill[:0]
		p = p[space:]
	}

	for len(p) >= w.chunkSize {
		if err := w.enc.EncryptChunk(p[:w.chunkSize]); err != nil {
			return written, err
		}
		p = p[w.chunkSize:]
		written += w.chunkSize
	}

	if len(p) > 0 {
		w.fill = append(w.fill, p...)
		written += len(p)
	}
	return written, nil
}

func (w *writer) Close() error {
	if w.closed {
		return nil
	}

	if w.compressor != nil {
		if err := w.compressor.Close(); err != nil {
			return fmt.Errorf("close compressor: %w", err)
		}
		w.compressor = nil
	}

	if len(w.fill) > 0 {
		if err := w.enc.EncryptChunk(w.fill); err != nil {
			return err
		}
		w.fill = w.fill[:0]
	}

	if err := w.enc.Finalize(); err != nil {
		return err
	}
	w.closed = true

	if w.closer != nil {
		if err := w.closer.Close(); err != nil {
			return fmt.Errorf("close destination: %w", err)
		}
	}
	return nil
}

// plainSink feeds decompressed output back into the chunking path so the
// compressor can sit in front of encryption.
type plainSink struct {
	w *writer
}

func (p *plainSink) Write(b []byte) (int, error) {
	return p.w.writePlain(b)
}
