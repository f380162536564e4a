package stream

import "io"

// NewEncryptPipe returns a reader yielding ciphertext and a write-closer
// accepting plaintext. Closing the writer finalizes the stream and closes the
// pipe.
func NewEncryptPipe(key []byte, opts ...Option) (*io.PipeReader, io.WriteCloser, error) {
	pr, pw := io.Pipe()

	writer, err := NewEncryptWriter(pw, key, opts...)
	if err != nil {
		pr.CloseWithError(err)
		pw.CloseWithError(err)
		return nil, nil, err
	}

	return pr, &pipeEncryptWriter{writer: writer, pipe: pw}, nil
}

// NewDecryptPipe returns a read-closer emitting plaintext and a pipe writer
// expecting ciphertext. Because the decryptor reads the stream header on
// construction, NewDecryptPipe spawns no goroutine; the caller must write the
// header before the first Read returns.
func NewDecryptPipe(key []byte, opts ...Option) (io.ReadCloser, *io.PipeWriter, error) {
	pr, pw := io.Pipe()
	return &lazyDecryptReader{key: key, opts: opts, src: pr}, pw, nil
}

type pipeEncryptWriter struct {
	writer io.WriteCloser
	pipe   *io.PipeWriter
}

func (p *pipeEncryptWriter) Write(b []byte) (int, error) {
	return p.writer.Write(b)
}

func (p *pipeEncryptWriter) Close() error {
	err := p.writer.Close()
	if err != nil {
		p.pipe.CloseWithError(err)
		return err
	}
	return p.pipe.Close()
}

// lazyDecryptReader postpones OpenDecryptor until the first Read so that
// constructing a decrypt pipe does not block on the header arriving.
type lazyDecryptReader struct {
	key  []byte
	opts []Option
	src  *io.PipeReader
	rc   io.ReadCloser
	err  error
}

func (l *lazyDecryptReader) Read(p []byte) (int, error) {
	if l.err != nil {
		return 0, l.err
	}
	if l.rc == nil {
		rc, err := NewDecryptReader(l.src, l.key, l.opts...)
		if err != nil {
			l.err = err
			return 0, err
		}
		l.rc = rc
	}
	return l.rc.Read(p)
}

func (l *lazyDecryptReader) Close() error {
	if l.rc != nil {
		return l.rc.Close()
	}
	return l.src.Close()
}
