package chunkio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Stream layout, all integers big-endian:
//
//	header:  magic[4]="SAEA" | version[1] | algo_id[1] | chunk_size[4] | base_nonce[24]
//	records: record_len[4] | ciphertext[record_len]    (repeated)
//
// Records are length-prefixed rather than EOF- or fixed-size-delimited so a
// reader always knows exactly how many bytes form one authenticable unit.
const (
	// Magic identifies a sealstream container.
	Magic = "SAEA"

	// FormatVersion1 is the only supported stream format version.
	FormatVersion1 = 1

	// HeaderSize is the fixed encoded size of a StreamHeader.
	HeaderSize = 4 + 1 + 1 + 4 + NonceSize

	// RecordPrefixSize is the size of the record length prefix.
	RecordPrefixSize = 4
)

var (
	// ErrBadMagic indicates the input does not start with the sealstream magic.
	ErrBadMagic = errors.New("sealstream/chunkio: bad magic")
	// ErrVersionMismatch indicates an unsupported stream format version.
	ErrVersionMismatch = errors.New("sealstream/chunkio: unsupported format version")
	// ErrTruncatedHeader indicates end-of-input inside the stream header.
	ErrTruncatedHeader = errors.New("sealstream/chunkio: truncated header")
	// ErrTruncatedRecord indicates end-of-input inside a chunk record.
	ErrTruncatedRecord = errors.New("sealstream/chunkio: truncated record")
	// ErrRecordTooLarge indicates a record length prefix exceeding the
	// maximum a well-formed stream can produce.
	ErrRecordTooLarge = errors.New("sealstream/chunkio: record too large")
)

// StreamHeader is the fixed-layout prefix written once per stream, before any
// chunk record. It is immutable after construction.
type StreamHeader struct {
	Version   uint8
	Algorithm uint8
	ChunkSize uint32
	BaseNonce [NonceSize]byte
}

// EncodeHeader serialises h into buf. buf must be at least HeaderSize bytes.
func EncodeHeader(buf []byte, h StreamHeader) {
	if len(buf) < HeaderSize {
		panic("sealstream/chunkio: header buffer too small")
	}
	copy(buf[0:4], Magic)
	buf[4] = h.Version
	buf[5] = h.Algorithm
	binary.BigEndian.PutUint32(buf[6:10], h.ChunkSize)
	copy(buf[10:HeaderSize], h.BaseNonce[:])
}

// DecodeHeader parses buf into a StreamHeader.
func DecodeHeader(buf []byte) (StreamHeader, error) {
	if len(buf) < HeaderSize {
		return StreamHeader{}, ErrTruncatedHeader
	}
	if string(buf[0:4]) != Magic {
		return StreamHeader{}, ErrBadMagic
	}
	h := StreamHeader{
		Version:   buf[4],
		Algorithm: buf[5],
		ChunkSize: binary.BigEndian.Uint32(buf[6:10]),
	}
	copy(h.BaseNonce[:], buf[10:HeaderSize])
	if h.Version != FormatVersion1 {
		return StreamHeader{}, ErrVersionMismatch
	}
	return h, nil
}

// ReadHeader reads and parses exactly HeaderSize bytes from r.
func ReadHeader(r io.Reader) (StreamHeader, error) {
	var buf [HeaderSize]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return StreamHeader{}, ErrTruncatedHeader
		}
		return StreamHeader{}, fmt.Errorf("read header: %w", err)
	}
	return DecodeHeader(buf[:])
}

// WriteHeader encodes h and writes all HeaderSize bytes to w.
func WriteHeader(w io.Writer, h StreamHeader) error {
	var buf [HeaderSize]byte
	EncodeHeader(buf[:], h)
	return writeFull(w, buf[:])
}

// WriteRecord frames ciphertext with its length prefix and writes it to w.
func WriteRecord(w io.Writer, ciphertext []byte) error {
	var prefix [RecordPrefixSize]byte
	binary.BigEndian.PutUint32(prefix[:], uint32(len(ciphertext)))
	if err := writeFull(w, prefix[:]); err != nil {
		return err
	}
	return writeFull(w, ciphertext)
}

// ReadRecord reads one complete chunk record from r, reusing dst's backing
// array when it is large enough. A clean end-of-input before the first prefix
// byte returns io.EOF so the caller can decide whether the stream ended
// legitimately; end-of-input anywhere inside a record is ErrTruncatedRecord.
// Length prefixes above maxLen fail with ErrRecordTooLarge before any body
// bytes are read.
func ReadRecord(r io.Reader, dst []byte, maxLen int) ([]byte, error) {
	var prefix [RecordPrefixSize]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, ErrTruncatedRecord
		}
		return nil, fmt.Errorf("read record prefix: %w", err)
	}

	n := int(binary.BigEndian.Uint32(prefix[:]))
	if n > maxLen {
		return nil, ErrRecordTooLarge
	}
	if cap(dst) < n {
		dst = make([]byte, n)
	}
	dst = dst[:n]

	if _, err := io.ReadFull(r, dst); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, ErrTruncatedRecord
		}
		return nil, fmt.Errorf("read record body: %w", err)
	}
	return dst, nil
}

func writeFull(w io.Writer, buf []byte) error {
	for len(buf) > 0 {
		n, err := w.Write(buf)
		if err != nil {
			return err
		}
		buf = buf[n:]
	}
	return nil
}
