// Package compression provides optional plaintext codecs applied before
// encryption and after decryption. The codec choice is not recorded in the
// stream; both ends must agree on it.
package compression

import (
	"compress/gzip"
	"io"

	"github.com/golang/snappy"
	"github.com/pierrec/lz4/v4"
)

// Codec wraps a stream with a compression stage (writer side) or a
// decompression stage (reader side).
type Codec interface {
	WrapWriter(io.Writer) (io.WriteCloser, error)
	WrapReader(io.Reader) (io.ReadCloser, error)
}

// Gzip returns a gzip codec at the given level. A level of 0 selects
// gzip.BestSpeed.
func Gzip(level int) Codec {
	if level == 0 {
		level = gzip.BestSpeed
	}
	return gzipCodec{level: level}
}

// Snappy returns a Snappy framing codec.
func Snappy() Codec { return snappyCodec{} }

// LZ4 returns an LZ4 frame codec.
func LZ4() Codec { return lz4Codec{} }

type gzipCodec struct {
	level int
}

func (c gzipCodec) WrapWriter(w io.Writer) (io.WriteCloser, error) {
	return gzip.NewWriterLevel(w, c.level)
}

func (c gzipCodec) WrapReader(r io.Reader) (io.ReadCloser, error) {
	return gzip.NewReader(r)
}

type snappyCodec struct{}

func (snappyCodec) WrapWriter(w io.Writer) (io.WriteCloser, error) {
	return snappy.NewBufferedWriter(w), nil
}

func (snappyCodec) WrapReader(r io.Reader) (io.ReadCloser, error) {
	return io.NopCloser(snappy.NewReader(r)), nil
}

type lz4Codec struct{}

func (lz4Codec) WrapWriter(w io.Writer) (io.WriteCloser, error) {
	return lz4.NewWriter(w), nil
}

func (lz4Codec) WrapReader(r io.Reader) (io.ReadCloser, error) {
	return io.NopCloser(lz4.NewReader(r)), nil
}
