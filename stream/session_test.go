package stream

import (
	"bytes"
	"crypto/rand"
	"errors"
	"io"
	"testing"

	"pkt.systems/sealstream/cipher/insecure"
	"pkt.systems/sealstream/internal/chunkio"
)

func sessionKey(t *testing.T) []byte {
	t.Helper()
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		t.Fatalf("rand.Read error: %v", err)
	}
	return key
}

// encryptChunks produces a complete stream from the given plaintext chunks.
func encryptChunks(t *testing.T, key []byte, chunkSize int, chunks [][]byte, opts ...Option) []byte {
	t.Helper()
	var buf bytes.Buffer
	enc, err := OpenEncryptor(&buf, key, chunkSize, opts...)
	if err != nil {
		t.Fatalf("OpenEncryptor error: %v", err)
	}
	for _, chunk := range chunks {
		if err := enc.EncryptChunk(chunk); err != nil {
			t.Fatalf("EncryptChunk error: %v", err)
		}
	}
	if err := enc.Finalize(); err != nil {
		t.Fatalf("Finalize error: %v", err)
	}
	if !enc.Finished() {
		t.Fatalf("Finished() false after Finalize")
	}
	return buf.Bytes()
}

// decryptChunks drains a stream chunk by chunk.
func decryptChunks(t *testing.T, key []byte, data []byte, opts ...Option) [][]byte {
	t.Helper()
	dec, err := OpenDecryptor(bytes.NewReader(data), key, opts...)
	if err != nil {
		t.Fatalf("OpenDecryptor error: %v", err)
	}
	defer dec.Close()

	var out [][]byte
	for !dec.Finished() {
		chunk, err := dec.ProcessNext()
		if err != nil {
			t.Fatalf("ProcessNext error: %v", err)
		}
		out = append(out, append([]byte(nil), chunk...))
	}
	return out
}

// parseRecords splits a stream into its raw ciphertext records.
func parseRecords(t *testing.T, data []byte) [][]byte {
	t.Helper()
	if len(data) < chunkio.HeaderSize {
		t.Fatalf("stream shorter than header: %d bytes", len(data))
	}
	r := bytes.NewReader(data[chunkio.HeaderSize:])
	var records [][]byte
	for {
		rec, err := chunkio.ReadRecord(r, nil, len(data))
		if errors.Is(err, io.EOF) {
			return records
		}
		if err != nil {
			t.Fatalf("ReadRecord error: %v", err)
		}
		records = append(records, append([]byte(nil), rec...))
	}
}

// rebuildStream reassembles a stream from a header and raw records.
func rebuildStream(t *testing.T, original []byte, records [][]byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	buf.Write(original[:chunkio.HeaderSize])
	for _, rec := range records {
		if err := chunkio.WriteRecord(&buf, rec); err != nil {
			t.Fatalf("WriteRecord error: %v", err)
		}
	}
	return buf.Bytes()
}

func TestSessionRoundTrip(t *testing.T) {
	key := sessionKey(t)
	chunks := [][]byte{
		bytes.Repeat([]byte{0x11}, 64),
		bytes.Repeat([]byte{0x22}, 64),
		bytes.Repeat([]byte{0x33}, 17),
	}
	data := encryptChunks(t, key, 64, chunks)
	out := decryptChunks(t, key, data)

	if len(out) != len(chunks) {
		t.Fatalf("got %d chunks, want %d", len(out), len(chunks))
	}
	for i := range chunks {
		if !bytes.Equal(out[i], chunks[i]) {
			t.Fatalf("chunk %d mismatch", i)
		}
	}
}

func TestEmptyStream(t *testing.T) {
	key := sessionKey(t)
	data := encryptChunks(t, key, 64, nil)

	records := parseRecords(t, data)
	if len(records) != 1 {
		t.Fatalf("empty stream has %d records, want 1", len(records))
	}

	dec, err := OpenDecryptor(bytes.NewReader(data), key)
	if err != nil {
		t.Fatalf("OpenDecryptor error: %v", err)
	}
	defer dec.Close()
	chunk, err := dec.ProcessNext()
	if err != nil {
		t.Fatalf("ProcessNext error: %v", err)
	}
	if len(chunk) != 0 {
		t.Fatalf("empty stream yielded %d plaintext bytes", len(chunk))
	}
	if !dec.Finished() {
		t.Fatalf("Finished() false after final chunk")
	}
	if _, err := dec.ProcessNext(); !errors.Is(err, io.EOF) {
		t.Fatalf("ProcessNext after completion = %v, want io.EOF", err)
	}
}

// A 150000-byte payload with 65536-byte chunks must produce exactly three
// records, with the remainder carried by the final record rather than an
// empty terminator.
func TestRecordLayout(t *testing.T) {
	const (
		total     = 150000
		chunkSize = 65536
		overhead  = 16
	)
	key := sessionKey(t)
	payload := make([]byte, total)
	if _, err := rand.Read(payload); err != nil {
		t.Fatalf("rand.Read error: %v", err)
	}

	chunks := [][]byte{
		payload[:chunkSize],
		payload[chunkSize : 2*chunkSize],
		payload[2*chunkSize:],
	}
	data := encryptChunks(t, key, chunkSize, chunks)

	records := parseRecords(t, data)
	if len(records) != 3 {
		t.Fatalf("got %d records, want 3", len(records))
	}
	wantSizes := []int{chunkSize + overhead, chunkSize + overhead, (total - 2*chunkSize) + overhead}
	for i, rec := range records {
		if len(rec) != wantSizes[i] {
			t.Fatalf("record %d is %d bytes, want %d", i, len(rec), wantSizes[i])
		}
	}

	out := decryptChunks(t, key, data)
	if !bytes.Equal(bytes.Join(out, nil), payload) {
		t.Fatalf("payload mismatch after roundtrip")
	}
}

func TestSingleBitTamper(t *testing.T) {
	key := sessionKey(t)
	chunks := [][]byte{
		bytes.Repeat([]byte{0xAA}, 64),
		bytes.Repeat([]byte{0xBB}, 64),
		bytes.Repeat([]byte{0xCC}, 10),
	}
	data := encryptChunks(t, key, 64, chunks)

	records := parseRecords(t, data)
	records[1][7] ^= 0x01
	tampered := rebuildStream(t, data, records)

	dec, err := OpenDecryptor(bytes.NewReader(tampered), key)
	if err != nil {
		t.Fatalf("OpenDecryptor error: %v", err)
	}
	defer dec.Close()
	if _, err := dec.ProcessNext(); err != nil {
		t.Fatalf("untampered first chunk failed: %v", err)
	}
	_, err = dec.ProcessNext()
	if !errors.Is(err, ErrAuthenticationFailure) {
		t.Fatalf("tampered chunk error = %v, want ErrAuthenticationFailure", err)
	}
	if !errors.Is(err, ErrStreamInvalid) {
		t.Fatalf("tampered chunk error does not wrap ErrStreamInvalid")
	}
	// Integrity failures are permanent for the session.
	if _, again := dec.ProcessNext(); !errors.Is(again, ErrAuthenticationFailure) {
		t.Fatalf("session recovered after integrity failure: %v", again)
	}
}

func TestTruncationDroppedFinalRecord(t *testing.T) {
	key := sessionKey(t)
	chunks := [][]byte{
		bytes.Repeat([]byte{0x01}, 64),
		bytes.Repeat([]byte{0x02}, 32),
	}
	data := encryptChunks(t, key, 64, chunks)

	records := parseRecords(t, data)
	truncated := rebuildStream(t, data, records[:len(records)-1])

	dec, err := OpenDecryptor(bytes.NewReader(truncated), key)
	if err != nil {
		t.Fatalf("OpenDecryptor error: %v", err)
	}
	defer dec.Close()
	if _, err := dec.ProcessNext(); err != nil {
		t.Fatalf("first chunk failed: %v", err)
	}
	if _, err := dec.ProcessNext(); !errors.Is(err, ErrTruncatedStream) {
		t.Fatalf("truncated stream error = %v, want ErrTruncatedStream", err)
	}
}

func TestTruncationMidRecord(t *testing.T) {
	key := sessionKey(t)
	data := encryptChunks(t, key, 64, [][]byte{bytes.Repeat([]byte{0x55}, 64)})

	dec, err := OpenDecryptor(bytes.NewReader(data[:len(data)-5]), key)
	if err != nil {
		t.Fatalf("OpenDecryptor error: %v", err)
	}
	defer dec.Close()
	if _, err := dec.ProcessNext(); !errors.Is(err, ErrTruncatedStream) {
		t.Fatalf("mid-record truncation error = %v, want ErrTruncatedStream", err)
	}
}

func TestRecordReorderRejected(t *testing.T) {
	key := sessionKey(t)
	chunks := [][]byte{
		bytes.Repeat([]byte{0x0A}, 64),
		bytes.Repeat([]byte{0x0B}, 64),
		bytes.Repeat([]byte{0x0C}, 8),
	}
	data := encryptChunks(t, key, 64, chunks)

	records := parseRecords(t, data)
	records[0], records[1] = records[1], records[0]
	swapped := rebuildStream(t, data, records)

	dec, err := OpenDecryptor(bytes.NewReader(swapped), key)
	if err != nil {
		t.Fatalf("OpenDecryptor error: %v", err)
	}
	defer dec.Close()
	if _, err := dec.ProcessNext(); !errors.Is(err, ErrAuthenticationFailure) {
		t.Fatalf("reordered record error = %v, want ErrAuthenticationFailure", err)
	}
}

func TestTrailingDataRejected(t *testing.T) {
	key := sessionKey(t)
	data := encryptChunks(t, key, 64, [][]byte{[]byte("last words")})
	data = append(data, 0x00)

	dec, err := OpenDecryptor(bytes.NewReader(data), key)
	if err != nil {
		t.Fatalf("OpenDecryptor error: %v", err)
	}
	defer dec.Close()
	if _, err := dec.ProcessNext(); !errors.Is(err, ErrTrailingData) {
		t.Fatalf("trailing data error = %v, want ErrTrailingData", err)
	}
}

func TestWrongKeyRejected(t *testing.T) {
	key := sessionKey(t)
	data := encryptChunks(t, key, 64, [][]byte{[]byte("secret")})

	dec, err := OpenDecryptor(bytes.NewReader(data), sessionKey(t))
	if err != nil {
		t.Fatalf("OpenDecryptor error: %v", err)
	}
	defer dec.Close()
	if _, err := dec.ProcessNext(); !errors.Is(err, ErrAuthenticationFailure) {
		t.Fatalf("wrong key error = %v, want ErrAuthenticationFailure", err)
	}
}

// All integrity failures must render the same message, so an attacker probing
// a decryption endpoint cannot distinguish framing errors from MAC failures.
func TestIntegrityErrorsConflated(t *testing.T) {
	want := ErrStreamInvalid.Error()
	for _, err := range []error{ErrAuthenticationFailure, ErrTruncatedStream, ErrTrailingData, ErrHeaderInvalid} {
		if err.Error() != want {
			t.Fatalf("integrity error message %q differs from %q", err.Error(), want)
		}
		if !errors.Is(err, ErrStreamInvalid) {
			t.Fatalf("integrity sentinel does not wrap ErrStreamInvalid")
		}
	}
}

func TestHeaderValidation(t *testing.T) {
	key := sessionKey(t)
	data := encryptChunks(t, key, 64, [][]byte{[]byte("payload")})

	badMagic := append([]byte(nil), data...)
	badMagic[0] = 'X'
	if _, err := OpenDecryptor(bytes.NewReader(badMagic), key); !errors.Is(err, ErrHeaderInvalid) {
		t.Fatalf("bad magic error = %v, want ErrHeaderInvalid", err)
	}

	badVersion := append([]byte(nil), data...)
	badVersion[4] = 9
	if _, err := OpenDecryptor(bytes.NewReader(badVersion), key); !errors.Is(err, ErrHeaderInvalid) {
		t.Fatalf("bad version error = %v, want ErrHeaderInvalid", err)
	}

	badAlgorithm := append([]byte(nil), data...)
	badAlgorithm[5] = 0x7E
	if _, err := OpenDecryptor(bytes.NewReader(badAlgorithm), key); !errors.Is(err, ErrHeaderInvalid) {
		t.Fatalf("algorithm mismatch error = %v, want ErrHeaderInvalid", err)
	}

	// An enormous chunk size must be rejected before any allocation.
	badChunkSize := append([]byte(nil), data...)
	badChunkSize[6], badChunkSize[7], badChunkSize[8], badChunkSize[9] = 0xFF, 0xFF, 0xFF, 0xFF
	if _, err := OpenDecryptor(bytes.NewReader(badChunkSize), key); !errors.Is(err, ErrHeaderInvalid) {
		t.Fatalf("oversized chunk size error = %v, want ErrHeaderInvalid", err)
	}

	if _, err := OpenDecryptor(bytes.NewReader(data[:10]), key); !errors.Is(err, ErrHeaderInvalid) {
		t.Fatalf("truncated header error = %v, want ErrHeaderInvalid", err)
	}
}

func TestChunkTooLargeIsRecoverable(t *testing.T) {
	key := sessionKey(t)
	var buf bytes.Buffer
	enc, err := OpenEncryptor(&buf, key, 64)
	if err != nil {
		t.Fatalf("OpenEncryptor error: %v", err)
	}
	if err := enc.EncryptChunk(make([]byte, 65)); !errors.Is(err, ErrChunkTooLarge) {
		t.Fatalf("oversized chunk error = %v, want ErrChunkTooLarge", err)
	}
	// The session must survive a caller-input error.
	if err := enc.EncryptChunk([]byte("fits")); err != nil {
		t.Fatalf("EncryptChunk after ErrChunkTooLarge: %v", err)
	}
	if err := enc.Finalize(); err != nil {
		t.Fatalf("Finalize error: %v", err)
	}

	out := decryptChunks(t, key, buf.Bytes())
	if len(out) != 1 || !bytes.Equal(out[0], []byte("fits")) {
		t.Fatalf("unexpected roundtrip result after recoverable error")
	}
}

func TestSessionClosed(t *testing.T) {
	key := sessionKey(t)
	var buf bytes.Buffer
	enc, err := OpenEncryptor(&buf, key, 64)
	if err != nil {
		t.Fatalf("OpenEncryptor error: %v", err)
	}
	if err := enc.Finalize(); err != nil {
		t.Fatalf("Finalize error: %v", err)
	}
	if err := enc.EncryptChunk([]byte("late")); !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("EncryptChunk after Finalize = %v, want ErrSessionClosed", err)
	}
	if err := enc.Finalize(); !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("double Finalize = %v, want ErrSessionClosed", err)
	}

	dec, err := OpenDecryptor(bytes.NewReader(buf.Bytes()), key)
	if err != nil {
		t.Fatalf("OpenDecryptor error: %v", err)
	}
	if err := dec.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}
	if _, err := dec.ProcessNext(); !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("ProcessNext after Close = %v, want ErrSessionClosed", err)
	}
}

func TestOpenEncryptorChunkSizeBounds(t *testing.T) {
	key := sessionKey(t)
	var buf bytes.Buffer
	if _, err := OpenEncryptor(&buf, key, MinChunkSize-1); err == nil {
		t.Fatalf("OpenEncryptor accepted chunk size below minimum")
	}
	if _, err := OpenEncryptor(&buf, key, MaxChunkSize+1); err == nil {
		t.Fatalf("OpenEncryptor accepted chunk size above maximum")
	}
}

func TestInsecureCipherRoundTrip(t *testing.T) {
	key := []byte("demo key, not for production")
	opt := WithCipher(insecure.XOR())
	chunks := [][]byte{
		bytes.Repeat([]byte{0xF0}, 64),
		[]byte("tail"),
	}
	data := encryptChunks(t, key, 64, chunks, opt)
	out := decryptChunks(t, key, data, opt)

	if !bytes.Equal(bytes.Join(out, nil), bytes.Join(chunks, nil)) {
		t.Fatalf("demo cipher roundtrip mismatch")
	}

	// A stream sealed with the demo cipher must not be accepted by a default
	// decryptor session.
	if _, err := OpenDecryptor(bytes.NewReader(data), sessionKey(t)); !errors.Is(err, ErrHeaderInvalid) {
		t.Fatalf("default decryptor accepted demo-cipher stream: %v", err)
	}
}
