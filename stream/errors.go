package stream

import (
	"errors"
	"fmt"
)

// ErrStreamInvalid is the single externally observable failure class for
// ciphertext that is corrupt, truncated, forged, reordered, or otherwise not
// a well-formed stream. Authentication failures are non-transient: retrying
// the same bytes cannot succeed.
var ErrStreamInvalid = errors.New("sealstream/stream: stream invalid or tampered")

// The specific integrity sentinels below all render the exact same message as
// ErrStreamInvalid so that nothing user-visible distinguishes a framing error
// from a truncated tail or an authentication mismatch (no decryption oracle).
// In-process callers may still branch with errors.Is.
var (
	// ErrAuthenticationFailure: a chunk record failed AEAD verification.
	ErrAuthenticationFailure = fmt.Errorf("%w", ErrStreamInvalid)
	// ErrTruncatedStream: input ended before a final-flagged chunk was seen.
	ErrTruncatedStream = fmt.Errorf("%w", ErrStreamInvalid)
	// ErrTrailingData: bytes follow the authenticated final chunk.
	ErrTrailingData = fmt.Errorf("%w", ErrStreamInvalid)
	// ErrHeaderInvalid: the stream header is malformed, has the wrong magic
	// or version, or names an algorithm the session was not configured for.
	ErrHeaderInvalid = fmt.Errorf("%w", ErrStreamInvalid)
)

// Caller-input errors. These do not fail the session.
var (
	// ErrSessionClosed is returned for operations on a finalized or
	// completed session.
	ErrSessionClosed = errors.New("sealstream/stream: session closed")
	// ErrChunkTooLarge is returned when a plaintext chunk exceeds the
	// session chunk size.
	ErrChunkTooLarge = errors.New("sealstream/stream: chunk exceeds chunk size")
)
