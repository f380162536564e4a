package keymgmt

import (
	"bufio"
	"bytes"
	"crypto/rand"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"slices"
	"sync"

	"golang.org/x/crypto/pbkdf2"
	"golang.org/x/term"
)

const (
	defaultPBKDF2Iterations = 600_000
	defaultPBKDF2SaltBytes  = 32
)

// ErrInvalidPBKDF2Params indicates bad configuration values.
var ErrInvalidPBKDF2Params = errors.New("sealstream/keymgmt: invalid PBKDF2 parameters")

// PBKDF2Params describes how a root key was derived from a passphrase. Only
// SHA-256 is supported; the struct exists so salt and iteration count can be
// persisted next to the ciphertext they protect.
type PBKDF2Params struct {
	Iterations int    `json:"iterations"`
	Salt       []byte `json:"salt"`
}

// GeneratePBKDF2Params returns parameters with secure defaults: 600k
// iterations of SHA-256 and a fresh 32-byte salt.
func GeneratePBKDF2Params() (PBKDF2Params, error) {
	salt, err := GenerateSalt(defaultPBKDF2SaltBytes)
	if err != nil {
		return PBKDF2Params{}, err
	}
	return PBKDF2Params{Iterations: defaultPBKDF2Iterations, Salt: salt}, nil
}

// DeriveKeyFromPassphrase produces a RootKey from passphrase using PBKDF2
// with the supplied parameters.
func DeriveKeyFromPassphrase(passphrase []byte, params PBKDF2Params) (RootKey, error) {
	if params.Iterations <= 0 {
		return RootKey{}, fmt.Errorf("%w: iterations must be > 0", ErrInvalidPBKDF2Params)
	}
	if len(params.Salt) == 0 {
		return RootKey{}, fmt.Errorf("%w: missing salt", ErrInvalidPBKDF2Params)
	}
	key := pbkdf2.Key(passphrase, params.Salt, params.Iterations, rootKeyBytes, sha256.New)
	return RootKeyFromBytes(key)
}

// MarshalPBKDF2Params serialises parameters for persistence.
func MarshalPBKDF2Params(params PBKDF2Params) ([]byte, error) {
	if params.Iterations <= 0 || len(params.Salt) == 0 {
		return nil, ErrInvalidPBKDF2Params
	}
	return json.Marshal(params)
}

// UnmarshalPBKDF2Params deserialises parameters created with
// MarshalPBKDF2Params.
func UnmarshalPBKDF2Params(data []byte) (PBKDF2Params, error) {
	var params PBKDF2Params
	if err := json.Unmarshal(data, &params); err != nil {
		return PBKDF2Params{}, fmt.Errorf("unmarshal PBKDF2 params: %w", err)
	}
	if params.Iterations <= 0 || len(params.Salt) == 0 {
		return PBKDF2Params{}, ErrInvalidPBKDF2Params
	}
	params.Salt = slices.Clone(params.Salt)
	return params, nil
}

// GenerateSalt returns n bytes of cryptographically secure random data.
func GenerateSalt(n int) ([]byte, error) {
	if n <= 0 {
		return nil, fmt.Errorf("generate salt: length must be > 0")
	}
	salt := make([]byte, n)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}
	return salt, nil
}

// PromptPassphrase reads a passphrase from r without echoing when r is a
// terminal. The prompt is written to w if provided. If r is nil, os.Stdin is
// used. Terminal state is restored even when the process is interrupted while
// reading.
func PromptPassphrase(r io.Reader, prompt string, w io.Writer) ([]byte, error) {
	if r == nil {
		r = os.Stdin
	}
	fd := fileDescriptor(r)
	if fd < 0 || !term.IsTerminal(fd) {
		return promptPassphraseFromReader(r, prompt, w)
	}

	if w != nil && prompt != "" {
		if _, err := io.WriteString(w, prompt); err != nil {
			return nil, fmt.Errorf("write prompt: %w", err)
		}
	}

	state, stateErr := term.GetState(fd)
	var restore func()
	if stateErr == nil {
		var once sync.Once
		restore = func() {
			once.Do(func() { _ = term.Restore(fd, state) })
		}
		if signals := terminalSignals(); len(signals) > 0 {
			sigCh := make(chan os.Signal, 1)
			doneCh := make(chan struct{})
			signal.Notify(sigCh, signals...)
			go func() {
				select {
				case <-doneCh:
				case <-sigCh:
					restore()
					os.Exit(130)
				}
			}()
			defer func() {
				close(doneCh)
				signal.Stop(sigCh)
			}()
		}
		defer restore()
	}

	passphrase, err := term.ReadPassword(fd)
	if err != nil {
		return nil, fmt.Errorf("read passphrase: %w", err)
	}
	if w != nil {
		if _, err := io.WriteString(w, "\n"); err != nil {
			return nil, fmt.Errorf("write newline: %w", err)
		}
	}
	return passphrase, nil
}

// PromptAndDeriveRootKey prompts for a passphrase and derives a RootKey with
// the supplied PBKDF2 parameters. The passphrase is zeroed before returning.
func PromptAndDeriveRootKey(r io.Reader, prompt string, w io.Writer, params PBKDF2Params) (RootKey, error) {
	passphrase, err := PromptPassphrase(r, prompt, w)
	if err != nil {
		return RootKey{}, err
	}
	defer zeroBytes(passphrase)
	return DeriveKeyFromPassphrase(passphrase, params)
}

func promptPassphraseFromReader(r io.Reader, prompt string, w io.Writer) ([]byte, error) {
	if w != nil && prompt != "" {
		if _, err := io.WriteString(w, prompt); err != nil {
			return nil, fmt.Errorf("write prompt: %w", err)
		}
	}
	reader := bufio.NewReader(r)
	line, err := reader.ReadBytes('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("read passphrase: %w", err)
	}
	return slices.Clone(bytes.TrimRight(line, "\r\n")), nil
}

func fileDescriptor(r io.Reader) int {
	type fder interface {
		Fd() uintptr
	}
	if f, ok := r.(fder); ok {
		return int(f.Fd())
	}
	return -1
}

func zeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
