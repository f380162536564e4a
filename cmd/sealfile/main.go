// Command sealfile encrypts or decrypts a file as a chunked authenticated
// stream.
//
// The key comes from a base64 key file (-k, as printed by sealkey) or from an
// interactive passphrase (-p). With a passphrase, the PBKDF2 parameters and
// the stream key salt are persisted in a PEM sidecar next to the ciphertext
// (<output>.pem), which must accompany the file for decryption.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"pkt.systems/sealstream"
	"pkt.systems/sealstream/keymgmt"
	"pkt.systems/sealstream/stream"
)

// keyContext domain-separates file stream keys from other uses of a root key.
var keyContext = []byte("sealstream file key v1")

func main() {
	var (
		input      = flag.String("i", "", "input file (default stdin)")
		output     = flag.String("o", "", "output file (default stdout)")
		decrypt    = flag.Bool("d", false, "decrypt instead of encrypt")
		keyFile    = flag.String("k", "", "file containing a base64 key")
		passphrase = flag.Bool("p", false, "derive the key from a passphrase")
		chunkSize  = flag.Int("c", stream.DefaultChunkSize, "plaintext chunk size in bytes")
		codec      = flag.String("z", "", "compression codec: gzip, snappy or lz4")
	)
	flag.Parse()

	if err := run(*input, *output, *decrypt, *keyFile, *passphrase, *chunkSize, *codec); err != nil {
		fmt.Fprintf(os.Stderr, "sealfile: %v\n", err)
		os.Exit(1)
	}
}

func run(input, output string, decrypt bool, keyFile string, passphrase bool, chunkSize int, codec string) error {
	if keyFile == "" && !passphrase {
		return fmt.Errorf("either -k or -p is required")
	}
	if keyFile != "" && passphrase {
		return fmt.Errorf("-k and -p are mutually exclusive")
	}
	if chunkSize < stream.MinChunkSize || chunkSize > stream.MaxChunkSize {
		return fmt.Errorf("chunk size must be in [%d, %d]", stream.MinChunkSize, stream.MaxChunkSize)
	}

	opts := []stream.Option{stream.WithChunkSize(chunkSize)}
	switch codec {
	case "":
	case "gzip":
		opts = append(opts, stream.WithGzip())
	case "snappy":
		opts = append(opts, stream.WithSnappy())
	case "lz4":
		opts = append(opts, stream.WithLZ4())
	default:
		return fmt.Errorf("unknown codec %q", codec)
	}

	src := io.Reader(os.Stdin)
	if input != "" {
		f, err := os.Open(input)
		if err != nil {
			return err
		}
		defer f.Close()
		src = f
	}

	var key []byte
	switch {
	case keyFile != "":
		var err error
		key, err = loadKeyFile(keyFile)
		if err != nil {
			return err
		}
	case decrypt:
		var err error
		key, err = passphraseKeyForDecrypt(sidecarPath(input))
		if err != nil {
			return err
		}
	default:
		var err error
		key, err = passphraseKeyForEncrypt(sidecarPath(output))
		if err != nil {
			return err
		}
	}
	defer zero(key)

	dst := io.Writer(os.Stdout)
	if output != "" {
		f, err := os.Create(output)
		if err != nil {
			return err
		}
		defer f.Close()
		dst = f
	}

	if decrypt {
		r, err := stream.NewDecryptReader(src, key, opts...)
		if err != nil {
			return err
		}
		defer r.Close()
		if _, err := io.Copy(dst, r); err != nil {
			return err
		}
		return nil
	}

	w, err := stream.NewEncryptWriter(nopWriteCloser{dst}, key, opts...)
	if err != nil {
		return err
	}
	if _, err := io.Copy(w, src); err != nil {
		return err
	}
	return w.Close()
}

func loadKeyFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return sealstream.DecodeKeyString(strings.TrimSpace(string(data)))
}

// passphraseKeyForEncrypt prompts for a passphrase, mints a fresh stream key
// and records the PBKDF2 parameters and salt in a PEM sidecar.
func passphraseKeyForEncrypt(sidecar string) ([]byte, error) {
	params, err := keymgmt.GeneratePBKDF2Params()
	if err != nil {
		return nil, err
	}
	root, err := keymgmt.PromptAndDeriveRootKey(os.Stdin, "Passphrase: ", os.Stderr, params)
	if err != nil {
		return nil, err
	}
	defer root.Zero()

	key, salt, err := keymgmt.MintStreamKey(root, keyContext)
	if err != nil {
		return nil, err
	}

	bundle := keymgmt.NewPEMBundle()
	if err := bundle.SetPBKDF2Params(params); err != nil {
		return nil, err
	}
	bundle.SetKeySalt("stream", salt)

	f, err := os.OpenFile(sidecar, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	if err := bundle.WriteTo(f); err != nil {
		return nil, err
	}
	return key, nil
}

// passphraseKeyForDecrypt prompts for a passphrase and re-derives the stream
// key from the parameters stored in the PEM sidecar.
func passphraseKeyForDecrypt(sidecar string) ([]byte, error) {
	f, err := os.Open(sidecar)
	if err != nil {
		return nil, fmt.Errorf("open key sidecar: %w", err)
	}
	defer f.Close()
	bundle, err := keymgmt.LoadPEMBundle(f)
	if err != nil {
		return nil, err
	}

	params, ok, err := bundle.PBKDF2Params()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("key sidecar %s has no PBKDF2 parameters", sidecar)
	}
	salt, ok := bundle.KeySalt("stream")
	if !ok {
		return nil, fmt.Errorf("key sidecar %s has no stream key salt", sidecar)
	}

	root, err := keymgmt.PromptAndDeriveRootKey(os.Stdin, "Passphrase: ", os.Stderr, params)
	if err != nil {
		return nil, err
	}
	defer root.Zero()
	return keymgmt.DeriveStreamKey(root, salt, keyContext)
}

func sidecarPath(file string) string {
	if file == "" {
		return "sealstream.pem"
	}
	return file + ".pem"
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// nopWriteCloser stops the encrypt writer from closing a destination whose
// lifetime is managed here (or is os.Stdout).
type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }
