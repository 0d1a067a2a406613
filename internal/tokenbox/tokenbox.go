// Package tokenbox seals OAuth tokens before they are written to the
// database. Values are stored as "enc:v1:" followed by base64 of
// nonce || ciphertext || tag, sealed with XChaCha20-Poly1305.
package tokenbox

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
)

const sealedPrefix = "enc:v1:"

var ErrMalformed = errors.New("tokenbox: malformed sealed value")

// Box seals and opens token strings. A nil *Box passes values through
// unchanged so deployments without a key keep working.
type Box struct {
	key []byte
}

// New returns a Box for a 32 byte key, or nil when key is empty.
func New(key []byte) (*Box, error) {
	if len(key) == 0 {
		return nil, nil
	}
	if len(key) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("tokenbox: key must be %d bytes, got %d", chacha20poly1305.KeySize, len(key))
	}
	k := make([]byte, len(key))
	copy(k, key)
	return &Box{key: k}, nil
}

// Seal encrypts plaintext. Empty strings stay empty.
func (b *Box) Seal(plaintext string) (string, error) {
	if b == nil || plaintext == "" {
		return plaintext, nil
	}
	aead, err := chacha20poly1305.NewX(b.key)
	if err != nil {
		return "", fmt.Errorf("creating XChaCha20-Poly1305 cipher: %w", err)
	}

	var nonce [chacha20poly1305.NonceSizeX]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return "", fmt.Errorf("generating nonce: %w", err)
	}
	out := make([]byte, len(nonce), len(nonce)+len(plaintext)+aead.Overhead())
	copy(out, nonce[:])
	out = aead.Seal(out, nonce[:], []byte(plaintext), []byte(sealedPrefix))
	return sealedPrefix + base64.RawStdEncoding.EncodeToString(out), nil
}

// Open reverses Seal. Values without the sealed prefix are returned as is,
// since rows written before a key was configured hold plaintext.
func (b *Box) Open(value string) (string, error) {
	encoded, ok := strings.CutPrefix(value, sealedPrefix)
	if !ok {
		return value, nil
	}
	if b == nil {
		return "", errors.New("tokenbox: sealed value found but no key is configured")
	}

	raw, err := base64.RawStdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if len(raw) < chacha20poly1305.NonceSizeX+chacha20poly1305.Overhead {
		return "", ErrMalformed
	}

	aead, err := chacha20poly1305.NewX(b.key)
	if err != nil {
		return "", fmt.Errorf("creating XChaCha20-Poly1305 cipher: %w", err)
	}
	plain, err := aead.Open(nil, raw[:chacha20poly1305.NonceSizeX], raw[chacha20poly1305.NonceSizeX:], []byte(sealedPrefix))
	if err != nil {
		return "", fmt.Errorf("tokenbox: open: %w", err)
	}
	return string(plain), nil
}
