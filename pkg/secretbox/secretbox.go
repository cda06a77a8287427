// Package secretbox seals short secrets (OAuth tokens) for storage at rest.
package secretbox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"strings"
)

const prefix = "v1:"

var ErrCorrupt = errors.New("secretbox: malformed ciphertext")

// Box seals with AES-GCM using SHA-256(key). A nil or keyless Box passes values through.
type Box struct {
	aead cipher.AEAD
}

func New(key string) (*Box, error) {
	if key == "" {
		return &Box{}, nil
	}
	h := sha256.Sum256([]byte(key))
	block, err := aes.NewCipher(h[:])
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &Box{aead: gcm}, nil
}

// Enabled reports whether values are actually encrypted.
func (b *Box) Enabled() bool { return b != nil && b.aead != nil }

func (b *Box) Seal(plain string) (string, error) {
	if !b.Enabled() || plain == "" {
		return plain, nil
	}
	nonce := make([]byte, b.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	ct := b.aead.Seal(nil, nonce, []byte(plain), nil)
	out := make([]byte, len(nonce)+len(ct))
	copy(out, nonce)
	copy(out[len(nonce):], ct)
	return prefix + base64.RawStdEncoding.EncodeToString(out), nil
}

// Open reverses Seal. Values without the version prefix are returned unchanged
// so rows written before a key was configured stay readable.
func (b *Box) Open(stored string) (string, error) {
	if !strings.HasPrefix(stored, prefix) {
		return stored, nil
	}
	if !b.Enabled() {
		return "", errors.New("secretbox: sealed value but no key configured")
	}
	raw, err := base64.RawStdEncoding.DecodeString(stored[len(prefix):])
	if err != nil {
		return "", ErrCorrupt
	}
	ns := b.aead.NonceSize()
	if len(raw) < ns {
		return "", ErrCorrupt
	}
	plain, err := b.aead.Open(nil, raw[:ns], raw[ns:], nil)
	if err != nil {
		return "", ErrCorrupt
	}
	return string(plain), nil
}
