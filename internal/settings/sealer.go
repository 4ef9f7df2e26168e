package settings

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

const (
	sealedPrefix  = "sealed:v1:"
	sealedVersion = byte(0x01)
)

var hkdfInfoSettings = []byte("companion.settings.v1")

// ErrSealedValue is returned when a sealed value cannot be opened.
var ErrSealedValue = errors.New("sealed setting cannot be opened")

// Sealer encrypts secret settings at rest with XChaCha20-Poly1305. The key
// is derived from a passphrase with HKDF-SHA256. The sealed form is
//
//	sealed:v1:base64([version][nonce 24 bytes][ciphertext+tag])
//
// with the version byte and setting key as additional authenticated data.
type Sealer struct {
	key []byte
}

// NewSealer derives a sealing key from secret. An empty secret yields nil,
// meaning values are stored as plain text.
func NewSealer(secret string) (*Sealer, error) {
	if secret == "" {
		return nil, nil
	}
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), nil, hkdfInfoSettings), key); err != nil {
		return nil, fmt.Errorf("derive settings key: %w", err)
	}
	return &Sealer{key: key}, nil
}

// Seal encrypts value bound to the setting name.
func (s *Sealer) Seal(name, value string) (string, error) {
	aead, err := chacha20poly1305.NewX(s.key)
	if err != nil {
		return "", fmt.Errorf("create cipher: %w", err)
	}
	var nonce [chacha20poly1305.NonceSizeX]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	out := make([]byte, 1+len(nonce), 1+len(nonce)+len(value)+aead.Overhead())
	out[0] = sealedVersion
	copy(out[1:], nonce[:])
	out = aead.Seal(out, nonce[:], []byte(value), aad(name))
	return sealedPrefix + base64.RawStdEncoding.EncodeToString(out), nil
}

// Open reverses Seal. Values without the sealed prefix are returned as-is so
// settings written before a key was configured stay readable.
func (s *Sealer) Open(name, stored string) (string, error) {
	encoded, ok := strings.CutPrefix(stored, sealedPrefix)
	if !ok {
		return stored, nil
	}
	blob, err := base64.RawStdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSealedValue, err)
	}
	if len(blob) < 1+chacha20poly1305.NonceSizeX+chacha20poly1305.Overhead || blob[0] != sealedVersion {
		return "", ErrSealedValue
	}
	aead, err := chacha20poly1305.NewX(s.key)
	if err != nil {
		return "", fmt.Errorf("create cipher: %w", err)
	}
	nonce := blob[1 : 1+chacha20poly1305.NonceSizeX]
	plain, err := aead.Open(nil, nonce, blob[1+chacha20poly1305.NonceSizeX:], aad(name))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSealedValue, err)
	}
	return string(plain), nil
}

func aad(name string) []byte {
	return append([]byte{sealedVersion}, name...)
}
