package codec

import (
	"bytes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"

	"github.com/roach88/lifeline/internal/canon"
)

// sealMagic prefixes every sealed body and is bound as associated data.
var sealMagic = []byte("LLS1")

// Sealer wraps canonical payloads in XChaCha20-Poly1305.
//
// The nonce is an HMAC of the plaintext (a synthetic IV), so sealing the
// same record twice gives the same bytes and the encoder stays
// deterministic. Equal records are therefore recognizable as equal; that is
// acceptable for a payload meant to be shown to whoever holds the code.
type Sealer struct {
	aead     cipher.AEAD
	nonceKey []byte
}

// NewSealer derives the sealing keys from passphrase with HKDF-SHA256.
func NewSealer(passphrase string) (*Sealer, error) {
	if passphrase == "" {
		return nil, errors.New("seal: passphrase is required")
	}

	key, err := deriveKey(passphrase, "lifeline seal key", chacha20poly1305.KeySize)
	if err != nil {
		return nil, err
	}
	nonceKey, err := deriveKey(passphrase, "lifeline seal nonce", 32)
	if err != nil {
		return nil, err
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("seal: %w", err)
	}
	return &Sealer{aead: aead, nonceKey: nonceKey}, nil
}

func deriveKey(passphrase, info string, n int) ([]byte, error) {
	h := hkdf.New(sha256.New, []byte(passphrase), []byte(canon.DomainSeal), []byte(info))
	out := make([]byte, n)
	if _, err := io.ReadFull(h, out); err != nil {
		return nil, fmt.Errorf("seal: derive key: %w", err)
	}
	return out, nil
}

// Seal returns magic || nonce || ciphertext.
func (s *Sealer) Seal(plaintext []byte) []byte {
	mac := hmac.New(sha256.New, s.nonceKey)
	mac.Write(plaintext)
	nonce := mac.Sum(nil)[:s.aead.NonceSize()]

	out := make([]byte, 0, len(sealMagic)+len(nonce)+len(plaintext)+s.aead.Overhead())
	out = append(out, sealMagic...)
	out = append(out, nonce...)
	return s.aead.Seal(out, nonce, plaintext, sealMagic)
}

// Open authenticates and decrypts a sealed body.
func (s *Sealer) Open(sealed []byte) ([]byte, error) {
	if !isSealed(sealed) {
		return nil, errors.New("seal: missing envelope header")
	}
	rest := sealed[len(sealMagic):]
	ns := s.aead.NonceSize()
	if len(rest) < ns+s.aead.Overhead() {
		return nil, errors.New("seal: envelope too short")
	}
	plain, err := s.aead.Open(nil, rest[:ns], rest[ns:], sealMagic)
	if err != nil {
		return nil, fmt.Errorf("seal: authentication failed: %w", err)
	}
	return plain, nil
}

func isSealed(body []byte) bool {
	return bytes.HasPrefix(body, sealMagic)
}
