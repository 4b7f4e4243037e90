// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package auth

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/pbkdf2"

	"github.com/jeranaias/tillrun/internal/util"
)

// =============================================================================
// TOKEN SEALING (AT-REST ENCRYPTION)
// =============================================================================

const (
	// sealedPrefix marks a value as sealed: SEAL:base64(nonce|ciphertext|tag).
	sealedPrefix = "SEAL:"

	// keySize is the AES-256 key size.
	keySize = 32

	// saltSize is the salt size for passphrase key derivation.
	saltSize = 32

	// pbkdf2Iterations follows the OWASP recommendation for PBKDF2-SHA-256.
	pbkdf2Iterations = 600000

	// keyFileName holds the random master key for keyfile-based sealing.
	keyFileName = "session.key"

	// saltFileName holds the salt for passphrase-based sealing.
	saltFileName = "session.salt"
)

var (
	// ErrSealedValue indicates a sealed value could not be decoded.
	ErrSealedValue = errors.New("malformed sealed value")

	// ErrUnsealFailed indicates authentication of the ciphertext failed,
	// usually a wrong key or a tampered state file.
	ErrUnsealFailed = errors.New("unseal failed: authentication tag mismatch")
)

// Sealer encrypts tokens before they reach the state directory and
// decrypts them on load. AES-256-GCM with a random nonce per value.
type Sealer struct {
	aead cipher.AEAD
}

// NewSealer builds a sealer from a random master key kept next to the
// state files. The key file is created with 0600 on first use.
func NewSealer(dir string) (*Sealer, error) {
	path := filepath.Join(dir, keyFileName)

	key, err := os.ReadFile(path)
	if err != nil || len(key) != keySize {
		key = make([]byte, keySize)
		if _, err := io.ReadFull(rand.Reader, key); err != nil {
			return nil, fmt.Errorf("generate master key: %w", err)
		}
		if err := util.WriteFileAtomic(path, key, 0600); err != nil {
			return nil, fmt.Errorf("store master key: %w", err)
		}
	}
	return newSealerFromKey(key)
}

// NewSealerWithPassphrase derives the sealing key from an operator
// passphrase via PBKDF2-SHA-256. The salt persists beside the state
// files so the same passphrase reopens the session after a restart.
func NewSealerWithPassphrase(dir, passphrase string) (*Sealer, error) {
	if passphrase == "" {
		return nil, errors.New("empty passphrase")
	}

	path := filepath.Join(dir, saltFileName)
	salt, err := os.ReadFile(path)
	if err != nil || len(salt) != saltSize {
		salt = make([]byte, saltSize)
		if _, err := io.ReadFull(rand.Reader, salt); err != nil {
			return nil, fmt.Errorf("generate salt: %w", err)
		}
		if err := util.WriteFileAtomic(path, salt, 0600); err != nil {
			return nil, fmt.Errorf("store salt: %w", err)
		}
	}

	key := pbkdf2.Key([]byte(passphrase), salt, pbkdf2Iterations, keySize, sha256.New)
	return newSealerFromKey(key)
}

func newSealerFromKey(key []byte) (*Sealer, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &Sealer{aead: aead}, nil
}

// Seal encrypts a value. Empty values stay empty.
func (s *Sealer) Seal(plain string) (string, error) {
	if plain == "" {
		return "", nil
	}

	nonce := make([]byte, s.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	sealed := s.aead.Seal(nonce, nonce, []byte(plain), nil)
	return sealedPrefix + base64.StdEncoding.EncodeToString(sealed), nil
}

// Unseal decrypts a value produced by Seal. Unsealed input passes
// through untouched so a state file written before sealing was enabled
// still loads.
func (s *Sealer) Unseal(value string) (string, error) {
	if !strings.HasPrefix(value, sealedPrefix) {
		return value, nil
	}

	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(value, sealedPrefix))
	if err != nil {
		return "", ErrSealedValue
	}
	if len(raw) < s.aead.NonceSize() {
		return "", ErrSealedValue
	}

	nonce, ciphertext := raw[:s.aead.NonceSize()], raw[s.aead.NonceSize():]
	plain, err := s.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", ErrUnsealFailed
	}
	return string(plain), nil
}
