package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/hkdf"
)

const (
	// KeySize is the master key length in bytes (64 hex characters).
	KeySize   = 32
	nonceSize = 16
	tagSize   = 16

	versionPrefix = "v1:"
	hkdfInfo      = "verifyflow/document-number/v1"
)

var (
	ErrInvalidKey = errors.New("encryption key must be 64 hex characters")

	randomRead = rand.Read
)

// DecryptionError is returned for any ciphertext that cannot be opened.
type DecryptionError struct {
	Reason string
	Err    error
}

func (e *DecryptionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decryption failed: %s: %v", e.Reason, e.Err)
	}
	return "decryption failed: " + e.Reason
}

func (e *DecryptionError) Unwrap() error {
	return e.Err
}

// IsDecryptionError reports whether err (or anything it wraps) is a *DecryptionError.
func IsDecryptionError(err error) bool {
	var de *DecryptionError
	return errors.As(err, &de)
}

// Cipher seals short identifiers with AES-256-GCM.
type Cipher struct {
	aead cipher.AEAD
}

// NewCipher derives the data key from a hex master key and prepares the AEAD.
func NewCipher(keyHex string) (*Cipher, error) {
	master, err := hex.DecodeString(strings.TrimSpace(keyHex))
	if err != nil || len(master) != KeySize {
		return nil, ErrInvalidKey
	}

	dataKey := make([]byte, KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, master, nil, []byte(hkdfInfo)), dataKey); err != nil {
		return nil, fmt.Errorf("derive data key: %w", err)
	}

	block, err := aes.NewCipher(dataKey)
	if err != nil {
		return nil, fmt.Errorf("create block cipher: %w", err)
	}
	aead, err := cipher.NewGCMWithNonceSize(block, nonceSize)
	if err != nil {
		return nil, fmt.Errorf("create gcm: %w", err)
	}
	return &Cipher{aead: aead}, nil
}

// Encrypt returns "v1:" + hex(nonce || ciphertext || tag).
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, nonceSize)
	if _, err := randomRead(nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	sealed := c.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return versionPrefix + hex.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt. Any malformed or tampered input yields *DecryptionError.
func (c *Cipher) Decrypt(ciphertext string) (string, error) {
	if !strings.HasPrefix(ciphertext, versionPrefix) {
		return "", &DecryptionError{Reason: "unknown format version"}
	}
	raw, err := hex.DecodeString(strings.TrimPrefix(ciphertext, versionPrefix))
	if err != nil {
		return "", &DecryptionError{Reason: "invalid encoding", Err: err}
	}
	if len(raw) < nonceSize+tagSize {
		return "", &DecryptionError{Reason: "ciphertext too short"}
	}

	plain, err := c.aead.Open(nil, raw[:nonceSize], raw[nonceSize:], nil)
	if err != nil {
		return "", &DecryptionError{Reason: "authentication failed", Err: err}
	}
	return string(plain), nil
}

// MaskIdentifier renders a display hint such as "****1234".
func MaskIdentifier(v string) string {
	if len(v) < 8 {
		return "****"
	}
	return "****" + v[len(v)-4:]
}
