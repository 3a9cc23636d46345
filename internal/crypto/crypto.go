// Package crypto provides at-rest encryption for stored message content.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/scrypt"
)

// ErrDecryption marks ciphertext that could not be decrypted: wrong key,
// tampered payload, or corrupt encoding. Callers fall back to the stored
// value rather than failing the read.
var ErrDecryption = errors.New("crypto: decryption failed")

// prefix marks encrypted values and versions the scheme.
const prefix = "enc:v1:"

const (
	saltSize = 16
	keySize  = 32
	scryptN  = 32768
	scryptR  = 8
	scryptP  = 1
)

// Cipher encrypts and decrypts message payloads.
type Cipher interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
	IsEncrypted(s string) bool
}

// aesgcm derives a per-value key from the passphrase with scrypt and seals
// with AES-256-GCM. The wire form is enc:v1:<base64(salt || nonce || sealed)>.
type aesgcm struct {
	passphrase []byte
}

// New creates a Cipher from a passphrase. The passphrase must be non-empty.
func New(passphrase string) (Cipher, error) {
	if passphrase == "" {
		return nil, errors.New("crypto: passphrase is required")
	}
	return &aesgcm{passphrase: []byte(passphrase)}, nil
}

func (c *aesgcm) Encrypt(plaintext string) (string, error) {
	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", fmt.Errorf("generating salt: %w", err)
	}

	gcm, err := c.aead(salt)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generating nonce: %w", err)
	}

	sealed := gcm.Seal(nil, nonce, []byte(plaintext), nil)

	payload := make([]byte, 0, len(salt)+len(nonce)+len(sealed))
	payload = append(payload, salt...)
	payload = append(payload, nonce...)
	payload = append(payload, sealed...)

	return prefix + base64.StdEncoding.EncodeToString(payload), nil
}

func (c *aesgcm) Decrypt(ciphertext string) (string, error) {
	if !c.IsEncrypted(ciphertext) {
		return "", fmt.Errorf("%w: missing %s prefix", ErrDecryption, prefix)
	}

	payload, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(ciphertext, prefix))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecryption, err)
	}
	if len(payload) < saltSize {
		return "", fmt.Errorf("%w: payload too short", ErrDecryption)
	}

	salt, rest := payload[:saltSize], payload[saltSize:]
	gcm, err := c.aead(salt)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecryption, err)
	}
	if len(rest) < gcm.NonceSize() {
		return "", fmt.Errorf("%w: payload too short", ErrDecryption)
	}

	nonce, sealed := rest[:gcm.NonceSize()], rest[gcm.NonceSize():]
	plain, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecryption, err)
	}
	return string(plain), nil
}

func (c *aesgcm) IsEncrypted(s string) bool {
	return strings.HasPrefix(s, prefix)
}

func (c *aesgcm) aead(salt []byte) (cipher.AEAD, error) {
	key, err := scrypt.Key(c.passphrase, salt, scryptN, scryptR, scryptP, keySize)
	if err != nil {
		return nil, fmt.Errorf("deriving key: %w", err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}
	return cipher.NewGCM(block)
}
