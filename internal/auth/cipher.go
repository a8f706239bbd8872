package auth

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"

	"github.com/mukund1606/taxmann-project/internal/config"
)

// ivSize is the AES block size; every CTR blob starts with a fresh IV of this length.
const ivSize = aes.BlockSize

// ErrMalformedCiphertext is returned when a stored blob cannot be decoded.
var ErrMalformedCiphertext = errors.New("malformed ciphertext")

// PasswordCipher encrypts stored passwords under a process-wide key.
type PasswordCipher interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(blob string) (string, error)
}

// NewPasswordCipher builds the cipher selected by configuration.
func NewPasswordCipher(cfg config.AuthConfig) (PasswordCipher, error) {
	switch cfg.PasswordCipher {
	case "", config.CipherCTR:
		return NewCTRCipher(cfg.EncryptionKey())
	case config.CipherXChaCha:
		return NewXChaChaCipher(cfg.EncryptionKey())
	default:
		return nil, fmt.Errorf("unknown password cipher %q", cfg.PasswordCipher)
	}
}

// CTRCipher is AES-256 in counter mode. The wire format is
// base64(IV || ciphertext). It carries no integrity check.
type CTRCipher struct {
	block cipher.Block
}

// NewCTRCipher validates the key and prepares the block cipher.
func NewCTRCipher(key []byte) (*CTRCipher, error) {
	if len(key) != config.EncryptionKeySize {
		return nil, fmt.Errorf("encryption key must be %d bytes, got %d", config.EncryptionKeySize, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return &CTRCipher{block: block}, nil
}

// Encrypt seals plaintext under a fresh random IV.
func (c *CTRCipher) Encrypt(plaintext string) (string, error) {
	out := make([]byte, ivSize+len(plaintext))
	iv := out[:ivSize]
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return "", fmt.Errorf("generate iv: %w", err)
	}
	cipher.NewCTR(c.block, iv).XORKeyStream(out[ivSize:], []byte(plaintext))
	return base64.StdEncoding.EncodeToString(out), nil
}

// Decrypt reverses Encrypt.
func (c *CTRCipher) Decrypt(blob string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedCiphertext, err)
	}
	if len(raw) < ivSize {
		return "", fmt.Errorf("%w: blob shorter than iv", ErrMalformedCiphertext)
	}
	plain := make([]byte, len(raw)-ivSize)
	cipher.NewCTR(c.block, raw[:ivSize]).XORKeyStream(plain, raw[ivSize:])
	return string(plain), nil
}

// XChaChaCipher is the authenticated alternative: base64(nonce || sealed).
type XChaChaCipher struct {
	aead cipher.AEAD
}

// NewXChaChaCipher builds an XChaCha20-Poly1305 cipher from a 32-byte key.
func NewXChaChaCipher(key []byte) (*XChaChaCipher, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	return &XChaChaCipher{aead: aead}, nil
}

// Encrypt seals plaintext under a fresh random nonce.
func (c *XChaChaCipher) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, c.aead.NonceSize(), c.aead.NonceSize()+len(plaintext)+c.aead.Overhead())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	sealed := c.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a blob produced by Encrypt; tampering yields ErrMalformedCiphertext.
func (c *XChaChaCipher) Decrypt(blob string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedCiphertext, err)
	}
	ns := c.aead.NonceSize()
	if len(raw) < ns+c.aead.Overhead() {
		return "", fmt.Errorf("%w: blob too short", ErrMalformedCiphertext)
	}
	plain, err := c.aead.Open(nil, raw[:ns], raw[ns:], nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedCiphertext, err)
	}
	return string(plain), nil
}
