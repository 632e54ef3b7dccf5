package vault

import (
	"crypto/cipher"
	"crypto/rand"
	stderrors "errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"

	"github.com/hpungsan/scribe/internal/errors"
)

// Version is the first byte of every sealed blob.
const Version byte = 1

// Overhead is the fixed size added to a plaintext by Seal.
const Overhead = 1 + chacha20poly1305.NonceSizeX + chacha20poly1305.Overhead

// Cipher seals and opens self-contained blobs:
//
//	version(1) || nonce(24) || ciphertext || tag(16)
//
// Safe for concurrent use.
type Cipher struct {
	aead cipher.AEAD
}

// NewCipher builds an XChaCha20-Poly1305 cipher from the provider's key.
func NewCipher(keys *KeyProvider) (*Cipher, error) {
	key, err := keys.Key()
	if err != nil {
		return nil, err
	}
	return NewCipherFromKey(key)
}

// NewCipherFromKey builds a cipher from raw key bytes.
func NewCipherFromKey(key []byte) (*Cipher, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, errors.NewInvalidRequest(fmt.Sprintf("invalid key: %v", err))
	}
	return &Cipher{aead: aead}, nil
}

// Seal encrypts plaintext under a fresh random nonce.
func (c *Cipher) Seal(plaintext []byte) ([]byte, error) {
	nonceSize := c.aead.NonceSize()
	out := make([]byte, 1+nonceSize, Overhead+len(plaintext))
	out[0] = Version

	nonce := out[1 : 1+nonceSize]
	if _, err := rand.Read(nonce); err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to generate nonce: %w", err))
	}

	// The version byte is authenticated as associated data.
	return c.aead.Seal(out, nonce, plaintext, out[:1]), nil
}

// Open authenticates and decrypts a blob produced by Seal. Every failure,
// including truncation and unknown versions, is a DECRYPTION error.
func (c *Cipher) Open(blob []byte) ([]byte, error) {
	if len(blob) < Overhead {
		return nil, errors.NewDecryption(stderrors.New("ciphertext too short"))
	}
	if blob[0] != Version {
		return nil, errors.NewDecryption(fmt.Errorf("unsupported version %d", blob[0]))
	}

	nonceSize := c.aead.NonceSize()
	nonce := blob[1 : 1+nonceSize]
	plaintext, err := c.aead.Open(nil, nonce, blob[1+nonceSize:], blob[:1])
	if err != nil {
		return nil, errors.NewDecryption(err)
	}
	if plaintext == nil {
		plaintext = []byte{}
	}
	return plaintext, nil
}
