// Package vault owns the process encryption key and the authenticated
// cipher used for transcripts at rest.
//
// Losing key.key makes every stored transcript permanently unrecoverable.
// There is no rotation or escrow.
package vault

import (
	"crypto/rand"
	"fmt"
	"os"
	"sync"

	"golang.org/x/crypto/chacha20poly1305"

	"github.com/hpungsan/scribe/internal/errors"
	"github.com/hpungsan/scribe/internal/fileio"
)

// KeySize is the length of the symmetric key in bytes.
const KeySize = chacha20poly1305.KeySize

// KeyProvider loads or creates the key file exactly once per session.
type KeyProvider struct {
	path string

	once sync.Once
	key  []byte
	err  error
}

// NewKeyProvider returns a provider for the key stored at path.
func NewKeyProvider(path string) *KeyProvider {
	return &KeyProvider{path: path}
}

// Initialize loads the key, generating and persisting a new one if the file
// does not exist. Safe to call repeatedly; only the first call does work and
// every call returns its result.
func (p *KeyProvider) Initialize() error {
	p.once.Do(func() {
		p.key, p.err = loadOrCreate(p.path)
	})
	return p.err
}

// Key returns the initialized key. The slice must not be modified.
func (p *KeyProvider) Key() ([]byte, error) {
	if err := p.Initialize(); err != nil {
		return nil, err
	}
	return p.key, nil
}

// Path returns the key file location.
func (p *KeyProvider) Path() string {
	return p.path
}

func loadOrCreate(path string) ([]byte, error) {
	key, err := readKey(path)
	if err == nil {
		return key, nil
	}
	if !os.IsNotExist(err) {
		return nil, err
	}

	key = make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to generate key: %w", err))
	}

	if err := fileio.WriteExclusive(path, key, 0600); err != nil {
		// Another process created it first; use theirs.
		if os.IsExist(err) {
			return readKey(path)
		}
		return nil, errors.NewPersistence("write key", err)
	}
	return key, nil
}

func readKey(path string) ([]byte, error) {
	data, err := fileio.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, err
		}
		return nil, errors.NewPersistence("read key", err)
	}
	if len(data) != KeySize {
		return nil, errors.NewPersistence("read key",
			fmt.Errorf("key file has %d bytes, want %d", len(data), KeySize))
	}
	return data, nil
}
