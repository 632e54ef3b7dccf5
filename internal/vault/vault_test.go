package vault

import (
	"bytes"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hpungsan/scribe/internal/errors"
)

func newTestCipher(t *testing.T) *Cipher {
	t.Helper()
	c, err := NewCipher(NewKeyProvider(filepath.Join(t.TempDir(), "key.key")))
	require.NoError(t, err)
	return c
}

func TestKeyProvider_CreatesKeyOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "key.key")
	p := NewKeyProvider(path)

	require.NoError(t, p.Initialize())
	require.NoError(t, p.Initialize())

	key, err := p.Key()
	require.NoError(t, err)
	if len(key) != KeySize {
		t.Errorf("len(key) = %d, want %d", len(key), KeySize)
	}

	info, err := os.Stat(path)
	require.NoError(t, err)
	if info.Mode().Perm() != 0600 {
		t.Errorf("key perm = %o, want 600", info.Mode().Perm())
	}

	// A new session loads the same key.
	again, err := NewKeyProvider(path).Key()
	require.NoError(t, err)
	if !bytes.Equal(key, again) {
		t.Error("reloaded key differs from generated key")
	}
}

func TestKeyProvider_ConcurrentInitialize(t *testing.T) {
	p := NewKeyProvider(filepath.Join(t.TempDir(), "key.key"))

	var wg sync.WaitGroup
	keys := make([][]byte, 16)
	for i := range keys {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			k, err := p.Key()
			if err == nil {
				keys[i] = k
			}
		}(i)
	}
	wg.Wait()

	for i := 1; i < len(keys); i++ {
		if !bytes.Equal(keys[0], keys[i]) {
			t.Fatalf("key %d differs from key 0", i)
		}
	}
}

func TestKeyProvider_WrongSize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "key.key")
	require.NoError(t, os.WriteFile(path, []byte("short"), 0600))

	_, err := NewKeyProvider(path).Key()
	if !errors.Is(err, errors.ErrPersistence) {
		t.Errorf("Key() error = %v, want PERSISTENCE", err)
	}
}

func TestCipher_RoundTrip(t *testing.T) {
	c := newTestCipher(t)

	tests := []string{
		"",
		"patient reports mild headache",
		"non-ASCII: café, naïve, 日本語, emoji 🎙️",
		string([]byte{0, 1, 2, 255}),
	}
	for _, plaintext := range tests {
		blob, err := c.Seal([]byte(plaintext))
		require.NoError(t, err)
		if len(blob) != len(plaintext)+Overhead {
			t.Errorf("len(blob) = %d, want %d", len(blob), len(plaintext)+Overhead)
		}

		got, err := c.Open(blob)
		require.NoError(t, err)
		if string(got) != plaintext {
			t.Errorf("Open(Seal(%q)) = %q", plaintext, got)
		}
	}
}

func TestCipher_FreshNonce(t *testing.T) {
	c := newTestCipher(t)

	a, err := c.Seal([]byte("same"))
	require.NoError(t, err)
	b, err := c.Seal([]byte("same"))
	require.NoError(t, err)
	if bytes.Equal(a, b) {
		t.Error("two seals of the same plaintext produced identical blobs")
	}
}

func TestCipher_TamperDetection(t *testing.T) {
	c := newTestCipher(t)
	blob, err := c.Seal([]byte("the quick brown fox"))
	require.NoError(t, err)

	// Every single-byte flip must fail with DECRYPTION.
	for i := range blob {
		tampered := append([]byte(nil), blob...)
		tampered[i] ^= 0x01

		got, err := c.Open(tampered)
		if !errors.Is(err, errors.ErrDecryption) {
			t.Fatalf("byte %d flipped: Open() = %q, %v; want DECRYPTION", i, got, err)
		}
	}
}

func TestCipher_WrongKey(t *testing.T) {
	blob, err := newTestCipher(t).Seal([]byte("secret"))
	require.NoError(t, err)

	_, err = newTestCipher(t).Open(blob)
	if !errors.Is(err, errors.ErrDecryption) {
		t.Errorf("Open() with wrong key error = %v, want DECRYPTION", err)
	}
}

func TestCipher_Truncated(t *testing.T) {
	c := newTestCipher(t)
	blob, err := c.Seal([]byte("secret"))
	require.NoError(t, err)

	for _, n := range []int{0, 1, Overhead - 1, len(blob) - 1} {
		_, err := c.Open(blob[:n])
		if !errors.Is(err, errors.ErrDecryption) {
			t.Errorf("Open(blob[:%d]) error = %v, want DECRYPTION", n, err)
		}
	}
}

func TestNewCipherFromKey_BadSize(t *testing.T) {
	if _, err := NewCipherFromKey([]byte("too short")); err == nil {
		t.Error("NewCipherFromKey should reject a short key")
	}
}
