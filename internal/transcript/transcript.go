// Package transcript stores finished transcripts as write-once encrypted
// files, one per completed job, indexed for listing.
package transcript

import (
	"context"
	"crypto/rand"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/hpungsan/scribe/internal/errors"
	"github.com/hpungsan/scribe/internal/fileio"
	"github.com/hpungsan/scribe/internal/vault"
)

const (
	filePrefix = "transcript_"
	fileSuffix = ".bin"

	// TimestampLayout is the creation timestamp embedded in file names.
	TimestampLayout = "20060102_150405"
)

// Record describes one stored transcript. The ciphertext lives in FileName.
type Record struct {
	ID        string `json:"id"`
	JobID     string `json:"job_id"`
	FileName  string `json:"file_name"`
	SizeBytes int64  `json:"size_bytes"`
	CreatedAt int64  `json:"created_at"`
}

// Index is the queryable catalogue of stored transcripts.
type Index interface {
	InsertTranscript(ctx context.Context, rec Record) error
	GetTranscript(ctx context.Context, id string) (*Record, error)
	ListTranscripts(ctx context.Context) ([]Record, error)
}

// Store writes and reads encrypted transcripts.
type Store struct {
	dir    string
	cipher *vault.Cipher
	index  Index
	now    func() time.Time

	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

// NewStore returns a store writing into dir. index may be nil, in which case
// listing and lookup scan the directory.
func NewStore(dir string, cipher *vault.Cipher, index Index) (*Store, error) {
	if err := fileio.EnsureDir(dir); err != nil {
		return nil, errors.NewPersistence("create transcript directory", err)
	}
	return &Store{
		dir:     dir,
		cipher:  cipher,
		index:   index,
		now:     time.Now,
		entropy: ulid.Monotonic(rand.Reader, 0),
	}, nil
}

// Dir returns the transcript directory.
func (s *Store) Dir() string {
	return s.dir
}

// Save encrypts plaintext and writes it to a new file. Existing files are
// never overwritten.
func (s *Store) Save(ctx context.Context, jobID, plaintext string) (*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.NewCancelled("save transcript")
	}

	now := s.now()
	id, err := s.newID(now)
	if err != nil {
		return nil, errors.NewInternal(err)
	}

	blob, err := s.cipher.Seal([]byte(plaintext))
	if err != nil {
		return nil, err
	}

	rec := Record{
		ID:        id,
		JobID:     jobID,
		FileName:  FileName(now, id),
		SizeBytes: int64(len(blob)),
		CreatedAt: now.Unix(),
	}

	path := filepath.Join(s.dir, rec.FileName)
	if err := fileio.WriteExclusive(path, blob, 0600); err != nil {
		return nil, errors.NewPersistence("write transcript", err)
	}

	if s.index != nil {
		if err := s.index.InsertTranscript(ctx, rec); err != nil {
			// Unindexed files would be invisible to List; don't leave one behind.
			os.Remove(path)
			return nil, errors.NewPersistence("index transcript", err)
		}
	}

	return &rec, nil
}

// Load decrypts a sealed transcript. Wrong key or altered bytes yield DECRYPTION.
func (s *Store) Load(ciphertext []byte) (string, error) {
	plaintext, err := s.cipher.Open(ciphertext)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}

// Read loads and decrypts the transcript with the given id.
func (s *Store) Read(ctx context.Context, id string) (string, error) {
	rec, err := s.Get(ctx, id)
	if err != nil {
		return "", err
	}

	data, err := fileio.ReadFile(filepath.Join(s.dir, rec.FileName))
	if err != nil {
		if os.IsNotExist(err) {
			return "", errors.NewNotFound("transcript file", rec.FileName)
		}
		return "", errors.NewPersistence("read transcript", err)
	}
	return s.Load(data)
}

// Get returns the record for id.
func (s *Store) Get(ctx context.Context, id string) (*Record, error) {
	if s.index != nil {
		return s.index.GetTranscript(ctx, id)
	}

	records, err := s.scan()
	if err != nil {
		return nil, err
	}
	for i := range records {
		if records[i].ID == id {
			return &records[i], nil
		}
	}
	return nil, errors.NewNotFound("transcript", id)
}

// List returns all records, newest first.
func (s *Store) List(ctx context.Context) ([]Record, error) {
	if s.index != nil {
		return s.index.ListTranscripts(ctx)
	}
	return s.scan()
}

// FileName builds the on-disk name for a transcript created at t.
func FileName(t time.Time, id string) string {
	return fmt.Sprintf("%s%s_%s%s", filePrefix, t.Format(TimestampLayout), id, fileSuffix)
}

// ParseFileName recovers the id and creation time from a transcript file name.
func ParseFileName(name string) (id string, created time.Time, ok bool) {
	if !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, fileSuffix) {
		return "", time.Time{}, false
	}
	core := strings.TrimSuffix(strings.TrimPrefix(name, filePrefix), fileSuffix)

	// core = YYYYmmdd_HHMMSS_<ULID>
	if len(core) != len(TimestampLayout)+1+ulid.EncodedSize || core[len(TimestampLayout)] != '_' {
		return "", time.Time{}, false
	}
	parsed, err := ulid.ParseStrict(core[len(TimestampLayout)+1:])
	if err != nil {
		return "", time.Time{}, false
	}
	return parsed.String(), ulid.Time(parsed.Time()), true
}

// scan lists transcripts from file names. Used when no index is configured.
func (s *Store) scan() ([]Record, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, errors.NewPersistence("list transcripts", err)
	}

	var records []Record
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		id, created, ok := ParseFileName(e.Name())
		if !ok {
			continue
		}
		rec := Record{ID: id, FileName: e.Name(), CreatedAt: created.Unix()}
		if info, err := e.Info(); err == nil {
			rec.SizeBytes = info.Size()
		}
		records = append(records, rec)
	}

	// ULIDs sort by creation time
	sort.Slice(records, func(i, j int) bool {
		return records[i].ID > records[j].ID
	})
	return records, nil
}

func (s *Store) newID(t time.Time) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := ulid.New(ulid.Timestamp(t), s.entropy)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}
