// Package checkpoint persists in-progress transcription state, one record per job.
//
// A record is replaced atomically after every transcribed chunk and deleted
// when the job completes. If a record is present when a job starts, it is
// authoritative for resume.
package checkpoint

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hpungsan/scribe/internal/errors"
	"github.com/hpungsan/scribe/internal/fileio"
)

// Suffix is appended to the job's audio name to form the checkpoint file name.
const Suffix = ".wav.state"

// Record is the persisted progress of one job.
type Record struct {
	JobID              string `json:"-"`
	LastProcessedChunk int    `json:"last_processed_chunk"`
	Transcript         string `json:"transcript"`
	UpdatedAt          int64  `json:"updated_at"`
}

// Store is a directory of checkpoint files with per-job writer locks.
type Store struct {
	dir string
	now func() time.Time

	mu    sync.Mutex
	locks map[string]*jobLock
}

type jobLock struct {
	mu   sync.Mutex
	refs int
	held bool
}

// New returns a store rooted at dir, creating it if needed.
func New(dir string) (*Store, error) {
	if err := fileio.EnsureDir(dir); err != nil {
		return nil, errors.NewPersistence("create checkpoint directory", err)
	}
	return &Store{dir: dir, now: time.Now, locks: make(map[string]*jobLock)}, nil
}

// Dir returns the checkpoint directory.
func (s *Store) Dir() string {
	return s.dir
}

// Path returns the checkpoint file path for jobID.
func (s *Store) Path(jobID string) string {
	return filepath.Join(s.dir, jobID+Suffix)
}

// Put durably replaces the checkpoint for jobID.
func (s *Store) Put(jobID string, index int, cumulativeText string) error {
	if err := validateJobID(jobID); err != nil {
		return err
	}
	if index < 0 {
		return errors.NewInvalidRequest("chunk index must be >= 0")
	}

	data, err := json.Marshal(Record{
		LastProcessedChunk: index,
		Transcript:         cumulativeText,
		UpdatedAt:          s.now().Unix(),
	})
	if err != nil {
		return errors.NewInternal(err)
	}

	if err := fileio.WriteAtomic(s.Path(jobID), data, 0600); err != nil {
		return errors.NewPersistence("write checkpoint", err)
	}
	return nil
}

// Get returns the checkpoint for jobID, or nil if none exists.
func (s *Store) Get(jobID string) (*Record, error) {
	if err := validateJobID(jobID); err != nil {
		return nil, err
	}

	data, err := fileio.ReadFile(s.Path(jobID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.NewPersistence("read checkpoint", err)
	}

	rec, err := decode(data)
	if err != nil {
		return nil, errors.NewPersistence("decode checkpoint", err)
	}
	rec.JobID = jobID
	return rec, nil
}

// Delete removes the checkpoint for jobID. Missing records are not an error.
func (s *Store) Delete(jobID string) error {
	if err := validateJobID(jobID); err != nil {
		return err
	}
	if err := os.Remove(s.Path(jobID)); err != nil && !os.IsNotExist(err) {
		return errors.NewPersistence("delete checkpoint", err)
	}
	return nil
}

// List returns all readable checkpoints, most recently updated first.
// Corrupt records are skipped.
func (s *Store) List() ([]Record, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, errors.NewPersistence("list checkpoints", err)
	}

	var records []Record
	for _, e := range entries {
		jobID, ok := jobIDFromName(e.Name())
		if !ok || e.IsDir() {
			continue
		}
		rec, err := s.Get(jobID)
		if err != nil || rec == nil {
			continue
		}
		records = append(records, *rec)
	}

	sort.Slice(records, func(i, j int) bool {
		if records[i].UpdatedAt != records[j].UpdatedAt {
			return records[i].UpdatedAt > records[j].UpdatedAt
		}
		return records[i].JobID < records[j].JobID
	})
	return records, nil
}

// Lock acquires the writer lock for jobID, blocking until it is free.
// The returned func releases it and must be called exactly once.
func (s *Store) Lock(jobID string) (unlock func()) {
	s.mu.Lock()
	l, ok := s.locks[jobID]
	if !ok {
		l = &jobLock{}
		s.locks[jobID] = l
	}
	l.refs++
	s.mu.Unlock()

	l.mu.Lock()
	s.mu.Lock()
	l.held = true
	s.mu.Unlock()

	return s.release(jobID, l)
}

// TryLock takes the writer lock for jobID only when no worker holds or waits
// for it.
func (s *Store) TryLock(jobID string) (unlock func(), ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.locks[jobID]; busy {
		return nil, false
	}
	l := &jobLock{refs: 1, held: true}
	l.mu.Lock()
	s.locks[jobID] = l
	return s.release(jobID, l), true
}

func (s *Store) release(jobID string, l *jobLock) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			l.held = false
			l.refs--
			if l.refs == 0 {
				delete(s.locks, jobID)
			}
			s.mu.Unlock()
			l.mu.Unlock()
		})
	}
}

// Locked reports whether a worker currently holds the lock for jobID.
func (s *Store) Locked(jobID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[jobID]
	return ok && l.held
}

// Sweep removes checkpoints not updated within olderThan, skipping jobs that
// are currently locked, plus temp files left by interrupted writes.
// Returns the removed job IDs (temp files are not reported).
func (s *Store) Sweep(olderThan time.Duration) ([]string, error) {
	if olderThan <= 0 {
		return nil, errors.NewInvalidRequest("sweep age must be positive")
	}

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, errors.NewPersistence("list checkpoints", err)
	}

	cutoff := s.now().Add(-olderThan)
	var removed []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		path := filepath.Join(s.dir, name)

		if fileio.IsTemp(name) {
			if info, err := e.Info(); err == nil && info.ModTime().Before(cutoff) {
				_ = os.Remove(path)
			}
			continue
		}

		jobID, ok := jobIDFromName(name)
		if !ok {
			continue
		}
		// Held across the age check and removal so a worker cannot resume
		// from a checkpoint being deleted.
		unlock, ok := s.TryLock(jobID)
		if !ok {
			continue
		}
		swept, err := s.sweepOne(path, e, cutoff)
		unlock()
		if err != nil {
			return removed, err
		}
		if swept {
			removed = append(removed, jobID)
		}
	}

	sort.Strings(removed)
	return removed, nil
}

// updatedAt prefers the timestamp in the record, falling back to the file
// mtime for records that cannot be decoded.
func (s *Store) sweepOne(path string, e os.DirEntry, cutoff time.Time) (bool, error) {
	updated, ok := s.updatedAt(path, e)
	if !ok || !updated.Before(cutoff) {
		return false, nil
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return false, errors.NewPersistence("sweep checkpoint", err)
	}
	return true, nil
}

func (s *Store) updatedAt(path string, e os.DirEntry) (time.Time, bool) {
	if data, err := fileio.ReadFile(path); err == nil {
		if rec, err := decode(data); err == nil && rec.UpdatedAt > 0 {
			return time.Unix(rec.UpdatedAt, 0), true
		}
	}
	info, err := e.Info()
	if err != nil {
		return time.Time{}, false
	}
	return info.ModTime(), true
}

func decode(data []byte) (*Record, error) {
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, err
	}
	if rec.LastProcessedChunk < 0 {
		return nil, stderrors.New("negative chunk index")
	}
	return &rec, nil
}

func jobIDFromName(name string) (string, bool) {
	if !strings.HasSuffix(name, Suffix) {
		return "", false
	}
	id := strings.TrimSuffix(name, Suffix)
	return id, id != ""
}

// validateJobID rejects IDs that could escape the checkpoint directory.
func validateJobID(jobID string) error {
	if jobID == "" {
		return errors.NewInvalidRequest("job id is required")
	}
	if strings.ContainsAny(jobID, `/\`) || strings.Contains(jobID, "..") {
		return errors.NewInvalidRequest(fmt.Sprintf("invalid job id: %q", jobID))
	}
	return nil
}
