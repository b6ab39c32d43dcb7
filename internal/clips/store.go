package clips

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
)

// Store is the ordered, in-memory clip ledger. Names are generated from a
// monotonic counter and never reused within a session.
type Store struct {
	mu    sync.Mutex
	clips []Clip
	next  int
}

func NewStore() *Store {
	return &Store{next: 1}
}

// Append adds c at the end. The counter is advanced past c's index so a
// generated name can never collide with it.
func (s *Store) Append(c Clip) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clips = append(s.clips, c)
	if n, ok := ClipIndex(c.Name); ok && n >= s.next {
		s.next = n + 1
	}
}

// AppendNext names c from the counter, appends it and advances the
// counter in one step.
func (s *Store) AppendNext(c Clip) Clip {
	s.mu.Lock()
	defer s.mu.Unlock()
	c.Name = ClipName(s.next)
	s.next++
	s.clips = append(s.clips, c)
	return c
}

// Delete removes the first clip named name and reports whether one was
// found.
func (s *Store) Delete(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, c := range s.clips {
		if c.Name == name {
			s.clips = append(s.clips[:i], s.clips[i+1:]...)
			return true
		}
	}
	return false
}

// Get returns the clip named name.
func (s *Store) Get(name string) (Clip, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.clips {
		if c.Name == name {
			return c, true
		}
	}
	return Clip{}, false
}

// List returns a snapshot in insertion order.
func (s *Store) List() []Clip {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Clip, len(s.clips))
	copy(out, s.clips)
	return out
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clips)
}

// NextName returns the name the next AppendNext will assign.
func (s *Store) NextName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ClipName(s.next)
}

// Persist rewrites dir/clips_metadata.csv with the full current sequence.
// The file is replaced atomically; a failed write leaves the previous
// ledger in place.
func (s *Store) Persist(dir string) error {
	clips := s.List()
	path := filepath.Join(dir, LedgerFilename)

	tmp, err := os.CreateTemp(dir, ".clips_metadata-*.csv")
	if err != nil {
		return &IOError{Op: "persist", Path: path, Err: err}
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if err := WriteLedger(tmp, clips); err != nil {
		tmp.Close()
		cleanup()
		return &IOError{Op: "persist", Path: path, Err: err}
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return &IOError{Op: "persist", Path: path, Err: err}
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		cleanup()
		return &IOError{Op: "persist", Path: path, Err: err}
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return &IOError{Op: "persist", Path: path, Err: err}
	}
	return nil
}

// Load replaces the sequence with the ledger in dir and recomputes the
// counter as the highest clip index plus one. It returns false, and leaves
// the store untouched, when dir holds no ledger.
func (s *Store) Load(dir string) (bool, error) {
	path := filepath.Join(dir, LedgerFilename)
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, &ParseError{Path: path, Err: err}
	}
	defer f.Close()

	loaded, err := ReadLedger(f, path)
	if err != nil {
		return false, err
	}

	next := 1
	for _, c := range loaded {
		if n, ok := ClipIndex(c.Name); ok && n+1 > next {
			next = n + 1
		}
	}

	s.mu.Lock()
	s.clips = loaded
	s.next = next
	s.mu.Unlock()
	return true, nil
}

// HasLedger reports whether dir already holds a clip ledger.
func HasLedger(dir string) bool {
	if dir == "" {
		return false
	}
	info, err := os.Stat(filepath.Join(dir, LedgerFilename))
	return err == nil && !info.IsDir()
}
