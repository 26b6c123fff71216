package selection

import (
	"errors"
	"fmt"
	"sync"
)

// ErrNoAcceptableFiles is returned when a batch contains no supported image.
var ErrNoAcceptableFiles = errors.New("no supported image files selected (png, jpg, jpeg, heic, heif)")

// ErrIndexOutOfRange is returned for moves or removals outside the set.
var ErrIndexOutOfRange = errors.New("index out of range")

// Set is the ordered list of accepted candidates. Order becomes page order in
// the merged spreadsheet.
type Set struct {
	mu    sync.RWMutex
	files []Candidate
}

// Add appends the accepted subset of batch. Rejected members of a mixed batch
// are dropped without a warning; a batch with nothing acceptable leaves the set
// untouched and returns ErrNoAcceptableFiles.
func (s *Set) Add(batch []Candidate) (int, error) {
	accepted := Filter(batch)
	if len(accepted) == 0 {
		return 0, ErrNoAcceptableFiles
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.files = append(s.files, accepted...)
	return len(accepted), nil
}

// Move relocates the element at from to to, shifting the elements in between.
func (s *Set) Move(from, to int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !inRange(from, len(s.files)) || !inRange(to, len(s.files)) {
		return fmt.Errorf("move %d -> %d in %d files: %w", from, to, len(s.files), ErrIndexOutOfRange)
	}
	s.files = MoveFile(s.files, from, to)
	return nil
}

// Remove drops the element at index.
func (s *Set) Remove(index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !inRange(index, len(s.files)) {
		return fmt.Errorf("remove %d of %d files: %w", index, len(s.files), ErrIndexOutOfRange)
	}
	s.files = append(s.files[:index:index], s.files[index+1:]...)
	return nil
}

// Clear empties the set.
func (s *Set) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files = nil
}

// Len returns the number of selected files.
func (s *Set) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.files)
}

// Snapshot returns a copy of the ordered selection.
func (s *Set) Snapshot() []Candidate {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.files) == 0 {
		return nil
	}
	dup := make([]Candidate, len(s.files))
	copy(dup, s.files)
	return dup
}

func inRange(i, n int) bool {
	return i >= 0 && i < n
}
