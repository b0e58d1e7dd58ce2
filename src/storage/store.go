// Package storage keeps the transient files of each upload. Every upload
// gets its own Session, named by a fresh UUID, so concurrent uploads never
// write to the same path.
package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/username/tradeclean/src/logger"
)

// ArtifactKind names a file stored for an upload.
type ArtifactKind string

const (
	ArtifactOriginal ArtifactKind = "original.csv"
	ArtifactCleaned  ArtifactKind = "cleaned.csv"
	ArtifactSummary  ArtifactKind = "summary.csv"
	ArtifactReport   ArtifactKind = "report.xlsx"
)

// ArtifactKinds lists every kind a session may hold.
var ArtifactKinds = []ArtifactKind{ArtifactOriginal, ArtifactCleaned, ArtifactSummary, ArtifactReport}

// ParseArtifactKind validates a kind coming from a URL.
func ParseArtifactKind(s string) (ArtifactKind, bool) {
	for _, k := range ArtifactKinds {
		if string(k) == s {
			return k, true
		}
	}
	return "", false
}

// ContentType is the MIME type served for the artifact.
func (k ArtifactKind) ContentType() string {
	if k == ArtifactReport {
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "text/csv; charset=utf-8"
}

var (
	ErrInvalidSessionID = errors.New("invalid session id")
	ErrArtifactNotFound = errors.New("artifact not found")
	ErrArtifactExists   = errors.New("artifact already written")
)

// Store is the root directory under which sessions live.
type Store struct {
	root string
}

// NewStore creates root if needed.
func NewStore(root string) (*Store, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload directory %s: %w", root, err)
	}
	return &Store{root: root}, nil
}

// Root returns the directory holding all sessions.
func (s *Store) Root() string {
	return s.root
}

// NewSession starts a session with a new unique ID. Nothing touches the disk
// until the first artifact is written.
func (s *Store) NewSession() *Session {
	id := uuid.NewString()
	return &Session{ID: id, dir: filepath.Join(s.root, id)}
}

// Session reopens an existing session by ID. Only well-formed UUIDs are
// accepted, which also keeps IDs from escaping the root directory.
func (s *Store) Session(id string) (*Session, error) {
	parsed, err := uuid.Parse(id)
	if err != nil || parsed.String() != id {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSessionID, id)
	}
	return &Session{ID: id, dir: filepath.Join(s.root, id)}, nil
}

// DeleteAll removes every entry under the root and reports how many were
// removed. It keeps going after a failure and returns the joined errors.
func (s *Store) DeleteAll() (int, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to list upload directory: %w", err)
	}

	var errs []error
	removed := 0
	for _, e := range entries {
		path := filepath.Join(s.root, e.Name())
		if err := os.RemoveAll(path); err != nil {
			logger.L.Error("Failed to delete upload entry", "path", path, "error", err)
			errs = append(errs, err)
			continue
		}
		removed++
	}
	logger.L.Info("Deleted uploads", "root", s.root, "removed", removed, "failed", len(errs))
	return removed, errors.Join(errs...)
}

// Session is the storage context of a single upload.
type Session struct {
	ID  string
	dir string
}

// Path returns where the artifact lives on disk.
func (s *Session) Path(kind ArtifactKind) string {
	return filepath.Join(s.dir, string(kind))
}

// Write stores an artifact. Each kind can be written once per session.
func (s *Session) Write(kind ArtifactKind, data []byte) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}
	f, err := os.OpenFile(s.Path(kind), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return fmt.Errorf("%w: %s/%s", ErrArtifactExists, s.ID, kind)
		}
		return fmt.Errorf("failed to create %s: %w", kind, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", kind, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", kind, err)
	}
	logger.L.Debug("Stored artifact", "sessionID", s.ID, "kind", kind, "bytes", len(data))
	return nil
}

// Remove deletes the session directory and everything in it. Removing a
// session that was never written is not an error.
func (s *Session) Remove() error {
	if err := os.RemoveAll(s.dir); err != nil {
		return fmt.Errorf("failed to remove session %s: %w", s.ID, err)
	}
	return nil
}

// Open returns the stored artifact for reading.
func (s *Session) Open(kind ArtifactKind) (*os.File, error) {
	f, err := os.Open(s.Path(kind))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s/%s", ErrArtifactNotFound, s.ID, kind)
		}
		return nil, err
	}
	return f, nil
}

// ReadFile returns the whole artifact.
func (s *Session) ReadFile(kind ArtifactKind) ([]byte, error) {
	data, err := os.ReadFile(s.Path(kind))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s/%s", ErrArtifactNotFound, s.ID, kind)
		}
		return nil, err
	}
	return data, nil
}
