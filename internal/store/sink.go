package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/wonny/movers/internal/contracts"
)

var (
	_ contracts.BatchBlobSink = (*FileSink)(nil)
	_ contracts.BlobRemover   = (*FileSink)(nil)
	_ contracts.BatchBlobSink = (*MemorySink)(nil)
	_ contracts.BlobRemover   = (*MemorySink)(nil)
)

// FileSink writes artifacts under a root directory.
// Each Put replaces the whole file via temp file + rename.
type FileSink struct {
	root string
}

// NewFileSink creates a sink rooted at dir (created on first write)
func NewFileSink(dir string) *FileSink {
	return &FileSink{root: dir}
}

// Root returns the sink directory
func (s *FileSink) Root() string {
	return s.root
}

// Path resolves an artifact name to its file path
func (s *FileSink) Path(name string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(name))
	if name == "" || filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid artifact name %q", name)
	}
	return filepath.Join(s.root, clean), nil
}

// Put atomically replaces the artifact called name
func (s *FileSink) Put(ctx context.Context, name string, payload []byte) error {
	return s.PutBatch(ctx, []contracts.Blob{{Name: name, Payload: payload}})
}

// staged is one artifact on its way into place
type staged struct {
	name     string
	path     string
	tmp      string
	backup   string // previous file moved aside, empty when there was none
	promoted bool
}

// PutBatch writes every blob to a temp file first, then renames them into
// place. If any rename fails the promoted files are rolled back to their
// previous contents.
func (s *FileSink) PutBatch(ctx context.Context, blobs []contracts.Blob) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	batch := make([]*staged, 0, len(blobs))
	defer func() {
		for _, st := range batch {
			if st.tmp != "" {
				os.Remove(st.tmp) // no-op after a successful rename
			}
		}
	}()

	for _, b := range blobs {
		st, err := s.stage(b)
		if st != nil {
			batch = append(batch, st)
		}
		if err != nil {
			return err
		}
	}

	for _, st := range batch {
		if err := promote(st); err != nil {
			rollback(batch)
			return err
		}
	}

	for _, st := range batch {
		if st.backup != "" {
			os.Remove(st.backup)
		}
	}
	return nil
}

// stage writes one payload to a synced temp file next to its target
func (s *FileSink) stage(b contracts.Blob) (*staged, error) {
	path, err := s.Path(b.Name)
	if err != nil {
		return nil, err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-"+filepath.Base(path)+"-*")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	st := &staged{name: b.Name, path: path, tmp: tmp.Name()}

	if _, err := tmp.Write(b.Payload); err != nil {
		tmp.Close()
		return st, fmt.Errorf("write %s: %w", b.Name, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return st, fmt.Errorf("sync %s: %w", b.Name, err)
	}
	if err := tmp.Close(); err != nil {
		return st, fmt.Errorf("close %s: %w", b.Name, err)
	}
	if err := os.Chmod(st.tmp, 0o644); err != nil {
		return st, fmt.Errorf("chmod %s: %w", b.Name, err)
	}
	return st, nil
}

// promote moves any existing file aside, then renames the temp file into place
func promote(st *staged) error {
	info, err := os.Lstat(st.path)
	switch {
	case err == nil && !info.Mode().IsRegular():
		return fmt.Errorf("replace %s: existing entry is not a regular file", st.name)
	case err == nil:
		st.backup = filepath.Join(filepath.Dir(st.path), ".bak-"+filepath.Base(st.path)+"-"+uuid.NewString())
		if err := os.Rename(st.path, st.backup); err != nil {
			st.backup = ""
			return fmt.Errorf("back up %s: %w", st.name, err)
		}
	case !errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("stat %s: %w", st.name, err)
	}

	if err := os.Rename(st.tmp, st.path); err != nil {
		return fmt.Errorf("rename %s: %w", st.name, err)
	}
	st.tmp = ""
	st.promoted = true
	return nil
}

// rollback restores every target touched by the batch, newest first
func rollback(batch []*staged) {
	for i := len(batch) - 1; i >= 0; i-- {
		st := batch[i]
		if st.promoted {
			os.Remove(st.path)
		}
		if st.backup != "" {
			os.Rename(st.backup, st.path)
		}
	}
}

// Remove deletes the artifact called name
func (s *FileSink) Remove(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := s.Path(name)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", name, err)
	}
	return nil
}

// MemorySink keeps artifacts in memory
type MemorySink struct {
	mu    sync.RWMutex
	blobs map[string][]byte
	puts  int
}

// NewMemorySink creates an empty in-memory sink
func NewMemorySink() *MemorySink {
	return &MemorySink{blobs: make(map[string][]byte)}
}

// Put stores a copy of payload under name
func (s *MemorySink) Put(ctx context.Context, name string, payload []byte) error {
	return s.PutBatch(ctx, []contracts.Blob{{Name: name, Payload: payload}})
}

// PutBatch stores every blob under one lock
func (s *MemorySink) PutBatch(ctx context.Context, blobs []contracts.Blob) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, b := range blobs {
		s.blobs[b.Name] = append([]byte(nil), b.Payload...)
		s.puts++
	}
	return nil
}

// Remove deletes the artifact called name
func (s *MemorySink) Remove(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.blobs, name)
	return nil
}

// Get returns the artifact called name
func (s *MemorySink) Get(name string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.blobs[name]
	return b, ok
}

// Names returns all artifact names sorted
func (s *MemorySink) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.blobs))
	for n := range s.blobs {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Puts counts every Put, including overwrites
func (s *MemorySink) Puts() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.puts
}
