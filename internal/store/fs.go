package store

import (
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/sys/unix"

	apperrors "github.com/Adithya-Monish-Kumar-K/log-ingest-engine/pkg/errors"
)

// FSStore stores every key as a file below root. Put and Get hold an
// exclusive flock on the file for the duration of the call. Append handles
// take no lock: the write-ahead log guarantees a single writer per segment
// and never rewrites a segment once it is sealed.
type FSStore struct {
	root   string
	logger *slog.Logger
}

// NewFSStore creates root if needed and returns a store rooted there.
func NewFSStore(root string) (*FSStore, error) {
	if root == "" {
		return nil, apperrors.New(apperrors.ErrConfiguration, "store root is empty")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStore, err, "resolving store root")
	}
	if err := os.MkdirAll(abs, 0755); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStore, err, "creating store root")
	}
	return &FSStore{
		root:   abs,
		logger: slog.Default().With("component", "fs-store", "root", abs),
	}, nil
}

// Root returns the absolute store root.
func (s *FSStore) Root() string {
	return s.root
}

func (s *FSStore) path(key string) (string, error) {
	k, err := cleanKey(key)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.root, filepath.FromSlash(k)), nil
}

func (s *FSStore) Put(key string, data []byte) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		return apperrors.Wrap(apperrors.ErrStore, err, "creating parent directories for "+key)
	}
	f, err := os.OpenFile(p, os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrStore, err, "opening "+key)
	}
	defer f.Close()
	if err := lock(f); err != nil {
		return apperrors.Wrap(apperrors.ErrStore, err, "locking "+key)
	}
	defer unlock(f)
	if err := f.Truncate(0); err != nil {
		return apperrors.Wrap(apperrors.ErrStore, err, "truncating "+key)
	}
	if _, err := f.Write(data); err != nil {
		return apperrors.Wrap(apperrors.ErrStore, err, "writing "+key)
	}
	if err := f.Sync(); err != nil {
		return apperrors.Wrap(apperrors.ErrStore, err, "syncing "+key)
	}
	s.logger.Debug("blob written", "key", key, "bytes", len(data))
	return nil
}

func (s *FSStore) Get(key string) ([]byte, error) {
	p, err := s.path(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, notFound(key)
		}
		return nil, apperrors.Wrap(apperrors.ErrStore, err, "opening "+key)
	}
	defer f.Close()
	if err := lock(f); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStore, err, "locking "+key)
	}
	defer unlock(f)
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStore, err, "reading "+key)
	}
	return data, nil
}

// Delete removes key and then every parent directory left empty, stopping
// at the store root.
func (s *FSStore) Delete(key string) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return notFound(key)
		}
		return apperrors.Wrap(apperrors.ErrStore, err, "removing "+key)
	}
	for dir := filepath.Dir(p); dir != s.root && strings.HasPrefix(dir, s.root); dir = filepath.Dir(dir) {
		entries, err := os.ReadDir(dir)
		if err != nil || len(entries) > 0 {
			break
		}
		if err := os.Remove(dir); err != nil {
			return apperrors.Wrap(apperrors.ErrStore, err, "pruning "+dir)
		}
	}
	return nil
}

func (s *FSStore) Exists(key string) bool {
	p, err := s.path(key)
	if err != nil {
		return false
	}
	_, err = os.Stat(p)
	return err == nil
}

// Clean removes key and everything below it. A missing key is not an error.
func (s *FSStore) Clean(key string) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(p); err != nil {
		return apperrors.Wrap(apperrors.ErrStore, err, "cleaning "+key)
	}
	return nil
}

// List returns every file key below prefix, sorted. prefix names a
// directory; an absent directory yields no keys.
func (s *FSStore) List(prefix string) ([]string, error) {
	dir := s.root
	if prefix != "" {
		p, err := s.path(prefix)
		if err != nil {
			return nil, err
		}
		dir = p
	}
	var keys []string
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return fs.SkipDir
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(s.root, p)
		if err != nil {
			return err
		}
		keys = append(keys, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStore, err, "listing "+prefix)
	}
	sort.Strings(keys)
	return keys, nil
}

// OpenAppend opens key for appending, creating it and its parent
// directories when needed.
func (s *FSStore) OpenAppend(key string) (AppendHandle, error) {
	p, err := s.path(key)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStore, err, "creating parent directories for "+key)
	}
	f, err := os.OpenFile(p, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStore, err, "opening "+key+" for append")
	}
	return f, nil
}

// OpenRead opens key for streaming reads without locking it.
func (s *FSStore) OpenRead(key string) (io.ReadCloser, error) {
	p, err := s.path(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, notFound(key)
		}
		return nil, apperrors.Wrap(apperrors.ErrStore, err, "opening "+key+" for read")
	}
	return f, nil
}

func lock(f *os.File) error {
	for {
		err := unix.Flock(int(f.Fd()), unix.LOCK_EX)
		if err != unix.EINTR {
			return err
		}
	}
}

func unlock(f *os.File) {
	_ = unix.Flock(int(f.Fd()), unix.LOCK_UN)
}
