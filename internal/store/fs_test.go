package store

import (
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/log-ingest-engine/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/log-ingest-engine/pkg/errors"
)

func newFS(t *testing.T) *FSStore {
	t.Helper()
	s, err := NewFSStore(t.TempDir())
	require.NoError(t, err)
	return s
}

func TestFSPutGet(t *testing.T) {
	s := newFS(t)
	require.NoError(t, s.Put("a/b/c.term", []byte("hello")))
	assert.True(t, s.Exists("a/b/c.term"))

	data, err := s.Get("a/b/c.term")
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), data)

	// overwrite with something shorter truncates the old contents
	require.NoError(t, s.Put("a/b/c.term", []byte("hi")))
	data, err = s.Get("a/b/c.term")
	require.NoError(t, err)
	assert.Equal(t, []byte("hi"), data)
}

func TestFSGetMissing(t *testing.T) {
	s := newFS(t)
	_, err := s.Get("missing")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.ErrorIs(t, err, apperrors.ErrStore)
	assert.False(t, s.Exists("missing"))
}

func TestFSDeletePrunesEmptyParents(t *testing.T) {
	s := newFS(t)
	require.NoError(t, s.Put("x/y/z/blob", []byte("1")))
	require.NoError(t, s.Put("x/keep", []byte("2")))

	require.NoError(t, s.Delete("x/y/z/blob"))
	assert.False(t, s.Exists("x/y/z/blob"))
	_, err := os.Stat(filepath.Join(s.Root(), "x", "y"))
	assert.True(t, os.IsNotExist(err), "empty parents should be removed")
	assert.True(t, s.Exists("x/keep"))
	_, err = os.Stat(s.Root())
	assert.NoError(t, err, "root must survive")

	assert.ErrorIs(t, s.Delete("x/y/z/blob"), apperrors.ErrNotFound)
}

func TestFSRejectsEscapingKeys(t *testing.T) {
	s := newFS(t)
	for _, key := range []string{"", "../outside", "/etc/passwd", "a/../../b", "."} {
		err := s.Put(key, []byte("x"))
		assert.ErrorIs(t, err, apperrors.ErrInvalidKey, "key %q", key)
	}
	// a key that climbs but stays inside is fine
	require.NoError(t, s.Put("a/../b", []byte("x")))
	assert.True(t, s.Exists("b"))
}

func TestFSCleanAndList(t *testing.T) {
	s := newFS(t)
	for _, key := range []string{"wal/2.seg", "wal/1.seg", "dict/final.term"} {
		require.NoError(t, s.Put(key, []byte(key)))
	}
	keys, err := s.List("wal")
	require.NoError(t, err)
	assert.Equal(t, []string{"wal/1.seg", "wal/2.seg"}, keys)

	keys, err = s.List("")
	require.NoError(t, err)
	assert.Equal(t, []string{"dict/final.term", "wal/1.seg", "wal/2.seg"}, keys)

	keys, err = s.List("nothing-here")
	require.NoError(t, err)
	assert.Empty(t, keys)

	require.NoError(t, s.Clean("wal"))
	require.NoError(t, s.Clean("wal"))
	keys, err = s.List("wal")
	require.NoError(t, err)
	assert.Empty(t, keys)
	assert.True(t, s.Exists("dict/final.term"))
}

func TestFSAppendAndRead(t *testing.T) {
	s := newFS(t)
	h, err := s.OpenAppend("wal/000.seg")
	require.NoError(t, err)
	_, err = h.Write([]byte("abc"))
	require.NoError(t, err)
	_, err = h.Write([]byte("def"))
	require.NoError(t, err)
	require.NoError(t, h.Sync())
	require.NoError(t, h.Close())

	h, err = s.OpenAppend("wal/000.seg")
	require.NoError(t, err)
	_, err = h.Write([]byte("g"))
	require.NoError(t, err)
	require.NoError(t, h.Close())

	r, err := s.OpenRead("wal/000.seg")
	require.NoError(t, err)
	defer r.Close()
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "abcdefg", string(data))

	_, err = s.OpenRead("wal/nope.seg")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestFSConcurrentPutsNeverInterleave(t *testing.T) {
	s := newFS(t)
	a := make([]byte, 64<<10)
	b := make([]byte, 32<<10)
	for i := range a {
		a[i] = 'a'
	}
	for i := range b {
		b[i] = 'b'
	}

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			data := a
			if i%2 == 1 {
				data = b
			}
			assert.NoError(t, s.Put("shared", data))
		}(i)
	}
	wg.Wait()

	got, err := s.Get("shared")
	require.NoError(t, err)
	if !assert.True(t, len(got) == len(a) || len(got) == len(b)) {
		return
	}
	for _, c := range got {
		if c != got[0] {
			t.Fatal("blob contains bytes from two writers")
		}
	}
}

func TestNewSelectsBackend(t *testing.T) {
	s, err := New(config.StoreConfig{Backend: "fs", Root: t.TempDir()}, config.RedisConfig{})
	require.NoError(t, err)
	assert.IsType(t, &FSStore{}, s)

	_, err = New(config.StoreConfig{Backend: "tape"}, config.RedisConfig{})
	assert.ErrorIs(t, err, apperrors.ErrConfiguration)

	_, err = NewFSStore("")
	assert.ErrorIs(t, err, apperrors.ErrConfiguration)
}

type closingStore struct {
	BlobStore
	closed int
}

func (s *closingStore) Close() error {
	s.closed++
	return nil
}

func TestCloseReleasesClosableStores(t *testing.T) {
	fs := newFS(t)
	assert.NoError(t, Close(fs))

	cs := &closingStore{BlobStore: fs}
	require.NoError(t, Close(cs))
	assert.Equal(t, 1, cs.closed)

	var _ io.Closer = (*RedisStore)(nil)
}
