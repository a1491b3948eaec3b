package cas

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/lyzr/glbconvert/common/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	root := t.TempDir()
	s, err := NewStore(filepath.Join(root, "uploads"), filepath.Join(root, "outputs"), logger.Nop())
	require.NoError(t, err)
	return s
}

func TestComputeKey_Deterministic(t *testing.T) {
	a := ComputeKey([]byte("ISO-10303-21;"))
	b := ComputeKey([]byte("ISO-10303-21;"))
	c := ComputeKey([]byte("ISO-10303-21; "))

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, string(a), 64)
	assert.Equal(t, Key("e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"), ComputeKey(nil))
}

func TestKeyFromReader_MatchesComputeKey(t *testing.T) {
	content := bytes.Repeat([]byte("solid"), 10000)
	key, n, err := KeyFromReader(bytes.NewReader(content))
	require.NoError(t, err)
	assert.Equal(t, ComputeKey(content), key)
	assert.Equal(t, int64(len(content)), n)
}

func TestParseKey(t *testing.T) {
	valid := string(ComputeKey([]byte("x")))
	key, err := ParseKey(valid)
	require.NoError(t, err)
	assert.Equal(t, Key(valid), key)

	for _, bad := range []string{"", "abc", "../../etc/passwd", valid[:63] + "G"} {
		_, err := ParseKey(bad)
		assert.Error(t, err, bad)
	}
}

func TestStore_Layout(t *testing.T) {
	s := newStore(t)
	key := ComputeKey([]byte("part"))

	assert.Equal(t, string(key)+".step", filepath.Base(s.SourcePath(key)))
	assert.Equal(t, string(key)+".glb", filepath.Base(s.OutputPath(key)))
	assert.NotEqual(t, s.StagingPath(key), s.StagingPath(key))
}

func TestStore_LookupMissAndHit(t *testing.T) {
	s := newStore(t)
	key := ComputeKey([]byte("part"))

	_, ok, err := s.Lookup(key)
	require.NoError(t, err)
	assert.False(t, ok)

	staging := s.StagingPath(key)
	require.NoError(t, os.WriteFile(staging, []byte("glTF..."), 0o644))
	published, err := s.Publish(key, staging)
	require.NoError(t, err)
	assert.NoFileExists(t, staging)

	entry, ok, err := s.Lookup(key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, published.Path, entry.Path)
	assert.Equal(t, int64(7), entry.Size)
}

func TestStore_LookupIgnoresEmptyOutput(t *testing.T) {
	s := newStore(t)
	key := ComputeKey([]byte("part"))
	require.NoError(t, os.WriteFile(s.OutputPath(key), nil, 0o644))

	_, ok, err := s.Lookup(key)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_SaveSource(t *testing.T) {
	s := newStore(t)
	content := []byte("ISO-10303-21;")
	key := ComputeKey(content)

	path, err := s.SaveSource(key, content)
	require.NoError(t, err)

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, content, got)

	again, err := s.SaveSource(key, content)
	require.NoError(t, err)
	assert.Equal(t, path, again)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}

func TestStore_Discard(t *testing.T) {
	s := newStore(t)
	staging := s.StagingPath(ComputeKey([]byte("x")))
	require.NoError(t, os.WriteFile(staging, []byte("partial"), 0o644))

	s.Discard(staging)
	assert.NoFileExists(t, staging)

	// already gone: no panic, no error surfaced
	s.Discard(staging)
}
