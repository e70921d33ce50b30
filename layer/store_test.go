package layer

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/plugcfg/shape"
)

type recordingMarker struct{ paths []string }

func (m *recordingMarker) MarkOwnWrite(path string) { m.paths = append(m.paths, path) }

func storeLookup(t *testing.T, s *Store, path string) (any, bool) {
	t.Helper()
	l, err := s.Layer(PriorityFile)
	require.NoError(t, err)
	return l.Lookup(path)
}

func TestStoreSetCreatesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "plugcfg.toml")
	marker := &recordingMarker{}
	s := NewStore(path, WithWriteMarker(marker))

	l, err := s.Layer(PriorityFile)
	require.NoError(t, err)
	assert.Equal(t, 0, l.Len(), "missing file is an empty layer")

	require.NoError(t, s.Set("greeter.who", "moon"))
	require.NoError(t, s.Set("greeter.retries", int64(3)))

	v, ok := storeLookup(t, s, "greeter.who")
	require.True(t, ok)
	assert.Equal(t, "moon", v)
	v, _ = storeLookup(t, s, "greeter.retries")
	assert.Equal(t, int64(3), v)

	doc, err := s.Document()
	require.NoError(t, err)
	version, ok := doc.Get(SchemaVersionKey)
	require.True(t, ok)
	assert.Equal(t, int64(SchemaVersion), version)

	assert.Equal(t, []string{path, path}, marker.paths)
}

func TestStoreSetKeepsOtherValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plugcfg.yaml")
	require.NoError(t, os.WriteFile(path, []byte("db:\n  url: sqlite://x\n  mode: a\ngreeter:\n  who: sun\n"), 0o644))
	s := NewStore(path)

	require.NoError(t, s.Set("db.mode", "b"))

	doc, err := s.Document()
	require.NoError(t, err)
	assert.Equal(t, []string{SchemaVersionKey, "db", "greeter"}, doc.Keys())
	db, _ := doc.Get("db")
	assert.Equal(t, []string{"url", "mode"}, db.(*shape.Map).Keys())
	mode, _ := db.(*shape.Map).Get("mode")
	assert.Equal(t, "b", mode)
}

func TestStoreBackups(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plugcfg.toml")
	s := NewStore(path)

	for i := 1; i <= 5; i++ {
		require.NoError(t, s.Set("greeter.retries", int64(i)))
	}

	for n := 1; n <= 3; n++ {
		_, err := os.Stat(BackupPath(path, n))
		assert.NoError(t, err, "backup %d", n)
	}
	_, err := os.Stat(BackupPath(path, 4))
	assert.True(t, os.IsNotExist(err))

	// .back1 holds the state before the last write
	back, err := os.ReadFile(BackupPath(path, 1))
	require.NoError(t, err)
	doc, err := ParseDocument(FormatTOML, back)
	require.NoError(t, err)
	g, _ := doc.Get("greeter")
	v, _ := g.(*shape.Map).Get("retries")
	assert.Equal(t, int64(4), v)
}

func TestStoreReset(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plugcfg.toml")
	s := NewStore(path)
	require.NoError(t, s.Set("greeter.who", "moon"))
	require.NoError(t, s.Set("db.url", "x"))

	removed, err := s.Reset("greeter.who")
	require.NoError(t, err)
	assert.True(t, removed)

	_, ok := storeLookup(t, s, "greeter.who")
	assert.False(t, ok)
	doc, err := s.Document()
	require.NoError(t, err)
	_, ok = doc.Get("greeter")
	assert.False(t, ok, "empty plugin table is dropped")

	before, err := os.ReadFile(path)
	require.NoError(t, err)
	removed, err = s.Reset("greeter.who")
	require.NoError(t, err)
	assert.False(t, removed)
	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestStoreRejectsNewerSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plugcfg.toml")
	require.NoError(t, os.WriteFile(path, []byte("schema_version = 9\n\n[greeter]\nwho = \"x\"\n"), 0o644))
	s := NewStore(path)

	err := s.Set("greeter.who", "moon")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "newer than supported")

	_, err = s.Reset("greeter.who")
	assert.Error(t, err)

	_, err = s.Layer(PriorityFile)
	assert.Error(t, err)
}

func TestStoreInvalidPath(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "plugcfg.toml"))
	assert.Error(t, s.Set("who", "x"))
	_, err := s.Reset("who")
	assert.Error(t, err)
}

func TestStorePermissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", "plugcfg.toml")
	s := NewStore(path)
	require.NoError(t, s.Set("greeter.who", "moon"))
	require.NoError(t, s.Set("greeter.who", "mars"))

	for _, p := range []string{path, BackupPath(path, 1)} {
		info, err := os.Stat(p)
		require.NoError(t, err)
		assert.Zero(t, info.Mode().Perm()&^os.FileMode(FilePermissions), "%s mode %v", p, info.Mode())
	}
	info, err := os.Stat(filepath.Dir(path))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.Zero(t, info.Mode().Perm()&^os.FileMode(DirPermissions))
}
