package kv_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/Flaque/filet"
	"github.com/oeee-cafe/oeee-client/internal/kv"
	"github.com/oeee-cafe/oeee-client/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// exerciseStore runs the behaviour every backend must share.
func exerciseStore(t *testing.T, store kv.Store) {
	t.Helper()
	ctx := context.Background()

	_, ok, err := store.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Put(ctx, "https://oeee.cafe", "sid#;#abc"))
	require.NoError(t, store.Put(ctx, "https://oeee.cafe", "sid#;#def"))

	value, ok, err := store.Get(ctx, "https://oeee.cafe")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "sid#;#def", value)

	require.NoError(t, store.ReplaceAll(ctx, map[string]string{"a": "1", "b": "2"}))
	all, err := store.All(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"a": "1", "b": "2"}, all)

	require.NoError(t, store.Delete(ctx, "a"))
	require.NoError(t, store.Delete(ctx, "never-there"))
	all, err = store.All(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"b": "2"}, all)

	require.NoError(t, store.Clear(ctx))
	all, err = store.All(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestMemoryStore(t *testing.T) {
	t.Parallel()

	exerciseStore(t, kv.NewMemoryStore())
}

func TestMemoryStore_AllReturnsCopy(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	store := kv.NewMemoryStore()
	require.NoError(t, store.Put(ctx, "k", "v"))

	all, err := store.All(ctx)
	require.NoError(t, err)
	all["k"] = "changed"

	value, _, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", value)
}

func TestFileStore(t *testing.T) {
	t.Parallel()

	exerciseStore(t, kv.NewFileStore(afero.NewMemMapFs(), "/data/session.json"))
}

func TestFileStore_PersistsAcrossInstances(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	fs := afero.NewMemMapFs()

	first := kv.NewFileStore(fs, "/data/session.json")
	require.NoError(t, first.Put(ctx, "had_session", "true"))

	second := kv.NewFileStore(fs, "/data/session.json")
	value, ok, err := second.Get(ctx, "had_session")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "true", value)

	info, err := fs.Stat("/data/session.json")
	require.NoError(t, err)
	assert.Equal(t, "-rw-------", info.Mode().Perm().String())
}

func TestFileStore_CorruptFile(t *testing.T) {
	t.Parallel()
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/data/session.json", []byte("{not json"), 0o600))

	store := kv.NewFileStore(fs, "/data/session.json")
	_, err := store.All(context.Background())

	require.ErrorIs(t, err, kv.ErrCorrupt)
}

func TestSQLiteStore(t *testing.T) {
	defer filet.CleanUp(t)
	ctx := context.Background()
	dir := filet.TmpDir(t, "")

	db, err := kv.OpenSQLite(ctx, filepath.Join(dir, "oeee.db"))
	require.NoError(t, err)
	defer db.Close()

	m := metrics.NewMetrics(prometheus.NewRegistry())
	exerciseStore(t, kv.NewSQLiteStore(db, "cookies", m))
	require.NoError(t, kv.NewSQLiteStore(db, "cookies", m).Ping(ctx))
}

func TestSQLiteStore_NamespacesAreIsolated(t *testing.T) {
	defer filet.CleanUp(t)
	ctx := context.Background()
	dir := filet.TmpDir(t, "")

	db, err := kv.OpenSQLite(ctx, filepath.Join(dir, "oeee.db"))
	require.NoError(t, err)
	defer db.Close()

	m := metrics.NewMetrics(prometheus.NewRegistry())
	cookies := kv.NewSQLiteStore(db, "cookies", m)
	session := kv.NewSQLiteStore(db, "session", m)

	require.NoError(t, cookies.Put(ctx, "k", "cookie"))
	require.NoError(t, session.Put(ctx, "k", "session"))
	require.NoError(t, cookies.Clear(ctx))

	value, ok, err := session.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "session", value)
}

func TestEncryptedStore(t *testing.T) {
	t.Parallel()

	store, err := kv.NewEncryptedStore(kv.NewMemoryStore(), make([]byte, 32))
	require.NoError(t, err)

	exerciseStore(t, store)
}

func TestEncryptedStore_ValuesAreSealed(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	inner := kv.NewMemoryStore()

	store, err := kv.NewEncryptedStore(inner, make([]byte, 32))
	require.NoError(t, err)
	require.NoError(t, store.Put(ctx, "https://oeee.cafe", "secret-session"))

	raw, ok, err := inner.Get(ctx, "https://oeee.cafe")
	require.NoError(t, err)
	require.True(t, ok)
	assert.NotContains(t, raw, "secret-session")
}

func TestEncryptedStore_WrongKeyIsCorrupt(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	inner := kv.NewMemoryStore()

	writer, err := kv.NewEncryptedStore(inner, make([]byte, 32))
	require.NoError(t, err)
	require.NoError(t, writer.Put(ctx, "k", "v"))

	otherKey := make([]byte, 32)
	otherKey[0] = 1
	reader, err := kv.NewEncryptedStore(inner, otherKey)
	require.NoError(t, err)

	_, _, err = reader.Get(ctx, "k")
	require.ErrorIs(t, err, kv.ErrCorrupt)

	_, err = reader.All(ctx)
	require.ErrorIs(t, err, kv.ErrCorrupt)
}

func TestEncryptedStore_PlainValueIsCorrupt(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	inner := kv.NewMemoryStore()
	require.NoError(t, inner.Put(ctx, "k", "plain"))

	store, err := kv.NewEncryptedStore(inner, make([]byte, 32))
	require.NoError(t, err)

	_, _, err = store.Get(ctx, "k")
	require.ErrorIs(t, err, kv.ErrCorrupt)
}

func TestNewEncryptedStore_InvalidKey(t *testing.T) {
	t.Parallel()

	_, err := kv.NewEncryptedStore(kv.NewMemoryStore(), []byte("short"))
	require.Error(t, err)
}

func TestBoolHelpers(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := kv.NewMemoryStore()

	value, err := kv.GetBool(ctx, store, "had_session")
	require.NoError(t, err)
	assert.False(t, value)

	require.NoError(t, kv.PutBool(ctx, store, "had_session", true))
	value, err = kv.GetBool(ctx, store, "had_session")
	require.NoError(t, err)
	assert.True(t, value)

	require.NoError(t, store.Put(ctx, "had_session", "maybe"))
	_, err = kv.GetBool(ctx, store, "had_session")
	require.ErrorIs(t, err, kv.ErrCorrupt)
}
