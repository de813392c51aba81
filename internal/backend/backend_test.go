package backend

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// openAdapters builds one adapter per substrate against temp storage so
// the contract tests can run over all of them.
func openAdapters(t *testing.T) map[string]Adapter {
	t.Helper()

	fs, err := NewFS(filepath.Join(t.TempDir(), "data"))
	require.NoError(t, err)

	kv, err := OpenKV(filepath.Join(t.TempDir(), "kv.db"))
	require.NoError(t, err)
	t.Cleanup(func() { kv.Close() })

	return map[string]Adapter{
		"fs":     fs,
		"kv":     kv,
		"memory": NewMemory(),
	}
}

func TestAdapter_ReadAbsent(t *testing.T) {
	for name, ad := range openAdapters(t) {
		t.Run(name, func(t *testing.T) {
			_, err := ad.ReadKey(context.Background(), "nothing.json")
			assert.ErrorIs(t, err, ErrKeyAbsent)
		})
	}
}

func TestAdapter_WriteReadRoundTrip(t *testing.T) {
	for name, ad := range openAdapters(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, ad.WriteKey(ctx, "a/b/c.json", []byte(`{"x":1}`)))

			got, err := ad.ReadKey(ctx, "a/b/c.json")
			require.NoError(t, err)
			assert.Equal(t, []byte(`{"x":1}`), got)
		})
	}
}

func TestAdapter_WriteOverwrites(t *testing.T) {
	for name, ad := range openAdapters(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, ad.WriteKey(ctx, "k", []byte("one")))
			require.NoError(t, ad.WriteKey(ctx, "k", []byte("two")))

			got, err := ad.ReadKey(ctx, "k")
			require.NoError(t, err)
			assert.Equal(t, []byte("two"), got)
		})
	}
}

func TestAdapter_DeleteAbsentIsNoError(t *testing.T) {
	for name, ad := range openAdapters(t) {
		t.Run(name, func(t *testing.T) {
			assert.NoError(t, ad.DeleteKey(context.Background(), "ghost"))
		})
	}
}

func TestAdapter_DeleteRemoves(t *testing.T) {
	for name, ad := range openAdapters(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, ad.WriteKey(ctx, "gone.json", []byte("x")))
			require.NoError(t, ad.DeleteKey(ctx, "gone.json"))
			_, err := ad.ReadKey(ctx, "gone.json")
			assert.ErrorIs(t, err, ErrKeyAbsent)
		})
	}
}

func TestAdapter_EmptyKeyPanics(t *testing.T) {
	for name, ad := range openAdapters(t) {
		t.Run(name, func(t *testing.T) {
			assert.Panics(t, func() {
				_, _ = ad.ReadKey(context.Background(), "")
			})
		})
	}
}

func TestFS_ListChildren(t *testing.T) {
	fs, err := NewFS(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, fs.WriteKey(ctx, "history/2024/01/a.json", []byte("{}")))
	require.NoError(t, fs.WriteKey(ctx, "history/2024/02/b.json", []byte("{}")))
	require.NoError(t, fs.WriteKey(ctx, "history/2023/12/c.json", []byte("{}")))

	years, err := fs.ListChildren(ctx, "history")
	require.NoError(t, err)
	assert.Equal(t, []string{"2023", "2024"}, years)

	months, err := fs.ListChildren(ctx, "history/2024")
	require.NoError(t, err)
	assert.Equal(t, []string{"01", "02"}, months)

	empty, err := fs.ListChildren(ctx, "history/1999")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestKV_ListChildren_CompositeKeys(t *testing.T) {
	kv, err := OpenKV(filepath.Join(t.TempDir(), "kv.db"))
	require.NoError(t, err)
	defer kv.Close()
	ctx := context.Background()

	require.NoError(t, kv.WriteKey(ctx, "history-2024-01", []byte("[]")))
	require.NoError(t, kv.WriteKey(ctx, "history-2024-02", []byte("[]")))
	require.NoError(t, kv.WriteKey(ctx, "history-2023-12", []byte("[]")))
	require.NoError(t, kv.WriteKey(ctx, "history.json", []byte("[]")))

	years, err := kv.ListChildren(ctx, "history")
	require.NoError(t, err)
	assert.Equal(t, []string{"2023", "2024"}, years)

	months, err := kv.ListChildren(ctx, "history-2024")
	require.NoError(t, err)
	assert.Equal(t, []string{"01", "02"}, months)
}

func TestKV_OpenIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kv.db")
	for i := 0; i < 3; i++ {
		kv, err := OpenKV(path)
		require.NoError(t, err, "open iteration %d", i)
		require.NoError(t, kv.Close())
	}
}

func TestKV_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kv.db")
	ctx := context.Background()

	kv, err := OpenKV(path)
	require.NoError(t, err)
	require.NoError(t, kv.WriteKey(ctx, "stays", []byte("here")))
	require.NoError(t, kv.Close())

	kv, err = OpenKV(path)
	require.NoError(t, err)
	defer kv.Close()
	got, err := kv.ReadKey(ctx, "stays")
	require.NoError(t, err)
	assert.Equal(t, []byte("here"), got)
}

func TestMethod_Valid(t *testing.T) {
	assert.True(t, MethodDirectory.Valid())
	assert.True(t, MethodFlatKeyed.Valid())
	assert.False(t, Method("tapeDrive").Valid())
}
