package cherry

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStore_SaveLoadDelete(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	dir := t.TempDir()
	store := newFileStore(dir)

	_, found, err := store.Load(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, store.Save(ctx, documentWarnings, []byte(`{"a":1}`)))
	data, found, err := store.Load(ctx, documentWarnings)
	require.NoError(t, err)
	assert.True(t, found)
	assert.JSONEq(t, `{"a":1}`, string(data))

	_, err = os.Stat(filepath.Join(dir, documentWarnings+".json"))
	require.NoError(t, err)

	// nested names become subdirectories
	require.NoError(t, store.Save(ctx, documentMemoryPrefix+"123", []byte(`[]`)))
	_, err = os.Stat(filepath.Join(dir, "memory", "123.json"))
	require.NoError(t, err)

	require.NoError(t, store.Delete(ctx, documentWarnings))
	_, found, err = store.Load(ctx, documentWarnings)
	require.NoError(t, err)
	assert.False(t, found)

	// deleting twice is fine
	require.NoError(t, store.Delete(ctx, documentWarnings))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), ".tmp", "temp file left behind")
	}
}

func TestFileStore_RejectsEscapingNames(t *testing.T) {
	t.Parallel()
	store := newFileStore(t.TempDir())
	for _, name := range []string{"../outside", "/etc/passwd", "", "."} {
		err := store.Save(context.Background(), name, []byte(`{}`))
		assert.Error(t, err, name)
	}
}

func TestDatabaseStore_SaveLoadDelete(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newDatabaseStore(newTestDB(t))

	_, found, err := store.Load(ctx, documentAutoban)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, store.Save(ctx, documentAutoban, []byte(`{"1":true}`)))
	require.NoError(t, store.Save(ctx, documentAutoban, []byte(`{"2":true}`)))

	data, found, err := store.Load(ctx, documentAutoban)
	require.NoError(t, err)
	require.True(t, found)
	assert.JSONEq(t, `{"2":true}`, string(data))

	require.NoError(t, store.Delete(ctx, documentAutoban))
	_, found, err = store.Load(ctx, documentAutoban)
	require.NoError(t, err)
	assert.False(t, found)

	// saving after a delete restores the document
	require.NoError(t, store.Save(ctx, documentAutoban, []byte(`{"3":true}`)))
	data, found, err = store.Load(ctx, documentAutoban)
	require.NoError(t, err)
	require.True(t, found)
	assert.JSONEq(t, `{"3":true}`, string(data))
}

func TestNewStore_Backends(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.DataDir = t.TempDir()

	cfg.Store = &StoreConfig{Backend: storeBackendFile}
	store, err := NewStore(cfg, nil)
	require.NoError(t, err)
	assert.IsType(t, &fileStore{}, store)

	cfg.Store = &StoreConfig{Backend: storeBackendDatabase}
	_, err = NewStore(cfg, nil)
	assert.Error(t, err)

	cfg.Store = &StoreConfig{Backend: storeBackendRedis, RedisAddr: "127.0.0.1:0"}
	store, err = NewStore(cfg, nil)
	require.NoError(t, err)
	assert.IsType(t, &redisStore{}, store)

	cfg.Store = &StoreConfig{Backend: "s3"}
	_, err = NewStore(cfg, nil)
	assert.Error(t, err)
}

func TestDocument_ConcurrentUpdatesAreNotLost(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	doc := NewDocument(newTestStore(t), "counters", emptyMap[string, int](), nil)

	const workers = 25
	wg := sync.WaitGroup{}
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := doc.Update(
				ctx, func(v *map[string]int) error {
					(*v)["count"]++
					(*v)[fmt.Sprintf("worker-%d", i)] = i
					return nil
				},
			)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	v := doc.Load(ctx)
	assert.Equal(t, workers, v["count"])
	assert.Len(t, v, workers+1)
}

func TestDocument_UpdateErrorSavesNothing(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	doc := NewDocument(newTestStore(t), "doc", emptyMap[string, int](), nil)
	require.NoError(t, doc.Save(ctx, map[string]int{"a": 1}))

	errStop := errors.New("stop")
	_, err := doc.Update(
		ctx, func(v *map[string]int) error {
			(*v)["a"] = 2
			return errStop
		},
	)
	require.ErrorIs(t, err, errStop)
	assert.Equal(t, map[string]int{"a": 1}, doc.Load(ctx))
}

func TestDocument_CorruptLoadsDefault(t *testing.T) {
	t.Parallel()
	for name, content := range map[string]string{
		"invalid json": "{not json",
		"null":         "null",
		"padded null":  " null\n",
		"whitespace":   "  ",
	} {
		t.Run(
			name, func(t *testing.T) {
				t.Parallel()
				ctx := context.Background()
				store := newTestStore(t)
				require.NoError(t, store.Save(ctx, "doc", []byte(content)))

				doc := NewDocument(store, "doc", emptyMap[string, int](), nil)
				loaded := doc.Load(ctx)
				assert.NotNil(t, loaded)
				assert.Empty(t, loaded)

				v, err := doc.Update(
					ctx, func(v *map[string]int) error {
						(*v)["a"] = 1
						return nil
					},
				)
				require.NoError(t, err)
				assert.Equal(t, map[string]int{"a": 1}, v)
				assert.Equal(t, map[string]int{"a": 1}, doc.Load(ctx))
			},
		)
	}
}
