package filecache

import (
	"crypto/md5"
	"encoding/hex"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carebridge/claims-pipeline/common/config"
	"github.com/carebridge/claims-pipeline/common/pcontext"
	"github.com/carebridge/claims-pipeline/datastores"
)

func testContext() pcontext.PipelineContext {
	return pcontext.Initial(config.NewDefaultPipelineConfig())
}

func newTestCache(t *testing.T) (*Cache, *datastores.MemoryObjectStore) {
	t.Helper()
	store := datastores.NewMemoryObjectStore()
	cache, err := NewCache(t.TempDir(), store)
	require.NoError(t, err)
	return cache, store
}

func putObject(t *testing.T, store *datastores.MemoryObjectStore, key string, content string, withChecksum bool) {
	t.Helper()
	checksum := ""
	if withChecksum {
		sum := md5.Sum([]byte(content))
		checksum = hex.EncodeToString(sum[:])
	}
	err := store.Put(testContext(), key, strings.NewReader(content), int64(len(content)), checksum)
	require.NoError(t, err)
}

func TestFetchDownloadsOnce(t *testing.T) {
	cache, store := newTestCache(t)
	putObject(t, store, "Incoming/2024-01-01T00:00:00Z/bene.rif", "BENE|1|2|3", true)

	ctx := testContext()
	f1, err := cache.Fetch(ctx, "Incoming/2024-01-01T00:00:00Z/bene.rif")
	require.NoError(t, err)
	f2, err := cache.Fetch(ctx, "Incoming/2024-01-01T00:00:00Z/bene.rif")
	require.NoError(t, err)

	assert.Same(t, f1, f2)
	assert.Equal(t, 1, store.FetchCount("Incoming/2024-01-01T00:00:00Z/bene.rif"))

	data, err := os.ReadFile(f1.Path)
	require.NoError(t, err)
	assert.Equal(t, "BENE|1|2|3", string(data))
}

func TestFetchConcurrentCallersShareOneDownload(t *testing.T) {
	cache, store := newTestCache(t)
	putObject(t, store, "Incoming/2024-01-01T00:00:00Z/carrier.rif", "CARRIER|1", true)

	ctx := testContext()
	files := make([]*DownloadedFile, 16)
	wg := sync.WaitGroup{}
	for i := range files {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			f, err := cache.Fetch(ctx, "Incoming/2024-01-01T00:00:00Z/carrier.rif")
			assert.NoError(t, err)
			files[i] = f
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, store.FetchCount("Incoming/2024-01-01T00:00:00Z/carrier.rif"))
	for _, f := range files {
		require.NotNil(t, f)
		assert.Equal(t, files[0].Path, f.Path)
	}
}

func TestVerifyMatch(t *testing.T) {
	cache, store := newTestCache(t)
	putObject(t, store, "Incoming/x/a.rif", "hello world", true)

	f, err := cache.Fetch(testContext(), "Incoming/x/a.rif")
	require.NoError(t, err)

	result, err := f.Verify()
	require.NoError(t, err)
	assert.Equal(t, ChecksumMatch, result)
}

func TestVerifyMismatch(t *testing.T) {
	cache, store := newTestCache(t)
	sum := md5.Sum([]byte("something else entirely"))
	err := store.Put(testContext(), "Incoming/x/b.rif", strings.NewReader("hello world"), 11, hex.EncodeToString(sum[:]))
	require.NoError(t, err)

	f, err := cache.Fetch(testContext(), "Incoming/x/b.rif")
	require.NoError(t, err)

	result, err := f.Verify()
	require.NoError(t, err)
	assert.Equal(t, ChecksumMismatch, result)
}

func TestVerifyAbsent(t *testing.T) {
	cache, store := newTestCache(t)
	putObject(t, store, "Incoming/x/c.rif", "hello world", false)

	f, err := cache.Fetch(testContext(), "Incoming/x/c.rif")
	require.NoError(t, err)

	result, err := f.Verify()
	require.NoError(t, err)
	assert.Equal(t, ChecksumAbsent, result)
}

func TestDelete(t *testing.T) {
	cache, store := newTestCache(t)
	putObject(t, store, "Incoming/x/d.rif", "data", true)

	ctx := testContext()
	f, err := cache.Fetch(ctx, "Incoming/x/d.rif")
	require.NoError(t, err)

	require.NoError(t, cache.Delete("Incoming/x/d.rif"))
	_, err = os.Stat(f.Path)
	assert.True(t, os.IsNotExist(err))

	// Unknown keys are a no-op
	assert.NoError(t, cache.Delete("Incoming/x/never-fetched.rif"))

	// The next fetch downloads again
	_, err = cache.Fetch(ctx, "Incoming/x/d.rif")
	require.NoError(t, err)
	assert.Equal(t, 2, store.FetchCount("Incoming/x/d.rif"))
}

func TestDeleteAll(t *testing.T) {
	cache, store := newTestCache(t)
	putObject(t, store, "Incoming/x/e.rif", "one", true)
	putObject(t, store, "Incoming/x/f.rif", "two", true)

	ctx := testContext()
	f1, err := cache.Fetch(ctx, "Incoming/x/e.rif")
	require.NoError(t, err)
	f2, err := cache.Fetch(ctx, "Incoming/x/f.rif")
	require.NoError(t, err)

	require.NoError(t, cache.DeleteAll())
	_, err = os.Stat(f1.Path)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(f2.Path)
	assert.True(t, os.IsNotExist(err))
}

func TestAvailableDiskSpace(t *testing.T) {
	cache, _ := newTestCache(t)
	free, err := cache.AvailableDiskSpace()
	require.NoError(t, err)
	assert.Greater(t, free, uint64(0))
}
