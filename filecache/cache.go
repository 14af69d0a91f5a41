package filecache

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path"
	"path/filepath"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"golang.org/x/sync/singleflight"

	"github.com/carebridge/claims-pipeline/common/pcontext"
	"github.com/carebridge/claims-pipeline/datastores"
	"github.com/carebridge/claims-pipeline/metrics"
	"github.com/carebridge/claims-pipeline/util"
)

// DownloadedFile is a local copy of one object, valid until the cache deletes
// it. The content checksum is computed lazily and memoized.
type DownloadedFile struct {
	Key              string
	Path             string
	SizeBytes        int64
	ExpectedChecksum string

	checksumMu sync.Mutex
	checksum   string
}

// Cache downloads objects into a local directory, handing out the same copy
// to every caller asking for the same key. The key to path map is guarded by
// one mutex across all operations so two callers can never both decide a key
// is missing and race their downloads; concurrent first fetches collapse into
// a single download via singleflight.
type Cache struct {
	dir   string
	store datastores.ObjectStore

	mu      sync.Mutex
	entries map[string]*DownloadedFile
	sf      singleflight.Group
}

func NewCache(dir string, store datastores.ObjectStore) (*Cache, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, errors.Wrap(err, "error creating cache directory")
	}
	return &Cache{
		dir:     dir,
		store:   store,
		entries: make(map[string]*DownloadedFile),
	}, nil
}

// Fetch returns the cached copy of key, downloading it first if needed.
func (c *Cache) Fetch(ctx pcontext.PipelineContext, key string) (*DownloadedFile, error) {
	c.mu.Lock()
	if f, ok := c.entries[key]; ok {
		c.mu.Unlock()
		metrics.CacheHits.With(map[string]string{"cache": "files"}).Inc()
		return f, nil
	}
	c.mu.Unlock()

	metrics.CacheMisses.With(map[string]string{"cache": "files"}).Inc()
	val, err, _ := c.sf.Do(key, func() (interface{}, error) {
		// Someone may have finished the download while we waited our turn.
		c.mu.Lock()
		if f, ok := c.entries[key]; ok {
			c.mu.Unlock()
			return f, nil
		}
		c.mu.Unlock()
		return c.download(ctx, key)
	})
	if err != nil {
		return nil, err
	}
	return val.(*DownloadedFile), nil
}

func (c *Cache) download(ctx pcontext.PipelineContext, key string) (*DownloadedFile, error) {
	r, info, err := c.store.Fetch(ctx, key)
	if err != nil {
		return nil, err
	}

	tmp, err := os.CreateTemp(c.dir, "download-*")
	if err != nil {
		_ = r.Close()
		return nil, errors.Wrap(err, "error creating temporary file")
	}
	n, err := util.DumpAndCloseStream(tmp, r)
	if closeErr := tmp.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(tmp.Name())
		return nil, errors.Wrapf(err, "error downloading %s", key)
	}

	target := path.Join(c.dir, cacheFileName(key))
	if err = os.Rename(tmp.Name(), target); err != nil {
		_ = os.Remove(tmp.Name())
		return nil, errors.Wrapf(err, "error registering download of %s", key)
	}

	f := &DownloadedFile{
		Key:              key,
		Path:             target,
		SizeBytes:        n,
		ExpectedChecksum: info.ExpectedChecksum,
	}
	c.mu.Lock()
	c.entries[key] = f
	c.mu.Unlock()

	metrics.BytesDownloaded.Add(float64(n))
	ctx.Log.Debugf("Downloaded %s (%s)", key, humanize.Bytes(uint64(n)))
	return f, nil
}

// Delete removes a key's local copy. Deleting a key that was never fetched is
// a no-op.
func (c *Cache) Delete(key string) error {
	c.mu.Lock()
	f, ok := c.entries[key]
	if ok {
		delete(c.entries, key)
	}
	c.mu.Unlock()
	if !ok {
		return nil
	}
	if err := os.Remove(f.Path); err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "error deleting cached copy of %s", key)
	}
	return nil
}

// DeleteAll removes every cached copy, reporting every failure rather than
// stopping at the first.
func (c *Cache) DeleteAll() error {
	c.mu.Lock()
	entries := c.entries
	c.entries = make(map[string]*DownloadedFile)
	c.mu.Unlock()

	var result *multierror.Error
	for key, f := range entries {
		if err := os.Remove(f.Path); err != nil && !os.IsNotExist(err) {
			result = multierror.Append(result, errors.Wrapf(err, "error deleting cached copy of %s", key))
		}
	}
	return result.ErrorOrNil()
}

// AvailableDiskSpace reports the free space on the cache's filesystem.
func (c *Cache) AvailableDiskSpace() (uint64, error) {
	return util.AvailableBytes(c.dir)
}

func cacheFileName(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:]) + filepath.Ext(key)
}
