package queue

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carebridge/claims-pipeline/common/config"
	"github.com/carebridge/claims-pipeline/common/pcontext"
	"github.com/carebridge/claims-pipeline/datastores"
	"github.com/carebridge/claims-pipeline/filecache"
	"github.com/carebridge/claims-pipeline/manifest"
)

type fakeStateStore struct {
	mu       sync.Mutex
	records  map[string]*StoredManifest
	inserts  int
	statuses map[string][]manifest.ProcessingStatus
}

func newFakeStateStore() *fakeStateStore {
	return &fakeStateStore{
		records:  make(map[string]*StoredManifest),
		statuses: make(map[string][]manifest.ProcessingStatus),
	}
}

func (s *fakeStateStore) GetIneligibleKeysSince(_ pcontext.PipelineContext, min time.Time) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0)
	for k, r := range s.records {
		if r.Status.IsTerminal() && r.Id.Timestamp.After(min) {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

func (s *fakeStateStore) GetManifest(_ pcontext.PipelineContext, key string) (*StoredManifest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[key]
	if !ok {
		return nil, nil
	}
	clone := *r
	return &clone, nil
}

func (s *fakeStateStore) InsertDiscovered(_ pcontext.PipelineContext, m *manifest.DataSetManifest) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := m.ManifestKey()
	if _, ok := s.records[key]; ok {
		return false, nil
	}
	entries := make([]manifest.Entry, len(m.Entries))
	copy(entries, m.Entries)
	s.records[key] = &StoredManifest{
		Key:       key,
		Id:        m.Id,
		Synthetic: m.SyntheticData,
		Status:    manifest.StatusDiscovered,
		Entries:   entries,
	}
	s.inserts++
	return true, nil
}

func (s *fakeStateStore) UpdateStatus(_ pcontext.PipelineContext, key string, status manifest.ProcessingStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[key]
	if !ok {
		return fmt.Errorf("no record for %s", key)
	}
	if r.Status.IsTerminal() && !status.IsTerminal() {
		panic(fmt.Sprintf("invalid status transition for %s: %s -> %s", key, r.Status, status))
	}
	r.Status = status
	s.statuses[key] = append(s.statuses[key], status)
	return nil
}

func (s *fakeStateStore) UpdateFileStatus(_ pcontext.PipelineContext, key string, idx int, status manifest.ProcessingStatus) error {
	return nil
}

func testContext() pcontext.PipelineContext {
	return pcontext.Initial(config.NewDefaultPipelineConfig())
}

func manifestXml(timestampText string, sequenceId int, entryNames ...string) string {
	sb := strings.Builder{}
	sb.WriteString(fmt.Sprintf(`<dataSetManifest timestamp="%s" sequenceId="%d">`, timestampText, sequenceId))
	for _, name := range entryNames {
		sb.WriteString(fmt.Sprintf(`<entry name="%s" type="BENEFICIARY"/>`, name))
	}
	sb.WriteString(`</dataSetManifest>`)
	return sb.String()
}

func putManifest(t *testing.T, store *datastores.MemoryObjectStore, prefix string, timestampText string, sequenceId int, doc string) string {
	t.Helper()
	key := fmt.Sprintf("%s/%s/%d_manifest.xml", prefix, timestampText, sequenceId)
	sum := md5.Sum([]byte(doc))
	err := store.Put(testContext(), key, strings.NewReader(doc), int64(len(doc)), hex.EncodeToString(sum[:]))
	require.NoError(t, err)
	return key
}

func newTestQueue(t *testing.T) (*ManifestQueue, *datastores.MemoryObjectStore, *fakeStateStore) {
	t.Helper()
	objects := datastores.NewMemoryObjectStore()
	cache, err := filecache.NewCache(t.TempDir(), objects)
	require.NoError(t, err)
	state := newFakeStateStore()
	return NewManifestQueue(objects, cache, state, true), objects, state
}

var scanNow = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
var scanMin = scanNow.Add(-60 * 24 * time.Hour)

func TestReadEligibleManifestsOrdering(t *testing.T) {
	q, objects, _ := newTestQueue(t)
	ctx := testContext()

	// Deliberately includes a sequence pair whose lexicographic and numeric
	// orders differ, and a synthetic manifest between the others.
	putManifest(t, objects, manifest.PrefixPendingManifests, "2024-05-02T00:00:00Z", 10, manifestXml("2024-05-02T00:00:00Z", 10, "b.rif"))
	putManifest(t, objects, manifest.PrefixPendingManifests, "2024-05-02T00:00:00Z", 9, manifestXml("2024-05-02T00:00:00Z", 9, "a.rif"))
	putManifest(t, objects, manifest.PrefixPendingSyntheticManifests, "2024-05-01T12:00:00Z", 1, manifestXml("2024-05-01T12:00:00Z", 1, "s.rif"))
	putManifest(t, objects, manifest.PrefixPendingManifests, "2024-05-03T00:00:00Z", 0, manifestXml("2024-05-03T00:00:00Z", 0, "c.rif"))

	results, err := q.ReadEligibleManifests(ctx, scanNow, scanMin, 500, nil)
	require.NoError(t, err)
	require.Len(t, results, 4)

	assert.Equal(t, "2024-05-01T12:00:00Z", results[0].Id.TimestampText)
	assert.Equal(t, 9, results[1].Id.SequenceId)
	assert.Equal(t, 10, results[2].Id.SequenceId)
	assert.Equal(t, "2024-05-03T00:00:00Z", results[3].Id.TimestampText)
}

func TestReadEligibleManifestsIdempotentDiscovery(t *testing.T) {
	q, objects, state := newTestQueue(t)
	ctx := testContext()

	putManifest(t, objects, manifest.PrefixPendingManifests, "2024-05-02T00:00:00Z", 5, manifestXml("2024-05-02T00:00:00Z", 5, "a.rif", "b.rif", "c.rif"))

	first, err := q.ReadEligibleManifests(ctx, scanNow, scanMin, 500, nil)
	require.NoError(t, err)
	require.Len(t, first, 1)

	second, err := q.ReadEligibleManifests(ctx, scanNow, scanMin, 500, nil)
	require.NoError(t, err)
	require.Len(t, second, 1)

	assert.Equal(t, 1, state.inserts)
	assert.Equal(t, first[0].ManifestKey(), second[0].ManifestKey())
}

func TestReadEligibleManifestsDetectsEntryMismatch(t *testing.T) {
	q, objects, _ := newTestQueue(t)
	ctx := testContext()

	key := putManifest(t, objects, manifest.PrefixPendingManifests, "2024-05-02T00:00:00Z", 5, manifestXml("2024-05-02T00:00:00Z", 5, "a.rif", "b.rif"))
	_, err := q.ReadEligibleManifests(ctx, scanNow, scanMin, 500, nil)
	require.NoError(t, err)

	// The object changes under the same key: the persisted record no longer
	// matches what a re-scan parses.
	doc := manifestXml("2024-05-02T00:00:00Z", 5, "a.rif", "different.rif")
	sum := md5.Sum([]byte(doc))
	require.NoError(t, objects.Put(ctx, key, strings.NewReader(doc), int64(len(doc)), hex.EncodeToString(sum[:])))

	_, err = q.ReadEligibleManifests(ctx, scanNow, scanMin, 500, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStateMismatch)
}

func TestReadEligibleManifestsSkipsCompleted(t *testing.T) {
	q, objects, _ := newTestQueue(t)
	ctx := testContext()

	dataKey := "Incoming/2024-05-02T00:00:00Z/a.rif"
	require.NoError(t, objects.Put(ctx, dataKey, strings.NewReader("DATA"), 4, ""))
	putManifest(t, objects, manifest.PrefixPendingManifests, "2024-05-02T00:00:00Z", 5, manifestXml("2024-05-02T00:00:00Z", 5, "a.rif"))

	results, err := q.ReadEligibleManifests(ctx, scanNow, scanMin, 500, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	m := results[0]

	require.NoError(t, q.MarkStarted(ctx, m))
	require.NoError(t, q.MarkProcessed(ctx, m))

	// Objects moved to the completed prefix
	exists, err := objects.Exists(ctx, "Done/2024-05-02T00:00:00Z/a.rif")
	require.NoError(t, err)
	assert.True(t, exists)
	exists, err = objects.Exists(ctx, dataKey)
	require.NoError(t, err)
	assert.False(t, exists)
	exists, err = objects.Exists(ctx, "Done/2024-05-02T00:00:00Z/5_manifest.xml")
	require.NoError(t, err)
	assert.True(t, exists)

	// And the manifest never comes back
	results, err = q.ReadEligibleManifests(ctx, scanNow, scanMin, 500, nil)
	require.NoError(t, err)
	assert.Len(t, results, 0)
}

func TestReadEligibleManifestsMaxCountAndAccept(t *testing.T) {
	q, objects, _ := newTestQueue(t)
	ctx := testContext()

	for i := 1; i <= 5; i++ {
		ts := fmt.Sprintf("2024-05-0%dT00:00:00Z", i)
		putManifest(t, objects, manifest.PrefixPendingManifests, ts, 0, manifestXml(ts, 0, "a.rif"))
	}

	// Only accepted manifests count toward maxCount
	rejectFirstTwo := func(m *manifest.DataSetManifest) bool {
		return m.Id.Timestamp.After(time.Date(2024, 5, 2, 12, 0, 0, 0, time.UTC))
	}
	results, err := q.ReadEligibleManifests(ctx, scanNow, scanMin, 2, rejectFirstTwo)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "2024-05-03T00:00:00Z", results[0].Id.TimestampText)
	assert.Equal(t, "2024-05-04T00:00:00Z", results[1].Id.TimestampText)
}

func TestReadEligibleManifestsHoldsBackFutureAndOld(t *testing.T) {
	q, objects, _ := newTestQueue(t)
	ctx := testContext()

	putManifest(t, objects, manifest.PrefixPendingManifests, "2024-07-01T00:00:00Z", 0, manifestXml("2024-07-01T00:00:00Z", 0, "future.rif"))
	putManifest(t, objects, manifest.PrefixPendingManifests, "2024-01-01T00:00:00Z", 0, manifestXml("2024-01-01T00:00:00Z", 0, "ancient.rif"))
	putManifest(t, objects, manifest.PrefixPendingManifests, "2024-05-01T00:00:00Z", 0, manifestXml("2024-05-01T00:00:00Z", 0, "current.rif"))

	results, err := q.ReadEligibleManifests(ctx, scanNow, scanMin, 500, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "2024-05-01T00:00:00Z", results[0].Id.TimestampText)
}

func TestReadEligibleManifestsChecksumMismatch(t *testing.T) {
	q, objects, _ := newTestQueue(t)
	ctx := testContext()

	doc := manifestXml("2024-05-02T00:00:00Z", 5, "a.rif")
	sum := md5.Sum([]byte("not the document"))
	key := "Incoming/2024-05-02T00:00:00Z/5_manifest.xml"
	require.NoError(t, objects.Put(ctx, key, strings.NewReader(doc), int64(len(doc)), hex.EncodeToString(sum[:])))

	_, err := q.ReadEligibleManifests(ctx, scanNow, scanMin, 500, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrChecksumMismatch)
}

func TestMarkStartedOnTerminalRecordPanics(t *testing.T) {
	q, objects, _ := newTestQueue(t)
	ctx := testContext()

	putManifest(t, objects, manifest.PrefixPendingManifests, "2024-05-02T00:00:00Z", 5, manifestXml("2024-05-02T00:00:00Z", 5, "a.rif"))
	results, err := q.ReadEligibleManifests(ctx, scanNow, scanMin, 500, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	m := results[0]

	require.NoError(t, q.MarkRejected(ctx, m))
	assert.Panics(t, func() {
		_ = q.MarkStarted(ctx, m)
	})
}
