package queue

import (
	"os"
	"sort"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/carebridge/claims-pipeline/common/pcontext"
	"github.com/carebridge/claims-pipeline/datastores"
	"github.com/carebridge/claims-pipeline/filecache"
	"github.com/carebridge/claims-pipeline/manifest"
	"github.com/carebridge/claims-pipeline/metrics"
)

// ErrStateMismatch is raised when a re-read manifest's entries no longer
// match the persisted record for the same key. Silently resolving the
// difference risks loading the wrong records, so it is fatal for that
// manifest.
var ErrStateMismatch = errors.New("manifest does not match its persisted record")

// ErrChecksumMismatch is raised when a manifest document's content does not
// match the checksum its uploader declared.
var ErrChecksumMismatch = errors.New("manifest failed checksum verification")

// StoredManifest is the state store's view of a manifest.
type StoredManifest struct {
	Key       string
	Id        manifest.ID
	Synthetic bool
	Status    manifest.ProcessingStatus
	Entries   []manifest.Entry
}

// StateStore is the durable record of every manifest the pipeline has ever
// seen. It is the single source of truth for excluding already-terminal
// manifests from re-discovery.
type StateStore interface {
	GetIneligibleKeysSince(ctx pcontext.PipelineContext, min time.Time) ([]string, error)
	GetManifest(ctx pcontext.PipelineContext, key string) (*StoredManifest, error)
	InsertDiscovered(ctx pcontext.PipelineContext, m *manifest.DataSetManifest) (bool, error)
	UpdateStatus(ctx pcontext.PipelineContext, key string, status manifest.ProcessingStatus) error
	UpdateFileStatus(ctx pcontext.PipelineContext, key string, idx int, status manifest.ProcessingStatus) error
}

// ManifestQueue scans the object store for new manifests and exposes them as
// an ordered, resumable work queue.
type ManifestQueue struct {
	objects datastores.ObjectStore
	cache   *filecache.Cache
	state   StateStore

	allowSynthetic bool

	// completedMemo remembers recently-completed keys so a scan right after
	// completion skips them without a database roundtrip.
	completedMemo *gocache.Cache
}

func NewManifestQueue(objects datastores.ObjectStore, cache *filecache.Cache, state StateStore, allowSynthetic bool) *ManifestQueue {
	return &ManifestQueue{
		objects:        objects,
		cache:          cache,
		state:          state,
		allowSynthetic: allowSynthetic,
		completedMemo:  gocache.New(2*time.Hour, 10*time.Minute),
	}
}

// ReadEligibleManifests scans the pending prefixes and returns up to maxCount
// accepted manifests in ascending (timestamp, sequence) order. Manifests
// dated after now are held back until a later scan; manifests at or before
// minTimestamp are ignored entirely.
func (q *ManifestQueue) ReadEligibleManifests(ctx pcontext.PipelineContext, now time.Time, minTimestamp time.Time, maxCount int, accept func(*manifest.DataSetManifest) bool) ([]*manifest.DataSetManifest, error) {
	excluded, err := q.exclusionSet(ctx, minTimestamp)
	if err != nil {
		return nil, err
	}

	type candidate struct {
		id     manifest.ID
		prefix string
		key    string
	}
	candidates := make([]candidate, 0)

	prefixes := []string{manifest.PrefixPendingManifests}
	if q.allowSynthetic {
		prefixes = append(prefixes, manifest.PrefixPendingSyntheticManifests)
	}
	for _, prefix := range prefixes {
		keys, err := q.objects.ListKeys(ctx, prefix)
		if err != nil {
			return nil, err
		}
		for _, key := range keys {
			id, keyPrefix, err := manifest.ParseManifestKey(key)
			if err != nil {
				// Data files and stray objects share the prefix; only keys
				// that name a manifest matter here.
				continue
			}
			if keyPrefix != prefix {
				continue
			}
			if excluded[key] {
				continue
			}
			if !id.Timestamp.After(minTimestamp) {
				continue
			}
			if id.Timestamp.After(now) {
				ctx.Log.WithFields(logrus.Fields{"manifest": id.String()}).Warn("Found a manifest from the future - holding it back")
				continue
			}
			candidates = append(candidates, candidate{id: id, prefix: prefix, key: key})
		}
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].id.Compare(candidates[j].id) < 0
	})

	results := make([]*manifest.DataSetManifest, 0)
	for _, c := range candidates {
		if len(results) >= maxCount {
			break
		}
		m, eligible, err := q.fetchAndReconcile(ctx, c.key, c.prefix)
		if err != nil {
			return nil, err
		}
		if !eligible {
			continue
		}
		if accept != nil && !accept(m) {
			continue
		}
		results = append(results, m)
	}
	return results, nil
}

func (q *ManifestQueue) exclusionSet(ctx pcontext.PipelineContext, minTimestamp time.Time) (map[string]bool, error) {
	keys, err := q.state.GetIneligibleKeysSince(ctx, minTimestamp)
	if err != nil {
		return nil, err
	}
	excluded := make(map[string]bool, len(keys))
	for _, k := range keys {
		excluded[k] = true
	}
	for k := range q.completedMemo.Items() {
		excluded[k] = true
	}
	return excluded, nil
}

// fetchAndReconcile downloads and parses one manifest and lines it up with
// the state store: first-seen manifests are inserted as discovered, re-seen
// manifests are verified for consistency against the persisted record.
func (q *ManifestQueue) fetchAndReconcile(ctx pcontext.PipelineContext, key string, prefix string) (*manifest.DataSetManifest, bool, error) {
	f, err := q.cache.Fetch(ctx, key)
	if err != nil {
		return nil, false, err
	}
	defer func() {
		// Manifest documents are tiny and re-fetched rarely; no reason to
		// hold the local copy.
		_ = q.cache.Delete(key)
	}()

	verdict, err := f.Verify()
	if err != nil {
		return nil, false, err
	}
	if verdict == filecache.ChecksumMismatch {
		return nil, false, errors.Wrap(ErrChecksumMismatch, key)
	}

	handle, err := os.Open(f.Path)
	if err != nil {
		return nil, false, err
	}
	m, parseErr := manifest.Parse(handle, prefix)
	_ = handle.Close()
	if parseErr != nil {
		return nil, false, parseErr
	}

	stored, err := q.state.GetManifest(ctx, key)
	if err != nil {
		return nil, false, err
	}
	if stored == nil {
		inserted, err := q.state.InsertDiscovered(ctx, m)
		if err != nil {
			return nil, false, err
		}
		if inserted {
			synthetic := "false"
			if m.SyntheticData {
				synthetic = "true"
			}
			metrics.ManifestsDiscovered.With(map[string]string{"synthetic": synthetic}).Inc()
			ctx.Log.WithFields(logrus.Fields{"manifest": m.Id.String()}).Info("Discovered new data set manifest")
			return m, true, nil
		}
		// Another scheduler won the insert; fall through to reconcile
		// against whatever it persisted.
		stored, err = q.state.GetManifest(ctx, key)
		if err != nil {
			return nil, false, err
		}
		if stored == nil {
			return nil, false, errors.Errorf("manifest %s vanished from the state store during discovery", key)
		}
	}

	if err = verifyEntriesMatch(m, stored); err != nil {
		return nil, false, err
	}
	return m, stored.Status.IsEligible(), nil
}

func verifyEntriesMatch(m *manifest.DataSetManifest, stored *StoredManifest) error {
	if len(m.Entries) != len(stored.Entries) {
		return errors.Wrapf(ErrStateMismatch, "%s: %d entries parsed, %d persisted", m.ManifestKey(), len(m.Entries), len(stored.Entries))
	}
	for i, e := range m.Entries {
		if e.Name != stored.Entries[i].Name || e.Type != stored.Entries[i].Type {
			return errors.Wrapf(ErrStateMismatch, "%s: entry %d is %s/%s but %s/%s was persisted", m.ManifestKey(), i, e.Name, e.Type, stored.Entries[i].Name, stored.Entries[i].Type)
		}
	}
	return nil
}

// MarkStarted transitions a manifest to started. Calling this on a manifest
// already in a terminal state is a logic fault and panics downstream.
func (q *ManifestQueue) MarkStarted(ctx pcontext.PipelineContext, m *manifest.DataSetManifest) error {
	return q.state.UpdateStatus(ctx, m.ManifestKey(), manifest.StatusStarted)
}

// MarkFileStarted transitions one data file to started.
func (q *ManifestQueue) MarkFileStarted(ctx pcontext.PipelineContext, m *manifest.DataSetManifest, idx int) error {
	return q.state.UpdateFileStatus(ctx, m.ManifestKey(), idx, manifest.StatusStarted)
}

// MarkFileCompleted transitions one data file to completed.
func (q *ManifestQueue) MarkFileCompleted(ctx pcontext.PipelineContext, m *manifest.DataSetManifest, idx int) error {
	return q.state.UpdateFileStatus(ctx, m.ManifestKey(), idx, manifest.StatusCompleted)
}

// MarkProcessed completes a manifest: the durable status flips first, then
// the manifest and its data files are relocated to the completed prefix and
// local copies are released.
func (q *ManifestQueue) MarkProcessed(ctx pcontext.PipelineContext, m *manifest.DataSetManifest) error {
	if err := q.state.UpdateStatus(ctx, m.ManifestKey(), manifest.StatusCompleted); err != nil {
		return err
	}
	q.completedMemo.SetDefault(m.ManifestKey(), true)

	for _, e := range m.Entries {
		if err := q.objects.Move(ctx, m.EntryKey(e), m.CompletedEntryKey(e)); err != nil {
			return err
		}
		if err := q.cache.Delete(m.EntryKey(e)); err != nil {
			return err
		}
	}
	if err := q.objects.Move(ctx, m.ManifestKey(), m.CompletedManifestKey()); err != nil {
		return err
	}

	synthetic := "false"
	if m.SyntheticData {
		synthetic = "true"
	}
	metrics.ManifestsCompleted.With(map[string]string{"synthetic": synthetic}).Inc()
	ctx.Log.WithFields(logrus.Fields{"manifest": m.Id.String()}).Info("Data set fully processed")
	return nil
}

// MarkRejected flags a manifest as permanently unprocessable. The objects
// stay where they are for operator inspection.
func (q *ManifestQueue) MarkRejected(ctx pcontext.PipelineContext, m *manifest.DataSetManifest) error {
	if err := q.state.UpdateStatus(ctx, m.ManifestKey(), manifest.StatusRejected); err != nil {
		return err
	}
	q.completedMemo.SetDefault(m.ManifestKey(), true)
	metrics.ManifestsRejected.Inc()
	ctx.Log.WithFields(logrus.Fields{"manifest": m.Id.String()}).Warn("Data set rejected")
	return nil
}
