package main

import (
	"context"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/carebridge/claims-pipeline/common/pcontext"
	"github.com/carebridge/claims-pipeline/filecache"
	"github.com/carebridge/claims-pipeline/loader"
	"github.com/carebridge/claims-pipeline/manifest"
	"github.com/carebridge/claims-pipeline/metrics"
	"github.com/carebridge/claims-pipeline/queue"
)

// pipelineRunner owns one discovery-and-load loop. Only one data set is
// loaded at a time; the mutex keeps overlapping scheduler ticks from
// starting a second one.
type pipelineRunner struct {
	cache  *filecache.Cache
	queue  *queue.ManifestQueue
	loader *loader.Loader
	source *loader.LineRecordSource

	mu sync.Mutex

	// stop is shared with the loader so an in-flight file load halts at its
	// next batch boundary instead of running to completion.
	stop     chan struct{}
	stopOnce sync.Once
}

func (r *pipelineRunner) requestStop() {
	r.stopOnce.Do(func() {
		close(r.stop)
	})
}

func (r *pipelineRunner) stopRequested() bool {
	select {
	case <-r.stop:
		return true
	default:
		return false
	}
}

// runCycle is one discovery tick: scan for eligible manifests and process
// them oldest first. Failures terminate the cycle and are retried on the
// next tick.
func (r *pipelineRunner) runCycle(ctx pcontext.PipelineContext) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.stopRequested() {
		return nil
	}

	free, err := r.cache.AvailableDiskSpace()
	if err != nil {
		return err
	}
	minFree := uint64(ctx.Config.Load.MinFreeBytes)
	if free < minFree {
		ctx.Log.Warnf("Only %s free on the cache volume (need %s) - not fetching any data sets this cycle", humanize.Bytes(free), humanize.Bytes(minFree))
		metrics.DiscoveryCycles.With(map[string]string{"outcome": "skipped"}).Inc()
		return nil
	}

	now := time.Now().UTC()
	minTimestamp := now.Add(-time.Duration(ctx.Config.Discovery.MaxManifestAgeDays) * 24 * time.Hour)
	manifests, err := r.queue.ReadEligibleManifests(ctx, now, minTimestamp, ctx.Config.Discovery.MaxManifestsPerScan, nil)
	if err != nil {
		metrics.DiscoveryCycles.With(map[string]string{"outcome": "failed"}).Inc()
		return err
	}

	for _, m := range manifests {
		if r.stopRequested() {
			break
		}
		if free, err = r.cache.AvailableDiskSpace(); err != nil {
			return err
		}
		if free < minFree {
			ctx.Log.Warnf("Only %s free on the cache volume (need %s) - deferring the remaining data sets", humanize.Bytes(free), humanize.Bytes(minFree))
			break
		}
		if err := r.processDataSet(ctx, m); err != nil {
			if errors.Cause(err) == loader.ErrStopRequested {
				ctx.Log.Info("Stop requested - leaving the data set for the next start")
				break
			}
			metrics.DiscoveryCycles.With(map[string]string{"outcome": "failed"}).Inc()
			return err
		}
	}
	metrics.DiscoveryCycles.With(map[string]string{"outcome": "ok"}).Inc()
	return nil
}

func (r *pipelineRunner) processDataSet(ctx pcontext.PipelineContext, m *manifest.DataSetManifest) error {
	ctx = ctx.LogWithFields(logrus.Fields{"manifest": m.Id.String()})

	// Synthetic data sets carrying a broken end-state block cannot be loaded
	// non-idempotently: without usable bounds a duplicate load would corrupt
	// the identifier ranges.
	if m.SyntheticData && m.EndState != nil && !m.EndState.Valid() && !ctx.Config.Load.IdempotencyRequired {
		ctx.Log.Warn("Synthetic data set has unusable end-state metadata and the pipeline is in non-idempotent mode")
		return r.queue.MarkRejected(ctx, m)
	}

	if err := r.queue.MarkStarted(ctx, m); err != nil {
		return err
	}
	ctx.Log.Infof("Processing data set with %d files", len(m.Entries))

	for i, entry := range m.Entries {
		if err := r.loadFile(ctx, m, i, entry); err != nil {
			return errors.Wrapf(err, "error loading %s", entry.Name)
		}
	}

	return r.queue.MarkProcessed(ctx, m)
}

func (r *pipelineRunner) loadFile(ctx pcontext.PipelineContext, m *manifest.DataSetManifest, idx int, entry manifest.Entry) error {
	if err := r.queue.MarkFileStarted(ctx, m, idx); err != nil {
		return err
	}

	key := m.EntryKey(entry)
	f, err := r.cache.Fetch(ctx, key)
	if err != nil {
		return err
	}

	verdict, err := f.Verify()
	if err != nil {
		return err
	}
	if verdict == filecache.ChecksumMismatch {
		return errors.Errorf("%s failed checksum verification", key)
	}

	// The stream gets its own cancellable context: if the load fails (or is
	// stopped) before the file is fully read, cancelling is what unblocks
	// the reader goroutine and closes the file handle.
	streamCtx, cancelStream := context.WithCancel(ctx.Context)
	defer cancelStream()

	stream := r.source.Stream(ctx.WithContext(streamCtx), f, entry.Type)
	result, err := r.loader.Process(ctx, m.ManifestKey(), entry.Name, entry.Type, stream.C)
	if err != nil {
		return err
	}
	if err = stream.Err(); err != nil {
		return err
	}
	ctx.Log.Infof("Loaded %d records from %s", result.Total(), entry.Name)

	if err = r.queue.MarkFileCompleted(ctx, m, idx); err != nil {
		return err
	}
	// The local copy is no longer needed once the file is fully committed
	return r.cache.Delete(key)
}
