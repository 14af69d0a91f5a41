package loader

import (
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/carebridge/claims-pipeline/common/config"
	"github.com/carebridge/claims-pipeline/common/pcontext"
	"github.com/carebridge/claims-pipeline/hasher"
	"github.com/carebridge/claims-pipeline/manifest"
	"github.com/carebridge/claims-pipeline/metrics"
	"github.com/carebridge/claims-pipeline/progress"
)

// Record is one parsed, numbered business record. Numbering starts at 1 and
// ascends within a file; the upstream parser guarantees it.
type Record struct {
	Number   int64
	Action   RecordAction
	Key      string
	FileType manifest.FileType
	Payload  string

	// Identifiers are plaintexts whose peppered hashes must be persisted in
	// the same transaction as the record itself.
	Identifiers []string
}

type RecordAction int

const (
	RecordActionInsert RecordAction = iota
	RecordActionUpdate
)

// Result tallies per-record outcomes for one file.
type Result struct {
	Inserted   int64
	Updated    int64
	DidNothing int64
}

func (r *Result) Total() int64 {
	return r.Inserted + r.Updated + r.DidNothing
}

// ErrStopRequested is returned by Process when a shutdown was requested
// before the file finished. Everything committed so far stays committed and
// the persisted resume point lets the next start pick the file back up.
var ErrStopRequested = errors.New("stop requested before the file finished loading")

// Loader drives the batched, transactional load of one file at a time.
type Loader struct {
	store  Store
	hasher *hasher.IdentifierHasher
	cfg    config.LoadConfig

	// stop, when closed, makes the producer halt at its next record instead
	// of forming new batches. May be nil for callers that never stop.
	stop <-chan struct{}
}

func NewLoader(store Store, h *hasher.IdentifierHasher, cfg config.LoadConfig, stop <-chan struct{}) *Loader {
	return &Loader{
		store:  store,
		hasher: h,
		cfg:    cfg,
		stop:   stop,
	}
}

// Process consumes the record stream for one file and blocks until the file
// is fully loaded or a batch fails. Records at or below the file's durable
// resume point are skipped, so re-running a partially loaded file picks up
// where the last committed flush left off.
//
// Batches run concurrently on a bounded worker pool; the bounded batch
// channel is the backpressure that keeps memory flat when parsing outruns
// the database.
func (l *Loader) Process(ctx pcontext.PipelineContext, manifestKey string, fileName string, fileType manifest.FileType, records <-chan Record) (*Result, error) {
	fileId, resumePoint, err := l.store.OpenFile(ctx, manifestKey, fileName, fileType)
	if err != nil {
		return nil, err
	}
	log := ctx.Log.WithFields(logrus.Fields{"file": fileName, "loadedFileId": fileId})
	if resumePoint > 0 {
		log.Infof("Resuming load after record %d", resumePoint)
	}

	strategy := StrategyInsertUpdateNonIdempotent
	if l.cfg.IdempotencyRequired {
		strategy = StrategyInsertIdempotent
	}

	tracker := progress.NewTracker(resumePoint)
	result := &Result{}
	batches := make(chan []Record, l.cfg.PrefetchWindow)

	g, gctx := errgroup.WithContext(ctx.Context)

	// Producer: filter already-loaded records, mark the rest active, batch.
	g.Go(func() error {
		defer close(batches)
		batch := make([]Record, 0, l.cfg.BatchSize)
		flush := func() error {
			if len(batch) == 0 {
				return nil
			}
			out := make([]Record, len(batch))
			copy(out, batch)
			batch = batch[:0]
			select {
			case batches <- out:
				return nil
			case <-l.stop:
				return ErrStopRequested
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		for rec := range records {
			select {
			case <-l.stop:
				// Stop at the record boundary: batches already handed out
				// finish and commit, nothing new is formed.
				return ErrStopRequested
			default:
			}
			if rec.Number <= resumePoint {
				continue
			}
			tracker.RecordActive(rec.Number)
			batch = append(batch, rec)
			if len(batch) >= l.cfg.BatchSize {
				if err := flush(); err != nil {
					return err
				}
			}
		}
		return flush()
	})

	// Workers: one open transaction per batch, one worker per slot.
	for w := 0; w < l.cfg.Workers; w++ {
		g.Go(func() error {
			for batch := range batches {
				started := time.Now()
				outcomes, err := l.loadBatch(ctx, fileId, strategy, batch)
				if err != nil {
					metrics.BatchesLoaded.With(map[string]string{"outcome": "failed"}).Inc()
					// The failure stands for every record in the batch; none
					// of them will complete, and the pipeline stops pulling
					// new work once the group observes the error.
					return errors.Wrapf(err, "batch starting at record %d failed", batch[0].Number)
				}
				metrics.BatchesLoaded.With(map[string]string{"outcome": "loaded"}).Inc()
				metrics.BatchLoadTime.Observe(time.Since(started).Seconds())
				for i, rec := range batch {
					switch outcomes[i] {
					case LoadActionInserted:
						atomic.AddInt64(&result.Inserted, 1)
					case LoadActionUpdated:
						atomic.AddInt64(&result.Updated, 1)
					case LoadActionDidNothing:
						atomic.AddInt64(&result.DidNothing, 1)
					}
					metrics.RecordsLoaded.With(map[string]string{"fileType": string(rec.FileType), "action": outcomes[i].String()}).Inc()
					tracker.RecordComplete(rec.Number)
				}
			}
			return nil
		})
	}

	// Progress flusher: periodic and independent of batch completion. The
	// store clamps the persisted value so a late flush can never move it
	// backwards.
	stopFlush := make(chan struct{})
	flushDone := make(chan struct{})
	go func() {
		defer close(flushDone)
		ticker := time.NewTicker(time.Duration(l.cfg.FlushIntervalSeconds) * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				l.flushProgress(ctx, fileId, tracker, log)
			case <-stopFlush:
				return
			}
		}
	}()

	// Patience: files are terabyte scale, so slow is normal, but the
	// operator should hear about a load that outlives the window.
	patience := time.NewTimer(time.Duration(l.cfg.PatienceHours) * time.Hour)
	defer patience.Stop()
	patienceDone := make(chan struct{})
	go func() {
		select {
		case <-patience.C:
			log.Warnf("Load still running after %d hours", l.cfg.PatienceHours)
		case <-patienceDone:
		}
	}()

	waitErr := g.Wait()
	close(stopFlush)
	<-flushDone
	close(patienceDone)

	// A final flush is safe regardless of outcome: the tracker only advances
	// past committed work.
	l.flushProgress(ctx, fileId, tracker, log)

	if waitErr != nil {
		return nil, waitErr
	}

	if err := l.store.RefreshViews(ctx); err != nil {
		return nil, err
	}
	log.Infof("Loaded %d records (%d inserted, %d updated, %d unchanged)", result.Total(), result.Inserted, result.Updated, result.DidNothing)
	return result, nil
}

func (l *Loader) flushProgress(ctx pcontext.PipelineContext, fileId int64, tracker *progress.Tracker, log *logrus.Entry) {
	point := tracker.SafeResumePoint()
	metrics.ResumePoint.Set(float64(point))
	if err := l.store.SaveResumePoint(ctx, fileId, point); err != nil {
		// Not fatal: progress writes are an optimization for restarts, and
		// the next tick retries.
		log.Warn("Failed to persist resume point: ", err)
	}
}

func (l *Loader) loadBatch(ctx pcontext.PipelineContext, fileId int64, strategy LoadStrategy, batch []Record) ([]LoadAction, error) {
	outcomes := make([]LoadAction, len(batch))
	err := l.store.InBatchTransaction(ctx, func(tx BatchTx) error {
		for i, rec := range batch {
			for _, identifier := range rec.Identifiers {
				if l.hasher == nil {
					return errors.Errorf("record %d carries identifiers but no hasher is configured", rec.Number)
				}
				hash, err := l.hasher.Hash(ctx, identifier)
				if err != nil {
					return err
				}
				// Written every time the identifier appears: the insert is a
				// no-op once a row exists, and a batch that rolled back after
				// warming the in-memory cache still gets its row on retry.
				if err := tx.SaveHash(identifier, hash); err != nil {
					return err
				}
			}

			outcome, err := applyStrategy(tx, strategy, rec)
			if err != nil {
				return err
			}
			outcomes[i] = outcome
		}
		return tx.SaveBatch(fileId, len(batch), batch[0].Number, batch[len(batch)-1].Number)
	})
	if err != nil {
		return nil, err
	}
	return outcomes, nil
}
