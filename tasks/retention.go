package tasks

import (
	"time"

	"github.com/carebridge/claims-pipeline/common/pcontext"
	"github.com/carebridge/claims-pipeline/database"
)

// Bookkeeping rows outlive their usefulness well before the manifests do:
// resume points only matter while a file could still be re-run.
const manifestRetention = 60 * 24 * time.Hour
const loadedFileRetention = 40 * 24 * time.Hour

// SweepRetention trims terminal manifest records and stale load bookkeeping.
// Runs on the idle pool so a busy load never competes with it.
func SweepRetention(db *database.Database) func(ctx pcontext.PipelineContext) error {
	return func(ctx pcontext.PipelineContext) error {
		now := time.Now().UTC()

		removed, err := db.Manifests.Prepare(ctx).DeleteOlderThan(now.Add(-manifestRetention))
		if err != nil {
			return err
		}
		if removed > 0 {
			ctx.Log.Infof("Removed %d expired manifest records", removed)
		}

		removed, err = db.LoadedFiles.Prepare(ctx).DeleteOlderThan(now.Add(-loadedFileRetention))
		if err != nil {
			return err
		}
		if removed > 0 {
			ctx.Log.Infof("Removed %d stale loaded file records", removed)
		}
		return nil
	}
}
