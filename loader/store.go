package loader

import (
	"github.com/carebridge/claims-pipeline/common/pcontext"
	"github.com/carebridge/claims-pipeline/manifest"
)

// BatchTx is the write surface of one open batch transaction. Everything
// written through it commits or rolls back together.
type BatchTx interface {
	RecordExists(key string) (bool, error)
	InsertRecord(rec Record) error
	UpdateRecord(rec Record) error
	SaveHash(identifier string, hash string) error
	SaveBatch(fileId int64, recordCount int, firstRecord int64, lastRecord int64) error
}

// Store is the persistence the pipeline needs around batches: per-file
// bookkeeping, transactional batch writes, and the resumable progress field.
type Store interface {
	// OpenFile returns this file's bookkeeping id and durable resume point,
	// creating the bookkeeping row on first load.
	OpenFile(ctx pcontext.PipelineContext, manifestKey string, fileName string, fileType manifest.FileType) (fileId int64, resumePoint int64, err error)

	// InBatchTransaction runs fn inside one transaction: commit on nil,
	// rollback on error.
	InBatchTransaction(ctx pcontext.PipelineContext, fn func(tx BatchTx) error) error

	// SaveResumePoint persists the safe resume point. Implementations must
	// never move the persisted value backwards.
	SaveResumePoint(ctx pcontext.PipelineContext, fileId int64, recordNumber int64) error

	// RefreshViews runs the post-load refresh step. Called exactly once per
	// successfully loaded file.
	RefreshViews(ctx pcontext.PipelineContext) error
}
