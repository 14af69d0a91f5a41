package loader

import (
	"database/sql"

	"github.com/carebridge/claims-pipeline/common/pcontext"
	"github.com/carebridge/claims-pipeline/database"
	"github.com/carebridge/claims-pipeline/manifest"
)

type dbStore struct {
	db *database.Database

	// Statements run once after each successful file load, e.g. refreshing
	// materialized views derived from load_records.
	refreshStatements []string
}

// NewDatabaseStore backs the pipeline with the loaded_files, loaded_batches,
// hashed_identifiers and load_records tables.
func NewDatabaseStore(db *database.Database, refreshStatements ...string) Store {
	return &dbStore{db: db, refreshStatements: refreshStatements}
}

func (s *dbStore) OpenFile(ctx pcontext.PipelineContext, manifestKey string, fileName string, fileType manifest.FileType) (int64, int64, error) {
	files := s.db.LoadedFiles.Prepare(ctx)
	existing, err := files.GetByName(manifestKey, fileName)
	if err != nil {
		return 0, 0, err
	}
	if existing != nil {
		return existing.LoadedFileId, existing.ResumeRecordNumber, nil
	}
	id, err := files.Insert(manifestKey, fileName, fileType)
	if err != nil {
		return 0, 0, err
	}
	return id, 0, nil
}

func (s *dbStore) InBatchTransaction(ctx pcontext.PipelineContext, fn func(tx BatchTx) error) error {
	runner := s.db.NewTransactionRunner()
	return runner.ExecuteFunction(ctx, func(tx *sql.Tx) error {
		return fn(&dbBatchTx{ctx: ctx, db: s.db, tx: tx})
	})
}

func (s *dbStore) SaveResumePoint(ctx pcontext.PipelineContext, fileId int64, recordNumber int64) error {
	return s.db.LoadedFiles.Prepare(ctx).UpdateResumePoint(fileId, recordNumber)
}

func (s *dbStore) RefreshViews(ctx pcontext.PipelineContext) error {
	runner := s.db.NewTransactionRunner()
	for _, stmt := range s.refreshStatements {
		statement := stmt
		err := runner.ExecuteFunction(ctx, func(tx *sql.Tx) error {
			_, execErr := tx.ExecContext(ctx, statement)
			return execErr
		})
		if err != nil {
			return err
		}
	}
	return nil
}

type dbBatchTx struct {
	ctx pcontext.PipelineContext
	db  *database.Database
	tx  *sql.Tx
}

func (t *dbBatchTx) RecordExists(key string) (bool, error) {
	return t.db.LoadRecords.Prepare(t.ctx).ExistsTx(t.tx, key)
}

func (t *dbBatchTx) InsertRecord(rec Record) error {
	return t.db.LoadRecords.Prepare(t.ctx).InsertTx(t.tx, rec.Key, rec.FileType, rec.Payload)
}

func (t *dbBatchTx) UpdateRecord(rec Record) error {
	return t.db.LoadRecords.Prepare(t.ctx).UpdateTx(t.tx, rec.Key, rec.FileType, rec.Payload)
}

func (t *dbBatchTx) SaveHash(identifier string, hash string) error {
	return t.db.HashedIdentifiers.Prepare(t.ctx).InsertHashTx(t.tx, identifier, hash)
}

func (t *dbBatchTx) SaveBatch(fileId int64, recordCount int, firstRecord int64, lastRecord int64) error {
	return t.db.LoadedBatches.Prepare(t.ctx).InsertTx(t.tx, fileId, recordCount, firstRecord, lastRecord)
}
