package database

import (
	"database/sql"
	"time"

	"github.com/pkg/errors"

	"github.com/carebridge/claims-pipeline/common/pcontext"
)

const insertLoadedBatch = "INSERT INTO loaded_batches (loaded_file_id, record_count, first_record_number, last_record_number, created_ts) VALUES ($1, $2, $3, $4, $5);"
const selectLoadedBatchCount = "SELECT COUNT(*) FROM loaded_batches WHERE loaded_file_id = $1;"

type loadedBatchesTableStatements struct {
	insertLoadedBatch      *sql.Stmt
	selectLoadedBatchCount *sql.Stmt
}

type loadedBatchesTableWithContext struct {
	statements *loadedBatchesTableStatements
	ctx        pcontext.PipelineContext
}

func prepareLoadedBatchesTables(db *sql.DB) (*loadedBatchesTableStatements, error) {
	var err error
	var stmts = &loadedBatchesTableStatements{}

	if stmts.insertLoadedBatch, err = db.Prepare(insertLoadedBatch); err != nil {
		return nil, errors.New("error preparing insertLoadedBatch: " + err.Error())
	}
	if stmts.selectLoadedBatchCount, err = db.Prepare(selectLoadedBatchCount); err != nil {
		return nil, errors.New("error preparing selectLoadedBatchCount: " + err.Error())
	}

	return stmts, nil
}

func (s *loadedBatchesTableStatements) Prepare(ctx pcontext.PipelineContext) *loadedBatchesTableWithContext {
	return &loadedBatchesTableWithContext{
		statements: s,
		ctx:        ctx,
	}
}

// InsertTx writes a batch bookkeeping row inside the batch's own transaction
// so the row is only visible if the batch committed.
func (s *loadedBatchesTableWithContext) InsertTx(tx *sql.Tx, loadedFileId int64, recordCount int, firstRecord int64, lastRecord int64) error {
	_, err := tx.StmtContext(s.ctx, s.statements.insertLoadedBatch).ExecContext(s.ctx,
		loadedFileId, recordCount, firstRecord, lastRecord, time.Now().UTC())
	return err
}

func (s *loadedBatchesTableWithContext) CountForFile(loadedFileId int64) (int64, error) {
	row := s.statements.selectLoadedBatchCount.QueryRowContext(s.ctx, loadedFileId)
	count := int64(0)
	if err := row.Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}
