package database

import (
	"database/sql"
	"time"

	"github.com/pkg/errors"

	"github.com/carebridge/claims-pipeline/common/pcontext"
	"github.com/carebridge/claims-pipeline/manifest"
)

// The load_records table is the generic landing zone records are written to.
// The business field mapping happens upstream of the pipeline; by the time a
// record arrives here it is an opaque payload under a primary key.

const selectLoadRecordExists = "SELECT TRUE FROM load_records WHERE record_key = $1 LIMIT 1;"
const insertLoadRecord = "INSERT INTO load_records (record_key, file_type, payload, last_updated_ts) VALUES ($1, $2, $3, $4);"
const updateLoadRecord = "UPDATE load_records SET payload = $3, last_updated_ts = $4 WHERE record_key = $1 AND file_type = $2;"

type loadRecordsTableStatements struct {
	selectLoadRecordExists *sql.Stmt
	insertLoadRecord       *sql.Stmt
	updateLoadRecord       *sql.Stmt
}

type loadRecordsTableWithContext struct {
	statements *loadRecordsTableStatements
	ctx        pcontext.PipelineContext
}

func prepareLoadRecordsTables(db *sql.DB) (*loadRecordsTableStatements, error) {
	var err error
	var stmts = &loadRecordsTableStatements{}

	if stmts.selectLoadRecordExists, err = db.Prepare(selectLoadRecordExists); err != nil {
		return nil, errors.New("error preparing selectLoadRecordExists: " + err.Error())
	}
	if stmts.insertLoadRecord, err = db.Prepare(insertLoadRecord); err != nil {
		return nil, errors.New("error preparing insertLoadRecord: " + err.Error())
	}
	if stmts.updateLoadRecord, err = db.Prepare(updateLoadRecord); err != nil {
		return nil, errors.New("error preparing updateLoadRecord: " + err.Error())
	}

	return stmts, nil
}

func (s *loadRecordsTableStatements) Prepare(ctx pcontext.PipelineContext) *loadRecordsTableWithContext {
	return &loadRecordsTableWithContext{
		statements: s,
		ctx:        ctx,
	}
}

func (s *loadRecordsTableWithContext) ExistsTx(tx *sql.Tx, recordKey string) (bool, error) {
	row := tx.StmtContext(s.ctx, s.statements.selectLoadRecordExists).QueryRowContext(s.ctx, recordKey)
	val := false
	err := row.Scan(&val)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return val, nil
}

func (s *loadRecordsTableWithContext) InsertTx(tx *sql.Tx, recordKey string, fileType manifest.FileType, payload string) error {
	_, err := tx.StmtContext(s.ctx, s.statements.insertLoadRecord).ExecContext(s.ctx,
		recordKey, fileType, payload, time.Now().UTC())
	return err
}

func (s *loadRecordsTableWithContext) UpdateTx(tx *sql.Tx, recordKey string, fileType manifest.FileType, payload string) error {
	_, err := tx.StmtContext(s.ctx, s.statements.updateLoadRecord).ExecContext(s.ctx,
		recordKey, fileType, payload, time.Now().UTC())
	return err
}
