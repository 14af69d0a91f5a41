package database

import (
	"database/sql"
	"time"

	"github.com/pkg/errors"

	"github.com/carebridge/claims-pipeline/common/pcontext"
	"github.com/carebridge/claims-pipeline/manifest"
)

type DbLoadedFile struct {
	LoadedFileId       int64
	ManifestKey        string
	FileName           string
	FileType           manifest.FileType
	ResumeRecordNumber int64
	CreatedTs          time.Time
	LastUpdatedTs      time.Time
}

const selectLoadedFileById = "SELECT loaded_file_id, manifest_key, file_name, file_type, resume_record_number, created_ts, last_updated_ts FROM loaded_files WHERE loaded_file_id = $1;"
const selectLoadedFileByName = "SELECT loaded_file_id, manifest_key, file_name, file_type, resume_record_number, created_ts, last_updated_ts FROM loaded_files WHERE manifest_key = $1 AND file_name = $2;"
const insertLoadedFile = "INSERT INTO loaded_files (manifest_key, file_name, file_type, resume_record_number, created_ts, last_updated_ts) VALUES ($1, $2, $3, 0, $4, $4) RETURNING loaded_file_id;"
const updateLoadedFileResumePoint = "UPDATE loaded_files SET resume_record_number = GREATEST(resume_record_number, $2), last_updated_ts = $3 WHERE loaded_file_id = $1;"
const deleteLoadedFilesOlderThan = "DELETE FROM loaded_files WHERE created_ts < $1;"

type loadedFilesTableStatements struct {
	selectLoadedFileById        *sql.Stmt
	selectLoadedFileByName      *sql.Stmt
	insertLoadedFile            *sql.Stmt
	updateLoadedFileResumePoint *sql.Stmt
	deleteLoadedFilesOlderThan  *sql.Stmt
}

type loadedFilesTableWithContext struct {
	statements *loadedFilesTableStatements
	ctx        pcontext.PipelineContext
}

func prepareLoadedFilesTables(db *sql.DB) (*loadedFilesTableStatements, error) {
	var err error
	var stmts = &loadedFilesTableStatements{}

	if stmts.selectLoadedFileById, err = db.Prepare(selectLoadedFileById); err != nil {
		return nil, errors.New("error preparing selectLoadedFileById: " + err.Error())
	}
	if stmts.selectLoadedFileByName, err = db.Prepare(selectLoadedFileByName); err != nil {
		return nil, errors.New("error preparing selectLoadedFileByName: " + err.Error())
	}
	if stmts.insertLoadedFile, err = db.Prepare(insertLoadedFile); err != nil {
		return nil, errors.New("error preparing insertLoadedFile: " + err.Error())
	}
	if stmts.updateLoadedFileResumePoint, err = db.Prepare(updateLoadedFileResumePoint); err != nil {
		return nil, errors.New("error preparing updateLoadedFileResumePoint: " + err.Error())
	}
	if stmts.deleteLoadedFilesOlderThan, err = db.Prepare(deleteLoadedFilesOlderThan); err != nil {
		return nil, errors.New("error preparing deleteLoadedFilesOlderThan: " + err.Error())
	}

	return stmts, nil
}

func (s *loadedFilesTableStatements) Prepare(ctx pcontext.PipelineContext) *loadedFilesTableWithContext {
	return &loadedFilesTableWithContext{
		statements: s,
		ctx:        ctx,
	}
}

func (s *loadedFilesTableWithContext) GetById(id int64) (*DbLoadedFile, error) {
	return s.scanOne(s.statements.selectLoadedFileById.QueryRowContext(s.ctx, id))
}

// GetByName returns the bookkeeping row for a file from a previous run, or
// nil when the file has never been loaded.
func (s *loadedFilesTableWithContext) GetByName(manifestKey string, fileName string) (*DbLoadedFile, error) {
	return s.scanOne(s.statements.selectLoadedFileByName.QueryRowContext(s.ctx, manifestKey, fileName))
}

func (s *loadedFilesTableWithContext) scanOne(row *sql.Row) (*DbLoadedFile, error) {
	val := &DbLoadedFile{}
	err := row.Scan(&val.LoadedFileId, &val.ManifestKey, &val.FileName, &val.FileType, &val.ResumeRecordNumber, &val.CreatedTs, &val.LastUpdatedTs)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return val, nil
}

func (s *loadedFilesTableWithContext) Insert(manifestKey string, fileName string, fileType manifest.FileType) (int64, error) {
	row := s.statements.insertLoadedFile.QueryRowContext(s.ctx, manifestKey, fileName, fileType, time.Now().UTC())
	id := int64(0)
	if err := row.Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

// UpdateResumePoint advances the persisted resume point. GREATEST keeps the
// value monotonic even if a stale flush lands late.
func (s *loadedFilesTableWithContext) UpdateResumePoint(id int64, recordNumber int64) error {
	_, err := s.statements.updateLoadedFileResumePoint.ExecContext(s.ctx, id, recordNumber, time.Now().UTC())
	return err
}

func (s *loadedFilesTableWithContext) DeleteOlderThan(cutoff time.Time) (int64, error) {
	res, err := s.statements.deleteLoadedFilesOlderThan.ExecContext(s.ctx, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
