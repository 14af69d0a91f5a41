package database

import (
	"database/sql"
	"time"

	"github.com/pkg/errors"

	"github.com/carebridge/claims-pipeline/common/pcontext"
	"github.com/carebridge/claims-pipeline/manifest"
)

type DbManifestFile struct {
	ManifestKey string
	Index       int
	Name        string
	FileType    manifest.FileType
	Status      manifest.ProcessingStatus
	StatusTs    time.Time
}

const selectManifestFilesByKey = "SELECT manifest_key, idx, file_name, file_type, status, status_ts FROM manifest_data_files WHERE manifest_key = $1 ORDER BY idx;"
const insertManifestFile = "INSERT INTO manifest_data_files (manifest_key, idx, file_name, file_type, status, status_ts) VALUES ($1, $2, $3, $4, $5, $6);"
const updateManifestFileStatus = "UPDATE manifest_data_files SET status = $3, status_ts = $4 WHERE manifest_key = $1 AND idx = $2;"

type manifestFilesTableStatements struct {
	selectManifestFilesByKey *sql.Stmt
	insertManifestFile       *sql.Stmt
	updateManifestFileStatus *sql.Stmt
}

type manifestFilesTableWithContext struct {
	statements *manifestFilesTableStatements
	ctx        pcontext.PipelineContext
}

func prepareManifestFilesTables(db *sql.DB) (*manifestFilesTableStatements, error) {
	var err error
	var stmts = &manifestFilesTableStatements{}

	if stmts.selectManifestFilesByKey, err = db.Prepare(selectManifestFilesByKey); err != nil {
		return nil, errors.New("error preparing selectManifestFilesByKey: " + err.Error())
	}
	if stmts.insertManifestFile, err = db.Prepare(insertManifestFile); err != nil {
		return nil, errors.New("error preparing insertManifestFile: " + err.Error())
	}
	if stmts.updateManifestFileStatus, err = db.Prepare(updateManifestFileStatus); err != nil {
		return nil, errors.New("error preparing updateManifestFileStatus: " + err.Error())
	}

	return stmts, nil
}

func (s *manifestFilesTableStatements) Prepare(ctx pcontext.PipelineContext) *manifestFilesTableWithContext {
	return &manifestFilesTableWithContext{
		statements: s,
		ctx:        ctx,
	}
}

func (s *manifestFilesTableWithContext) GetByManifest(key string) ([]*DbManifestFile, error) {
	results := make([]*DbManifestFile, 0)
	rows, err := s.statements.selectManifestFilesByKey.QueryContext(s.ctx, key)
	if err != nil {
		if err == sql.ErrNoRows {
			return results, nil
		}
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		val := &DbManifestFile{}
		if err = rows.Scan(&val.ManifestKey, &val.Index, &val.Name, &val.FileType, &val.Status, &val.StatusTs); err != nil {
			return nil, err
		}
		results = append(results, val)
	}
	return results, rows.Err()
}

func (s *manifestFilesTableWithContext) UpdateStatus(key string, idx int, status manifest.ProcessingStatus) error {
	_, err := s.statements.updateManifestFileStatus.ExecContext(s.ctx, key, idx, status, time.Now().UTC())
	return err
}
