package database

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/carebridge/claims-pipeline/common/pcontext"
	"github.com/carebridge/claims-pipeline/manifest"
)

type DbManifest struct {
	ManifestKey   string
	TimestampText string
	Timestamp     time.Time
	SequenceId    int
	Synthetic     bool
	Status        manifest.ProcessingStatus
	StatusTs      time.Time
	DiscoveredTs  time.Time
}

const selectManifestByKey = "SELECT manifest_key, timestamp_text, manifest_timestamp, sequence_id, synthetic, status, status_ts, discovered_ts FROM data_set_manifests WHERE manifest_key = $1;"
const selectManifestStatus = "SELECT status FROM data_set_manifests WHERE manifest_key = $1;"
const selectIneligibleManifestKeys = "SELECT manifest_key FROM data_set_manifests WHERE manifest_timestamp > $1 AND status IN ('completed', 'rejected');"
const insertManifest = "INSERT INTO data_set_manifests (manifest_key, timestamp_text, manifest_timestamp, sequence_id, synthetic, status, status_ts, discovered_ts) VALUES ($1, $2, $3, $4, $5, $6, $7, $8) ON CONFLICT (manifest_key) DO NOTHING;"
const updateManifestStatus = "UPDATE data_set_manifests SET status = $2, status_ts = $3 WHERE manifest_key = $1 AND (status NOT IN ('completed', 'rejected') OR $2 IN ('completed', 'rejected'));"
const deleteManifestsOlderThan = "DELETE FROM data_set_manifests WHERE manifest_timestamp < $1 AND status IN ('completed', 'rejected');"

type manifestsTableStatements struct {
	conn *sql.DB

	selectManifestByKey          *sql.Stmt
	selectManifestStatus         *sql.Stmt
	selectIneligibleManifestKeys *sql.Stmt
	insertManifest               *sql.Stmt
	updateManifestStatus         *sql.Stmt
	deleteManifestsOlderThan     *sql.Stmt
}

type manifestsTableWithContext struct {
	statements *manifestsTableStatements
	ctx        pcontext.PipelineContext
}

func prepareManifestsTables(db *sql.DB) (*manifestsTableStatements, error) {
	var err error
	var stmts = &manifestsTableStatements{conn: db}

	if stmts.selectManifestByKey, err = db.Prepare(selectManifestByKey); err != nil {
		return nil, errors.New("error preparing selectManifestByKey: " + err.Error())
	}
	if stmts.selectManifestStatus, err = db.Prepare(selectManifestStatus); err != nil {
		return nil, errors.New("error preparing selectManifestStatus: " + err.Error())
	}
	if stmts.selectIneligibleManifestKeys, err = db.Prepare(selectIneligibleManifestKeys); err != nil {
		return nil, errors.New("error preparing selectIneligibleManifestKeys: " + err.Error())
	}
	if stmts.insertManifest, err = db.Prepare(insertManifest); err != nil {
		return nil, errors.New("error preparing insertManifest: " + err.Error())
	}
	if stmts.updateManifestStatus, err = db.Prepare(updateManifestStatus); err != nil {
		return nil, errors.New("error preparing updateManifestStatus: " + err.Error())
	}
	if stmts.deleteManifestsOlderThan, err = db.Prepare(deleteManifestsOlderThan); err != nil {
		return nil, errors.New("error preparing deleteManifestsOlderThan: " + err.Error())
	}

	return stmts, nil
}

func (s *manifestsTableStatements) Prepare(ctx pcontext.PipelineContext) *manifestsTableWithContext {
	return &manifestsTableWithContext{
		statements: s,
		ctx:        ctx,
	}
}

func (s *manifestsTableWithContext) GetByKey(key string) (*DbManifest, error) {
	row := s.statements.selectManifestByKey.QueryRowContext(s.ctx, key)
	val := &DbManifest{}
	err := row.Scan(&val.ManifestKey, &val.TimestampText, &val.Timestamp, &val.SequenceId, &val.Synthetic, &val.Status, &val.StatusTs, &val.DiscoveredTs)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return val, nil
}

// GetIneligibleKeysSince returns the keys of manifests newer than min that
// have already reached a terminal state. Discovery uses this as its exclusion
// set.
func (s *manifestsTableWithContext) GetIneligibleKeysSince(min time.Time) ([]string, error) {
	results := make([]string, 0)
	rows, err := s.statements.selectIneligibleManifestKeys.QueryContext(s.ctx, min)
	if err != nil {
		if err == sql.ErrNoRows {
			return results, nil
		}
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		val := ""
		if err = rows.Scan(&val); err != nil {
			return nil, err
		}
		results = append(results, val)
	}
	return results, rows.Err()
}

// InsertDiscovered inserts the manifest and its file rows in one transaction.
// A concurrent scheduler racing on the same key loses the insert cleanly:
// only the winner's file rows are written, and the loser sees inserted=false.
func (s *manifestsTableWithContext) InsertDiscovered(m *DbManifest, files []*DbManifestFile) (bool, error) {
	inserted := false
	runner := NewTransactionRunner(s.statements.conn)
	err := runner.ExecuteFunction(s.ctx, func(tx *sql.Tx) error {
		res, err := tx.StmtContext(s.ctx, s.statements.insertManifest).ExecContext(s.ctx,
			m.ManifestKey, m.TimestampText, m.Timestamp, m.SequenceId, m.Synthetic, m.Status, m.StatusTs, m.DiscoveredTs)
		if err != nil {
			return err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return nil
		}
		inserted = true
		for _, f := range files {
			_, err = tx.ExecContext(s.ctx, insertManifestFile, f.ManifestKey, f.Index, f.Name, f.FileType, f.Status, f.StatusTs)
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	return inserted, nil
}

// UpdateStatus transitions a manifest's status. Transitions are monotonic:
// moving a terminal record back to a non-terminal status is a logic fault and
// panics rather than corrupting the lifecycle.
func (s *manifestsTableWithContext) UpdateStatus(key string, status manifest.ProcessingStatus) error {
	row := s.statements.selectManifestStatus.QueryRowContext(s.ctx, key)
	current := manifest.ProcessingStatus("")
	if err := row.Scan(&current); err != nil {
		if err == sql.ErrNoRows {
			return errors.Errorf("no manifest record for %s", key)
		}
		return err
	}
	if current.IsTerminal() && !status.IsTerminal() {
		panic(fmt.Sprintf("invalid status transition for %s: %s -> %s", key, current, status))
	}

	res, err := s.statements.updateManifestStatus.ExecContext(s.ctx, key, status, time.Now().UTC())
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		// The row existed a moment ago, so the WHERE guard refused the
		// write: a concurrent caller made the record terminal between our
		// read and this update.
		panic(fmt.Sprintf("invalid status transition for %s: record is terminal, wanted %s", key, status))
	}
	return nil
}

// DeleteOlderThan removes terminal manifest records (and their file rows, by
// cascade) older than the cutoff.
func (s *manifestsTableWithContext) DeleteOlderThan(cutoff time.Time) (int64, error) {
	res, err := s.statements.deleteManifestsOlderThan.ExecContext(s.ctx, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
