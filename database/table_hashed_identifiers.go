package database

import (
	"database/sql"
	"time"

	"github.com/pkg/errors"

	"github.com/carebridge/claims-pipeline/common/pcontext"
)

const selectHashedIdentifier = "SELECT id_hash FROM hashed_identifiers WHERE identifier = $1;"
const insertHashedIdentifier = "INSERT INTO hashed_identifiers (identifier, id_hash, created_ts) VALUES ($1, $2, $3) ON CONFLICT (identifier) DO NOTHING;"

type hashedIdentifiersTableStatements struct {
	selectHashedIdentifier *sql.Stmt
	insertHashedIdentifier *sql.Stmt
}

type hashedIdentifiersTableWithContext struct {
	statements *hashedIdentifiersTableStatements
	ctx        pcontext.PipelineContext
}

func prepareHashedIdentifiersTables(db *sql.DB) (*hashedIdentifiersTableStatements, error) {
	var err error
	var stmts = &hashedIdentifiersTableStatements{}

	if stmts.selectHashedIdentifier, err = db.Prepare(selectHashedIdentifier); err != nil {
		return nil, errors.New("error preparing selectHashedIdentifier: " + err.Error())
	}
	if stmts.insertHashedIdentifier, err = db.Prepare(insertHashedIdentifier); err != nil {
		return nil, errors.New("error preparing insertHashedIdentifier: " + err.Error())
	}

	return stmts, nil
}

func (s *hashedIdentifiersTableStatements) Prepare(ctx pcontext.PipelineContext) *hashedIdentifiersTableWithContext {
	return &hashedIdentifiersTableWithContext{
		statements: s,
		ctx:        ctx,
	}
}

func (s *hashedIdentifiersTableWithContext) GetHash(identifier string) (string, error) {
	row := s.statements.selectHashedIdentifier.QueryRowContext(s.ctx, identifier)
	val := ""
	err := row.Scan(&val)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return val, nil
}

// InsertHashTx persists a hash inside an open batch transaction so the hash
// row and the record rows that reference it commit or roll back together.
// Losing a race to another writer is fine: the computation is deterministic,
// so whichever row landed first holds the same value.
func (s *hashedIdentifiersTableWithContext) InsertHashTx(tx *sql.Tx, identifier string, hash string) error {
	_, err := tx.StmtContext(s.ctx, s.statements.insertHashedIdentifier).ExecContext(s.ctx, identifier, hash, time.Now().UTC())
	return err
}
