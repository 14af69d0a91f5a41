package database

import (
	"context"
	"database/sql"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
)

// TransactionRunner executes units of work each inside its own transaction:
// commit on normal return, rollback on error. A rollback failure never
// replaces the original error; it is attached as a secondary cause. A runner
// may be reused for sequential transactions but is not safe for concurrent
// use - callers needing concurrency create one runner per worker.
type TransactionRunner struct {
	db *sql.DB
}

func NewTransactionRunner(db *sql.DB) *TransactionRunner {
	return &TransactionRunner{db: db}
}

func (r *TransactionRunner) ExecuteFunction(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "error starting transaction")
	}

	if err = fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && rbErr != sql.ErrTxDone {
			return multierror.Append(err, errors.Wrap(rbErr, "rollback also failed"))
		}
		return err
	}

	if err = tx.Commit(); err != nil {
		return errors.Wrap(err, "error committing transaction")
	}
	return nil
}

func (r *TransactionRunner) ExecuteQuery(ctx context.Context, fn func(tx *sql.Tx) (interface{}, error)) (interface{}, error) {
	var result interface{}
	err := r.ExecuteFunction(ctx, func(tx *sql.Tx) error {
		var fnErr error
		result, fnErr = fn(tx)
		return fnErr
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
