package database

import (
	"database/sql"

	"github.com/DavidHuie/gomigrate"
	"github.com/pkg/errors"

	"github.com/carebridge/claims-pipeline/common/config"
	"github.com/carebridge/claims-pipeline/common/logging"
)

type Database struct {
	conn              *sql.DB
	Manifests         *manifestsTableStatements
	ManifestFiles     *manifestFilesTableStatements
	HashedIdentifiers *hashedIdentifiersTableStatements
	LoadedFiles       *loadedFilesTableStatements
	LoadedBatches     *loadedBatchesTableStatements
	LoadRecords       *loadRecordsTableStatements
}

// Open connects to Postgres, runs pending migrations, and prepares the table
// accessors. The caller owns the returned handle and closes it on shutdown.
func Open(c config.DatabaseConfig, migrationsPath string) (*Database, error) {
	d := &Database{}
	var err error

	if d.conn, err = sql.Open("postgres", c.Postgres); err != nil {
		return nil, errors.Wrap(err, "error connecting to db")
	}
	d.conn.SetMaxOpenConns(c.Pool.MaxConnections)
	d.conn.SetMaxIdleConns(c.Pool.MaxIdle)

	// Run migrations
	var migrator *gomigrate.Migrator
	if migrator, err = gomigrate.NewMigratorWithLogger(d.conn, gomigrate.Postgres{}, migrationsPath, &logging.SendToDebugLogger{}); err != nil {
		return nil, errors.Wrap(err, "error setting up migrator")
	}
	if err = migrator.Migrate(); err != nil {
		return nil, errors.Wrap(err, "error running migrations")
	}

	// Prepare the table accessors
	if d.Manifests, err = prepareManifestsTables(d.conn); err != nil {
		return nil, errors.Wrap(err, "failed to create manifests table accessor")
	}
	if d.ManifestFiles, err = prepareManifestFilesTables(d.conn); err != nil {
		return nil, errors.Wrap(err, "failed to create manifest files table accessor")
	}
	if d.HashedIdentifiers, err = prepareHashedIdentifiersTables(d.conn); err != nil {
		return nil, errors.Wrap(err, "failed to create hashed identifiers table accessor")
	}
	if d.LoadedFiles, err = prepareLoadedFilesTables(d.conn); err != nil {
		return nil, errors.Wrap(err, "failed to create loaded files table accessor")
	}
	if d.LoadedBatches, err = prepareLoadedBatchesTables(d.conn); err != nil {
		return nil, errors.Wrap(err, "failed to create loaded batches table accessor")
	}
	if d.LoadRecords, err = prepareLoadRecordsTables(d.conn); err != nil {
		return nil, errors.Wrap(err, "failed to create load records table accessor")
	}

	return d, nil
}

func (d *Database) Close() error {
	return d.conn.Close()
}

// NewTransactionRunner creates a runner bound to this database's pool. Each
// concurrent worker gets its own runner.
func (d *Database) NewTransactionRunner() *TransactionRunner {
	return &TransactionRunner{db: d.conn}
}
