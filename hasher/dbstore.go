package hasher

import (
	"github.com/carebridge/claims-pipeline/common/pcontext"
	"github.com/carebridge/claims-pipeline/database"
)

type dbHashStore struct {
	db *database.Database
}

// NewDatabaseHashStore backs the hasher with the hashed_identifiers table.
func NewDatabaseHashStore(db *database.Database) HashStore {
	return &dbHashStore{db: db}
}

func (s *dbHashStore) GetHash(ctx pcontext.PipelineContext, identifier string) (string, error) {
	return s.db.HashedIdentifiers.Prepare(ctx).GetHash(identifier)
}
