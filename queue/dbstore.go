package queue

import (
	"time"

	"github.com/carebridge/claims-pipeline/common/pcontext"
	"github.com/carebridge/claims-pipeline/database"
	"github.com/carebridge/claims-pipeline/manifest"
)

type dbStateStore struct {
	db *database.Database
}

// NewDatabaseStateStore backs the queue with the data_set_manifests and
// manifest_data_files tables.
func NewDatabaseStateStore(db *database.Database) StateStore {
	return &dbStateStore{db: db}
}

func (s *dbStateStore) GetIneligibleKeysSince(ctx pcontext.PipelineContext, min time.Time) ([]string, error) {
	return s.db.Manifests.Prepare(ctx).GetIneligibleKeysSince(min)
}

func (s *dbStateStore) GetManifest(ctx pcontext.PipelineContext, key string) (*StoredManifest, error) {
	record, err := s.db.Manifests.Prepare(ctx).GetByKey(key)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, nil
	}

	files, err := s.db.ManifestFiles.Prepare(ctx).GetByManifest(key)
	if err != nil {
		return nil, err
	}
	entries := make([]manifest.Entry, 0, len(files))
	for _, f := range files {
		entries = append(entries, manifest.Entry{Name: f.Name, Type: f.FileType})
	}

	id, err := manifest.NewID(record.TimestampText, record.SequenceId)
	if err != nil {
		return nil, err
	}
	return &StoredManifest{
		Key:       record.ManifestKey,
		Id:        id,
		Synthetic: record.Synthetic,
		Status:    record.Status,
		Entries:   entries,
	}, nil
}

func (s *dbStateStore) InsertDiscovered(ctx pcontext.PipelineContext, m *manifest.DataSetManifest) (bool, error) {
	now := time.Now().UTC()
	record := &database.DbManifest{
		ManifestKey:   m.ManifestKey(),
		TimestampText: m.Id.TimestampText,
		Timestamp:     m.Id.Timestamp,
		SequenceId:    m.Id.SequenceId,
		Synthetic:     m.SyntheticData,
		Status:        manifest.StatusDiscovered,
		StatusTs:      now,
		DiscoveredTs:  now,
	}
	files := make([]*database.DbManifestFile, 0, len(m.Entries))
	for i, e := range m.Entries {
		files = append(files, &database.DbManifestFile{
			ManifestKey: m.ManifestKey(),
			Index:       i,
			Name:        e.Name,
			FileType:    e.Type,
			Status:      manifest.StatusDiscovered,
			StatusTs:    now,
		})
	}
	return s.db.Manifests.Prepare(ctx).InsertDiscovered(record, files)
}

func (s *dbStateStore) UpdateStatus(ctx pcontext.PipelineContext, key string, status manifest.ProcessingStatus) error {
	return s.db.Manifests.Prepare(ctx).UpdateStatus(key, status)
}

func (s *dbStateStore) UpdateFileStatus(ctx pcontext.PipelineContext, key string, idx int, status manifest.ProcessingStatus) error {
	return s.db.ManifestFiles.Prepare(ctx).UpdateStatus(key, idx, status)
}
