package loader

import (
	"fmt"
)

// LoadStrategy decides how a record's write is applied.
type LoadStrategy int

const (
	// StrategyInsertIdempotent checks for an existing row by primary key and
	// inserts only when absent; an existing row is a no-op outcome. Used when
	// repeated loads of the same data set must not duplicate rows.
	StrategyInsertIdempotent LoadStrategy = iota
	// StrategyInsertUpdateNonIdempotent applies inserts and updates blindly.
	StrategyInsertUpdateNonIdempotent
)

func (s LoadStrategy) String() string {
	switch s {
	case StrategyInsertIdempotent:
		return "INSERT_IDEMPOTENT"
	case StrategyInsertUpdateNonIdempotent:
		return "INSERT_UPDATE_NON_IDEMPOTENT"
	}
	return "UNKNOWN"
}

// LoadAction is the per-record outcome reported by the pipeline.
type LoadAction int

const (
	LoadActionInserted LoadAction = iota
	LoadActionUpdated
	LoadActionDidNothing
)

func (a LoadAction) String() string {
	switch a {
	case LoadActionInserted:
		return "INSERTED"
	case LoadActionUpdated:
		return "UPDATED"
	case LoadActionDidNothing:
		return "DID_NOTHING"
	}
	return "UNKNOWN"
}

// applyStrategy performs one record's write inside the batch transaction.
// The unreachable combinations indicate the pipeline's invariants were
// already violated upstream, so they panic rather than load wrong data.
func applyStrategy(tx BatchTx, strategy LoadStrategy, rec Record) (LoadAction, error) {
	switch {
	case rec.Action == RecordActionInsert && strategy == StrategyInsertIdempotent:
		exists, err := tx.RecordExists(rec.Key)
		if err != nil {
			return 0, err
		}
		if exists {
			return LoadActionDidNothing, nil
		}
		if err = tx.InsertRecord(rec); err != nil {
			return 0, err
		}
		return LoadActionInserted, nil
	case rec.Action == RecordActionInsert && strategy == StrategyInsertUpdateNonIdempotent:
		if err := tx.InsertRecord(rec); err != nil {
			return 0, err
		}
		return LoadActionInserted, nil
	case rec.Action == RecordActionUpdate && strategy == StrategyInsertUpdateNonIdempotent:
		if err := tx.UpdateRecord(rec); err != nil {
			return 0, err
		}
		return LoadActionUpdated, nil
	default:
		panic(fmt.Sprintf("unhandled action %d under strategy %s", rec.Action, strategy))
	}
}
