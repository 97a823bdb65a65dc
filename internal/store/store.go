// Package store persists the run ledger: one row per acquisition run plus
// one row per completed stage.
package store

import (
	"context"
	"path/filepath"

	"github.com/rotisserie/eris"

	"github.com/sells-group/mobiodiv/internal/config"
	"github.com/sells-group/mobiodiv/internal/db"
	"github.com/sells-group/mobiodiv/internal/model"
)

// ErrNotFound is returned when a run id does not exist.
var ErrNotFound = eris.New("store: not found")

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status model.RunStatus `json:"status,omitempty"`
	Place  string          `json:"place,omitempty"`
	Limit  int             `json:"limit,omitempty"`
	Offset int             `json:"offset,omitempty"`
}

// Store defines the persistence interface for the run ledger.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, place string, bufferKM float64) (*model.Run, error)
	FinishRun(ctx context.Context, runID string, status model.RunStatus, bbox *model.BBox) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)

	// Stages
	RecordStage(ctx context.Context, runID string, rec model.StageRecord) (*model.StageRecord, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// DBFile is the SQLite ledger file name inside the data directory.
const DBFile = "mobiodiv.db"

// Open creates the configured ledger and applies its migration. dataDir
// holds the SQLite file for the sqlite driver.
func Open(ctx context.Context, cfg config.StoreConfig, dataDir string) (Store, error) {
	var (
		st  Store
		err error
	)
	switch cfg.Driver {
	case "sqlite", "":
		st, err = NewSQLite(filepath.Join(dataDir, DBFile))
	case "postgres":
		st, err = NewPostgres(ctx, cfg.DatabaseURL, db.PoolConfig{MaxConns: cfg.MaxConns, MinConns: cfg.MinConns})
	case "none":
		return NewNop(), nil
	default:
		return nil, eris.Errorf("store: unknown driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, err
	}
	return st, nil
}

func listLimit(filter RunFilter) int {
	if filter.Limit <= 0 {
		return 100
	}
	return filter.Limit
}
