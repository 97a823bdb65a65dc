package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/sells-group/mobiodiv/internal/model"
)

// NopStore discards everything. It backs store.driver=none.
type NopStore struct{}

// NewNop returns a ledger that records nothing.
func NewNop() *NopStore { return &NopStore{} }

func (NopStore) CreateRun(_ context.Context, place string, bufferKM float64) (*model.Run, error) {
	now := time.Now().UTC()
	return &model.Run{
		ID:        uuid.New().String(),
		Place:     place,
		BufferKM:  bufferKM,
		Status:    model.RunStatusRunning,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (NopStore) FinishRun(context.Context, string, model.RunStatus, *model.BBox) error { return nil }

func (NopStore) GetRun(context.Context, string) (*model.Run, error) { return nil, ErrNotFound }

func (NopStore) ListRuns(context.Context, RunFilter) ([]model.Run, error) { return nil, nil }

func (NopStore) RecordStage(_ context.Context, runID string, rec model.StageRecord) (*model.StageRecord, error) {
	rec.ID = uuid.New().String()
	rec.RunID = runID
	rec.CreatedAt = time.Now().UTC()
	return &rec, nil
}

func (NopStore) Migrate(context.Context) error { return nil }

func (NopStore) Close() error { return nil }
