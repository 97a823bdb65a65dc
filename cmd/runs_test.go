package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/mobiodiv/internal/model"
)

func TestFormatRunsList(t *testing.T) {
	now := time.Date(2025, 6, 15, 10, 30, 0, 0, time.UTC)
	runs := []model.Run{
		{
			ID:        "abc12345-6789-0000-0000-000000000000",
			Place:     "Singapore",
			BufferKM:  20,
			Status:    model.RunStatusComplete,
			CreatedAt: now,
			UpdatedAt: now.Add(2 * time.Minute),
		},
		{
			ID:        "def12345-6789-0000-0000-000000000000",
			Place:     "Llanfairpwllgwyngyllgogerychwyrndrobwllllantysiliogogogoch",
			Status:    model.RunStatusPartial,
			CreatedAt: now.Add(-1 * time.Hour),
			UpdatedAt: now.Add(-30 * time.Minute),
		},
	}

	var buf bytes.Buffer
	formatRunsList(&buf, runs)

	output := buf.String()
	assert.Contains(t, output, "PLACE")
	assert.Contains(t, output, "STATUS")
	assert.Contains(t, output, "Singapore")
	assert.Contains(t, output, "complete")
	assert.Contains(t, output, "partial")
	assert.Contains(t, output, "Llanfairpwllgwyngyllgogeryc...")
	assert.Contains(t, output, "2025-06-15 10:30")
	assert.Contains(t, output, "abc12345")
	assert.Contains(t, output, "2m0s")
}

func TestFormatRunDetail(t *testing.T) {
	now := time.Date(2025, 6, 15, 10, 30, 0, 0, time.UTC)
	run := &model.Run{
		ID:       "abc12345-6789-0000-0000-000000000000",
		Place:    "Singapore",
		BufferKM: 20,
		Status:   model.RunStatusPartial,
		BBox:     &model.BBox{MinX: 103.42, MinY: 0.98, MaxX: 104.27, MaxY: 1.65},
		Stages: []model.StageRecord{
			{Stage: model.StageResolveAOI, Status: model.StageStatusSucceeded, Count: 1, Artifacts: []string{"data/processed/aoi.gpkg"}, DurationMs: 1500},
			{Stage: model.StageFetchRoads, Status: model.StageStatusFailed, Error: "overpass: 504", DurationMs: 60000},
		},
		CreatedAt: now,
	}

	var buf bytes.Buffer
	formatRunDetail(&buf, run)

	output := buf.String()
	assert.Contains(t, output, "abc12345-6789-0000-0000-000000000000")
	assert.Contains(t, output, "103.4200, 0.9800, 104.2700, 1.6500")
	assert.Contains(t, output, "data/processed/aoi.gpkg")
	assert.Contains(t, output, "1.5s")
	assert.Contains(t, output, "1m0s")
	assert.Contains(t, output, "overpass: 504")
}

func TestFormatRunDetail_NoStages(t *testing.T) {
	var buf bytes.Buffer
	formatRunDetail(&buf, &model.Run{ID: "x", Place: "Nowhere", Status: model.RunStatusFailed})
	assert.NotContains(t, buf.String(), "STAGE")
}

func TestTruncateID(t *testing.T) {
	assert.Equal(t, "abc12345", truncateID("abc12345-6789"))
	assert.Equal(t, "short", truncateID("short"))
}
