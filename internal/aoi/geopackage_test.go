package aoi

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"

	"github.com/sells-group/mobiodiv/internal/gpkg"
	"github.com/sells-group/mobiodiv/internal/model"
)

func TestWriteGeoPackage(t *testing.T) {
	r := NewResolver(&fakeGeocoder{place: singapore()}, 32)
	area, err := r.Resolve(context.Background(), "Singapore", 5)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "aoi.gpkg")
	require.NoError(t, WriteGeoPackage(context.Background(), path, area))

	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close() //nolint:errcheck

	var (
		blob     []byte
		name     string
		source   string
		bufferKM float64
	)
	require.NoError(t, db.QueryRow(`SELECT geom, name, source, buffer_km FROM aoi`).Scan(&blob, &name, &source, &bufferKM))
	assert.Equal(t, "Singapore", name)
	assert.Equal(t, "nominatim", source)
	assert.Equal(t, 5.0, bufferKM)

	g, srs, err := gpkg.DecodeGeometry(blob)
	require.NoError(t, err)
	assert.Equal(t, int32(4326), srs)
	_, ok := g.(*geom.Polygon)
	assert.True(t, ok)
	assert.Equal(t, area.BBox, model.BBoxOf(g))

	var geomType string
	require.NoError(t, db.QueryRow(`SELECT geometry_type_name FROM gpkg_geometry_columns WHERE table_name = 'aoi'`).Scan(&geomType))
	assert.Equal(t, "POLYGON", geomType)
}

func TestWriteGeoPackage_NoGeometry(t *testing.T) {
	err := WriteGeoPackage(context.Background(), filepath.Join(t.TempDir(), "aoi.gpkg"), &model.AreaOfInterest{Name: "x"})
	assert.Error(t, err)
}
