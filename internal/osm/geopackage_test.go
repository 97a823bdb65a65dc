package osm

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"

	"github.com/sells-group/mobiodiv/internal/gpkg"
)

func TestWriteGeoPackage(t *testing.T) {
	edges := buildEdges(mustElements(t), unitSquare().Geometry)
	require.NotEmpty(t, edges)

	path := filepath.Join(t.TempDir(), "osm_roads_square.gpkg")
	require.NoError(t, WriteGeoPackage(context.Background(), path, edges))

	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close() //nolint:errcheck

	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM edges`).Scan(&n))
	assert.Equal(t, len(edges), n)

	var (
		blob     []byte
		u, v     int64
		highway  string
		oneway   bool
		reversed bool
		length   float64
	)
	require.NoError(t, db.QueryRow(`SELECT geom, u, v, highway, oneway, reversed, length FROM edges ORDER BY fid LIMIT 1`).
		Scan(&blob, &u, &v, &highway, &oneway, &reversed, &length))
	assert.Equal(t, edges[0].U, u)
	assert.Equal(t, edges[0].V, v)
	assert.Equal(t, edges[0].Highway, highway)
	assert.Equal(t, edges[0].Oneway, oneway)
	assert.Equal(t, edges[0].Reversed, reversed)
	assert.InDelta(t, edges[0].LengthM, length, 1e-9)

	g, _, err := gpkg.DecodeGeometry(blob)
	require.NoError(t, err)
	ls, ok := g.(*geom.LineString)
	require.True(t, ok)
	assert.Equal(t, edges[0].Geometry.FlatCoords(), ls.FlatCoords())
}

func TestWriteGeoPackage_Empty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "osm_roads_empty.gpkg")
	require.NoError(t, WriteGeoPackage(context.Background(), path, nil))

	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close() //nolint:errcheck

	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM edges`).Scan(&n))
	assert.Zero(t, n)
}
