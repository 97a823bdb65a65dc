// Package gpkg writes vector layers as OGC GeoPackage files.
package gpkg

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// SRSWGS84 is the srs_id of EPSG:4326.
const SRSWGS84 = 4326

const (
	applicationID = 0x47504B47 // "GPKG"
	userVersion   = 10300
)

// Column is an attribute column of a feature table.
type Column struct {
	Name string
	// Type is a SQLite column type: TEXT, INTEGER, REAL or BOOLEAN.
	Type string
}

// Layer describes a feature table.
type Layer struct {
	Name string
	// GeometryType is a GeoPackage type name such as POLYGON. Empty
	// derives it from the first feature.
	GeometryType string
	SRSID        int32
	Columns      []Column
}

// Feature is one row: a geometry plus attribute values keyed by column name.
type Feature struct {
	Geometry   geom.T
	Properties map[string]any
}

const wgs84WKT = `GEOGCS["WGS 84",DATUM["WGS_1984",SPHEROID["WGS 84",6378137,298.257223563,AUTHORITY["EPSG","7030"]],AUTHORITY["EPSG","6326"]],PRIMEM["Greenwich",0,AUTHORITY["EPSG","8901"]],UNIT["degree",0.0174532925199433,AUTHORITY["EPSG","9122"]],AXIS["Latitude",NORTH],AXIS["Longitude",EAST],AUTHORITY["EPSG","4326"]]`

var coreSchema = []string{
	fmt.Sprintf("PRAGMA application_id = %d", applicationID),
	fmt.Sprintf("PRAGMA user_version = %d", userVersion),
	`CREATE TABLE gpkg_spatial_ref_sys (
		srs_name                 TEXT NOT NULL,
		srs_id                   INTEGER NOT NULL PRIMARY KEY,
		organization             TEXT NOT NULL,
		organization_coordsys_id INTEGER NOT NULL,
		definition               TEXT NOT NULL,
		description              TEXT
	)`,
	`CREATE TABLE gpkg_contents (
		table_name  TEXT NOT NULL PRIMARY KEY,
		data_type   TEXT NOT NULL,
		identifier  TEXT UNIQUE,
		description TEXT DEFAULT '',
		last_change DATETIME NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now')),
		min_x       DOUBLE,
		min_y       DOUBLE,
		max_x       DOUBLE,
		max_y       DOUBLE,
		srs_id      INTEGER,
		CONSTRAINT fk_gc_r_srs_id FOREIGN KEY (srs_id) REFERENCES gpkg_spatial_ref_sys(srs_id)
	)`,
	`CREATE TABLE gpkg_geometry_columns (
		table_name         TEXT NOT NULL,
		column_name        TEXT NOT NULL,
		geometry_type_name TEXT NOT NULL,
		srs_id             INTEGER NOT NULL,
		z                  TINYINT NOT NULL,
		m                  TINYINT NOT NULL,
		CONSTRAINT pk_geom_cols PRIMARY KEY (table_name, column_name),
		CONSTRAINT fk_gc_tn FOREIGN KEY (table_name) REFERENCES gpkg_contents(table_name),
		CONSTRAINT fk_gc_srs FOREIGN KEY (srs_id) REFERENCES gpkg_spatial_ref_sys(srs_id)
	)`,
}

// WriteFeatures writes features as a single-layer GeoPackage at path,
// replacing any existing file. The file is built under a temporary name and
// renamed into place.
func WriteFeatures(ctx context.Context, path string, layer Layer, features []Feature) error {
	if layer.Name == "" {
		return eris.New("gpkg: layer name is required")
	}
	if layer.SRSID == 0 {
		layer.SRSID = SRSWGS84
	}
	if layer.GeometryType == "" {
		layer.GeometryType = "GEOMETRY"
		if len(features) > 0 && features[0].Geometry != nil {
			layer.GeometryType = typeName(features[0].Geometry)
		}
	}
	for _, c := range layer.Columns {
		if strings.EqualFold(c.Name, "fid") || strings.EqualFold(c.Name, "geom") {
			return eris.Errorf("gpkg: column name %q is reserved", c.Name)
		}
	}

	tmp := path + ".tmp"
	_ = os.Remove(tmp)
	if err := write(ctx, tmp, layer, features); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return eris.Wrapf(err, "gpkg: rename to %s", path)
	}

	zap.L().Debug("gpkg: wrote layer",
		zap.String("path", path),
		zap.String("layer", layer.Name),
		zap.Int("features", len(features)),
	)
	return nil
}

func write(ctx context.Context, path string, layer Layer, features []Feature) error {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return eris.Wrap(err, "gpkg: open")
	}
	defer db.Close() //nolint:errcheck

	for _, stmt := range coreSchema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return eris.Wrap(err, "gpkg: create core schema")
		}
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "gpkg: begin")
	}
	defer tx.Rollback() //nolint:errcheck

	srs := []struct {
		name, org, def, desc string
		id, orgID            int
	}{
		{"WGS 84 geodetic", "EPSG", wgs84WKT, "longitude/latitude coordinates in decimal degrees on the WGS 84 spheroid", 4326, 4326},
		{"Undefined cartesian SRS", "NONE", "undefined", "undefined cartesian coordinate reference system", -1, -1},
		{"Undefined geographic SRS", "NONE", "undefined", "undefined geographic coordinate reference system", 0, 0},
	}
	for _, s := range srs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO gpkg_spatial_ref_sys (srs_name, srs_id, organization, organization_coordsys_id, definition, description) VALUES (?, ?, ?, ?, ?, ?)`,
			s.name, s.id, s.org, s.orgID, s.def, s.desc,
		); err != nil {
			return eris.Wrap(err, "gpkg: insert spatial reference")
		}
	}

	table := quoteIdent(layer.Name)
	cols := []string{"fid INTEGER PRIMARY KEY AUTOINCREMENT NOT NULL", "geom " + layer.GeometryType}
	names := []string{"geom"}
	marks := []string{"?"}
	for _, c := range layer.Columns {
		typ := c.Type
		if typ == "" {
			typ = "TEXT"
		}
		cols = append(cols, quoteIdent(c.Name)+" "+typ)
		names = append(names, quoteIdent(c.Name))
		marks = append(marks, "?")
	}
	if _, err := tx.ExecContext(ctx, "CREATE TABLE "+table+" (\n\t"+strings.Join(cols, ",\n\t")+"\n)"); err != nil {
		return eris.Wrapf(err, "gpkg: create table %s", layer.Name)
	}

	ins, err := tx.PrepareContext(ctx,
		"INSERT INTO "+table+" ("+strings.Join(names, ", ")+") VALUES ("+strings.Join(marks, ", ")+")")
	if err != nil {
		return eris.Wrap(err, "gpkg: prepare insert")
	}
	defer ins.Close() //nolint:errcheck

	var extent *geom.Bounds
	args := make([]any, len(names))
	for i, f := range features {
		blob, err := EncodeGeometry(f.Geometry, layer.SRSID)
		if err != nil {
			return eris.Wrapf(err, "gpkg: feature %d", i)
		}
		args[0] = blob
		for j, c := range layer.Columns {
			args[j+1] = f.Properties[c.Name]
		}
		if _, err := ins.ExecContext(ctx, args...); err != nil {
			return eris.Wrapf(err, "gpkg: insert feature %d", i)
		}

		if !isEmpty(f.Geometry) {
			if extent == nil {
				extent = geom.NewBounds(geom.XY).Extend(f.Geometry)
			} else {
				extent.Extend(f.Geometry)
			}
		}
	}

	var minX, minY, maxX, maxY any
	if extent != nil {
		minX, minY, maxX, maxY = extent.Min(0), extent.Min(1), extent.Max(0), extent.Max(1)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO gpkg_contents (table_name, data_type, identifier, min_x, min_y, max_x, max_y, srs_id) VALUES (?, 'features', ?, ?, ?, ?, ?, ?)`,
		layer.Name, layer.Name, minX, minY, maxX, maxY, layer.SRSID,
	); err != nil {
		return eris.Wrap(err, "gpkg: insert contents")
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO gpkg_geometry_columns (table_name, column_name, geometry_type_name, srs_id, z, m) VALUES (?, 'geom', ?, ?, 0, 0)`,
		layer.Name, layer.GeometryType, layer.SRSID,
	); err != nil {
		return eris.Wrap(err, "gpkg: insert geometry column")
	}

	if err := tx.Commit(); err != nil {
		return eris.Wrap(err, "gpkg: commit")
	}
	return nil
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
