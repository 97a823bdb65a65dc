package osm

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/twpayne/go-geom"

	"github.com/sells-group/mobiodiv/internal/geo"
)

// driveFilter selects ways a car may use, matching the osmnx "drive"
// network type.
const driveFilter = `["highway"]["area"!~"yes"]["access"!~"private"]` +
	`["highway"!~"abandoned|bridleway|bus_guideway|construction|corridor|cycleway|elevator|escalator|footway|no|path|pedestrian|planned|platform|proposed|raceway|razed|service|steps|track"]` +
	`["motor_vehicle"!~"no"]["motorcar"!~"no"]` +
	`["service"!~"alley|driveway|emergency_access|parking|parking_aisle|private"]`

// BuildQuery returns an Overpass QL query for the drivable ways inside each
// polygon. Exterior rings are decimated to at most maxVertices vertices.
func BuildQuery(polys []*geom.Polygon, maxVertices, timeoutSecs int) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "[out:json][timeout:%d];\n(\n", timeoutSecs)
	for _, p := range polys {
		if p.NumLinearRings() == 0 {
			continue
		}
		ring := geo.Decimate(p.LinearRing(0).Coords(), maxVertices)
		fmt.Fprintf(&sb, "  way%s(poly:\"%s\");\n", driveFilter, polyString(ring))
	}
	sb.WriteString(");\n(._;>;);\nout body;\n")
	return sb.String()
}

// polyString formats a ring as Overpass "lat lon lat lon ..." without the
// closing vertex.
func polyString(ring []geom.Coord) string {
	if n := len(ring); n > 1 && ring[0].Equal(geom.XY, ring[n-1]) {
		ring = ring[:n-1]
	}
	parts := make([]string, 0, 2*len(ring))
	for _, c := range ring {
		parts = append(parts,
			strconv.FormatFloat(c.Y(), 'f', 7, 64),
			strconv.FormatFloat(c.X(), 'f', 7, 64),
		)
	}
	return strings.Join(parts, " ")
}
