package model

import "github.com/twpayne/go-geom"

// RoadEdge is one directed segment of the drivable road graph, between two
// intersection (or dead-end) nodes.
type RoadEdge struct {
	U        int64
	V        int64
	OSMID    int64
	Highway  string
	Name     string
	MaxSpeed string
	Lanes    string
	Oneway   bool
	Reversed bool
	LengthM  float64
	Geometry *geom.LineString
}
