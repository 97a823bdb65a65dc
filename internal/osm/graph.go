package osm

import (
	"strings"

	"github.com/twpayne/go-geom"

	"github.com/sells-group/mobiodiv/internal/geo"
	"github.com/sells-group/mobiodiv/internal/model"
)

type response struct {
	Remark   string    `json:"remark"`
	Elements []element `json:"elements"`
}

type element struct {
	Type  string            `json:"type"`
	ID    int64             `json:"id"`
	Lat   float64           `json:"lat"`
	Lon   float64           `json:"lon"`
	Nodes []int64           `json:"nodes"`
	Tags  map[string]string `json:"tags"`
}

// direction of travel permitted along a way's node order.
type direction int

const (
	bothWays direction = iota
	forwardOnly
	backwardOnly
)

func wayDirection(tags map[string]string) direction {
	switch strings.ToLower(tags["oneway"]) {
	case "yes", "true", "1":
		return forwardOnly
	case "-1", "reverse":
		return backwardOnly
	case "no", "false", "0":
		return bothWays
	}
	if tags["junction"] == "roundabout" || tags["junction"] == "circular" {
		return forwardOnly
	}
	return bothWays
}

// buildEdges splits ways into edges between intersection nodes and emits
// one edge per permitted direction. Edges whose endpoints both fall outside
// area are dropped; area nil keeps everything.
func buildEdges(elems []element, area geom.T) []model.RoadEdge {
	nodes := make(map[int64]geom.Coord)
	var ways []element
	for _, e := range elems {
		switch e.Type {
		case "node":
			nodes[e.ID] = geom.Coord{e.Lon, e.Lat}
		case "way":
			if len(e.Nodes) >= 2 {
				ways = append(ways, e)
			}
		}
	}

	// A node splits ways when it ends a way or is shared by several ways or
	// visited twice by one.
	uses := make(map[int64]int)
	for _, w := range ways {
		for _, id := range w.Nodes {
			uses[id]++
		}
	}
	isBreak := func(w element, i int) bool {
		return i == 0 || i == len(w.Nodes)-1 || uses[w.Nodes[i]] > 1
	}

	inside := make(map[int64]bool)
	within := func(id int64) bool {
		if area == nil {
			return true
		}
		v, ok := inside[id]
		if !ok {
			c := nodes[id]
			v = geo.ContainsPoint(area, c.X(), c.Y())
			inside[id] = v
		}
		return v
	}

	var edges []model.RoadEdge
	for _, w := range ways {
		dir := wayDirection(w.Tags)
		start := 0
		for i := 1; i < len(w.Nodes); i++ {
			if !isBreak(w, i) {
				continue
			}
			seg := w.Nodes[start : i+1]
			start = i

			coords := make([]geom.Coord, 0, len(seg))
			complete := true
			for _, id := range seg {
				c, ok := nodes[id]
				if !ok {
					complete = false
					break
				}
				coords = append(coords, c)
			}
			if !complete {
				continue
			}

			u, v := seg[0], seg[len(seg)-1]
			if !within(u) && !within(v) {
				continue
			}

			if dir != backwardOnly {
				edges = append(edges, newEdge(w, u, v, coords, dir != bothWays, false))
			}
			if dir != forwardOnly {
				edges = append(edges, newEdge(w, v, u, reversed(coords), dir != bothWays, true))
			}
		}
	}
	return edges
}

func newEdge(w element, u, v int64, coords []geom.Coord, oneway, rev bool) model.RoadEdge {
	ls := geom.NewLineString(geom.XY).MustSetCoords(coords).SetSRID(4326)
	return model.RoadEdge{
		U:        u,
		V:        v,
		OSMID:    w.ID,
		Highway:  w.Tags["highway"],
		Name:     w.Tags["name"],
		MaxSpeed: w.Tags["maxspeed"],
		Lanes:    w.Tags["lanes"],
		Oneway:   oneway,
		Reversed: rev,
		LengthM:  geo.LineLengthM(ls),
		Geometry: ls,
	}
}

func reversed(coords []geom.Coord) []geom.Coord {
	out := make([]geom.Coord, len(coords))
	for i, c := range coords {
		out[len(coords)-1-i] = c
	}
	return out
}
