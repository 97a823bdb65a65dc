package pipeline

import (
	"fmt"
	"strings"

	"github.com/sells-group/mobiodiv/internal/model"
)

// FormatReport renders the per-stage outcome of a run for the terminal.
func FormatReport(r *Report) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Acquisition: %s (buffer %.1f km)\n", r.Place, r.BufferKM)
	if r.RunID != "" {
		fmt.Fprintf(&b, "Run: %s\n", r.RunID)
	}
	if r.AOI != nil {
		bb := r.AOI.BBox
		fmt.Fprintf(&b, "BBox: %.4f, %.4f, %.4f, %.4f\n", bb.MinX, bb.MinY, bb.MaxX, bb.MaxY)
	}
	b.WriteString("\n")

	for _, s := range r.Stages {
		fmt.Fprintf(&b, "  %-18s %-9s", s.Stage, s.Status)
		if s.Status == model.StageStatusSucceeded {
			fmt.Fprintf(&b, " %d", s.Count)
		}
		fmt.Fprintf(&b, " (%dms)\n", s.Duration.Milliseconds())
		for _, a := range s.Artifacts {
			fmt.Fprintf(&b, "      -> %s\n", a)
		}
		if s.Err != nil {
			fmt.Fprintf(&b, "      error: %v\n", s.Err)
		}
	}

	if r.RoadDensity > 0 {
		fmt.Fprintf(&b, "\nRoad density: %.3f km/km²\n", r.RoadDensity)
	}
	fmt.Fprintf(&b, "Status: %s\n", r.Status)
	if r.Manifest != "" {
		fmt.Fprintf(&b, "Manifest: %s\n", r.Manifest)
	}
	return b.String()
}
