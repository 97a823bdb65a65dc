package aoi

import "fmt"

// ResolutionError reports that no area of interest could be built for a
// place. It is fatal for an acquisition run.
type ResolutionError struct {
	Place string
	Err   error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("aoi: resolve %q: %v", e.Place, e.Err)
}

func (e *ResolutionError) Unwrap() error {
	return e.Err
}
