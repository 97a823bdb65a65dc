package occurrence

import (
	"fmt"

	"github.com/rotisserie/eris"
)

var (
	// ErrInvalidLimit is returned for a non-positive record limit.
	ErrInvalidLimit = eris.New("occurrence: limit must be positive")
	// ErrInvalidTaxon is returned for an empty taxon name.
	ErrInvalidTaxon = eris.New("occurrence: taxon is required")
)

// OccurrenceFetchError reports that the occurrence service could not be
// queried or its response decoded. It is recoverable for an acquisition run.
type OccurrenceFetchError struct {
	Taxon string
	Err   error
}

func (e *OccurrenceFetchError) Error() string {
	return fmt.Sprintf("occurrence: fetch %q: %v", e.Taxon, e.Err)
}

func (e *OccurrenceFetchError) Unwrap() error {
	return e.Err
}
