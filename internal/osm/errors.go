package osm

import "fmt"

// NetworkFetchError reports that the road network could not be downloaded
// or decoded. It is recoverable for an acquisition run.
type NetworkFetchError struct {
	Err error
}

func (e *NetworkFetchError) Error() string {
	return fmt.Sprintf("osm: fetch road network: %v", e.Err)
}

func (e *NetworkFetchError) Unwrap() error {
	return e.Err
}
