package catalog

import "encoding/json"

type collectionsResponse struct {
	Collections []struct {
		ID    string `json:"id"`
		Title string `json:"title"`
	} `json:"collections"`
}

type searchRequest struct {
	Collections []string  `json:"collections"`
	BBox        []float64 `json:"bbox"`
	Limit       int       `json:"limit"`
}

type itemCollection struct {
	Features []item `json:"features"`
	Links    []link `json:"links"`
}

type item struct {
	ID     string           `json:"id"`
	BBox   []float64        `json:"bbox"`
	Assets map[string]asset `json:"assets"`
}

type asset struct {
	Href  string   `json:"href"`
	Type  string   `json:"type"`
	Roles []string `json:"roles"`
}

// link is a STAC paging link. POST links carry the body of the next
// request, optionally to be merged over the previous one.
type link struct {
	Rel    string          `json:"rel"`
	Href   string          `json:"href"`
	Method string          `json:"method"`
	Body   json.RawMessage `json:"body"`
	Merge  bool            `json:"merge"`
}
