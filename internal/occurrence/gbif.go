// Package occurrence downloads species occurrence records from the GBIF
// occurrence search API and stores them as Parquet.
package occurrence

import (
	"context"
	"net/url"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/mobiodiv/internal/fetcher"
	"github.com/sells-group/mobiodiv/internal/model"
)

const (
	// maxPageSize is the largest page GBIF serves.
	maxPageSize = 300
	// maxOffset is the deepest offset GBIF allows for search paging.
	maxOffset = 100_000
)

// Options configures a Fetcher.
type Options struct {
	BaseURL  string
	PageSize int
	// Tolerance is how far, in degrees, a record may sit outside the bbox
	// before it is dropped.
	Tolerance float64
}

// Fetcher pages through GBIF occurrence search results.
type Fetcher struct {
	fetcher fetcher.Fetcher
	opts    Options
}

// NewFetcher creates an occurrence fetcher.
func NewFetcher(f fetcher.Fetcher, opts Options) *Fetcher {
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	if opts.PageSize <= 0 || opts.PageSize > maxPageSize {
		opts.PageSize = maxPageSize
	}
	if opts.Tolerance < 0 {
		opts.Tolerance = 0
	}
	return &Fetcher{fetcher: f, opts: opts}
}

type searchResponse struct {
	Offset       int      `json:"offset"`
	Limit        int      `json:"limit"`
	EndOfRecords bool     `json:"endOfRecords"`
	Count        int      `json:"count"`
	Results      []result `json:"results"`
}

type result struct {
	Key              int64    `json:"key"`
	ScientificName   string   `json:"scientificName"`
	DecimalLatitude  *float64 `json:"decimalLatitude"`
	DecimalLongitude *float64 `json:"decimalLongitude"`
	EventDate        string   `json:"eventDate"`
	BasisOfRecord    string   `json:"basisOfRecord"`
	DatasetKey       string   `json:"datasetKey"`
	OccurrenceID     string   `json:"occurrenceID"`
}

// Fetch returns up to limit georeferenced records of taxon inside the bbox
// of aoi. No matches is an empty slice and a nil error.
func (f *Fetcher) Fetch(ctx context.Context, aoi *model.AreaOfInterest, taxon string, limit int) ([]model.OccurrenceRecord, error) {
	if limit <= 0 {
		return nil, eris.Wrapf(ErrInvalidLimit, "limit %d", limit)
	}
	taxon = strings.TrimSpace(taxon)
	if taxon == "" {
		return nil, ErrInvalidTaxon
	}
	if aoi == nil || !aoi.BBox.Valid() {
		return nil, &OccurrenceFetchError{Taxon: taxon, Err: eris.New("invalid area of interest")}
	}

	log := zap.L().With(zap.String("component", "occurrence"), zap.String("taxon", taxon))
	bbox := aoi.BBox

	records := make([]model.OccurrenceRecord, 0, min(limit, 4*maxPageSize))
	seen := make(map[int64]bool)
	var dropped int
	for offset := 0; len(records) < limit && offset < maxOffset; {
		page := min(f.opts.PageSize, limit-len(records))
		res, err := f.search(ctx, taxon, bbox, page, offset)
		if err != nil {
			return nil, &OccurrenceFetchError{Taxon: taxon, Err: err}
		}

		for _, r := range res.Results {
			if r.DecimalLatitude == nil || r.DecimalLongitude == nil {
				dropped++
				continue
			}
			lat, lon := *r.DecimalLatitude, *r.DecimalLongitude
			if !bbox.ContainsPoint(lon, lat, f.opts.Tolerance) {
				dropped++
				continue
			}
			if r.Key != 0 && seen[r.Key] {
				continue
			}
			seen[r.Key] = true
			records = append(records, model.OccurrenceRecord{
				Key:              r.Key,
				ScientificName:   r.ScientificName,
				DecimalLatitude:  lat,
				DecimalLongitude: lon,
				EventDate:        r.EventDate,
				BasisOfRecord:    r.BasisOfRecord,
				DatasetKey:       r.DatasetKey,
				OccurrenceID:     r.OccurrenceID,
			})
			if len(records) == limit {
				break
			}
		}

		log.Debug("occurrence: fetched page",
			zap.Int("offset", offset),
			zap.Int("results", len(res.Results)),
			zap.Int("total", res.Count),
		)
		if res.EndOfRecords || len(res.Results) == 0 {
			break
		}
		offset += len(res.Results)
	}

	log.Info("occurrence: fetched records",
		zap.Int("records", len(records)),
		zap.Int("dropped", dropped),
	)
	return records, nil
}

func (f *Fetcher) search(ctx context.Context, taxon string, bbox model.BBox, limit, offset int) (*searchResponse, error) {
	q := url.Values{}
	q.Set("scientificName", taxon)
	q.Set("hasCoordinate", "true")
	q.Set("decimalLatitude", formatRange(bbox.MinY, bbox.MaxY))
	q.Set("decimalLongitude", formatRange(bbox.MinX, bbox.MaxX))
	q.Set("limit", strconv.Itoa(limit))
	q.Set("offset", strconv.Itoa(offset))

	u := f.opts.BaseURL + "/occurrence/search?" + q.Encode()
	body, err := f.fetcher.Download(ctx, u)
	if err != nil {
		return nil, eris.Wrap(err, "occurrence search")
	}
	res, err := fetcher.DecodeJSONBody[searchResponse](body)
	if err != nil {
		return nil, eris.Wrap(err, "decode occurrence search")
	}
	return res, nil
}

func formatRange(lo, hi float64) string {
	return strconv.FormatFloat(lo, 'f', -1, 64) + "," + strconv.FormatFloat(hi, 'f', -1, 64)
}
