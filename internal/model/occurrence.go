package model

// OccurrenceRecord is one georeferenced observation from the occurrence API.
type OccurrenceRecord struct {
	Key              int64   `json:"key" parquet:"key"`
	ScientificName   string  `json:"scientificName" parquet:"scientificName"`
	DecimalLatitude  float64 `json:"decimalLatitude" parquet:"decimalLatitude"`
	DecimalLongitude float64 `json:"decimalLongitude" parquet:"decimalLongitude"`
	EventDate        string  `json:"eventDate" parquet:"eventDate,optional"`
	BasisOfRecord    string  `json:"basisOfRecord" parquet:"basisOfRecord,optional"`
	DatasetKey       string  `json:"datasetKey" parquet:"datasetKey,optional"`
	OccurrenceID     string  `json:"occurrenceID" parquet:"occurrenceID,optional"`
}
