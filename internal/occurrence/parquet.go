package occurrence

import (
	"os"

	"github.com/parquet-go/parquet-go"
	"github.com/rotisserie/eris"

	"github.com/sells-group/mobiodiv/internal/model"
)

// WriteParquet stores records as a Parquet file at path, replacing any
// existing file.
func WriteParquet(path string, records []model.OccurrenceRecord) error {
	tmp := path + ".tmp"
	if err := parquet.WriteFile(tmp, records); err != nil {
		_ = os.Remove(tmp)
		return eris.Wrapf(err, "occurrence: write parquet %s", path)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return eris.Wrapf(err, "occurrence: rename to %s", path)
	}
	return nil
}

// ReadParquet loads records written by WriteParquet.
func ReadParquet(path string) ([]model.OccurrenceRecord, error) {
	rows, err := parquet.ReadFile[model.OccurrenceRecord](path)
	if err != nil {
		return nil, eris.Wrapf(err, "occurrence: read parquet %s", path)
	}
	return rows, nil
}
