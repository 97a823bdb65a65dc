package fetcher

import (
	"encoding/json"
	"io"

	"github.com/rotisserie/eris"
)

// DecodeJSONObject decodes a single JSON object from a reader.
func DecodeJSONObject[T any](r io.Reader) (*T, error) {
	var obj T
	if err := json.NewDecoder(r).Decode(&obj); err != nil {
		return nil, eris.Wrap(err, "json: decode object")
	}
	return &obj, nil
}

// DecodeJSONBody decodes a JSON object from body and closes it.
func DecodeJSONBody[T any](body io.ReadCloser) (*T, error) {
	defer body.Close() //nolint:errcheck
	return DecodeJSONObject[T](body)
}
