package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// ErrNotArray is returned when the input is not a JSON array of records.
var ErrNotArray = errors.New("records must be a JSON array")

// Decode parses a JSON array into records. Numbers in the generic form are
// kept as json.Number so identifiers such as 00123 are not reformatted.
func Decode[R any](data []byte) ([]Record[R], error) {
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return nil, fmt.Errorf("ingest: decode: %w", ErrNotArray)
		}
		return nil, fmt.Errorf("ingest: decode: %w", err)
	}

	out := make([]Record[R], 0, len(items))
	for i, item := range items {
		var rec Record[R]
		if err := json.Unmarshal(item, &rec.Value); err != nil {
			return nil, fmt.Errorf("ingest: decode record %d: %w", i, err)
		}
		dec := json.NewDecoder(bytes.NewReader(item))
		dec.UseNumber()
		if err := dec.Decode(&rec.Raw); err != nil {
			return nil, fmt.Errorf("ingest: decode record %d: %w", i, err)
		}
		out = append(out, rec)
	}
	return out, nil
}

// FileSource returns a source that reads path on every call.
func FileSource(path string) func(context.Context) ([]byte, error) {
	return func(ctx context.Context) ([]byte, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("ingest: read %s: %w", path, err)
		}
		return data, nil
	}
}
