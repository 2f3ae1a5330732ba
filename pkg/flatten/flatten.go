// Package flatten turns nested records into "path: value" lines and packs them
// into chunk texts for embedding. Chunks can be decoded back into fields.
package flatten

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/fleetdesk/fleetrag/pkg/fn"
)

const (
	// FieldSep joins flattened lines inside a chunk. Values must not contain it.
	FieldSep = " || "
	// PathSep joins nested keys and sequence indexes.
	PathSep = "."
	// DefaultChunkSize is the number of lines per chunk.
	DefaultChunkSize = 100
)

// Field is one decoded "path: value" pair.
type Field struct {
	Key   string
	Value string
}

// Flatten walks a decoded JSON value and returns its leaves as "path: value"
// lines. Map keys are visited in sorted order.
func Flatten(record any) ([]string, error) {
	var out []string
	if err := walk(record, "", &out); err != nil {
		return nil, err
	}
	return out, nil
}

func walk(v any, path string, out *[]string) error {
	switch tv := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(tv))
		for k := range tv {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if err := walk(tv[k], join(path, k), out); err != nil {
				return err
			}
		}
		return nil
	case []any:
		for i, item := range tv {
			if err := walk(item, join(path, strconv.Itoa(i)), out); err != nil {
				return err
			}
		}
		return nil
	}
	s, err := scalar(v)
	if err != nil {
		return fmt.Errorf("flatten: %w at path %q", err, path)
	}
	*out = append(*out, path+": "+s)
	return nil
}

func join(parent, key string) string {
	if parent == "" {
		return key
	}
	return parent + PathSep + key
}

func scalar(v any) (string, error) {
	switch tv := v.(type) {
	case nil:
		return "null", nil
	case string:
		return tv, nil
	case bool:
		return strconv.FormatBool(tv), nil
	case float64:
		return strconv.FormatFloat(tv, 'f', 6, 64), nil
	case float32:
		return strconv.FormatFloat(float64(tv), 'f', 6, 32), nil
	case json.Number:
		s := tv.String()
		if strings.ContainsAny(s, ".eE") {
			f, err := tv.Float64()
			if err != nil {
				return "", fmt.Errorf("bad number %q", s)
			}
			return strconv.FormatFloat(f, 'f', 6, 64), nil
		}
		return s, nil
	case int:
		return strconv.Itoa(tv), nil
	case int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return fmt.Sprintf("%d", tv), nil
	default:
		return "", fmt.Errorf("unsupported type %T", v)
	}
}

// Chunk joins up to size consecutive lines per chunk with FieldSep.
// A non-positive size falls back to DefaultChunkSize.
func Chunk(lines []string, size int) []string {
	if size <= 0 {
		size = DefaultChunkSize
	}
	return fn.Map(fn.Chunk(lines, size), func(group []string) string {
		return strings.Join(group, FieldSep)
	})
}

// ChunkRecord flattens one record and chunks the result.
func ChunkRecord(record any, size int) ([]string, error) {
	lines, err := Flatten(record)
	if err != nil {
		return nil, err
	}
	return Chunk(lines, size), nil
}

// Decode splits a chunk back into its fields. Parts without a ':' are skipped.
func Decode(chunk string) []Field {
	var fields []Field
	for _, part := range strings.Split(chunk, FieldSep) {
		k, v, ok := strings.Cut(part, ":")
		if !ok {
			continue
		}
		fields = append(fields, Field{
			Key:   k,
			Value: strings.TrimPrefix(v, " "),
		})
	}
	return fields
}

// Lookup returns the value of the first field with the given key.
func Lookup(fields []Field, key string) (string, bool) {
	for _, f := range fields {
		if f.Key == key {
			return f.Value, true
		}
	}
	return "", false
}
