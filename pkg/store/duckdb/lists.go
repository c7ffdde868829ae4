package duckdb

import (
	"fmt"

	"github.com/goccy/go-json"
)

// listLiteral renders a vector as a DuckDB list literal, bound as text and cast
// with CAST(? AS DOUBLE[])
func listLiteral(v []float64) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to encode list: %w", err)
	}
	return string(b), nil
}

// floatList converts a scanned DOUBLE[] value
func floatList(src any) ([]float64, error) {
	switch v := src.(type) {
	case nil:
		return nil, nil
	case []float64:
		return v, nil
	case []any:
		out := make([]float64, len(v))
		for i, x := range v {
			f, ok := x.(float64)
			if !ok {
				return nil, fmt.Errorf("list element %d is %T, want float64", i, x)
			}
			out[i] = f
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unexpected list type %T", src)
	}
}
