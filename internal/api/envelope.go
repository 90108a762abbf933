package api

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Shape identifies which list envelope the backend used.
type Shape int

const (
	ShapeUnknown Shape = iota
	ShapeNested        // {"data": {"items": [...], "total": n}} or {"data": [...], "total": n}
	ShapeFlat          // {"items": [...], "total": n}
	ShapeBare          // [...]
)

func (s Shape) String() string {
	switch s {
	case ShapeNested:
		return "nested"
	case ShapeFlat:
		return "flat"
	case ShapeBare:
		return "bare"
	default:
		return "unknown"
	}
}

// envelope is the decoded tag plus the still-raw payload.
type envelope struct {
	shape    Shape
	items    json.RawMessage
	total    int
	hasTotal bool
}

var (
	totalKeys           = []string{"total", "totalCount", "count"}
	paginationKeys      = []string{"pagination", "meta"}
	paginationTotalKeys = []string{"total", "totalCount", "count", "totalItems"}
)

// DetectShape reports which envelope raw uses.
func DetectShape(raw json.RawMessage, itemKeys ...string) (Shape, error) {
	env, err := decodeEnvelope(raw, itemKeys)
	return env.shape, err
}

// DecodeList normalizes any of the known list envelopes into a ListResult.
// itemKeys names resource-specific aliases for "items" (e.g. "users").
// A bare array is treated as the full collection and paged locally.
func DecodeList[T any](raw json.RawMessage, q ListQuery, itemKeys ...string) (ListResult[T], error) {
	q = q.Normalize()
	if len(bytes.TrimSpace(raw)) == 0 {
		return NewListResult[T](nil, 0, q), nil
	}

	env, err := decodeEnvelope(raw, itemKeys)
	if err != nil {
		return ListResult[T]{}, err
	}

	var items []T
	if len(env.items) > 0 && !bytes.Equal(bytes.TrimSpace(env.items), []byte("null")) {
		if err := json.Unmarshal(env.items, &items); err != nil {
			return ListResult[T]{}, fmt.Errorf("api: decoding %s list items: %w", env.shape, err)
		}
	}

	if env.shape == ShapeBare {
		total := len(items)
		start := (q.Page - 1) * q.PageSize
		if start > total {
			start = total
		}
		end := start + q.PageSize
		if end > total {
			end = total
		}
		return NewListResult(items[start:end], total, q), nil
	}

	total := env.total
	if !env.hasTotal {
		total = (q.Page-1)*q.PageSize + len(items)
	}
	return NewListResult(items, total, q), nil
}

func decodeEnvelope(raw json.RawMessage, itemKeys []string) (envelope, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return envelope{}, ErrInvalidEnvelope
	}

	switch trimmed[0] {
	case '[':
		return envelope{shape: ShapeBare, items: trimmed}, nil
	case '{':
	default:
		return envelope{}, ErrInvalidEnvelope
	}

	var top map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &top); err != nil {
		return envelope{}, fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)
	}
	keys := append([]string{"items"}, itemKeys...)

	if data, ok := top["data"]; ok {
		data = bytes.TrimSpace(data)
		if len(data) > 0 && data[0] == '[' {
			env := envelope{shape: ShapeNested, items: data}
			env.total, env.hasTotal = findTotal(top)
			return env, nil
		}

		var inner map[string]json.RawMessage
		if err := json.Unmarshal(data, &inner); err == nil && inner != nil {
			if items, ok := firstKey(inner, keys); ok {
				env := envelope{shape: ShapeNested, items: items}
				env.total, env.hasTotal = findTotal(inner)
				if !env.hasTotal {
					env.total, env.hasTotal = findTotal(top)
				}
				return env, nil
			}
		}
	}

	if items, ok := firstKey(top, keys); ok {
		env := envelope{shape: ShapeFlat, items: items}
		env.total, env.hasTotal = findTotal(top)
		return env, nil
	}

	return envelope{}, ErrInvalidEnvelope
}

func firstKey(obj map[string]json.RawMessage, keys []string) (json.RawMessage, bool) {
	for _, k := range keys {
		if v, ok := obj[k]; ok {
			v = bytes.TrimSpace(v)
			if len(v) > 0 && (v[0] == '[' || bytes.Equal(v, []byte("null"))) {
				return v, true
			}
		}
	}
	return nil, false
}

func findTotal(obj map[string]json.RawMessage) (int, bool) {
	for _, k := range totalKeys {
		if n, ok := number(obj[k]); ok {
			return n, true
		}
	}
	for _, pk := range paginationKeys {
		var p map[string]json.RawMessage
		if err := json.Unmarshal(obj[pk], &p); err != nil || p == nil {
			continue
		}
		for _, k := range paginationTotalKeys {
			if n, ok := number(p[k]); ok {
				return n, true
			}
		}
	}
	return 0, false
}

func number(raw json.RawMessage) (int, bool) {
	if len(raw) == 0 {
		return 0, false
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil || f < 0 {
		return 0, false
	}
	return int(f), true
}

// DecodeEntity extracts a single record from a mutation response. It looks
// under data.<key>, data, <key> and finally the top level, taking the first
// object that carries an id. ok is false for a bare acknowledgment.
func DecodeEntity[T any](raw json.RawMessage, keys ...string) (T, bool, error) {
	var zero T
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return zero, false, nil
	}

	var top map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &top); err != nil {
		return zero, false, fmt.Errorf("api: decoding entity: %w", err)
	}

	var candidates []json.RawMessage
	if data, ok := top["data"]; ok {
		var inner map[string]json.RawMessage
		if err := json.Unmarshal(data, &inner); err == nil {
			for _, k := range keys {
				if v, ok := inner[k]; ok {
					candidates = append(candidates, v)
				}
			}
		}
		candidates = append(candidates, data)
	}
	for _, k := range keys {
		if v, ok := top[k]; ok {
			candidates = append(candidates, v)
		}
	}
	candidates = append(candidates, trimmed)

	for _, c := range candidates {
		if !looksLikeEntity(c) {
			continue
		}
		var out T
		if err := json.Unmarshal(c, &out); err != nil {
			return zero, false, fmt.Errorf("api: decoding entity: %w", err)
		}
		return out, true, nil
	}
	return zero, false, nil
}

func looksLikeEntity(raw json.RawMessage) bool {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil || obj == nil {
		return false
	}
	_, ok := obj["id"]
	return ok
}
