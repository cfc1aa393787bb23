// Package diff computes keyed differences between two record collections.
package diff

import (
	"bytes"

	json "github.com/goccy/go-json"
)

// Update pairs the production and staged versions of one key.
type Update[R any] struct {
	Previous R `json:"previous"`
	Next     R `json:"next"`
}

// Result holds the keyed difference between two collections. Each slice
// follows the order of the collection it was drawn from.
type Result[R any] struct {
	Added   []R         `json:"added"`
	Removed []R         `json:"removed"`
	Updated []Update[R] `json:"updated"`
}

// Empty reports whether the two collections were equivalent.
func (r Result[R]) Empty() bool {
	return len(r.Added) == 0 && len(r.Removed) == 0 && len(r.Updated) == 0
}

// EqualFunc reports whether two records carry the same values.
type EqualFunc[R any] func(a, b R) bool

// ByKey diffs current against next using canonical JSON equality.
func ByKey[R any](current, next []R, keyOf func(R) string) Result[R] {
	return ByKeyFunc(current, next, keyOf, CanonicalEqual[R])
}

// ByKeyFunc diffs current against next with a caller-supplied equality. When
// a key repeats within one side the last occurrence wins.
func ByKeyFunc[R any](current, next []R, keyOf func(R) string, equal EqualFunc[R]) Result[R] {
	if equal == nil {
		equal = CanonicalEqual[R]
	}
	currentByKey := make(map[string]R, len(current))
	for _, rec := range current {
		currentByKey[keyOf(rec)] = rec
	}
	nextByKey := make(map[string]R, len(next))
	for _, rec := range next {
		nextByKey[keyOf(rec)] = rec
	}

	result := Result[R]{
		Added:   make([]R, 0),
		Removed: make([]R, 0),
		Updated: make([]Update[R], 0),
	}
	visited := make(map[string]struct{}, len(next))
	for _, rec := range next {
		key := keyOf(rec)
		if _, done := visited[key]; done {
			continue
		}
		visited[key] = struct{}{}
		latest := nextByKey[key]
		prev, exists := currentByKey[key]
		if !exists {
			result.Added = append(result.Added, latest)
			continue
		}
		if !equal(prev, latest) {
			result.Updated = append(result.Updated, Update[R]{Previous: prev, Next: latest})
		}
	}
	visited = make(map[string]struct{}, len(current))
	for _, rec := range current {
		key := keyOf(rec)
		if _, done := visited[key]; done {
			continue
		}
		visited[key] = struct{}{}
		if _, exists := nextByKey[key]; !exists {
			result.Removed = append(result.Removed, currentByKey[key])
		}
	}
	return result
}

// CanonicalEqual compares the canonical JSON encodings of a and b. Map keys
// are emitted sorted, so key order in the underlying values never matters.
func CanonicalEqual[R any](a, b R) bool {
	left, err := canonical(a)
	if err != nil {
		return false
	}
	right, err := canonical(b)
	if err != nil {
		return false
	}
	return bytes.Equal(left, right)
}

func canonical(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, err
	}
	return json.Marshal(generic)
}
