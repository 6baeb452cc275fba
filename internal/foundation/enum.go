package foundation

import (
	"fmt"
	"strings"
)

func normalizeKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Normalizer maps case-insensitive user input onto a typed enum value.
type Normalizer[T comparable] struct {
	values   map[string]T
	fallback T
}

// NewNormalizer builds a Normalizer; fallback is returned for unknown input.
func NewNormalizer[T comparable](values map[string]T, fallback T) *Normalizer[T] {
	m := make(map[string]T, len(values))
	for k, v := range values {
		m[normalizeKey(k)] = v
	}
	return &Normalizer[T]{values: m, fallback: fallback}
}

// Normalize returns the matching value or the fallback.
func (n *Normalizer[T]) Normalize(raw string) T {
	if v, ok := n.values[normalizeKey(raw)]; ok {
		return v
	}
	return n.fallback
}

// NormalizeWithError returns an error instead of the fallback for unknown input.
func (n *Normalizer[T]) NormalizeWithError(raw string) (T, error) {
	if v, ok := n.values[normalizeKey(raw)]; ok {
		return v, nil
	}
	var zero T
	return zero, fmt.Errorf("invalid value: %q", raw)
}
