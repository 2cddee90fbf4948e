// Package chunk splits slices into bounded groups so callers stay under
// store limits (IN-filter cardinality, batch-write size).
package chunk

import "slices"

// Split returns ceil(len(items)/size) contiguous sub-slices of items. Every
// group has exactly size elements except possibly the last. Order is
// preserved. Split panics if size < 1.
func Split[T any](items []T, size int) [][]T {
	if size < 1 {
		panic("chunk: size must be positive")
	}
	out := make([][]T, 0, (len(items)+size-1)/size)
	for c := range slices.Chunk(items, size) {
		out = append(out, c)
	}
	return out
}
