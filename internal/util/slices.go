package util

// FindFirst returns the first element of slice that satisfies predicate.
// The boolean is false when no element matches.
func FindFirst[T any](slice []T, predicate func(T) bool) (T, bool) {
	for _, v := range slice {
		if predicate(v) {
			return v, true
		}
	}
	var zero T
	return zero, false
}
