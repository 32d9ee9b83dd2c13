// Package util holds small generic helpers shared by the protocol layers.
package util

// Ptr returns a pointer to a copy of v, for filling optional protocol fields
// from literals.
func Ptr[T any](v T) *T {
	return &v
}
