// Package formats provides readers and writers for precomputed atmosphere
// lookup table files.
package formats

// Note: the LUT file layout is implemented in lut.go
