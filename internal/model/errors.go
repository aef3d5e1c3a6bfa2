package model

import "errors"

var (
	// ErrConfiguration marks mismatched vector lengths, invalid link lengths,
	// empty elite sets and malformed persisted records.
	ErrConfiguration = errors.New("configuration error")
	// ErrNumericalDegeneracy marks inputs that make the geometry undefined,
	// such as a chain whose total length is zero.
	ErrNumericalDegeneracy = errors.New("numerical degeneracy")
)
