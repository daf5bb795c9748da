package filler

import "errors"

// Sentinel errors for conditions callers may need to handle differently.
var (
	// ErrLengthMismatch indicates a pair whose predicted and target sequences differ in length.
	ErrLengthMismatch = errors.New("filler: predicted and target lengths differ")

	// ErrClassCount indicates a predicted vector whose width differs from the batch's
	// class count, or a batch whose class count does not match the filler list.
	ErrClassCount = errors.New("filler: inconsistent class count")

	// ErrLabelRange indicates a target label outside [0, K-1].
	ErrLabelRange = errors.New("filler: target label out of range")

	// ErrNoFillers indicates an empty filler list.
	ErrNoFillers = errors.New("filler: no filler classes")

	// ErrMissingRate indicates a filler with no entry in the rate table.
	ErrMissingRate = errors.New("filler: missing filler rate")

	// ErrInvalidRate indicates a negative or non-finite filler rate.
	ErrInvalidRate = errors.New("filler: invalid filler rate")

	// ErrZeroRateSum indicates filler rates that sum to zero.
	ErrZeroRateSum = errors.New("filler: filler rates sum to zero")
)
