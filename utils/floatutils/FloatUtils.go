// Package floatutils provides utilities for working with floats
package floatutils

import (
	"math"
)

// Clip clips a floating point to within a minimum and maximum value.
// If the floating point exceeds max, then the function returns the max
// If min exceeds the floating point, then the function returns the min
func Clip(value, min, max float64) float64 {
	clipped := math.Min(value, max)
	return math.Max(clipped, min)
}

// Max calculates and returns the maximum float64 in a list
func Max(floats ...float64) float64 {
	max := floats[0]
	for _, val := range floats {
		if val > max {
			max = val
		}
	}
	return max
}

// Min calculates and returns the minimum float64 in a list
func Min(floats ...float64) float64 {
	min := floats[0]
	for _, val := range floats {
		if val < min {
			min = val
		}
	}
	return min
}

// MaskedMax returns the maximum of values at positions where mask is
// 1, treating masked-out positions as -Inf. If every position is
// masked out, -Inf is returned.
func MaskedMax(values, mask []float64) float64 {
	max := math.Inf(-1)
	for i, value := range values {
		if mask[i] == 1 && value > max {
			max = value
		}
	}
	return max
}

// MaskedArgMax returns the index of the maximum value at positions
// where mask is 1. If every position is masked out, -1 is returned.
func MaskedArgMax(values, mask []float64) int {
	max, argMax := math.Inf(-1), -1
	for i, value := range values {
		if mask[i] == 1 && value > max {
			max = value
			argMax = i
		}
	}
	return argMax
}

// Sign returns -1, 0, or 1 as value is negative, zero, or positive.
func Sign(value float64) float64 {
	if value > 0 {
		return 1
	}
	if value < 0 {
		return -1
	}
	return 0
}
