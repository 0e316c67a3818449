// SPDX-FileCopyrightText: © 2026 kikosim contributors
// SPDX-License-Identifier: MIT

// Package duration parses and samples task durations as specified in
// spec.md §4.5: a fixed value, or a mean/stddev pair realized as a clamped
// Normal sample.
package duration

import (
	"fmt"
	"math/rand/v2"
	"regexp"
	"strconv"
	"strings"
)

// Epsilon is the small positive floor below which a realized or clamped
// duration/time must never fall. spec.md leaves the exact value to the
// implementation ("small enough never to be observable in normal runs");
// this mirrors the 10^-6 days the spec itself suggests.
const Epsilon = 1e-6

// Spec is a parsed duration specification: a fixed value (Stddev == 0) or a
// mean/stddev pair in days.
type Spec struct {
	Mean   float64
	Stddev float64
}

var unitDays = map[string]float64{
	"d": 1.0,
	"h": 1.0 / 24,
	"m": 1.0 / (24 * 60),
	"s": 1.0 / (24 * 60 * 60),
}

var (
	normalPattern = regexp.MustCompile(`^(\d+\.?\d*)\s*([dhms]?)\s*±\s*(\d+\.?\d*)\s*([dhms]?)$`)
	fixedPattern  = regexp.MustCompile(`^(\d+\.?\d*)\s*([dhms]?)$`)
)

// Parse parses a duration string of the form "<n><unit>" or
// "<n><unit>±<n><unit>" (unit defaults to "d") into days, enforcing the
// μ−2σ≥0 invariant.
func Parse(s string) (Spec, error) {
	s = strings.TrimSpace(s)

	if m := normalPattern.FindStringSubmatch(s); m != nil {
		mean, err := toDays(m[1], m[2])
		if err != nil {
			return Spec{}, err
		}
		std, err := toDays(m[3], m[4])
		if err != nil {
			return Spec{}, err
		}
		return New(mean, std)
	}

	if m := fixedPattern.FindStringSubmatch(s); m != nil {
		mean, err := toDays(m[1], m[2])
		if err != nil {
			return Spec{}, err
		}
		return New(mean, 0)
	}

	return Spec{}, fmt.Errorf("duration: invalid format %q, use formats like \"1.5d\", \"2h±30m\"", s)
}

// New builds a Spec directly from a mean/stddev pair (the non-string form
// described in spec.md §4.5 as "(agent_type, (μ, σ))"), validating the same
// invariant as Parse.
func New(mean, stddev float64) (Spec, error) {
	if stddev > 0 && mean-2*stddev < 0 {
		return Spec{}, fmt.Errorf("duration: invalid normal distribution: mean-2*stddev = %.6f-2*%.6f = %.6f < 0", mean, stddev, mean-2*stddev)
	}
	if mean <= 0 {
		return Spec{}, fmt.Errorf("duration: mean must be positive, got %v", mean)
	}
	if stddev < 0 {
		return Spec{}, fmt.Errorf("duration: stddev must be non-negative, got %v", stddev)
	}
	return Spec{Mean: mean, Stddev: stddev}, nil
}

func toDays(value, unit string) (float64, error) {
	v, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("duration: invalid number %q", value)
	}
	if unit == "" {
		unit = "d"
	}
	mult, ok := unitDays[unit]
	if !ok {
		return 0, fmt.Errorf("duration: invalid time unit %q", unit)
	}
	return v * mult, nil
}

// Sample realizes a duration from the spec: max(Epsilon, Normal(Mean,
// Stddev)) when Stddev > 0, else exactly Mean.
func Sample(s Spec) float64 {
	if s.Stddev <= 0 {
		return s.Mean
	}
	d := s.Mean + rand.NormFloat64()*s.Stddev
	if d < Epsilon {
		return Epsilon
	}
	return d
}
