// Copyright (c) 2025 Jeremy Hahn
//
// SPDX-License-Identifier: Apache-2.0

// Package kdf implements the PBKDF2 timing calibrator (spec.md §4.1): a
// process-wide, lazily-computed ordinary-least-squares model predicting
// PBKDF2-HMAC-SHA256 wall-clock cost from iteration count, used to drive a
// security/latency slider in the UI. The measurement primitive is grounded
// on the teacher's pkg/luks2/kdf.go BenchmarkPBKDF2, generalized from a
// single-point extrapolation to a multi-point regression fit.
package kdf

import (
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"golang.org/x/crypto/pbkdf2"
)

// CalibrationPoints are the iteration counts sampled when fitting the
// linear model (spec.md §4.1).
var CalibrationPoints = []int{5000, 50000, 250000, 1000000}

// measurementReps is the number of repetitions measured at each
// calibration point; the median rejects outliers from scheduler noise.
const measurementReps = 3

// derivedKeySize is the key length produced by each calibration
// measurement's PBKDF2 call.
const derivedKeySize = 32

// Model is a fitted linear model T(n) = Alpha + Beta*n, where T is in
// milliseconds and n is an iteration count.
type Model struct {
	Alpha float64
	Beta  float64
}

// Predict returns max(0, round(Alpha + Beta*n)) milliseconds (spec.md
// §4.1 "Prediction contract").
func (m Model) Predict(n int) int64 {
	est := m.Alpha + m.Beta*float64(n)
	if est < 0 {
		est = 0
	}
	return int64(est + 0.5)
}

var (
	cacheMu    sync.Mutex
	cachedOnce sync.Once
	cached     *Model
)

// Calibrate returns the process-wide cached model, computing it on first
// use under double-checked lazy initialization: a happens-before
// relationship exists between the goroutine that installs the model and
// any goroutine that subsequently reads it (spec.md §5).
func Calibrate() *Model {
	cachedOnce.Do(func() {
		m := measure()
		cacheMu.Lock()
		cached = &m
		cacheMu.Unlock()
	})
	cacheMu.Lock()
	defer cacheMu.Unlock()
	return cached
}

// Recalibrate forces recomputation of the cached model, bypassing the
// one-shot cache (spec.md §4.1: "callers may force a recomputation").
func Recalibrate() *Model {
	m := measure()
	cacheMu.Lock()
	cached = &m
	cacheMu.Unlock()
	return &m
}

// measure times PBKDF2-HMAC-SHA256 at each calibration point and fits an
// ordinary-least-squares line through the medians. A single warm-up pass
// precedes measurement to exclude JIT/allocator warm-up skew from the fit.
func measure() Model {
	password := []byte("calibration-password")
	salt := make([]byte, 32)
	_, _ = rand.Read(salt)

	warmup(password, salt)

	xs := make([]float64, len(CalibrationPoints))
	ys := make([]float64, len(CalibrationPoints))

	for i, n := range CalibrationPoints {
		xs[i] = float64(n)
		ys[i] = medianMillis(password, salt, n)
	}

	alpha, beta := fitOLS(xs, ys)
	return Model{Alpha: alpha, Beta: beta}
}

func warmup(password, salt []byte) {
	pbkdf2.Key(password, salt, 1000, derivedKeySize, sha256.New)
}

func medianMillis(password, salt []byte, iterations int) float64 {
	samples := make([]float64, measurementReps)
	for i := 0; i < measurementReps; i++ {
		start := time.Now()
		pbkdf2.Key(password, salt, iterations, derivedKeySize, sha256.New)
		samples[i] = float64(time.Since(start).Microseconds()) / 1000.0
	}
	sort.Float64s(samples)
	return samples[measurementReps/2]
}

// fitOLS returns the ordinary-least-squares alpha (intercept) and beta
// (slope) fitting y = alpha + beta*x over the given points.
func fitOLS(xs, ys []float64) (alpha, beta float64) {
	n := float64(len(xs))
	var sumX, sumY, sumXY, sumXX float64
	for i := range xs {
		sumX += xs[i]
		sumY += ys[i]
		sumXY += xs[i] * ys[i]
		sumXX += xs[i] * xs[i]
	}

	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return sumY / n, 0
	}

	beta = (n*sumXY - sumX*sumY) / denom
	alpha = (sumY - beta*sumX) / n
	return alpha, beta
}

// SecurityLevel labels an iteration count descriptively using the
// thresholds from spec.md §4.1.
func SecurityLevel(iterations int) string {
	switch {
	case iterations < 50000:
		return "Low"
	case iterations < 100000:
		return "Standard"
	case iterations < 500000:
		return "High"
	case iterations < 1000000:
		return "Very-High"
	default:
		return "Maximum"
	}
}

// attackerGuessesPerSecond models a consumer GPU attacking the envelope
// KDF offline (spec.md §4.1).
const attackerGuessesPerSecond = 100000.0

// referencePasswordEntropyBits is the entropy assumed for the canned
// brute-force estimate (spec.md §4.1: "52.56-bit-entropy reference
// password").
const referencePasswordEntropyBits = 52.56

// BruteForceEstimate returns a human-readable worst-case brute-force time
// string for a reference password against the given iteration count,
// computed as 2^entropy / guesses-per-second, the guess rate itself
// divided by how many PBKDF2 rounds the attacker must redo per guess.
func BruteForceEstimate(iterations int) string {
	totalGuesses := math.Pow(2, referencePasswordEntropyBits)
	effectiveRate := attackerGuessesPerSecond / float64(iterations)
	if effectiveRate <= 0 {
		effectiveRate = attackerGuessesPerSecond
	}
	seconds := totalGuesses / effectiveRate
	return formatDuration(seconds)
}

func formatDuration(seconds float64) string {
	const (
		minute = 60.0
		hour   = 60 * minute
		day    = 24 * hour
		year   = 365.25 * day
	)
	switch {
	case seconds < minute:
		return "under a minute"
	case seconds < hour:
		return formatUnit(seconds/minute, "minute")
	case seconds < day:
		return formatUnit(seconds/hour, "hour")
	case seconds < year:
		return formatUnit(seconds/day, "day")
	case seconds < year*1e6:
		return formatUnit(seconds/year, "year")
	default:
		return "more than a million years"
	}
}

func formatUnit(value float64, unit string) string {
	rounded := int64(math.Round(value))
	if rounded == 1 {
		return fmt.Sprintf("about 1 %s", unit)
	}
	return fmt.Sprintf("about %d %ss", rounded, unit)
}
