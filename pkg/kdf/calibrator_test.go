// Copyright (c) 2025 Jeremy Hahn
//
// SPDX-License-Identifier: Apache-2.0

package kdf

import "testing"

func TestPredictMonotonicAndNonNegative(t *testing.T) {
	m := Model{Alpha: 2.0, Beta: 0.0008}

	prev := m.Predict(0)
	if prev < 0 {
		t.Fatalf("expected non-negative prediction, got %d", prev)
	}
	for _, n := range []int{5000, 50000, 250000, 1000000} {
		est := m.Predict(n)
		if est < prev {
			t.Errorf("expected Predict to be monotonically non-decreasing: n=%d got %d after %d", n, est, prev)
		}
		prev = est
	}
}

func TestPredictNeverNegativeForNegativeIntercept(t *testing.T) {
	m := Model{Alpha: -50, Beta: 0.0001}
	if est := m.Predict(1); est != 0 {
		t.Errorf("expected clamp to 0, got %d", est)
	}
}

func TestFitOLSRecoversExactLinearData(t *testing.T) {
	xs := []float64{5000, 50000, 250000, 1000000}
	ys := make([]float64, len(xs))
	wantAlpha, wantBeta := 3.0, 0.00075
	for i, x := range xs {
		ys[i] = wantAlpha + wantBeta*x
	}

	alpha, beta := fitOLS(xs, ys)
	if diff := alpha - wantAlpha; diff > 1e-6 || diff < -1e-6 {
		t.Errorf("alpha = %v, want %v", alpha, wantAlpha)
	}
	if diff := beta - wantBeta; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("beta = %v, want %v", beta, wantBeta)
	}
}

func TestFitOLSDoublingRatioWithinBounds(t *testing.T) {
	xs := []float64{5000, 50000, 250000, 1000000}
	ys := []float64{4.0, 12.0, 48.0, 185.0}
	alpha, beta := fitOLS(xs, ys)
	model := Model{Alpha: alpha, Beta: beta}

	n := 100000
	estN := float64(model.Predict(n))
	est2N := float64(model.Predict(2 * n))
	if estN <= 0 {
		t.Fatalf("expected positive estimate at n=%d, got %v", n, estN)
	}
	ratio := est2N / estN
	if ratio < 1.7 || ratio > 2.3 {
		t.Errorf("expected doubling ratio within [1.7, 2.3], got %v", ratio)
	}
}

func TestSecurityLevelThresholds(t *testing.T) {
	cases := []struct {
		iterations int
		want       string
	}{
		{1, "Low"},
		{49999, "Low"},
		{50000, "Standard"},
		{99999, "Standard"},
		{100000, "High"},
		{499999, "High"},
		{500000, "Very-High"},
		{999999, "Very-High"},
		{1000000, "Maximum"},
		{5000000, "Maximum"},
	}
	for _, c := range cases {
		if got := SecurityLevel(c.iterations); got != c.want {
			t.Errorf("SecurityLevel(%d) = %q, want %q", c.iterations, got, c.want)
		}
	}
}

func TestBruteForceEstimateNonEmpty(t *testing.T) {
	low := BruteForceEstimate(50000)
	high := BruteForceEstimate(5000000)
	if low == "" || high == "" {
		t.Fatalf("expected non-empty estimates, got %q and %q", low, high)
	}
}

func TestCalibrateCachesPointer(t *testing.T) {
	first := Calibrate()
	second := Calibrate()
	if first != second {
		t.Errorf("expected Calibrate to return the same cached pointer across calls")
	}
}

func TestRecalibrateReturnsFreshModel(t *testing.T) {
	cachedBefore := Calibrate()
	fresh := Recalibrate()
	if fresh == cachedBefore {
		t.Errorf("expected Recalibrate to allocate a new model")
	}
	if Calibrate() != fresh {
		t.Errorf("expected Recalibrate to update the process-wide cache")
	}
}
