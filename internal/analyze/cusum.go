// Package analyze cleans and extends the monthly notice-count series:
// CUSUM change-point detection, neighbor imputation, and forecast
// orchestration against an external model-fitting service.
package analyze

import (
	"math"

	"github.com/tendertrack/tendertrack/internal/model"
)

// CUSUMParams tune the mean-shift detector.
type CUSUMParams struct {
	// TargetMean is the reference mean. When nil it is estimated from
	// the first max(10, 20% of length) points.
	TargetMean *float64
	// Threshold a running sum must exceed before a detection can fire.
	Threshold float64
	// Drift is subtracted from both running sums at every step, damping
	// slow wander.
	Drift float64
	// MinChangeMagnitude is how far past the threshold a sum must land
	// for the excess to count.
	MinChangeMagnitude float64
	// RefractoryFraction of the series length is the minimum spacing
	// between two detections. Defaults to 0.1.
	RefractoryFraction float64
}

// CUSUMResult carries the detections plus both running-sum series for
// diagnostics.
type CUSUMResult struct {
	Pos        []float64
	Neg        []float64
	Detections []model.ChangePoint
}

// DetectMeanShifts runs a two-sided CUSUM over the values. Missing
// (NaN) values contribute zero deviation. An empty series yields an
// empty result.
func DetectMeanShifts(values []float64, p CUSUMParams) CUSUMResult {
	if len(values) == 0 {
		return CUSUMResult{}
	}

	target := baselineMean(values, p.TargetMean)

	drift := p.Drift
	if math.IsNaN(drift) {
		drift = 0
	}
	threshold := p.Threshold
	if math.IsNaN(threshold) {
		threshold = math.Inf(1)
	}
	refractory := p.RefractoryFraction
	if refractory <= 0 {
		refractory = 0.1
	}
	window := int(float64(len(values)) * refractory)

	result := CUSUMResult{
		Pos: make([]float64, len(values)),
		Neg: make([]float64, len(values)),
	}

	var sPos, sNeg float64
	lastDetection := math.MinInt32

	for i, x := range values {
		errVal := 0.0
		if !math.IsNaN(x) {
			errVal = x - target
		}
		sPos = math.Max(0, sPos+errVal-drift)
		sNeg = math.Max(0, sNeg-errVal-drift)
		result.Pos[i] = sPos
		result.Neg[i] = sNeg

		posFired := sPos > threshold && math.Abs(sPos-threshold) > p.MinChangeMagnitude
		negFired := sNeg > threshold && math.Abs(sNeg-threshold) > p.MinChangeMagnitude
		if !posFired && !negFired {
			continue
		}
		if i <= lastDetection+window {
			continue
		}

		cp := model.ChangePoint{Index: i}
		if posFired {
			cp.Direction = model.ShiftUp
			cp.Deviation = sPos - threshold
		} else {
			cp.Direction = model.ShiftDown
			cp.Deviation = sNeg - threshold
		}
		result.Detections = append(result.Detections, cp)

		sPos, sNeg = 0, 0
		lastDetection = i
	}

	return result
}

// baselineMean estimates the reference mean from the leading segment of
// the series, or returns the explicit target when one is supplied. A
// non-finite estimate collapses to zero.
func baselineMean(values []float64, explicit *float64) float64 {
	if explicit != nil {
		return *explicit
	}

	segment := max(10, len(values)/5)
	if segment >= len(values) {
		segment = len(values)
	}

	mean := finiteMean(values[:segment])
	if math.IsNaN(mean) || math.IsInf(mean, 0) {
		return 0
	}
	return mean
}

// finiteMean averages the non-NaN values of the slice.
func finiteMean(values []float64) float64 {
	var sum float64
	var n int
	for _, v := range values {
		if math.IsNaN(v) {
			continue
		}
		sum += v
		n++
	}
	if n == 0 {
		return math.NaN()
	}
	return sum / float64(n)
}

// stdDev is the population standard deviation of the non-NaN values.
func stdDev(values []float64) float64 {
	mean := finiteMean(values)
	if math.IsNaN(mean) {
		return math.NaN()
	}
	var sum float64
	var n int
	for _, v := range values {
		if math.IsNaN(v) {
			continue
		}
		d := v - mean
		sum += d * d
		n++
	}
	if n == 0 {
		return math.NaN()
	}
	return math.Sqrt(sum / float64(n))
}
