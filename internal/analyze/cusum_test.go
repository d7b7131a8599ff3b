package analyze

import (
	"math"
	"testing"

	"github.com/tendertrack/tendertrack/internal/model"
)

func TestDetectMeanShifts_ConstantSeriesNeverFires(t *testing.T) {
	values := make([]float64, 50)
	for i := range values {
		values[i] = 10
	}

	result := DetectMeanShifts(values, CUSUMParams{Threshold: 5, Drift: 0.5})
	if len(result.Detections) != 0 {
		t.Errorf("constant series must not fire, got %v", result.Detections)
	}
}

func TestDetectMeanShifts_StepChangeFires(t *testing.T) {
	// 10 points at 10 followed by 10 points at 50.
	values := make([]float64, 20)
	for i := range values {
		if i < 10 {
			values[i] = 10
		} else {
			values[i] = 50
		}
	}

	result := DetectMeanShifts(values, CUSUMParams{Threshold: 5, Drift: 0.5})
	if len(result.Detections) == 0 {
		t.Fatal("expected at least one detection on a 10→50 step")
	}
	first := result.Detections[0]
	if first.Index < 10 {
		t.Errorf("detection should fire after the shift, got index %d", first.Index)
	}
	if first.Direction != model.ShiftUp {
		t.Errorf("expected upward shift, got %s", first.Direction)
	}
	if first.Deviation <= 0 {
		t.Errorf("expected positive deviation magnitude, got %f", first.Deviation)
	}
}

func TestDetectMeanShifts_DownwardShift(t *testing.T) {
	values := make([]float64, 20)
	for i := range values {
		if i < 10 {
			values[i] = 50
		} else {
			values[i] = 10
		}
	}

	result := DetectMeanShifts(values, CUSUMParams{Threshold: 5, Drift: 0.5})
	if len(result.Detections) == 0 {
		t.Fatal("expected a detection on a downward step")
	}
	if result.Detections[0].Direction != model.ShiftDown {
		t.Errorf("expected downward shift, got %s", result.Detections[0].Direction)
	}
}

func TestDetectMeanShifts_EmptySeries(t *testing.T) {
	result := DetectMeanShifts(nil, CUSUMParams{Threshold: 5})
	if len(result.Pos) != 0 || len(result.Neg) != 0 || len(result.Detections) != 0 {
		t.Errorf("empty input must yield empty output, got %+v", result)
	}
}

func TestDetectMeanShifts_DiagnosticSeriesLength(t *testing.T) {
	values := []float64{1, 2, 3, 4, 5}
	result := DetectMeanShifts(values, CUSUMParams{Threshold: 100})
	if len(result.Pos) != len(values) || len(result.Neg) != len(values) {
		t.Errorf("running sums must cover every point: pos=%d neg=%d", len(result.Pos), len(result.Neg))
	}
}

func TestDetectMeanShifts_ExplicitTargetMean(t *testing.T) {
	target := 0.0
	values := []float64{100, 100, 100}

	result := DetectMeanShifts(values, CUSUMParams{TargetMean: &target, Threshold: 50})
	if len(result.Detections) == 0 {
		t.Error("expected detection when values sit far above an explicit target mean")
	}
}

func TestDetectMeanShifts_MissingValuesZeroDeviation(t *testing.T) {
	values := []float64{10, 10, math.NaN(), 10, 10, 10, 10, 10, 10, 10}
	result := DetectMeanShifts(values, CUSUMParams{Threshold: 5, Drift: 0.5})
	if len(result.Detections) != 0 {
		t.Errorf("NaN must contribute zero deviation, got %v", result.Detections)
	}
}

func TestDetectMeanShifts_RefractoryWindow(t *testing.T) {
	// Two separated shifts on a 40-point series; the 10% window (4
	// points) must not swallow the second one.
	values := make([]float64, 40)
	for i := range values {
		switch {
		case i < 10:
			values[i] = 10
		case i < 25:
			values[i] = 60
		default:
			values[i] = 10
		}
	}

	result := DetectMeanShifts(values, CUSUMParams{Threshold: 5, Drift: 0.5})
	if len(result.Detections) < 2 {
		t.Errorf("expected both shifts detected, got %v", result.Detections)
	}
	for i := 1; i < len(result.Detections); i++ {
		gap := result.Detections[i].Index - result.Detections[i-1].Index
		if gap <= len(values)/10 {
			t.Errorf("detections %d and %d violate the refractory window (gap %d)", i-1, i, gap)
		}
	}
}

func TestStdDev(t *testing.T) {
	got := stdDev([]float64{2, 4, 4, 4, 5, 5, 7, 9})
	if math.Abs(got-2.0) > 1e-9 {
		t.Errorf("expected std 2.0, got %f", got)
	}
}
