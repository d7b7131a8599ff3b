package analyze

import (
	"fmt"
	"log/slog"
	"math"
	"sort"

	"github.com/tendertrack/tendertrack/internal/model"
)

// epsilon keeps the relative-deviation ratio defined for a zero mean.
const epsilon = 1e-9

// ImputeOutliers detects mean shifts with parameters derived from the
// series spread (threshold 1.5σ, drift 0.3σ, minimum magnitude 0.1σ)
// and replaces the flagged points. Returns the imputed series, the
// index→explanation mapping, and the detections for diagnostics.
func ImputeOutliers(series model.Series, refractoryFraction float64, logger *slog.Logger) (model.Series, map[int]string, []model.ChangePoint) {
	values := series.Values()

	std := stdDev(values)
	threshold := 1.0
	drift := 0.0
	minMag := 0.0
	if !math.IsNaN(std) {
		if std != 0 {
			threshold = std * 1.5
		}
		drift = std * 0.3
		minMag = std * 0.1
	}

	result := DetectMeanShifts(values, CUSUMParams{
		Threshold:          threshold,
		Drift:              drift,
		MinChangeMagnitude: minMag,
		RefractoryFraction: refractoryFraction,
	})

	imputed, explanations := Impute(series, result.Detections, logger)
	return imputed, explanations, result.Detections
}

// Impute replaces each flagged point with the average of its present
// neighbors (or the single present neighbor at the edges). The output
// series has the same length and periods as the input. Indices where no
// replacement is possible keep their value and produce no explanation.
func Impute(series model.Series, detections []model.ChangePoint, logger *slog.Logger) (model.Series, map[int]string) {
	if logger == nil {
		logger = slog.Default()
	}

	out := series.Clone()
	explanations := make(map[int]string)
	if len(out) == 0 || len(detections) == 0 {
		return out, explanations
	}

	mean := finiteMean(series.Values())

	indices := make([]int, 0, len(detections))
	for _, d := range detections {
		if d.Index >= 0 && d.Index < len(out) {
			indices = append(indices, d.Index)
		}
	}
	sort.Ints(indices)

	for _, idx := range indices {
		original := out[idx].Value

		var replacement float64
		replaced := false
		switch {
		case idx > 0 && idx < len(out)-1:
			left, right := out[idx-1].Value, out[idx+1].Value
			switch {
			case present(left) && present(right):
				replacement, replaced = (left+right)/2, true
			case present(left):
				replacement, replaced = left, true
			case present(right):
				replacement, replaced = right, true
			}
		case idx == 0 && len(out) > 1:
			if next := out[1].Value; present(next) {
				replacement, replaced = next, true
			}
		case idx == len(out)-1 && len(out) > 1:
			if prev := out[idx-1].Value; present(prev) {
				replacement, replaced = prev, true
			}
		}

		if !replaced {
			logger.Warn("no neighbor available, value left unchanged",
				"index", idx, "value", original)
			continue
		}

		out[idx].Value = replacement
		relative := math.Abs(original-mean) / (mean + epsilon)
		explanations[idx] = fmt.Sprintf(
			"original value %.2f deviates %.1f%% from series mean %.2f; replaced with %.2f",
			original, relative*100, mean, replacement)
	}

	return out, explanations
}

func present(v float64) bool {
	return !math.IsNaN(v)
}
