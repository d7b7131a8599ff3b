package analyze

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/tendertrack/tendertrack/internal/model"
)

// ErrInsufficientData is returned when the series is too short to train
// on. A degraded forecast is worse than no forecast.
var ErrInsufficientData = errors.New("insufficient data for forecasting")

// ForecastRequest is what the external model-fitting service consumes:
// a training series, the model order, the held-out length to predict
// in-sample, and the out-of-sample horizon.
type ForecastRequest struct {
	Series  []float64 `json:"series"`
	Order   [3]int    `json:"order"`
	Holdout int       `json:"holdout"`
	Horizon int       `json:"horizon"`
}

// ForecastResponse carries in-sample predictions over the held-out tail
// and the out-of-sample forecast.
type ForecastResponse struct {
	Predictions []float64 `json:"predictions"`
	Forecast    []float64 `json:"forecast"`
}

// Forecaster is the external model-fitting routine, consumed as a black
// box.
type Forecaster interface {
	Forecast(ctx context.Context, req ForecastRequest) (*ForecastResponse, error)
}

// Orchestrator splits the imputed series, delegates model fitting, and
// merges everything into one aligned report.
type Orchestrator struct {
	forecaster Forecaster
	order      [3]int
	horizon    int
	minPoints  int
	logger     *slog.Logger
}

// NewOrchestrator wires an orchestrator. horizon defaults to 12
// periods, minPoints to 12.
func NewOrchestrator(forecaster Forecaster, order [3]int, horizon, minPoints int, logger *slog.Logger) *Orchestrator {
	if horizon <= 0 {
		horizon = 12
	}
	if minPoints <= 0 {
		minPoints = 12
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		forecaster: forecaster,
		order:      order,
		horizon:    horizon,
		minPoints:  minPoints,
		logger:     logger,
	}
}

// Run produces the merged report: one row per period across the union
// of history and forecast, carrying the original value, the imputed
// value, the forecast value, and the imputation explanation where one
// exists. The split into training and held-out tail is positional
// (80/20), not date arithmetic.
func (o *Orchestrator) Run(ctx context.Context, original, imputed model.Series, explanations map[int]string) (*model.ForecastReport, error) {
	if len(imputed) != len(original) {
		return nil, fmt.Errorf("imputed series length %d does not match original %d", len(imputed), len(original))
	}
	if len(imputed) < o.minPoints {
		return nil, fmt.Errorf("%w: %d monthly points, need at least %d", ErrInsufficientData, len(imputed), o.minPoints)
	}

	split := len(imputed) * 8 / 10
	holdout := len(imputed) - split

	resp, err := o.forecaster.Forecast(ctx, ForecastRequest{
		Series:  imputed[:split].Values(),
		Order:   o.order,
		Holdout: holdout,
		Horizon: o.horizon,
	})
	if err != nil {
		return nil, fmt.Errorf("forecast: %w", err)
	}

	o.logger.Info("forecast received",
		"train", split,
		"holdout", holdout,
		"horizon", len(resp.Forecast),
	)

	report := &model.ForecastReport{
		GeneratedAt: time.Now().UTC(),
		Order:       o.order,
	}

	for i := range imputed {
		row := model.ReportRow{
			Period:      imputed[i].Period,
			Actual:      ptr(original[i].Value),
			Imputed:     ptr(imputed[i].Value),
			Explanation: explanations[i],
		}
		// In-sample predictions cover the held-out tail.
		if i >= split {
			if j := i - split; j < len(resp.Predictions) {
				row.Forecast = ptr(resp.Predictions[j])
			}
		}
		report.Rows = append(report.Rows, row)
	}

	period := imputed[len(imputed)-1].Period
	for _, v := range resp.Forecast {
		period = nextMonthEnd(period)
		report.Rows = append(report.Rows, model.ReportRow{
			Period:   period,
			Forecast: ptr(v),
		})
	}

	return report, nil
}

func ptr(v float64) *float64 {
	return &v
}
