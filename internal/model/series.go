package model

import "time"

// Point is one monthly observation: the calendar month end it belongs to
// and the notice count for that month.
type Point struct {
	Period time.Time `json:"period"`
	Value  float64   `json:"value"`
}

// Series is an ordered monthly count series, strictly increasing in
// period, with no missing months (gaps carry explicit zeros).
type Series []Point

// Values returns the raw value sequence in series order.
func (s Series) Values() []float64 {
	out := make([]float64, len(s))
	for i, p := range s {
		out[i] = p.Value
	}
	return out
}

// Clone returns an independent copy.
func (s Series) Clone() Series {
	out := make(Series, len(s))
	copy(out, s)
	return out
}

// Direction of a detected mean shift.
type Direction string

const (
	ShiftUp   Direction = "up"
	ShiftDown Direction = "down"
)

// ChangePoint marks a detected mean shift in a series.
type ChangePoint struct {
	Index     int       `json:"index"`
	Direction Direction `json:"direction"`
	Deviation float64   `json:"deviation"`
}

// ReportRow is one period of the merged forecast report. Pointers are nil
// where the period has no value of that kind (forecast periods have no
// actuals, historical periods no forecast).
type ReportRow struct {
	Period      time.Time `json:"period"`
	Actual      *float64  `json:"actual,omitempty"`
	Imputed     *float64  `json:"imputed,omitempty"`
	Forecast    *float64  `json:"forecast,omitempty"`
	Explanation string    `json:"explanation,omitempty"`
}

// ForecastReport aligns actual, imputed and forecast values across the
// union of historical and forecast periods.
type ForecastReport struct {
	GeneratedAt time.Time   `json:"generated_at"`
	Order       [3]int      `json:"order"`
	Rows        []ReportRow `json:"rows"`
}
