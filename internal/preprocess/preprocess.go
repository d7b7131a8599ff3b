package preprocess

import (
	"log/slog"
	"sort"
	"strconv"

	"github.com/tendertrack/tendertrack/internal/model"
)

// Column groups mirroring what the downstream model training expects.
var (
	// numericColumns must exist on every row, coerced to float64.
	numericColumns = []string{"tender-value", "TVH", "tender-value-lowest"}

	// categoricalColumns get flattened, bucketed to the top categories,
	// and expanded into one-hot indicator columns.
	categoricalColumns = []string{"notice-type", "contract-nature", "main-activity", "buyer-country"}

	// droppedColumns carry no signal for the value model. The key field
	// is never dropped; rows must stay traceable to the source notice.
	droppedColumns = map[string]bool{
		"classification-cpv":        true,
		"recurrence-lot":            true,
		"duration-period-value-lot": true,
		"dispatch-date":             true,
		"TV_CUR":                    true,
		"renewal-maximum-lot":       true,
		"term-performance-lot":      true,
		"links":                     true,
	}
)

// topCategories is the cutoff beyond which a categorical value collapses
// into the Others bucket.
const topCategories = 10

const othersBucket = "Others"

// Shaper turns raw API notices into flat rows ready for relational
// storage. It implements the preprocessing contract of the database
// sink.
type Shaper struct {
	logger *slog.Logger
}

// NewShaper creates a row shaper.
func NewShaper(logger *slog.Logger) *Shaper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Shaper{logger: logger}
}

// Preprocess shapes one batch. Numeric columns are coerced to float64
// with absent values filled by the in-batch column mean (zero when the
// whole column is absent). Categorical columns are flattened to their
// first element, rare values collapse into Others, and each surviving
// category becomes a boolean indicator column. Irrelevant columns are
// dropped. Every remaining raw attribute passes through untouched.
func (s *Shaper) Preprocess(batch []model.Notice) ([]map[string]any, error) {
	rows := make([]map[string]any, len(batch))
	for i := range batch {
		rows[i] = basicRow(batch[i])
	}

	for _, col := range numericColumns {
		fillNumeric(rows, col, s.logger)
	}
	for _, col := range categoricalColumns {
		expandCategorical(rows, col)
	}
	return rows, nil
}

// basicRow copies the notice, dropping irrelevant columns and
// flattening single-element lists.
func basicRow(n model.Notice) map[string]any {
	row := make(map[string]any, len(n))
	for k, v := range n {
		if droppedColumns[k] {
			continue
		}
		if list, ok := v.([]any); ok {
			if len(list) == 0 {
				continue
			}
			v = list[0]
		}
		row[k] = v
	}
	return row
}

// fillNumeric coerces col to float64 across the batch and fills gaps
// with the column mean. An entirely absent column is inserted as zeros.
func fillNumeric(rows []map[string]any, col string, logger *slog.Logger) {
	var sum float64
	var count int
	parsed := make([]*float64, len(rows))

	for i, row := range rows {
		if v, ok := toFloat(row[col]); ok {
			parsed[i] = &v
			sum += v
			count++
		}
	}

	fill := 0.0
	if count > 0 {
		fill = sum / float64(count)
	} else {
		logger.Warn("numeric column absent, inserting default values", "column", col)
	}

	for i, row := range rows {
		if parsed[i] != nil {
			row[col] = *parsed[i]
		} else {
			row[col] = fill
		}
	}
}

// expandCategorical replaces col with one indicator column per
// surviving category. Values outside the batch's top categories fold
// into the Others bucket; rows without the column produce no indicator.
func expandCategorical(rows []map[string]any, col string) {
	freq := make(map[string]int)
	values := make([]*string, len(rows))
	for i, row := range rows {
		v, ok := row[col].(string)
		if !ok || v == "" {
			continue
		}
		values[i] = &v
		freq[v]++
	}
	if len(freq) == 0 {
		return
	}

	keep := topByFrequency(freq, topCategories)

	categories := make(map[string]bool)
	for i, v := range values {
		if v == nil {
			continue
		}
		category := *v
		if !keep[category] {
			category = othersBucket
		}
		values[i] = &category
		categories[category] = true
	}

	for i, row := range rows {
		delete(row, col)
		for category := range categories {
			row[col+"_"+category] = values[i] != nil && *values[i] == category
		}
	}
}

// topByFrequency picks the n most frequent values, breaking ties
// alphabetically so the selection is stable across runs.
func topByFrequency(freq map[string]int, n int) map[string]bool {
	type entry struct {
		value string
		count int
	}
	entries := make([]entry, 0, len(freq))
	for v, c := range freq {
		entries = append(entries, entry{v, c})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].count != entries[j].count {
			return entries[i].count > entries[j].count
		}
		return entries[i].value < entries[j].value
	})
	if n > len(entries) {
		n = len(entries)
	}
	keep := make(map[string]bool, n)
	for _, e := range entries[:n] {
		keep[e.value] = true
	}
	return keep
}

func toFloat(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case int:
		return float64(val), true
	case string:
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}
