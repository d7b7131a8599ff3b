package preprocess

import (
	"fmt"
	"testing"

	"github.com/tendertrack/tendertrack/internal/model"
)

func TestPreprocess_NumericCoercionAndMeanFill(t *testing.T) {
	batch := []model.Notice{
		{"publication-number": "1", "tender-value": "100.5"},
		{"publication-number": "2", "tender-value": 200.5},
		{"publication-number": "3"},
	}

	rows, err := NewShaper(nil).Preprocess(batch)
	if err != nil {
		t.Fatal(err)
	}
	if rows[0]["tender-value"] != 100.5 {
		t.Errorf("string value not coerced: %v", rows[0]["tender-value"])
	}
	if rows[1]["tender-value"] != 200.5 {
		t.Errorf("float value changed: %v", rows[1]["tender-value"])
	}
	if rows[2]["tender-value"] != 150.5 {
		t.Errorf("missing value should take the column mean, got %v", rows[2]["tender-value"])
	}
}

func TestPreprocess_InsertsRequiredNumericColumns(t *testing.T) {
	rows, err := NewShaper(nil).Preprocess([]model.Notice{
		{"publication-number": "1"},
	})
	if err != nil {
		t.Fatal(err)
	}
	for _, col := range []string{"tender-value", "TVH", "tender-value-lowest"} {
		if rows[0][col] != 0.0 {
			t.Errorf("column %q should default to zero, got %v", col, rows[0][col])
		}
	}
}

func TestPreprocess_DropsIrrelevantColumnsKeepsKey(t *testing.T) {
	rows, err := NewShaper(nil).Preprocess([]model.Notice{
		{
			"publication-number": "X-1",
			"links":              map[string]any{"html": "http://example.com"},
			"dispatch-date":      "2024-01-01",
			"TV_CUR":             "EUR",
			"publication-date":   "2024-01-02",
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	row := rows[0]
	if row["publication-number"] != "X-1" {
		t.Error("key field must survive preprocessing")
	}
	for _, col := range []string{"links", "dispatch-date", "TV_CUR"} {
		if _, ok := row[col]; ok {
			t.Errorf("column %q should have been dropped", col)
		}
	}
	if row["publication-date"] != "2024-01-02" {
		t.Error("publication date must pass through")
	}
}

func TestPreprocess_FlattensListValues(t *testing.T) {
	rows, err := NewShaper(nil).Preprocess([]model.Notice{
		{"publication-number": "1", "buyer-country": []any{"DEU", "FRA"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if rows[0]["buyer-country_DEU"] != true {
		t.Errorf("list should flatten to its first element before encoding: %v", rows[0])
	}
}

func TestPreprocess_OneHotEncoding(t *testing.T) {
	batch := []model.Notice{
		{"publication-number": "1", "notice-type": "cn-standard"},
		{"publication-number": "2", "notice-type": "can-standard"},
		{"publication-number": "3"},
	}

	rows, err := NewShaper(nil).Preprocess(batch)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := rows[0]["notice-type"]; ok {
		t.Error("raw categorical column should be replaced by indicators")
	}
	if rows[0]["notice-type_cn-standard"] != true || rows[0]["notice-type_can-standard"] != false {
		t.Errorf("row 0 indicators wrong: %v", rows[0])
	}
	if rows[1]["notice-type_can-standard"] != true {
		t.Errorf("row 1 indicators wrong: %v", rows[1])
	}
	// A row without the attribute gets all-false indicators.
	if rows[2]["notice-type_cn-standard"] != false || rows[2]["notice-type_can-standard"] != false {
		t.Errorf("row 2 indicators wrong: %v", rows[2])
	}
}

func TestPreprocess_RareCategoriesCollapse(t *testing.T) {
	var batch []model.Notice
	// Eleven distinct common values plus one singleton pushes the
	// singleton out of the top ten.
	for i := 0; i < 11; i++ {
		v := fmt.Sprintf("country-%02d", i)
		batch = append(batch,
			model.Notice{"publication-number": fmt.Sprintf("a%d", i), "buyer-country": v},
			model.Notice{"publication-number": fmt.Sprintf("b%d", i), "buyer-country": v},
		)
	}
	batch = append(batch, model.Notice{"publication-number": "z", "buyer-country": "rare"})

	rows, err := NewShaper(nil).Preprocess(batch)
	if err != nil {
		t.Fatal(err)
	}
	last := rows[len(rows)-1]
	if last["buyer-country_Others"] != true {
		t.Errorf("rare category should fold into Others: %v", last)
	}
	if _, ok := last["buyer-country_rare"]; ok {
		t.Error("rare category must not get its own indicator")
	}
}

func TestPreprocess_EmptyBatch(t *testing.T) {
	rows, err := NewShaper(nil).Preprocess(nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 0 {
		t.Errorf("expected no rows, got %d", len(rows))
	}
}
