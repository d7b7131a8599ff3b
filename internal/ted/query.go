package ted

import (
	"fmt"
	"strings"
	"time"
)

// queryDateLayout is the date format of the expert query language.
const queryDateLayout = "20060102"

// BuildQuery renders an expert query restricting publication dates to
// [start, end], optionally combined with extra filter clauses.
func BuildQuery(start, end time.Time, filters string) string {
	q := fmt.Sprintf("publication-date>=%s AND publication-date<=%s",
		start.Format(queryDateLayout), end.Format(queryDateLayout))

	filters = strings.TrimSpace(filters)
	if filters != "" {
		q = fmt.Sprintf("%s AND (%s)", q, filters)
	}
	return q
}
