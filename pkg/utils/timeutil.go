package utils

import (
	"fmt"
	"strings"
	"time"
)

// Layouts accepted for CFTC report dates. The backend echoes Socrata's
// floating timestamp, clients tend to send plain dates.
var reportDateLayouts = []string{
	"2006-01-02T15:04:05.000",
	"2006-01-02 15:04:05.000",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	time.RFC3339,
	"2006-01-02",
}

// ReportQueryLayout is the report_date format expected by /api/cftc/data.
const ReportQueryLayout = "2006-01-02 15:04:05.000"

// ParseReportDate parses any of the report date layouts seen in the wild.
func ParseReportDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range reportDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized report date %q", s)
}

// ReportQueryDate renders a date for the report_date query parameter.
// Unparseable input is passed through untouched.
func ReportQueryDate(s string) string {
	t, err := ParseReportDate(s)
	if err != nil {
		return s
	}
	return t.Format(ReportQueryLayout)
}

// ShortDate renders a report date as YYYY-MM-DD, passing unparseable input through.
func ShortDate(s string) string {
	t, err := ParseReportDate(s)
	if err != nil {
		return s
	}
	return t.Format("2006-01-02")
}

// AddYears shifts t by whole calendar years.
func AddYears(t time.Time, years int) time.Time {
	return t.AddDate(years, 0, 0)
}
