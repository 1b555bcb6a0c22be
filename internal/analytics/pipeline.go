// Package analytics turns raw rental records into the statistics shown on the dashboard:
// filtering, grouped means, volume categories and derived insights.
// Every function is pure; the same inputs always yield the same outputs.
package analytics

import (
	"rental-analytics/internal/models"
)

// Result carries everything the presentation layer needs for one selection
type Result struct {
	Selection       Selection           `json:"selection"`
	TotalRecords    int                 `json:"total_records"`
	FilteredRecords int                 `json:"filtered_records"`
	MonthlyTrend    []MonthlyMean       `json:"monthly_trend"`
	WeatherEffect   []WeatherMean       `json:"weather_effect"`
	HolidayEffect   []HolidayMean       `json:"holiday_effect"`
	CategorySummary []CategoryStats     `json:"category_summary"`
	Records         []CategorizedRecord `json:"records"`
}

// NoData reports that the selection matched no records.
// This is a valid outcome, shown as "no data for current selection".
func (r *Result) NoData() bool {
	return r.FilteredRecords == 0
}

// Compute runs filter, aggregation and categorization for one selection
func Compute(records []models.RentalRecord, sel Selection) *Result {
	sel = sel.Normalize()
	filtered := Filter(records, sel)

	return &Result{
		Selection:       sel,
		TotalRecords:    len(records),
		FilteredRecords: len(filtered),
		MonthlyTrend:    MonthlyTrend(filtered),
		WeatherEffect:   WeatherEffect(filtered),
		HolidayEffect:   HolidayEffect(filtered),
		CategorySummary: CategorySummary(filtered),
		Records:         Categorized(filtered),
	}
}
