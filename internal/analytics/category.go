package analytics

import (
	"math"

	"rental-analytics/internal/models"
)

// Fixed category boundaries; intervals are closed below and open above
const (
	LowMediumBoundary  = 2000
	MediumHighBoundary = 4000
)

// Categorize classifies a day by its total rental count
func Categorize(count int) models.Category {
	switch {
	case count < LowMediumBoundary:
		return models.Low
	case count < MediumHighBoundary:
		return models.Medium
	default:
		return models.High
	}
}

// CountRange returns the rental counts of category c as the interval [lo, hi).
// High has no upper bound and reports bounded == false.
func CountRange(c models.Category) (lo, hi int, bounded bool) {
	switch c {
	case models.Low:
		return 0, LowMediumBoundary, true
	case models.Medium:
		return LowMediumBoundary, MediumHighBoundary, true
	default:
		return MediumHighBoundary, 0, false
	}
}

// CategorizedRecord is a rental record with its derived category
type CategorizedRecord struct {
	models.RentalRecord
	Category models.Category `json:"rental_category"`
}

// Categorized attaches a category to every record, preserving order
func Categorized(records []models.RentalRecord) []CategorizedRecord {
	out := make([]CategorizedRecord, len(records))
	for i, rec := range records {
		out[i] = CategorizedRecord{RentalRecord: rec, Category: Categorize(rec.RentalCount)}
	}
	return out
}

// CategoryStats summarizes the days that fall into one category
type CategoryStats struct {
	Category models.Category `json:"category"`
	Count    int             `json:"count"`
	Min      int             `json:"min"`
	Max      int             `json:"max"`
	Mean     float64         `json:"mean"`
}

// CategorySummary computes count, min, max and mean rentals per category.
// Rows follow models.CategoryDisplayOrder; categories without days are omitted.
func CategorySummary(records []models.RentalRecord) []CategoryStats {
	type acc struct {
		count    int
		sum      int64
		min, max int
	}
	byCategory := make(map[models.Category]*acc)

	for _, rec := range records {
		c := Categorize(rec.RentalCount)
		a, ok := byCategory[c]
		if !ok {
			a = &acc{min: math.MaxInt, max: math.MinInt}
			byCategory[c] = a
		}
		a.count++
		a.sum += int64(rec.RentalCount)
		a.min = min(a.min, rec.RentalCount)
		a.max = max(a.max, rec.RentalCount)
	}

	out := make([]CategoryStats, 0, len(byCategory))
	for _, c := range models.CategoryDisplayOrder {
		a, ok := byCategory[c]
		if !ok {
			continue
		}
		out = append(out, CategoryStats{
			Category: c,
			Count:    a.count,
			Min:      a.min,
			Max:      a.max,
			Mean:     float64(a.sum) / float64(a.count),
		})
	}
	return out
}
