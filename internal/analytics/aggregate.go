package analytics

import (
	"cmp"
	"slices"

	"rental-analytics/internal/models"
)

// MonthlyMean is the average daily rentals for one month of one year
type MonthlyMean struct {
	Year  models.Year `json:"year"`
	Month int         `json:"month"`
	Mean  float64     `json:"mean"`
	Days  int         `json:"days"`
}

// WeatherMean is the average daily rentals under one weather condition
type WeatherMean struct {
	Weather models.WeatherCondition `json:"weather"`
	Mean    float64                 `json:"mean"`
	Days    int                     `json:"days"`
}

// HolidayMean is the average daily rentals on working days or holidays
type HolidayMean struct {
	Holiday models.HolidayFlag `json:"holiday"`
	Mean    float64            `json:"mean"`
	Days    int                `json:"days"`
}

type meanAcc struct {
	sum  int64
	days int
}

func (a meanAcc) mean() float64 {
	return float64(a.sum) / float64(a.days)
}

// groupMeans accumulates rental counts per key. Only keys that received
// at least one record are present, so no group ever has a zero divisor.
func groupMeans[K comparable](records []models.RentalRecord, key func(models.RentalRecord) K) map[K]meanAcc {
	groups := make(map[K]meanAcc)
	for _, rec := range records {
		k := key(rec)
		a := groups[k]
		a.sum += int64(rec.RentalCount)
		a.days++
		groups[k] = a
	}
	return groups
}

type yearMonth struct {
	year  models.Year
	month int
}

// MonthlyTrend groups by (year, month), ordered by year then month
func MonthlyTrend(records []models.RentalRecord) []MonthlyMean {
	groups := groupMeans(records, func(r models.RentalRecord) yearMonth {
		return yearMonth{year: r.Year, month: r.Month}
	})

	out := make([]MonthlyMean, 0, len(groups))
	for k, a := range groups {
		out = append(out, MonthlyMean{Year: k.year, Month: k.month, Mean: a.mean(), Days: a.days})
	}
	slices.SortFunc(out, func(a, b MonthlyMean) int {
		return cmp.Or(cmp.Compare(a.Year, b.Year), cmp.Compare(a.Month, b.Month))
	})
	return out
}

// WeatherEffect groups by weather condition, ordered by condition code
func WeatherEffect(records []models.RentalRecord) []WeatherMean {
	groups := groupMeans(records, func(r models.RentalRecord) models.WeatherCondition {
		return r.Weather
	})

	out := make([]WeatherMean, 0, len(groups))
	for k, a := range groups {
		out = append(out, WeatherMean{Weather: k, Mean: a.mean(), Days: a.days})
	}
	slices.SortFunc(out, func(a, b WeatherMean) int {
		return cmp.Compare(a.Weather, b.Weather)
	})
	return out
}

// HolidayEffect groups by holiday flag, working days first
func HolidayEffect(records []models.RentalRecord) []HolidayMean {
	groups := groupMeans(records, func(r models.RentalRecord) models.HolidayFlag {
		return r.Holiday
	})

	out := make([]HolidayMean, 0, len(groups))
	for k, a := range groups {
		out = append(out, HolidayMean{Holiday: k, Mean: a.mean(), Days: a.days})
	}
	slices.SortFunc(out, func(a, b HolidayMean) int {
		return cmp.Compare(a.Holiday, b.Holiday)
	})
	return out
}
