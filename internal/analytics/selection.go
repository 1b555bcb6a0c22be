package analytics

import (
	"slices"
	"strconv"
	"strings"

	"rental-analytics/internal/models"
)

// Selection restricts a record set along four dimensions.
// Values within a dimension are OR-ed, dimensions are AND-ed.
// An empty dimension places no restriction on that dimension; it never means "match nothing".
type Selection struct {
	Years      []models.Year             `json:"years,omitempty"`
	Weather    []models.WeatherCondition `json:"weather,omitempty"`
	Holidays   []models.HolidayFlag      `json:"holidays,omitempty"`
	Categories []models.Category         `json:"categories,omitempty"`
}

// AllInclusive returns a selection naming every value of every dimension
func AllInclusive() Selection {
	return Selection{
		Years:      slices.Clone(models.Years),
		Weather:    slices.Clone(models.WeatherConditions),
		Holidays:   slices.Clone(models.HolidayFlags),
		Categories: []models.Category{models.Low, models.Medium, models.High},
	}
}

// Normalize returns a copy with every dimension sorted and de-duplicated.
// A dimension naming every value of its domain collapses to nil.
func (s Selection) Normalize() Selection {
	return Selection{
		Years:      normalized(s.Years, models.Years),
		Weather:    normalized(s.Weather, models.WeatherConditions),
		Holidays:   normalized(s.Holidays, models.HolidayFlags),
		Categories: normalized(s.Categories, models.CategoryDisplayOrder),
	}
}

func normalized[T ~int](values, domain []T) []T {
	if len(values) == 0 {
		return nil
	}
	out := slices.Clone(values)
	slices.Sort(out)
	out = slices.Compact(out)
	if len(out) == len(domain) && !slices.ContainsFunc(domain, func(v T) bool {
		_, found := slices.BinarySearch(out, v)
		return !found
	}) {
		return nil
	}
	return out
}

// Key returns a canonical cache key; selections admitting the same values share a key
func (s Selection) Key() string {
	n := s.Normalize()
	var b strings.Builder
	writeDimension(&b, "y", n.Years)
	writeDimension(&b, "w", n.Weather)
	writeDimension(&b, "h", n.Holidays)
	writeDimension(&b, "c", n.Categories)
	return b.String()
}

func writeDimension[T ~int](b *strings.Builder, name string, values []T) {
	if b.Len() > 0 {
		b.WriteByte(';')
	}
	b.WriteString(name)
	b.WriteByte('=')
	if len(values) == 0 {
		b.WriteByte('*')
		return
	}
	for i, v := range values {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.Itoa(int(v)))
	}
}

// Matches reports whether a record satisfies every restricted dimension
func (s Selection) Matches(rec models.RentalRecord) bool {
	return admits(s.Years, rec.Year) &&
		admits(s.Weather, rec.Weather) &&
		admits(s.Holidays, rec.Holiday) &&
		admits(s.Categories, Categorize(rec.RentalCount))
}

func admits[T comparable](allowed []T, v T) bool {
	return len(allowed) == 0 || slices.Contains(allowed, v)
}

// Filter returns the records matching the selection in their original order.
// The input slice is never modified; an empty result is a valid outcome.
func Filter(records []models.RentalRecord, sel Selection) []models.RentalRecord {
	out := make([]models.RentalRecord, 0, len(records))
	for _, rec := range records {
		if sel.Matches(rec) {
			out = append(out, rec)
		}
	}
	return out
}
