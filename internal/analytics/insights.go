package analytics

import (
	"fmt"
	"time"

	"rental-analytics/internal/models"
)

// Insight topics
const (
	TopicSeasonal = "seasonal"
	TopicGrowth   = "growth"
	TopicWeather  = "weather"
	TopicHoliday  = "holiday"
	TopicCategory = "category"
)

// Insight is one textual observation derived from a result
type Insight struct {
	Topic string `json:"topic"`
	Text  string `json:"text"`
}

type labeler interface {
	Label() (string, error)
}

// labels keeps the first mapping failure so text is never built from an unknown code
type labels struct {
	err error
}

func (l *labels) of(v labeler) string {
	s, err := v.Label()
	if err != nil && l.err == nil {
		l.err = err
	}
	return s
}

// Insights derives textual observations from the aggregates of a result.
// Nothing is tied to a particular dataset; an empty result yields no insights.
// A value without a display label fails with *models.DomainMappingError.
func Insights(r *Result) ([]Insight, error) {
	if r == nil || r.NoData() {
		return nil, nil
	}

	lbl := &labels{}
	var out []Insight
	out = append(out, seasonalInsights(lbl, r.MonthlyTrend)...)
	if in, ok := growthInsight(lbl, r.MonthlyTrend); ok {
		out = append(out, in)
	}
	if in, ok := weatherInsight(lbl, r.WeatherEffect); ok {
		out = append(out, in)
	}
	if in, ok := holidayInsight(lbl, r.HolidayEffect); ok {
		out = append(out, in)
	}
	if in, ok := categoryInsight(lbl, r.CategorySummary, r.FilteredRecords); ok {
		out = append(out, in)
	}
	if lbl.err != nil {
		return nil, fmt.Errorf("failed to label insight: %w", lbl.err)
	}
	return out, nil
}

func seasonalInsights(lbl *labels, trend []MonthlyMean) []Insight {
	var out []Insight
	for _, year := range models.Years {
		var peak, low *MonthlyMean
		for i := range trend {
			m := &trend[i]
			if m.Year != year {
				continue
			}
			if peak == nil || m.Mean > peak.Mean {
				peak = m
			}
			if low == nil || m.Mean < low.Mean {
				low = m
			}
		}
		if peak == nil {
			continue
		}
		text := fmt.Sprintf("In %s rentals peaked in %s (%.0f per day)",
			lbl.of(year), time.Month(peak.Month), peak.Mean)
		if low != peak {
			text += fmt.Sprintf(" and were lowest in %s (%.0f per day)", time.Month(low.Month), low.Mean)
		}
		out = append(out, Insight{Topic: TopicSeasonal, Text: text + "."})
	}
	return out
}

func growthInsight(lbl *labels, trend []MonthlyMean) (Insight, bool) {
	type acc struct {
		sum  float64
		days int
	}
	byYear := make(map[models.Year]*acc)
	for _, m := range trend {
		a, ok := byYear[m.Year]
		if !ok {
			a = &acc{}
			byYear[m.Year] = a
		}
		a.sum += m.Mean * float64(m.Days)
		a.days += m.Days
	}

	first, okFirst := byYear[models.Year2011]
	second, okSecond := byYear[models.Year2012]
	if !okFirst || !okSecond || first.sum == 0 {
		return Insight{}, false
	}

	before := first.sum / float64(first.days)
	after := second.sum / float64(second.days)
	change := (after - before) / before * 100
	direction := "rose"
	if change < 0 {
		direction = "fell"
	}
	return Insight{
		Topic: TopicGrowth,
		Text: fmt.Sprintf("Average daily rentals %s from %.0f in %s to %.0f in %s (%+.1f%%).",
			direction, before, lbl.of(models.Year2011), after, lbl.of(models.Year2012), change),
	}, true
}

func weatherInsight(lbl *labels, effect []WeatherMean) (Insight, bool) {
	if len(effect) < 2 {
		return Insight{}, false
	}
	best, worst := effect[0], effect[0]
	for _, w := range effect[1:] {
		if w.Mean > best.Mean {
			best = w
		}
		if w.Mean < worst.Mean {
			worst = w
		}
	}
	if best.Mean == 0 {
		return Insight{}, false
	}
	drop := (best.Mean - worst.Mean) / best.Mean * 100
	return Insight{
		Topic: TopicWeather,
		Text: fmt.Sprintf("%s weather draws the most rentals (%.0f per day); %s days average %.0f, %.1f%% fewer.",
			lbl.of(best.Weather), best.Mean, lbl.of(worst.Weather), worst.Mean, drop),
	}, true
}

func holidayInsight(lbl *labels, effect []HolidayMean) (Insight, bool) {
	if len(effect) != 2 {
		return Insight{}, false
	}
	working, holiday := effect[0], effect[1]
	more, less := working, holiday
	if holiday.Mean > working.Mean {
		more, less = holiday, working
	}
	return Insight{
		Topic: TopicHoliday,
		Text: fmt.Sprintf("%s days average %.0f rentals against %.0f on %s days, a difference of %.0f.",
			lbl.of(more.Holiday), more.Mean, less.Mean, lbl.of(less.Holiday), more.Mean-less.Mean),
	}, true
}

func categoryInsight(lbl *labels, summary []CategoryStats, total int) (Insight, bool) {
	if len(summary) == 0 || total == 0 {
		return Insight{}, false
	}
	top := summary[0]
	for _, s := range summary[1:] {
		if s.Count > top.Count {
			top = s
		}
	}
	share := float64(top.Count) / float64(total) * 100
	return Insight{
		Topic: TopicCategory,
		Text: fmt.Sprintf("%s volume days dominate with %d of %d days (%.1f%%), averaging %.0f rentals and ranging from %d to %d.",
			lbl.of(top.Category), top.Count, total, share, top.Mean, top.Min, top.Max),
	}, true
}
