package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/prometheus/client_golang/prometheus"

	"rental-analytics/internal/analytics"
	"rental-analytics/internal/handlers"
	"rental-analytics/internal/services"
	"rental-analytics/pkg/logging"
	"rental-analytics/pkg/metrics"
)

type labeler interface {
	Label() (string, error)
}

// labels remembers the first value that has no display label
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

func main() {
	file := flag.String("file", "data/day.csv", "Rental data file (.csv, .tsv or .xlsx)")
	year := flag.String("year", "", "Comma-separated years to include (2011, 2012)")
	weather := flag.String("weather", "", "Comma-separated weather conditions to include")
	holiday := flag.String("holiday", "", "Comma-separated holiday flags to include (working_day, holiday)")
	category := flag.String("category", "", "Comma-separated categories to include (low, medium, high)")
	showRecords := flag.Bool("records", false, "Print every filtered record")
	logLevel := flag.String("log-level", "warn", "Log level")
	flag.Parse()

	query := url.Values{}
	for name, value := range map[string]string{
		"year":     *year,
		"weather":  *weather,
		"holiday":  *holiday,
		"category": *category,
	} {
		if value != "" {
			query.Set(name, value)
		}
	}

	sel, err := handlers.ParseSelection(query)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid filter: %v\n", err)
		os.Exit(2)
	}

	logger := logging.NewStructuredLogger("rental-report", "1.0.0", logging.ParseLevel(*logLevel))
	metricsCollector := metrics.NewCollector("rental_report", prometheus.NewRegistry())

	ctx := context.Background()
	loader := services.NewLoaderService(logger, metricsCollector)
	analyticsService := services.NewAnalyticsService(services.NewFileSource(*file, loader), 1, logger, metricsCollector)

	result, err := analyticsService.Analyze(ctx, sel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to analyze %s: %v\n", *file, err)
		os.Exit(1)
	}

	if err := printReport(os.Stdout, result, *showRecords); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to render report: %v\n", err)
		os.Exit(1)
	}
}

// printReport writes the report to w only when every value could be labeled
func printReport(w io.Writer, result *analytics.Result, showRecords bool) error {
	var out bytes.Buffer
	if err := renderReport(&out, result, showRecords); err != nil {
		return err
	}
	_, err := out.WriteTo(w)
	return err
}

func renderReport(out io.Writer, result *analytics.Result, showRecords bool) error {
	rule := strings.Repeat("=", 64)
	lbl := &labels{}

	fmt.Fprintln(out, rule)
	fmt.Fprintln(out, "BIKE RENTAL ANALYSIS")
	fmt.Fprintln(out, rule)
	fmt.Fprintf(out, "Selection:  %s\n", result.Selection.Key())
	fmt.Fprintf(out, "Records:    %d of %d\n\n", result.FilteredRecords, result.TotalRecords)

	if result.NoData() {
		fmt.Fprintln(out, handlers.NoDataMessage)
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', tabwriter.AlignRight)

	section(out, "Monthly trend")
	fmt.Fprintln(tw, "Year\tMonth\tDays\tMean rentals\t")
	for _, row := range result.MonthlyTrend {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%.1f\t\n", lbl.of(row.Year), row.Month, row.Days, row.Mean)
	}
	tw.Flush()

	section(out, "Weather effect")
	fmt.Fprintln(tw, "Weather\tDays\tMean rentals\t")
	for _, row := range result.WeatherEffect {
		fmt.Fprintf(tw, "%s\t%d\t%.1f\t\n", lbl.of(row.Weather), row.Days, row.Mean)
	}
	tw.Flush()

	section(out, "Holiday effect")
	fmt.Fprintln(tw, "Day type\tDays\tMean rentals\t")
	for _, row := range result.HolidayEffect {
		fmt.Fprintf(tw, "%s\t%d\t%.1f\t\n", lbl.of(row.Holiday), row.Days, row.Mean)
	}
	tw.Flush()

	section(out, "Rental categories")
	fmt.Fprintln(tw, "Category\tDays\tMin\tMax\tMean rentals\t")
	for _, row := range result.CategorySummary {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%.1f\t\n", lbl.of(row.Category), row.Count, row.Min, row.Max, row.Mean)
	}
	tw.Flush()

	insights, err := analytics.Insights(result)
	if err != nil {
		return err
	}
	section(out, "Insights")
	for _, insight := range insights {
		fmt.Fprintf(out, "  - [%s] %s\n", insight.Topic, insight.Text)
	}

	if showRecords {
		section(out, "Records")
		fmt.Fprintln(tw, "Day\tDate\tYear\tMonth\tWeather\tHoliday\tRentals\tCategory\t")
		for _, rec := range result.Records {
			fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%s\t%s\t%d\t%s\t\n",
				rec.DayIndex, rec.Date, lbl.of(rec.Year), rec.Month,
				lbl.of(rec.Weather), lbl.of(rec.Holiday), rec.RentalCount, lbl.of(rec.Category))
		}
		tw.Flush()
	}

	if lbl.err != nil {
		return fmt.Errorf("failed to label report value: %w", lbl.err)
	}
	return nil
}

func section(out io.Writer, title string) {
	fmt.Fprintf(out, "\n%s\n%s\n", title, strings.Repeat("-", len(title)))
}
