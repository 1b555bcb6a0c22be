package models

import (
	"fmt"
	"strconv"
	"strings"
)

// Year is the calendar year of a rental day
// The source data stores it as an offset code (0 = 2011, 1 = 2012)
type Year int

const (
	Year2011 Year = 2011
	Year2012 Year = 2012
)

const numYears = 2

var yearLabels = [numYears]string{
	0: "2011",
	1: "2012",
}

// Years lists every year in grouping order
var Years = []Year{Year2011, Year2012}

// YearFromCode converts the 0/1 source code to a Year
func YearFromCode(code int) (Year, error) {
	if code < 0 || code >= numYears {
		return 0, &DomainMappingError{Domain: "year", Code: strconv.Itoa(code)}
	}
	return Year2011 + Year(code), nil
}

// Code returns the 0/1 source code
func (y Year) Code() int {
	return int(y - Year2011)
}

// Label returns the display label for the year
func (y Year) Label() (string, error) {
	code := y.Code()
	if code < 0 || code >= numYears {
		return "", &DomainMappingError{Domain: "year", Code: strconv.Itoa(int(y))}
	}
	return yearLabels[code], nil
}

func (y Year) MarshalText() ([]byte, error) {
	label, err := y.Label()
	if err != nil {
		return nil, err
	}
	return []byte(label), nil
}

func (y *Year) UnmarshalText(text []byte) error {
	parsed, err := ParseYear(string(text))
	if err != nil {
		return err
	}
	*y = parsed
	return nil
}

// ParseYear accepts a calendar year ("2011") or the source code ("0")
func ParseYear(s string) (Year, error) {
	v, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, &DomainMappingError{Domain: "year", Code: s}
	}
	if v >= 0 && v < numYears {
		return YearFromCode(v)
	}
	y := Year(v)
	if _, err := y.Label(); err != nil {
		return 0, err
	}
	return y, nil
}

// WeatherCondition is the day's weather situation, keyed by the source code
type WeatherCondition int

const (
	WeatherClear    WeatherCondition = 1
	WeatherCloudy   WeatherCondition = 2
	WeatherRainSnow WeatherCondition = 3
)

const numWeatherConditions = 3

var weatherLabels = [numWeatherConditions]struct {
	key   string
	label string
}{
	{key: "clear", label: "Clear"},
	{key: "cloudy", label: "Cloudy"},
	{key: "rain_snow", label: "Rain/Snow"},
}

// WeatherConditions lists every condition in grouping order
var WeatherConditions = []WeatherCondition{WeatherClear, WeatherCloudy, WeatherRainSnow}

// WeatherFromCode converts the 1/2/3 source code to a WeatherCondition
func WeatherFromCode(code int) (WeatherCondition, error) {
	w := WeatherCondition(code)
	if !w.valid() {
		return 0, &DomainMappingError{Domain: "weather", Code: strconv.Itoa(code)}
	}
	return w, nil
}

func (w WeatherCondition) valid() bool {
	return w >= WeatherClear && int(w) <= numWeatherConditions
}

// Label returns the display label for the condition
func (w WeatherCondition) Label() (string, error) {
	if !w.valid() {
		return "", &DomainMappingError{Domain: "weather", Code: strconv.Itoa(int(w))}
	}
	return weatherLabels[w-1].label, nil
}

// Key returns the query-string key for the condition
func (w WeatherCondition) Key() string {
	if !w.valid() {
		return strconv.Itoa(int(w))
	}
	return weatherLabels[w-1].key
}

func (w WeatherCondition) MarshalText() ([]byte, error) {
	label, err := w.Label()
	if err != nil {
		return nil, err
	}
	return []byte(label), nil
}

func (w *WeatherCondition) UnmarshalText(text []byte) error {
	parsed, err := ParseWeather(string(text))
	if err != nil {
		return err
	}
	*w = parsed
	return nil
}

// ParseWeather accepts a key ("rain_snow"), a label ("Rain/Snow") or a source code ("3")
func ParseWeather(s string) (WeatherCondition, error) {
	s = strings.TrimSpace(s)
	if code, err := strconv.Atoi(s); err == nil {
		return WeatherFromCode(code)
	}
	for i, entry := range weatherLabels {
		if strings.EqualFold(s, entry.key) || strings.EqualFold(s, entry.label) {
			return WeatherCondition(i + 1), nil
		}
	}
	return 0, &DomainMappingError{Domain: "weather", Code: s}
}

// HolidayFlag marks a day as a working day or a holiday
type HolidayFlag int

const (
	WorkingDay HolidayFlag = 0
	Holiday    HolidayFlag = 1
)

const numHolidayFlags = 2

var holidayLabels = [numHolidayFlags]struct {
	key   string
	label string
}{
	{key: "working_day", label: "Working Day"},
	{key: "holiday", label: "Holiday"},
}

// HolidayFlags lists both flags in grouping order
var HolidayFlags = []HolidayFlag{WorkingDay, Holiday}

// HolidayFromCode converts the 0/1 source code to a HolidayFlag
func HolidayFromCode(code int) (HolidayFlag, error) {
	h := HolidayFlag(code)
	if !h.valid() {
		return 0, &DomainMappingError{Domain: "holiday", Code: strconv.Itoa(code)}
	}
	return h, nil
}

func (h HolidayFlag) valid() bool {
	return h >= WorkingDay && int(h) < numHolidayFlags
}

// Label returns the display label for the flag
func (h HolidayFlag) Label() (string, error) {
	if !h.valid() {
		return "", &DomainMappingError{Domain: "holiday", Code: strconv.Itoa(int(h))}
	}
	return holidayLabels[h].label, nil
}

// Key returns the query-string key for the flag
func (h HolidayFlag) Key() string {
	if !h.valid() {
		return strconv.Itoa(int(h))
	}
	return holidayLabels[h].key
}

func (h HolidayFlag) MarshalText() ([]byte, error) {
	label, err := h.Label()
	if err != nil {
		return nil, err
	}
	return []byte(label), nil
}

func (h *HolidayFlag) UnmarshalText(text []byte) error {
	parsed, err := ParseHoliday(string(text))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

// ParseHoliday accepts a key ("working_day"), a label ("Working Day") or a source code ("0")
func ParseHoliday(s string) (HolidayFlag, error) {
	s = strings.TrimSpace(s)
	if code, err := strconv.Atoi(s); err == nil {
		return HolidayFromCode(code)
	}
	for i, entry := range holidayLabels {
		if strings.EqualFold(s, entry.key) || strings.EqualFold(s, entry.label) {
			return HolidayFlag(i), nil
		}
	}
	return 0, &DomainMappingError{Domain: "holiday", Code: s}
}

// Category is the rental-volume bucket of a day
// Values are ordered by volume: Low < Medium < High
type Category int

const (
	Low Category = iota
	Medium
	High
)

const numCategories = 3

var categoryLabels = [numCategories]string{
	Low:    "Low",
	Medium: "Medium",
	High:   "High",
}

// CategoryDisplayOrder is the canonical presentation order (descending by volume)
var CategoryDisplayOrder = []Category{High, Medium, Low}

func (c Category) valid() bool {
	return c >= Low && int(c) < numCategories
}

// Label returns the display label for the category
func (c Category) Label() (string, error) {
	if !c.valid() {
		return "", &DomainMappingError{Domain: "category", Code: strconv.Itoa(int(c))}
	}
	return categoryLabels[c], nil
}

// Key returns the query-string key for the category
func (c Category) Key() string {
	label, err := c.Label()
	if err != nil {
		return strconv.Itoa(int(c))
	}
	return strings.ToLower(label)
}

func (c Category) MarshalText() ([]byte, error) {
	label, err := c.Label()
	if err != nil {
		return nil, err
	}
	return []byte(label), nil
}

func (c *Category) UnmarshalText(text []byte) error {
	parsed, err := ParseCategory(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// ParseCategory accepts a category label in any case
func ParseCategory(s string) (Category, error) {
	s = strings.TrimSpace(s)
	for i, label := range categoryLabels {
		if strings.EqualFold(s, label) {
			return Category(i), nil
		}
	}
	return 0, &DomainMappingError{Domain: "category", Code: s}
}

func init() {
	for i, label := range yearLabels {
		mustLabel("year", i, label)
	}
	for i, entry := range weatherLabels {
		mustLabel("weather", i+1, entry.key)
		mustLabel("weather", i+1, entry.label)
	}
	for i, entry := range holidayLabels {
		mustLabel("holiday", i, entry.key)
		mustLabel("holiday", i, entry.label)
	}
	for i, label := range categoryLabels {
		mustLabel("category", i, label)
	}
}

func mustLabel(domain string, code int, label string) {
	if label == "" {
		panic(fmt.Sprintf("models: %s code %d has no label", domain, code))
	}
}

// RentalRecord represents one day of aggregated bike rentals
type RentalRecord struct {
	DayIndex    int              `json:"day_index"`
	Date        string           `json:"date,omitempty"`
	Year        Year             `json:"year"`
	Month       int              `json:"month"`
	Weather     WeatherCondition `json:"weather"`
	Holiday     HolidayFlag      `json:"holiday"`
	RentalCount int              `json:"rental_count"`
}

// RawRentalRecord holds the unparsed column values of one source row
// Used during loading before domain conversion
type RawRentalRecord struct {
	Row     int
	Instant string
	Date    string
	Year    string
	Month   string
	Weather string
	Holiday string
	Count   string
}

// Required source columns
const (
	ColumnYear    = "yr"
	ColumnMonth   = "mnth"
	ColumnWeather = "weathersit"
	ColumnHoliday = "holiday"
	ColumnCount   = "cnt"
	ColumnInstant = "instant"
	ColumnDate    = "dteday"
)

// RequiredColumns lists the columns every data source must provide
var RequiredColumns = []string{ColumnYear, ColumnMonth, ColumnWeather, ColumnHoliday, ColumnCount}

// ToRecord converts the raw row to a RentalRecord
// The row ordinal is used as the day index when the source has no instant column
func (r *RawRentalRecord) ToRecord() (*RentalRecord, error) {
	rec := &RentalRecord{
		DayIndex: r.Row,
		Date:     strings.TrimSpace(r.Date),
	}

	if strings.TrimSpace(r.Instant) != "" {
		idx, err := r.integer(ColumnInstant, r.Instant)
		if err != nil {
			return nil, err
		}
		rec.DayIndex = idx
	}

	yr, err := r.integer(ColumnYear, r.Year)
	if err != nil {
		return nil, err
	}
	if rec.Year, err = YearFromCode(yr); err != nil {
		return nil, r.invalid(ColumnYear, r.Year, "year code must be 0 or 1")
	}

	month, err := r.integer(ColumnMonth, r.Month)
	if err != nil {
		return nil, err
	}
	if month < 1 || month > 12 {
		return nil, r.invalid(ColumnMonth, r.Month, "month must be between 1 and 12")
	}
	rec.Month = month

	weather, err := r.integer(ColumnWeather, r.Weather)
	if err != nil {
		return nil, err
	}
	if rec.Weather, err = WeatherFromCode(weather); err != nil {
		return nil, r.invalid(ColumnWeather, r.Weather, "weather code must be 1, 2 or 3")
	}

	holiday, err := r.integer(ColumnHoliday, r.Holiday)
	if err != nil {
		return nil, err
	}
	if rec.Holiday, err = HolidayFromCode(holiday); err != nil {
		return nil, r.invalid(ColumnHoliday, r.Holiday, "holiday flag must be 0 or 1")
	}

	count, err := r.integer(ColumnCount, r.Count)
	if err != nil {
		return nil, err
	}
	if count < 0 {
		return nil, r.invalid(ColumnCount, r.Count, "rental count must be non-negative")
	}
	rec.RentalCount = count

	return rec, nil
}

// integer parses an integral value; spreadsheet exports may write "3.0"
func (r *RawRentalRecord) integer(column, value string) (int, error) {
	s := strings.TrimSpace(value)
	if s == "" {
		return 0, r.invalid(column, value, "value is empty")
	}
	if v, err := strconv.Atoi(s); err == nil {
		return v, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != float64(int(f)) {
		return 0, r.invalid(column, value, "value is not an integer")
	}
	return int(f), nil
}

func (r *RawRentalRecord) invalid(column, value, message string) *DataFormatError {
	return &DataFormatError{
		Row:     r.Row,
		Column:  column,
		Value:   value,
		Message: message,
	}
}

// DataFormatError reports a source that is missing required columns
// or holds non-numeric or out-of-domain values
type DataFormatError struct {
	Source  string
	Row     int
	Column  string
	Value   string
	Message string
}

func (e *DataFormatError) Error() string {
	var b strings.Builder
	b.WriteString("data format error")
	if e.Source != "" {
		b.WriteString(" in ")
		b.WriteString(e.Source)
	}
	if e.Row > 0 {
		fmt.Fprintf(&b, " at row %d", e.Row)
	}
	if e.Column != "" {
		fmt.Fprintf(&b, " column %q", e.Column)
	}
	if e.Value != "" {
		fmt.Fprintf(&b, " value %q", e.Value)
	}
	b.WriteString(": ")
	b.WriteString(e.Message)
	return b.String()
}

// IsTransient returns false as format errors are permanent
func (e *DataFormatError) IsTransient() bool {
	return false
}

// DomainMappingError reports a code with no entry in a label table
type DomainMappingError struct {
	Domain string
	Code   string
}

func (e *DomainMappingError) Error() string {
	return fmt.Sprintf("unknown %s code %q", e.Domain, e.Code)
}

// IsTransient returns false as mapping errors are permanent
func (e *DomainMappingError) IsTransient() bool {
	return false
}
