package models

import (
	"encoding/json"
	"errors"
	"testing"
)

// TestRawRentalRecord_ToRecord tests the conversion from source columns
func TestRawRentalRecord_ToRecord(t *testing.T) {
	tests := []struct {
		name        string
		record      RawRentalRecord
		wantErr     bool
		wantColumn  string
		checkValues func(*testing.T, *RentalRecord)
	}{
		{
			name: "valid record with instant and date",
			record: RawRentalRecord{
				Row: 3, Instant: "17", Date: "2011-01-17",
				Year: "0", Month: "1", Weather: "2", Holiday: "1", Count: "1000",
			},
			checkValues: func(t *testing.T, rec *RentalRecord) {
				if rec.DayIndex != 17 {
					t.Errorf("DayIndex = %v, want %v", rec.DayIndex, 17)
				}
				if rec.Date != "2011-01-17" {
					t.Errorf("Date = %v, want %v", rec.Date, "2011-01-17")
				}
				if rec.Year != Year2011 {
					t.Errorf("Year = %v, want %v", rec.Year, Year2011)
				}
				if rec.Month != 1 {
					t.Errorf("Month = %v, want %v", rec.Month, 1)
				}
				if rec.Weather != WeatherCloudy {
					t.Errorf("Weather = %v, want %v", rec.Weather, WeatherCloudy)
				}
				if rec.Holiday != Holiday {
					t.Errorf("Holiday = %v, want %v", rec.Holiday, Holiday)
				}
				if rec.RentalCount != 1000 {
					t.Errorf("RentalCount = %v, want %v", rec.RentalCount, 1000)
				}
			},
		},
		{
			name: "row ordinal used when instant is absent",
			record: RawRentalRecord{
				Row: 5, Year: "1", Month: "12", Weather: "3", Holiday: "0", Count: "22",
			},
			checkValues: func(t *testing.T, rec *RentalRecord) {
				if rec.DayIndex != 5 {
					t.Errorf("DayIndex = %v, want %v", rec.DayIndex, 5)
				}
				if rec.Year != Year2012 {
					t.Errorf("Year = %v, want %v", rec.Year, Year2012)
				}
				if rec.Weather != WeatherRainSnow {
					t.Errorf("Weather = %v, want %v", rec.Weather, WeatherRainSnow)
				}
			},
		},
		{
			name: "integral float values from spreadsheet export",
			record: RawRentalRecord{
				Row: 1, Year: "1.0", Month: "6.0", Weather: "1.0", Holiday: "0.0", Count: "4500.0",
			},
			checkValues: func(t *testing.T, rec *RentalRecord) {
				if rec.Month != 6 {
					t.Errorf("Month = %v, want %v", rec.Month, 6)
				}
				if rec.RentalCount != 4500 {
					t.Errorf("RentalCount = %v, want %v", rec.RentalCount, 4500)
				}
			},
		},
		{
			name: "zero rentals is valid",
			record: RawRentalRecord{
				Row: 1, Year: "0", Month: "1", Weather: "1", Holiday: "0", Count: "0",
			},
			checkValues: func(t *testing.T, rec *RentalRecord) {
				if rec.RentalCount != 0 {
					t.Errorf("RentalCount = %v, want %v", rec.RentalCount, 0)
				}
			},
		},
		{
			name:       "weather code out of domain",
			record:     RawRentalRecord{Row: 2, Year: "0", Month: "1", Weather: "4", Holiday: "0", Count: "10"},
			wantErr:    true,
			wantColumn: ColumnWeather,
		},
		{
			name:       "year code out of domain",
			record:     RawRentalRecord{Row: 2, Year: "2", Month: "1", Weather: "1", Holiday: "0", Count: "10"},
			wantErr:    true,
			wantColumn: ColumnYear,
		},
		{
			name:       "month out of range",
			record:     RawRentalRecord{Row: 2, Year: "0", Month: "13", Weather: "1", Holiday: "0", Count: "10"},
			wantErr:    true,
			wantColumn: ColumnMonth,
		},
		{
			name:       "holiday flag out of domain",
			record:     RawRentalRecord{Row: 2, Year: "0", Month: "1", Weather: "1", Holiday: "2", Count: "10"},
			wantErr:    true,
			wantColumn: ColumnHoliday,
		},
		{
			name:       "negative count",
			record:     RawRentalRecord{Row: 2, Year: "0", Month: "1", Weather: "1", Holiday: "0", Count: "-1"},
			wantErr:    true,
			wantColumn: ColumnCount,
		},
		{
			name:       "non-numeric count",
			record:     RawRentalRecord{Row: 2, Year: "0", Month: "1", Weather: "1", Holiday: "0", Count: "many"},
			wantErr:    true,
			wantColumn: ColumnCount,
		},
		{
			name:       "fractional count",
			record:     RawRentalRecord{Row: 2, Year: "0", Month: "1", Weather: "1", Holiday: "0", Count: "12.5"},
			wantErr:    true,
			wantColumn: ColumnCount,
		},
		{
			name:       "empty month",
			record:     RawRentalRecord{Row: 2, Year: "0", Month: " ", Weather: "1", Holiday: "0", Count: "10"},
			wantErr:    true,
			wantColumn: ColumnMonth,
		},
		{
			name:       "non-numeric instant",
			record:     RawRentalRecord{Row: 2, Instant: "x", Year: "0", Month: "1", Weather: "1", Holiday: "0", Count: "10"},
			wantErr:    true,
			wantColumn: ColumnInstant,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, err := tt.record.ToRecord()

			if (err != nil) != tt.wantErr {
				t.Errorf("ToRecord() error = %v, wantErr %v", err, tt.wantErr)
				return
			}

			if tt.wantErr {
				var formatErr *DataFormatError
				if !errors.As(err, &formatErr) {
					t.Fatalf("error type = %T, want *DataFormatError", err)
				}
				if formatErr.Column != tt.wantColumn {
					t.Errorf("Column = %v, want %v", formatErr.Column, tt.wantColumn)
				}
				if formatErr.Row != tt.record.Row {
					t.Errorf("Row = %v, want %v", formatErr.Row, tt.record.Row)
				}
				return
			}

			if tt.checkValues != nil {
				tt.checkValues(t, rec)
			}
		})
	}
}

func TestLabels(t *testing.T) {
	tests := []struct {
		name  string
		label func() (string, error)
		want  string
	}{
		{"year 2011", Year2011.Label, "2011"},
		{"year 2012", Year2012.Label, "2012"},
		{"clear", WeatherClear.Label, "Clear"},
		{"cloudy", WeatherCloudy.Label, "Cloudy"},
		{"rain snow", WeatherRainSnow.Label, "Rain/Snow"},
		{"working day", WorkingDay.Label, "Working Day"},
		{"holiday", Holiday.Label, "Holiday"},
		{"low", Low.Label, "Low"},
		{"medium", Medium.Label, "Medium"},
		{"high", High.Label, "High"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.label()
			if err != nil {
				t.Fatalf("Label() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Label() = %q, want %q", got, tt.want)
			}
		})
	}
}

// TestUnknownCodes checks that unmapped codes never pass through as labels
func TestUnknownCodes(t *testing.T) {
	tests := []struct {
		name  string
		label func() (string, error)
	}{
		{"year", Year(1999).Label},
		{"weather zero", WeatherCondition(0).Label},
		{"weather four", WeatherCondition(4).Label},
		{"holiday", HolidayFlag(2).Label},
		{"category", Category(7).Label},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.label()
			var mappingErr *DomainMappingError
			if !errors.As(err, &mappingErr) {
				t.Fatalf("error = %v, want *DomainMappingError", err)
			}
			if mappingErr.IsTransient() {
				t.Error("DomainMappingError should not be transient")
			}
		})
	}

	if _, err := json.Marshal(WeatherCondition(9)); err == nil {
		t.Error("marshalling an unknown weather code should fail")
	}
}

func TestParse(t *testing.T) {
	if y, err := ParseYear("2012"); err != nil || y != Year2012 {
		t.Errorf("ParseYear(2012) = %v, %v", y, err)
	}
	if y, err := ParseYear("0"); err != nil || y != Year2011 {
		t.Errorf("ParseYear(0) = %v, %v", y, err)
	}
	if _, err := ParseYear("2013"); err == nil {
		t.Error("ParseYear(2013) should fail")
	}

	for _, in := range []string{"rain_snow", "Rain/Snow", "3", " RAIN_SNOW "} {
		if w, err := ParseWeather(in); err != nil || w != WeatherRainSnow {
			t.Errorf("ParseWeather(%q) = %v, %v", in, w, err)
		}
	}
	if _, err := ParseWeather("fog"); err == nil {
		t.Error("ParseWeather(fog) should fail")
	}

	for _, in := range []string{"working_day", "Working Day", "0"} {
		if h, err := ParseHoliday(in); err != nil || h != WorkingDay {
			t.Errorf("ParseHoliday(%q) = %v, %v", in, h, err)
		}
	}
	if _, err := ParseHoliday("weekend"); err == nil {
		t.Error("ParseHoliday(weekend) should fail")
	}

	if c, err := ParseCategory("medium"); err != nil || c != Medium {
		t.Errorf("ParseCategory(medium) = %v, %v", c, err)
	}
	if _, err := ParseCategory("extreme"); err == nil {
		t.Error("ParseCategory(extreme) should fail")
	}
}

func TestRentalRecord_JSON(t *testing.T) {
	rec := RentalRecord{DayIndex: 1, Year: Year2012, Month: 6, Weather: WeatherRainSnow, Holiday: Holiday, RentalCount: 4500}

	data, err := json.Marshal(rec)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	want := `{"day_index":1,"year":"2012","month":6,"weather":"Rain/Snow","holiday":"Holiday","rental_count":4500}`
	if string(data) != want {
		t.Errorf("Marshal() = %s, want %s", data, want)
	}
}

// TestDataFormatError tests error handling
func TestDataFormatError(t *testing.T) {
	err := &DataFormatError{
		Source:  "day.csv",
		Row:     4,
		Column:  "cnt",
		Value:   "abc",
		Message: "value is not an integer",
	}

	want := `data format error in day.csv at row 4 column "cnt" value "abc": value is not an integer`
	if err.Error() != want {
		t.Errorf("Error() = %v, want %v", err.Error(), want)
	}

	if err.IsTransient() {
		t.Error("DataFormatError should not be transient")
	}
}
