// Copyright 2023 Stock Parfait

// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at

//     http://www.apache.org/licenses/LICENSE-2.0

// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package db

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/stockparfait/errors"
	"go.chromium.org/luci/common/clock"
)

// Value is a single table cell: float64, string, bool or nil, as produced by
// encoding/json for scalar values.
type Value interface{}

// Row is one ordered sequence of cells aligned to the snapshot columns.
type Row []Value

// Snapshot is the in-memory form of one day's scanner data: an ordered list
// of rows sharing a fixed column-name sequence.
type Snapshot struct {
	Columns []string
	Rows    []Row
}

// NewSnapshot creates an empty snapshot with the given column names.
func NewSnapshot(columns ...string) *Snapshot {
	return &Snapshot{Columns: columns}
}

// AddRow appends one or more rows to the snapshot. Rows are expected to have
// the same arity as Columns; Store.Save rejects snapshots that don't.
func (s *Snapshot) AddRow(rows ...Row) {
	s.Rows = append(s.Rows, rows...)
}

// ColumnSchema describes one stored column as reported by the store.
type ColumnSchema struct {
	Name     string
	Type     string // declared type: INTEGER, REAL or TEXT
	Nullable bool
}

// Schema is the ordered column metadata of a stored table.
type Schema []ColumnSchema

// Names returns the column names in storage order.
func (s Schema) Names() []string {
	res := make([]string, len(s))
	for i, c := range s {
		res[i] = c.Name
	}
	return res
}

// Equal tests two schemas for exact equality, including the column order.
func (s Schema) Equal(s2 Schema) bool {
	if len(s) != len(s2) {
		return false
	}
	for i, c := range s {
		if c != s2[i] {
			return false
		}
	}
	return true
}

// String prints a compact representation of the schema, e.g.
// "{id: INTEGER, name: TEXT}".
func (s Schema) String() string {
	cols := []string{}
	for _, c := range s {
		cols = append(cols, fmt.Sprintf("%s: %s", c.Name, c.Type))
	}
	return "{" + strings.Join(cols, ", ") + "}"
}

// Date records a calendar date as year, month and day.
type Date struct {
	year  uint16
	month uint8
	day   uint8
}

var _ json.Marshaler = Date{}
var _ json.Unmarshaler = &Date{}

// NewDate is the constructor for Date.
func NewDate(year uint16, month, day uint8) Date {
	return Date{year, month, day}
}

// NewDateFromTime creates a Date from the calendar date of t in its location.
func NewDateFromTime(t time.Time) Date {
	return Date{
		year:  uint16(t.Year()),
		month: uint8(t.Month()),
		day:   uint8(t.Day()),
	}
}

// NewDateFromString parses a Date from its YYYY-MM-DD representation.
func NewDateFromString(s string) (Date, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return Date{}, errors.Annotate(err, "failed to parse a Date string: '%s'", s)
	}
	return NewDateFromTime(t), nil
}

// DateInNY returns the date of the given time instant in the New York
// timezone, which is the calendar day the US markets operate on.
func DateInNY(now time.Time) Date {
	tz := "America/New_York"
	location, err := time.LoadLocation(tz)
	if err != nil {
		panic(errors.Annotate(err, "failed to load timezone %s", tz))
	}
	return NewDateFromTime(now.In(location))
}

// Today returns the current date in New York. The current time is taken from
// the context's clock, so tests can inject a fixed instant.
func Today(ctx context.Context) Date {
	return DateInNY(clock.Now(ctx))
}

func (d Date) Year() uint16 { return d.year }
func (d Date) Month() uint8 { return d.month }
func (d Date) Day() uint8   { return d.day }

// String representation of the value, YYYY-MM-DD.
func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.year, d.month, d.day)
}

// MarshalJSON implements json.Marshaler.
func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.String() + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler. NOTE: unlike other methods, this
// is a pointer method.
func (d *Date) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return errors.Annotate(err, "Date JSON must be a string")
	}
	date, err := NewDateFromString(s)
	if err != nil {
		return errors.Annotate(err, "failed to parse Date string")
	}
	*d = date
	return nil
}

// IsZero checks whether the date has a zero value.
func (d Date) IsZero() bool {
	return d.year == 0 && d.month == 0 && d.day == 0
}

// Before compares two Date objects for strict inequality (self < d2).
func (d Date) Before(d2 Date) bool {
	if d.year != d2.year {
		return d.year < d2.year
	}
	if d.month != d2.month {
		return d.month < d2.month
	}
	return d.day < d2.day
}

// After compares two Date objects for strict inequality, self > d2.
func (d Date) After(d2 Date) bool {
	return d2.Before(d)
}
