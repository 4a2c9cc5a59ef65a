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

// Package overview produces a text report of today's market snapshot: its
// schema, a row preview, and summaries of the numeric columns. When today's
// snapshot is not yet stored, it is scanned and saved first.
package overview

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/stockparfait/iterator"
	"github.com/stockparfait/logging"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/stockparfait/tvscan/db"
	"github.com/stockparfait/tvscan/scanner"
	"github.com/stockparfait/tvscan/stats"
	"github.com/stockparfait/tvscan/table"
)

// Stage identifies the step of the overview pipeline that failed.
type Stage string

const (
	StageExistence Stage = "existence check"
	StagePopulate  Stage = "populate"
	StageRead      Stage = "read"
	StageFormat    Stage = "format"
)

// Error is an overview failure annotated with the pipeline stage that caused
// it.
type Error struct {
	Stage Stage
	Cause error
}

func (e *Error) Error() string {
	return fmt.Sprintf("overview failed at %s: %s", e.Stage, e.Cause.Error())
}

func (e *Error) Unwrap() error { return e.Cause }

func newError(stage Stage, cause error) *Error {
	return &Error{Stage: stage, Cause: cause}
}

// AsError finds the first *Error in the wrap chain of err, if any.
func AsError(err error) (*Error, bool) {
	for err != nil {
		if e, ok := err.(*Error); ok {
			return e, true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return nil, false
		}
		err = u.Unwrap()
	}
	return nil, false
}

// Config controls a single overview run.
type Config struct {
	Store       *db.Store
	Request     *scanner.Request // nil = scanner.DefaultRequest()
	PreviewRows int              // max. preview rows; 0 = 1
	Summaries   bool             // render numeric column summaries
	Refresh     bool             // re-scan even when today's snapshot exists
}

// Run writes the overview report of today's snapshot to w, scanning and
// saving the snapshot first when it is not already stored. The report is
// written only when the whole pipeline succeeds.
func Run(ctx context.Context, c *Config, w io.Writer) error {
	today, err := ensure(ctx, c)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := writeReport(ctx, c, today, &buf); err != nil {
		return err
	}
	if _, err := buf.WriteTo(w); err != nil {
		return newError(StageFormat, err)
	}
	return nil
}

// WriteCSV dumps today's snapshot to w as CSV, scanning and saving the
// snapshot first when it is not already stored.
func WriteCSV(ctx context.Context, c *Config, w io.Writer) error {
	today, err := ensure(ctx, c)
	if err != nil {
		return err
	}
	snapshot, err := c.Store.ReadSnapshot(ctx, today)
	if err != nil {
		return newError(StageRead, err)
	}
	tbl := table.New(snapshot.Columns...)
	for _, r := range snapshot.Rows {
		tbl.Add(formatRow(r)...)
	}
	if err := tbl.WriteCSV(w, table.Params{}); err != nil {
		return newError(StageFormat, err)
	}
	return nil
}

// ensure returns today's date, populating the snapshot first when it is
// absent or a refresh is forced.
func ensure(ctx context.Context, c *Config) (db.Date, error) {
	today := db.Today(ctx)
	ok, err := c.Store.Exists(today)
	if err != nil {
		return db.Date{}, newError(StageExistence, err)
	}
	if ok && !c.Refresh {
		logging.Infof(ctx, "snapshot for %s already exists, skipping scan", today)
		return today, nil
	}
	if err := populate(ctx, c, today); err != nil {
		return db.Date{}, newError(StagePopulate, err)
	}
	return today, nil
}

// populate scans the market and saves the result as the snapshot for the
// date.
func populate(ctx context.Context, c *Config, d db.Date) error {
	req := c.Request
	if req == nil {
		req = scanner.DefaultRequest()
	}
	snapshot, err := scanner.Scan(ctx, req)
	if err != nil {
		return err
	}
	logging.Infof(ctx, "snapshot path: %s", c.Store.Path(d))
	if err := c.Store.EnsureDir(ctx); err != nil {
		return err
	}
	return c.Store.Save(ctx, d, snapshot)
}

// writeReport renders the full text report of the snapshot for the date.
func writeReport(ctx context.Context, c *Config, d db.Date, w io.Writer) error {
	schema, err := c.Store.ReadSchema(ctx, d)
	if err != nil {
		return newError(StageRead, err)
	}
	preview := c.PreviewRows
	if preview <= 0 {
		preview = 1
	}
	var rows []db.Row
	if c.Summaries || preview > 1 {
		if rows, err = c.Store.ReadRows(ctx, d); err != nil {
			return newError(StageRead, err)
		}
	} else {
		row, err := c.Store.FirstRow(ctx, d)
		if err != nil {
			return newError(StageRead, err)
		}
		if row != nil {
			rows = append(rows, row)
		}
	}

	fmt.Fprintf(w, "Table %s for %s in '%s'\n",
		db.TableName, d, c.Store.Path(d))

	fmt.Fprintf(w, "\nSchema:\n")
	schemaTbl := table.New("Column", "Type", "Nullable")
	for _, col := range schema {
		nullable := "NULL"
		if !col.Nullable {
			nullable = "NOT NULL"
		}
		schemaTbl.Add(col.Name, col.Type, nullable)
	}
	if err := schemaTbl.WriteText(w, table.Params{}); err != nil {
		return newError(StageFormat, err)
	}

	fmt.Fprintf(w, "\nPreview:\n")
	if len(rows) == 0 {
		fmt.Fprintf(w, "(no rows)\n")
	} else {
		previewTbl := table.New(schema.Names()...)
		for _, r := range rows {
			previewTbl.Add(formatRow(r)...)
		}
		if err := previewTbl.WriteText(w, table.Params{Rows: preview}); err != nil {
			return newError(StageFormat, err)
		}
	}

	if !c.Summaries {
		return nil
	}
	samples := numericColumns(schema, rows)
	names := maps.Keys(samples)
	slices.Sort(names)
	logging.Debugf(ctx, "%d numeric columns: %v", len(names), names)

	fmt.Fprintf(w, "\nNumeric columns:\n")
	if len(names) == 0 {
		fmt.Fprintf(w, "(none)\n")
		return nil
	}
	sumTbl := table.New("Column", "N", "Mean", "Sigma", "Min", "Max")
	for _, col := range schema {
		data, ok := samples[col.Name]
		if !ok {
			continue
		}
		s := stats.NewSummary(data)
		sumTbl.Add(col.Name, strconv.Itoa(s.N), summaryNum(s.Mean),
			summaryNum(s.Sigma), summaryNum(s.Min), summaryNum(s.Max))
	}
	if err := sumTbl.WriteText(w, table.Params{}); err != nil {
		return newError(StageFormat, err)
	}
	return nil
}

// numericColumns folds the rows into per-column samples of their numeric
// values, keyed by column name. Null and non-numeric cells are not counted.
func numericColumns(schema db.Schema, rows []db.Row) map[string][]float64 {
	return iterator.Reduce[db.Row, map[string][]float64](
		iterator.FromSlice(rows), make(map[string][]float64),
		func(r db.Row, acc map[string][]float64) map[string][]float64 {
			for i, v := range r {
				if i >= len(schema) {
					break
				}
				if n, ok := v.(float64); ok {
					acc[schema[i].Name] = append(acc[schema[i].Name], n)
				}
			}
			return acc
		})
}

// formatRow renders a snapshot row as display cells.
func formatRow(r db.Row) []string {
	cells := make([]string, len(r))
	for i, v := range r {
		cells[i] = formatCell(v)
	}
	return cells
}

// formatCell renders a raw snapshot value for display.
func formatCell(v db.Value) string {
	switch t := v.(type) {
	case nil:
		return "NULL"
	case bool:
		if t {
			return "true"
		}
		return "false"
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64)
	case string:
		return t
	}
	return fmt.Sprintf("%v", v)
}

// summaryNum renders a summary statistic to 6 significant digits.
func summaryNum(v float64) string {
	return strconv.FormatFloat(v, 'g', 6, 64)
}
