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
	"database/sql"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/stockparfait/errors"
	"github.com/stockparfait/logging"

	_ "modernc.org/sqlite" // register the "sqlite" driver
)

// TableName is the single table holding the scanner rows in every snapshot
// file.
const TableName = "stock_data"

// Error is a classified store failure: the operation that failed, the
// snapshot file it failed on, and the underlying cause.
type Error struct {
	Op    string // "save", "read schema", ...
	Path  string // the snapshot file path
	Cause error
}

var _ error = &Error{}

func (e *Error) Error() string {
	return fmt.Sprintf("%s '%s': %s", e.Op, e.Path, e.Cause.Error())
}

func (e *Error) Unwrap() error { return e.Cause }

func newError(op, path string, cause error) *Error {
	return &Error{Op: op, Path: path, Cause: cause}
}

// AsError finds the first *Error in the wrap chain of err, if any. It walks
// the chain manually, so it works regardless of how err was annotated.
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

// Store keeps one SQLite snapshot file per calendar date in a single base
// directory. Path computation is pure; EnsureDir performs the only directory
// side effect, and each save or read acquires its own connection and releases
// it before returning.
type Store struct {
	dir string
}

// NewStore creates a store rooted at the given base directory. The directory
// is not created until EnsureDir is called.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Dir returns the store's base directory.
func (s *Store) Dir() string { return s.dir }

// Path returns the snapshot file path for the given date. It is a pure
// function of the date and the base directory.
func (s *Store) Path(d Date) string {
	return filepath.Join(s.dir, d.String()+".db")
}

// PathToday returns the snapshot file path for today's date in New York.
func (s *Store) PathToday(ctx context.Context) string {
	return s.Path(Today(ctx))
}

// EnsureDir creates the base directory if it does not exist yet. It is
// idempotent and does not create any snapshot files.
func (s *Store) EnsureDir(ctx context.Context) error {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return newError("ensure directory", s.dir, err)
	}
	logging.Debugf(ctx, "snapshot directory ready: %s", s.dir)
	return nil
}

// Exists checks whether a snapshot file exists for the given date.
func (s *Store) Exists(d Date) (bool, error) {
	path := s.Path(d)
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, newError("stat", path, err)
	}
	return true, nil
}

// open acquires a connection to the snapshot file. SQLite creates the file on
// the first write, so read paths must check Exists first. Snapshots are tiny
// and strictly sequential, hence the single connection.
func (s *Store) open(ctx context.Context, path string, readOnly bool) (*sql.DB, error) {
	dsn := path
	if readOnly {
		dsn = "file:" + path + "?mode=ro"
	}
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Annotate(err, "failed to open '%s'", path)
	}
	conn.SetMaxOpenConns(1)
	if _, err := conn.ExecContext(ctx, "PRAGMA busy_timeout = 5000"); err != nil {
		conn.Close()
		return nil, errors.Annotate(err, "failed to configure '%s'", path)
	}
	return conn, nil
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func isIntegral(f float64) bool {
	return f == math.Trunc(f) && !math.IsInf(f, 0)
}

// columnType infers the declared type and NOT NULL constraint of column i
// from the snapshot data: INTEGER if every non-null cell is a bool or an
// integral number, REAL if every non-null cell is a number, TEXT otherwise.
// A column with at least one row and no null cells becomes NOT NULL.
func columnType(rows []Row, i int) (string, bool) {
	allInt := true
	allNum := true
	hasNull := false
	hasValue := false
	for _, r := range rows {
		switch v := r[i].(type) {
		case nil:
			hasNull = true
		case bool:
			hasValue = true
			allNum = false
		case float64:
			hasValue = true
			if !isIntegral(v) {
				allInt = false
			}
		default:
			hasValue = true
			allInt = false
			allNum = false
		}
	}
	notNull := hasValue && !hasNull
	if !hasValue {
		return "TEXT", false
	}
	if allInt {
		return "INTEGER", notNull
	}
	if allNum {
		return "REAL", notNull
	}
	return "TEXT", notNull
}

// bindValue converts a snapshot cell to its storage form: bools become 0/1,
// integral numbers in INTEGER columns become int64, everything else is bound
// as-is.
func bindValue(v Value, colType string) interface{} {
	switch x := v.(type) {
	case bool:
		if x {
			return int64(1)
		}
		return int64(0)
	case float64:
		if colType == "INTEGER" && isIntegral(x) {
			return int64(x)
		}
	}
	return v
}

// readValue converts a stored cell back to the snapshot form: INTEGER cells
// come back as float64 (numbers arrive from the wire as float64, and integral
// values below 2^53 convert back exactly), TEXT cells as string.
func readValue(v interface{}) Value {
	switch x := v.(type) {
	case int64:
		return float64(x)
	case []byte:
		return string(x)
	}
	return v
}

// Save writes the snapshot for the given date, fully replacing the
// stock_data table if the file already holds one. The connection is scoped
// to this call and released on every exit path; the drop, create and inserts
// run in a single transaction. Any failure is returned as *Error.
func (s *Store) Save(ctx context.Context, d Date, snapshot *Snapshot) error {
	path := s.Path(d)
	if len(snapshot.Columns) == 0 {
		return newError("save", path, errors.Reason("snapshot has no columns"))
	}
	for i, r := range snapshot.Rows {
		if len(r) != len(snapshot.Columns) {
			return newError("save", path, errors.Reason(
				"row %d has %d values, expected %d",
				i, len(r), len(snapshot.Columns)))
		}
	}

	conn, err := s.open(ctx, path, false)
	if err != nil {
		return newError("save", path, err)
	}
	defer conn.Close()

	types := make([]string, len(snapshot.Columns))
	defs := make([]string, len(snapshot.Columns))
	marks := make([]string, len(snapshot.Columns))
	for i, name := range snapshot.Columns {
		colType, notNull := columnType(snapshot.Rows, i)
		types[i] = colType
		defs[i] = quoteIdent(name) + " " + colType
		if notNull {
			defs[i] += " NOT NULL"
		}
		marks[i] = "?"
	}

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return newError("save", path, errors.Annotate(err, "failed to begin transaction"))
	}
	defer tx.Rollback()

	table := quoteIdent(TableName)
	if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+table); err != nil {
		return newError("save", path, errors.Annotate(err, "failed to drop old table"))
	}
	create := fmt.Sprintf("CREATE TABLE %s (%s)", table, strings.Join(defs, ", "))
	if _, err := tx.ExecContext(ctx, create); err != nil {
		return newError("save", path, errors.Annotate(err, "failed to create table"))
	}
	insert := fmt.Sprintf("INSERT INTO %s VALUES (%s)", table, strings.Join(marks, ", "))
	stmt, err := tx.PrepareContext(ctx, insert)
	if err != nil {
		return newError("save", path, errors.Annotate(err, "failed to prepare insert"))
	}
	defer stmt.Close()
	args := make([]interface{}, len(snapshot.Columns))
	for i, r := range snapshot.Rows {
		for j, v := range r {
			args[j] = bindValue(v, types[j])
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return newError("save", path, errors.Annotate(err, "failed to insert row %d", i))
		}
	}
	if err := tx.Commit(); err != nil {
		return newError("save", path, errors.Annotate(err, "failed to commit"))
	}
	logging.Infof(ctx, "saved %d rows to '%s'", len(snapshot.Rows), path)
	return nil
}

// requireSnapshot verifies that a snapshot file exists for the date and
// returns its path. Read paths use it to avoid creating empty files.
func (s *Store) requireSnapshot(op string, d Date) (string, error) {
	path := s.Path(d)
	ok, err := s.Exists(d)
	if err != nil {
		return "", newError(op, path, err)
	}
	if !ok {
		return "", newError(op, path, errors.Reason("no snapshot for %s", d))
	}
	return path, nil
}

// ReadSchema reads the column metadata of the stored table: name, declared
// type and nullability per column, in storage order.
func (s *Store) ReadSchema(ctx context.Context, d Date) (Schema, error) {
	path, err := s.requireSnapshot("read schema", d)
	if err != nil {
		return nil, err
	}
	conn, err := s.open(ctx, path, true)
	if err != nil {
		return nil, newError("read schema", path, err)
	}
	defer conn.Close()

	q := fmt.Sprintf("PRAGMA table_info(%s)", quoteIdent(TableName))
	rows, err := conn.QueryContext(ctx, q)
	if err != nil {
		return nil, newError("read schema", path, errors.Annotate(err, "failed to query table info"))
	}
	defer rows.Close()

	var schema Schema
	for rows.Next() {
		var cid, notNull, pk int
		var name, colType string
		var dflt interface{}
		if err := rows.Scan(&cid, &name, &colType, &notNull, &dflt, &pk); err != nil {
			return nil, newError("read schema", path, errors.Annotate(err, "failed to scan table info"))
		}
		schema = append(schema, ColumnSchema{
			Name:     name,
			Type:     colType,
			Nullable: notNull == 0,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, newError("read schema", path, err)
	}
	if len(schema) == 0 {
		return nil, newError("read schema", path,
			errors.Reason("table %s does not exist", TableName))
	}
	return schema, nil
}

func scanRows(rows *sql.Rows) ([]Row, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, errors.Annotate(err, "failed to read column names")
	}
	var res []Row
	for rows.Next() {
		vals := make([]interface{}, len(cols))
		ptrs := make([]interface{}, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, errors.Annotate(err, "failed to scan row")
		}
		row := make(Row, len(cols))
		for i, v := range vals {
			row[i] = readValue(v)
		}
		res = append(res, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return res, nil
}

// FirstRow reads the first stored row in storage order, or nil if the table
// is empty.
func (s *Store) FirstRow(ctx context.Context, d Date) (Row, error) {
	path, err := s.requireSnapshot("read first row", d)
	if err != nil {
		return nil, err
	}
	conn, err := s.open(ctx, path, true)
	if err != nil {
		return nil, newError("read first row", path, err)
	}
	defer conn.Close()

	q := fmt.Sprintf("SELECT * FROM %s LIMIT 1", quoteIdent(TableName))
	rows, err := conn.QueryContext(ctx, q)
	if err != nil {
		return nil, newError("read first row", path, errors.Annotate(err, "failed to query"))
	}
	defer rows.Close()
	res, err := scanRows(rows)
	if err != nil {
		return nil, newError("read first row", path, err)
	}
	if len(res) == 0 {
		return nil, nil
	}
	return res[0], nil
}

// ReadRows reads back all stored rows in storage order.
func (s *Store) ReadRows(ctx context.Context, d Date) ([]Row, error) {
	path, err := s.requireSnapshot("read rows", d)
	if err != nil {
		return nil, err
	}
	conn, err := s.open(ctx, path, true)
	if err != nil {
		return nil, newError("read rows", path, err)
	}
	defer conn.Close()

	q := fmt.Sprintf("SELECT * FROM %s", quoteIdent(TableName))
	rows, err := conn.QueryContext(ctx, q)
	if err != nil {
		return nil, newError("read rows", path, errors.Annotate(err, "failed to query"))
	}
	defer rows.Close()
	res, err := scanRows(rows)
	if err != nil {
		return nil, newError("read rows", path, err)
	}
	return res, nil
}

// ReadSnapshot reads back the full snapshot: column names in storage order
// and all rows.
func (s *Store) ReadSnapshot(ctx context.Context, d Date) (*Snapshot, error) {
	schema, err := s.ReadSchema(ctx, d)
	if err != nil {
		return nil, err
	}
	rows, err := s.ReadRows(ctx, d)
	if err != nil {
		return nil, err
	}
	return &Snapshot{Columns: schema.Names(), Rows: rows}, nil
}
