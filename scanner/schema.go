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

package scanner

import (
	"encoding/json"

	"github.com/stockparfait/errors"
	"golang.org/x/exp/slices"

	"github.com/stockparfait/tvscan/message"
)

// Column maps a wire field id to its storage column name.
type Column struct {
	Field string `json:"field" required:"true"` // e.g. "market_cap_basic"
	Name  string `json:"name"`                  // default: same as Field
}

var _ message.Message = &Column{}

func (c *Column) InitMessage(js any) error {
	if err := message.Init(c, js); err != nil {
		return errors.Annotate(err, "failed to init Column")
	}
	if c.Name == "" {
		c.Name = c.Field
	}
	return nil
}

// Filter is a single screening condition, such as {close > 10}. The
// operation vocabulary is the server's: "greater", "less", "equal",
// "nequal", "in_range", "nempty" and friends.
type Filter struct {
	Left      string `json:"left" required:"true"`
	Operation string `json:"operation" required:"true"`
	Right     any    `json:"right"` // number, string, bool or list
}

var _ message.Message = &Filter{}

func (f *Filter) InitMessage(js any) error {
	return message.Init(f, js)
}

// Sort orders the scan results by a single field.
type Sort struct {
	SortBy    string `json:"sortBy" required:"true"`
	SortOrder string `json:"sortOrder" default:"descending" choices:"ascending,descending"`
}

var _ message.Message = &Sort{}

func (s *Sort) InitMessage(js any) error {
	return message.Init(s, js)
}

// wireOrder converts the sort order to its wire form.
func (s *Sort) wireOrder() string {
	if s.SortOrder == "ascending" {
		return "asc"
	}
	return "desc"
}

// Request is a complete scan request: which markets to search, how to filter
// the instruments, which fields to return and in what order.
type Request struct {
	Columns []Column `json:"columns"`
	Filters []Filter `json:"filters"`
	Markets []string `json:"markets"`
	Sort    *Sort    `json:"sort"`
	Range   []int    `json:"range"` // [lo, hi) row interval
}

var _ message.Message = &Request{}

func (r *Request) InitMessage(js any) error {
	if err := message.Init(r, js); err != nil {
		return errors.Annotate(err, "failed to init Request")
	}
	if len(r.Columns) == 0 {
		r.Columns = defaultColumns()
	}
	if len(r.Markets) == 0 {
		r.Markets = []string{"america"}
	}
	if len(r.Range) == 0 {
		r.Range = []int{0, 150}
	}
	if len(r.Range) != 2 || r.Range[0] < 0 || r.Range[1] <= r.Range[0] {
		return errors.Reason("range %v must be [lo, hi) with 0 <= lo < hi", r.Range)
	}
	var names []string
	for _, c := range r.Columns {
		if slices.Contains(names, c.Name) {
			return errors.Reason("duplicate column name '%s'", c.Name)
		}
		names = append(names, c.Name)
	}
	return nil
}

func defaultColumns() []Column {
	return []Column{
		{Field: "name", Name: "name"},
		{Field: "close", Name: "close"},
		{Field: "change", Name: "change"},
		{Field: "volume", Name: "volume"},
		{Field: "market_cap_basic", Name: "market_cap"},
	}
}

// DefaultRequest is the standard US stock scan: the largest US stocks by
// market cap with their name, closing price, daily change and volume.
func DefaultRequest() *Request {
	return &Request{
		Columns: defaultColumns(),
		Filters: []Filter{
			{Left: "market_cap_basic", Operation: "nempty"},
			{Left: "type", Operation: "equal", Right: "stock"},
			{Left: "exchange", Operation: "in_range",
				Right: []any{"AMEX", "NASDAQ", "NYSE"}},
		},
		Markets: []string{"america"},
		Sort:    &Sort{SortBy: "market_cap_basic", SortOrder: "descending"},
		Range:   []int{0, 150},
	}
}

// Copy creates a deep copy of the request. It is primarily used in its
// builder methods.
func (r *Request) Copy() *Request {
	r2 := Request{
		Columns: make([]Column, len(r.Columns)),
		Filters: make([]Filter, len(r.Filters)),
		Markets: make([]string, len(r.Markets)),
		Range:   make([]int, len(r.Range)),
	}
	copy(r2.Columns, r.Columns)
	copy(r2.Filters, r.Filters)
	copy(r2.Markets, r.Markets)
	copy(r2.Range, r.Range)
	if r.Sort != nil {
		s := *r.Sort
		r2.Sort = &s
	}
	return &r2
}

// WithColumns replaces the requested columns. This and other builder methods
// always create a deep copy of the request, leaving the original intact.
func (r *Request) WithColumns(columns ...Column) *Request {
	r2 := r.Copy()
	r2.Columns = columns
	return r2
}

// WithFilter adds a screening condition.
func (r *Request) WithFilter(left, operation string, right any) *Request {
	r2 := r.Copy()
	r2.Filters = append(r2.Filters, Filter{
		Left: left, Operation: operation, Right: right})
	return r2
}

// WithMarkets replaces the markets to search.
func (r *Request) WithMarkets(markets ...string) *Request {
	r2 := r.Copy()
	r2.Markets = markets
	return r2
}

// WithSort replaces the result ordering; sortOrder is "ascending" or
// "descending".
func (r *Request) WithSort(sortBy, sortOrder string) *Request {
	r2 := r.Copy()
	r2.Sort = &Sort{SortBy: sortBy, SortOrder: sortOrder}
	return r2
}

// WithRange replaces the [lo, hi) row interval of the results.
func (r *Request) WithRange(lo, hi int) *Request {
	r2 := r.Copy()
	r2.Range = []int{lo, hi}
	return r2
}

// Header returns the storage column names, in request order.
func (r *Request) Header() []string {
	names := make([]string, len(r.Columns))
	for i, c := range r.Columns {
		names[i] = c.Name
		if names[i] == "" {
			names[i] = c.Field
		}
	}
	return names
}

// Wire format of the scan request body.
type requestPayload struct {
	Filter  []filterPayload `json:"filter,omitempty"`
	Options optionsPayload  `json:"options"`
	Markets []string        `json:"markets"`
	Symbols symbolsPayload  `json:"symbols"`
	Columns []string        `json:"columns"`
	Sort    *sortPayload    `json:"sort,omitempty"`
	Range   []int           `json:"range"`
}

type filterPayload struct {
	Left      string `json:"left"`
	Operation string `json:"operation"`
	Right     any    `json:"right,omitempty"`
}

type optionsPayload struct {
	Lang string `json:"lang"`
}

type symbolsPayload struct {
	Query   queryPayload `json:"query"`
	Tickers []string     `json:"tickers"`
}

type queryPayload struct {
	Types []string `json:"types"`
}

type sortPayload struct {
	SortBy    string `json:"sortBy"`
	SortOrder string `json:"sortOrder"`
}

// payload builds the wire JSON body of the scan request.
func (r *Request) payload() ([]byte, error) {
	p := requestPayload{
		Options: optionsPayload{Lang: "en"},
		Markets: r.Markets,
		Symbols: symbolsPayload{
			Query:   queryPayload{Types: []string{}},
			Tickers: []string{},
		},
		Columns: make([]string, len(r.Columns)),
		Range:   r.Range,
	}
	for i, c := range r.Columns {
		p.Columns[i] = c.Field
	}
	for _, f := range r.Filters {
		p.Filter = append(p.Filter, filterPayload(f))
	}
	if r.Sort != nil {
		p.Sort = &sortPayload{SortBy: r.Sort.SortBy, SortOrder: r.Sort.wireOrder()}
	}
	return json.Marshal(&p)
}
