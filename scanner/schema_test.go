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
	"testing"

	"github.com/stockparfait/testutil"

	. "github.com/smartystreets/goconvey/convey"
)

func TestSchema(t *testing.T) {
	t.Parallel()

	Convey("Request.InitMessage works", t, func() {
		Convey("with a full config", func() {
			var r Request
			So(r.InitMessage(testutil.JSON(`{
        "columns": [
          {"field": "close"},
          {"field": "market_cap_basic", "name": "market_cap"}
        ],
        "filters": [{"left": "close", "operation": "greater", "right": 10}],
        "markets": ["america", "uk"],
        "sort": {"sortBy": "close", "sortOrder": "ascending"},
        "range": [0, 50]
      }`)), ShouldBeNil)
			So(r.Columns, ShouldResemble, []Column{
				{Field: "close", Name: "close"},
				{Field: "market_cap_basic", Name: "market_cap"},
			})
			So(r.Filters, ShouldResemble, []Filter{
				{Left: "close", Operation: "greater", Right: 10.0}})
			So(r.Markets, ShouldResemble, []string{"america", "uk"})
			So(r.Sort, ShouldResemble, &Sort{SortBy: "close", SortOrder: "ascending"})
			So(r.Sort.wireOrder(), ShouldEqual, "asc")
			So(r.Range, ShouldResemble, []int{0, 50})
			So(r.Header(), ShouldResemble, []string{"close", "market_cap"})
		})

		Convey("with an empty config", func() {
			var r Request
			So(r.InitMessage(testutil.JSON(`{}`)), ShouldBeNil)
			So(r.Columns, ShouldResemble, defaultColumns())
			So(r.Markets, ShouldResemble, []string{"america"})
			So(r.Range, ShouldResemble, []int{0, 150})
			So(r.Sort, ShouldBeNil)
		})

		Convey("with a column missing its field", func() {
			var r Request
			err := r.InitMessage(testutil.JSON(`{"columns": [{"name": "x"}]}`))
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "missing required fields: field")
		})

		Convey("with an invalid sort order", func() {
			var r Request
			err := r.InitMessage(testutil.JSON(
				`{"sort": {"sortBy": "close", "sortOrder": "up"}}`))
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "not in its choice list: 'up'")
		})

		Convey("with an invalid range", func() {
			var r Request
			So(r.InitMessage(testutil.JSON(`{"range": [5]}`)), ShouldNotBeNil)
			So(r.InitMessage(testutil.JSON(`{"range": [10, 10]}`)), ShouldNotBeNil)
			So(r.InitMessage(testutil.JSON(`{"range": [-1, 10]}`)), ShouldNotBeNil)
		})

		Convey("with clashing column names", func() {
			var r Request
			err := r.InitMessage(testutil.JSON(`{"columns": [
        {"field": "close", "name": "price"},
        {"field": "open", "name": "price"}
      ]}`))
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "duplicate column name 'price'")
		})
	})

	Convey("Request builds nondestructively", t, func() {
		r := DefaultRequest()
		r2 := r.WithFilter("close", "greater", 10).
			WithRange(0, 50).
			WithSort("close", "ascending").
			WithMarkets("uk").
			WithColumns(Column{Field: "close"})

		So(len(r.Filters), ShouldEqual, 3)
		So(r.Range, ShouldResemble, []int{0, 150})
		So(r.Sort, ShouldResemble,
			&Sort{SortBy: "market_cap_basic", SortOrder: "descending"})
		So(r.Markets, ShouldResemble, []string{"america"})
		So(len(r.Columns), ShouldEqual, 5)

		So(len(r2.Filters), ShouldEqual, 4)
		So(r2.Filters[3], ShouldResemble,
			Filter{Left: "close", Operation: "greater", Right: 10})
		So(r2.Range, ShouldResemble, []int{0, 50})
		So(r2.Sort, ShouldResemble, &Sort{SortBy: "close", SortOrder: "ascending"})
		So(r2.Markets, ShouldResemble, []string{"uk"})
		So(r2.Header(), ShouldResemble, []string{"close"})
	})

	Convey("payload builds the wire body", t, func() {
		Convey("for the default request", func() {
			body, err := DefaultRequest().payload()
			So(err, ShouldBeNil)
			So(testutil.JSON(string(body)), ShouldResemble, testutil.JSON(`{
        "filter": [
          {"left": "market_cap_basic", "operation": "nempty"},
          {"left": "type", "operation": "equal", "right": "stock"},
          {"left": "exchange", "operation": "in_range",
           "right": ["AMEX", "NASDAQ", "NYSE"]}
        ],
        "options": {"lang": "en"},
        "markets": ["america"],
        "symbols": {"query": {"types": []}, "tickers": []},
        "columns": ["name", "close", "change", "volume", "market_cap_basic"],
        "sort": {"sortBy": "market_cap_basic", "sortOrder": "desc"},
        "range": [0, 150]
      }`))
		})

		Convey("without filters and sort", func() {
			r := &Request{
				Columns: []Column{{Field: "close", Name: "close"}},
				Markets: []string{"america"},
				Range:   []int{0, 10},
			}
			body, err := r.payload()
			So(err, ShouldBeNil)
			So(testutil.JSON(string(body)), ShouldResemble, testutil.JSON(`{
        "options": {"lang": "en"},
        "markets": ["america"],
        "symbols": {"query": {"types": []}, "tickers": []},
        "columns": ["close"],
        "range": [0, 10]
      }`))
		})
	})
}
