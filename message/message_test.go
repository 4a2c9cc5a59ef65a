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

package message

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stockparfait/testutil"

	. "github.com/smartystreets/goconvey/convey"
)

type Ticker struct {
	Symbol   string            `json:"symbol" required:"true"`
	Exchange string            `json:"exchange" default:"NASDAQ"`
	Kind     string            `choices:"stock,fund,crypto" default:"stock"`
	Beta     float64           `default:"1.2"`
	Lots     *int              `default:"100"`
	Active   bool              `default:"true"`
	Delisted bool
	Peers    []*Ticker         `json:"peers,omitempty"`
	Tags     map[string]string `json:"tags"`
	Filter   interface{}       `json:"filter"`
	Ignored  int               `json:"-"`
	hidden   int
}

var _ Message = &Ticker{}

// InitMessage implements Message.
func (t *Ticker) InitMessage(js interface{}) error {
	return Init(t, js)
}

type Side struct {
	Value string `choices:"buy,sell"` // no default
}

func (s *Side) InitMessage(js interface{}) error {
	return Init(s, js)
}

func TestMessage(t *testing.T) {
	t.Parallel()
	tmpdir, tmpdirErr := os.MkdirTemp("", "test_message")
	defer os.RemoveAll(tmpdir)

	Convey("Test setup succeeded", t, func() {
		So(tmpdirErr, ShouldBeNil)
	})

	Convey("Init() works", t, func() {
		Convey("with required fields only", func() {
			var tk Ticker
			So(tk.InitMessage(testutil.JSON(`{"symbol": "AAPL"}`)), ShouldBeNil)
			So(tk.Symbol, ShouldEqual, "AAPL")
			So(tk.Exchange, ShouldEqual, "NASDAQ")
			So(tk.Kind, ShouldEqual, "stock")
			So(tk.Beta, ShouldEqual, 1.2)
			So(*tk.Lots, ShouldEqual, 100)
			So(tk.Active, ShouldBeTrue)
			So(tk.Delisted, ShouldBeFalse)
			So(len(tk.Peers), ShouldEqual, 0)
			So(tk.Filter, ShouldBeNil)
		})

		Convey("with recursive Message entries", func() {
			var tk Ticker
			So(tk.InitMessage(testutil.JSON(`{
        "symbol": "AAPL", "Lots": null, "Active": false, "Beta": 0.8,
        "tags": {"sector": "tech", "index": "sp500"},
        "peers": [
          {"symbol": "MSFT", "Beta": 0.9},
          {"symbol": "GOOG", "Lots": 10}]
      }`)), ShouldBeNil)
			So(tk.Symbol, ShouldEqual, "AAPL")
			So(tk.Kind, ShouldEqual, "stock")
			So(tk.Lots, ShouldBeNil)
			So(tk.Active, ShouldBeFalse)
			So(tk.Beta, ShouldEqual, 0.8)
			So(tk.Tags, ShouldResemble, map[string]string{
				"sector": "tech", "index": "sp500"})
			So(len(tk.Peers), ShouldEqual, 2)
			msft := tk.Peers[0]
			goog := tk.Peers[1]
			So(msft.Symbol, ShouldEqual, "MSFT")
			So(msft.Beta, ShouldEqual, 0.9)
			So(*msft.Lots, ShouldEqual, 100)
			So(goog.Symbol, ShouldEqual, "GOOG")
			So(goog.Beta, ShouldEqual, 1.2)
			So(*goog.Lots, ShouldEqual, 10)
			So(tk.hidden, ShouldEqual, 0)
		})

		Convey("with raw JSON object in an interface field", func() {
			var tk Ticker
			So(tk.InitMessage(testutil.JSON(`{
        "symbol": "AAPL",
        "filter": {"left": "close", "operation": "greater", "right": 100}
      }`)), ShouldBeNil)
			So(tk.Filter, ShouldResemble, map[string]interface{}{
				"left":      "close",
				"operation": "greater",
				"right":     100.0,
			})
		})

		Convey("with raw JSON list in an interface field", func() {
			var tk Ticker
			So(tk.InitMessage(testutil.JSON(
				`{"symbol": "AAPL", "filter": [10, "high", true]}`)), ShouldBeNil)
			So(tk.Filter, ShouldResemble, []interface{}{10.0, "high", true})
		})

		Convey("with missing fields in recursive InitMessage() call", func() {
			var tk Ticker
			// A peer is missing its symbol.
			So(tk.InitMessage(testutil.JSON(
				`{"symbol": "AAPL", "peers": [{"Beta": 0.5}]}`)), ShouldNotBeNil)
		})

		Convey("with ignored fields", func() {
			var tk Ticker
			err := tk.InitMessage(testutil.JSON(`{"symbol": "A", "Ignored": 5}`))
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring,
				"unsupported fields for Ticker: Ignored")
		})

		Convey("with unexported fields", func() {
			var tk Ticker
			err := tk.InitMessage(testutil.JSON(`{"symbol": "A", "hidden": 5}`))
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring,
				"unsupported fields for Ticker: hidden")
		})

		Convey("with several unknown fields, sorted in the error", func() {
			var tk Ticker
			err := tk.InitMessage(testutil.JSON(
				`{"symbol": "A", "zebra": 1, "apple": 2}`))
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring,
				"unsupported fields for Ticker: apple, zebra")
		})

		Convey("with incorrect kind", func() {
			var tk Ticker
			err := tk.InitMessage(testutil.JSON(`{"symbol": "A", "Kind": "bond"}`))
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring,
				"value for Kind is not in its choice list: 'bond'")
		})

		Convey("with incorrect default choice", func() {
			var s Side
			err := s.InitMessage(testutil.JSON(`{}`))
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring,
				"error setting zero value for Value")
			So(err.Error(), ShouldContainSubstring,
				"value for Value is not in its choice list: ''")
		})
	})

	Convey("FromFile works", t, func() {
		Convey("reads and initializes a message", func() {
			configPath := filepath.Join(tmpdir, "ticker.json")
			So(testutil.WriteFile(configPath, `{"symbol": "TSLA", "Beta": 2.0}`),
				ShouldBeNil)
			var tk Ticker
			So(FromFile(&tk, configPath), ShouldBeNil)
			So(tk.Symbol, ShouldEqual, "TSLA")
			So(tk.Beta, ShouldEqual, 2.0)
			So(tk.Exchange, ShouldEqual, "NASDAQ")
		})

		Convey("fails for a missing file", func() {
			var tk Ticker
			err := FromFile(&tk, filepath.Join(tmpdir, "no-such.json"))
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "failed to read")
		})

		Convey("fails for malformed JSON", func() {
			configPath := filepath.Join(tmpdir, "broken.json")
			So(testutil.WriteFile(configPath, `{"symbol": `), ShouldBeNil)
			var tk Ticker
			err := FromFile(&tk, configPath)
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "failed to parse JSON")
		})
	})

	Convey("StringIn works", t, func() {
		So(StringIn("close", "open", "close", "volume"), ShouldBeTrue)
		So(StringIn("beta", "open", "close"), ShouldBeFalse)
	})
}
