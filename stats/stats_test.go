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

package stats

import (
	"testing"

	"github.com/stockparfait/testutil"

	. "github.com/smartystreets/goconvey/convey"
)

func TestSummary(t *testing.T) {
	t.Parallel()

	Convey("NewSummary works", t, func() {
		Convey("for several values", func() {
			s := NewSummary([]float64{1.0, 2.0, 3.0, 4.0})
			So(s.N, ShouldEqual, 4)
			So(s.Mean, ShouldEqual, 2.5)
			So(testutil.Round(s.Sigma, 6), ShouldEqual, 1.11803)
			So(s.Min, ShouldEqual, 1.0)
			So(s.Max, ShouldEqual, 4.0)
		})

		Convey("for a single value", func() {
			s := NewSummary([]float64{7.5})
			So(s, ShouldResemble, Summary{N: 1, Mean: 7.5, Min: 7.5, Max: 7.5})
		})

		Convey("for empty data", func() {
			So(NewSummary(nil), ShouldResemble, Summary{})
			So(NewSummary([]float64{}), ShouldResemble, Summary{})
		})
	})
}
