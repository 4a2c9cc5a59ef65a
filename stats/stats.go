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

// Package stats computes descriptive statistics over numeric snapshot
// columns.
package stats

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Summary holds descriptive statistics of a single numeric column.
type Summary struct {
	N     int     // number of non-null values
	Mean  float64
	Sigma float64 // population standard deviation
	Min   float64
	Max   float64
}

// NewSummary computes summary statistics of data. Empty data yields the zero
// Summary.
func NewSummary(data []float64) Summary {
	if len(data) == 0 {
		return Summary{}
	}
	return Summary{
		N:     len(data),
		Mean:  stat.Mean(data, nil),
		Sigma: stat.PopStdDev(data, nil),
		Min:   floats.Min(data),
		Max:   floats.Max(data),
	}
}
