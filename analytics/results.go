// Copyright 2021-2023
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package analytics

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// UnusedSum marks a row whose sum is not meaningful, e.g. after a scalar
// operation
const UnusedSum = -1.0

// Row is one (reduced dimensions, metric, unit) group inside a period
type Row struct {
	Dimensions     map[Dimension]DimensionValue `json:"dimensions"`
	Metric         Metric                       `json:"metric"`
	Unit           string                       `json:"unit"`
	Value          float64                      `json:"value"`
	Sum            float64                      `json:"sum"`
	OperandMissing bool                         `json:"operandMissing,omitempty"`
}

// DimensionKey is a canonical string of the row's reduced dimension paths,
// stable regardless of map iteration order
func (row *Row) DimensionKey() string {
	return dimensionKey(row.Dimensions)
}

// GroupKey identifies rows that are merged by the algebra
func (row *Row) GroupKey() string {
	return fmt.Sprintf("%s|%s", row.Metric, row.DimensionKey())
}

func (row *Row) clone() *Row {
	dims := make(map[Dimension]DimensionValue, len(row.Dimensions))
	for k, v := range row.Dimensions {
		dims[k] = v
	}
	cp := *row
	cp.Dimensions = dims
	return &cp
}

type GroupedPeriodResult struct {
	Period string    `json:"period"`
	Start  time.Time `json:"start"`
	End    time.Time `json:"end"`
	Rows   []*Row    `json:"rows"`
}

// Row returns the row matching metric and dimension key or nil
func (gpr *GroupedPeriodResult) Row(metric Metric, dimensions map[Dimension]DimensionValue) *Row {
	key := dimensionKey(dimensions)
	for _, row := range gpr.Rows {
		if row.Metric == metric && row.DimensionKey() == key {
			return row
		}
	}
	return nil
}

// UnitRow is Row restricted to rows denominated in unit
func (gpr *GroupedPeriodResult) UnitRow(metric Metric, unit string, dimensions map[Dimension]DimensionValue) *Row {
	key := dimensionKey(dimensions)
	for _, row := range gpr.Rows {
		if row.Metric == metric && row.Unit == unit && row.DimensionKey() == key {
			return row
		}
	}
	return nil
}

// SortRows orders rows by metric, unit and dimension key
func (gpr *GroupedPeriodResult) SortRows() {
	sort.SliceStable(gpr.Rows, func(i, j int) bool {
		a, b := gpr.Rows[i], gpr.Rows[j]
		if a.Metric != b.Metric {
			return a.Metric < b.Metric
		}
		if a.Unit != b.Unit {
			return a.Unit < b.Unit
		}
		return a.DimensionKey() < b.DimensionKey()
	})
}

// GroupedPeriodResults is a chronologically ordered list of periods
type GroupedPeriodResults []*GroupedPeriodResult

// Period returns the result for the given period label or nil
func (results GroupedPeriodResults) Period(label string) *GroupedPeriodResult {
	for _, p := range results {
		if p.Period == label {
			return p
		}
	}
	return nil
}

// CheckComplete returns ErrMissingOperand if any row was produced without
// an operand value
func (results GroupedPeriodResults) CheckComplete() error {
	for _, p := range results {
		for _, row := range p.Rows {
			if row.OperandMissing {
				return fmt.Errorf("%w: period %s metric %s", ErrMissingOperand, p.Period, row.Metric)
			}
		}
	}
	return nil
}

func dimensionKey(dimensions map[Dimension]DimensionValue) string {
	keys := make([]string, 0, len(dimensions))
	for dim := range dimensions {
		keys = append(keys, string(dim))
	}
	sort.Strings(keys)

	var sb strings.Builder
	for idx, k := range keys {
		if idx > 0 {
			sb.WriteByte(';')
		}
		sb.WriteString(k)
		sb.WriteByte('=')
		sb.WriteString(dimensions[Dimension(k)].Path)
	}
	return sb.String()
}
