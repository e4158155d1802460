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
	"time"

	"gonum.org/v1/gonum/floats"
)

// ReducedSeries is a fact whose dimension paths have been truncated to the
// level of detail requested by a query
type ReducedSeries struct {
	Series     *Series
	Dimensions map[Dimension]DimensionValue
}

// ReduceSeries applies the level of detail to every fact. Dimensions with a
// nil or absent lod are dropped, as are dimensions the fact is not tagged
// with. Display metadata is copied when it describes exactly the reduced
// path.
func ReduceSeries(series []*Series, lod map[Dimension]*int) []*ReducedSeries {
	res := make([]*ReducedSeries, 0, len(series))
	for _, s := range series {
		dims := make(map[Dimension]DimensionValue, len(lod))
		for dim, depth := range lod {
			if depth == nil {
				continue
			}
			path, ok := s.Dimensions[dim]
			if !ok {
				continue
			}
			reduced := path.ApplyLod(*depth)
			val := DimensionValue{Path: reduced.String()}
			if meta := s.DimensionMetadata; meta != nil && meta.Dimension == dim && meta.Path.Equal(reduced) {
				val.Icon = meta.Icon
				val.Label = meta.Label
				val.Description = meta.Description
			}
			dims[dim] = val
		}
		res = append(res, &ReducedSeries{
			Series:     s,
			Dimensions: dims,
		})
	}
	return res
}

// Discretizer buckets reduced facts into the calendar periods of a query
// window
type Discretizer struct {
	granularity Granularity
	periods     []Period
}

func NewDiscretizer(start, end time.Time, granularity Granularity) (*Discretizer, error) {
	periods, err := Periods(start, end, granularity)
	if err != nil {
		return nil, err
	}
	return &Discretizer{
		granularity: granularity,
		periods:     periods,
	}, nil
}

func (d *Discretizer) Periods() []Period {
	return d.periods
}

type rowAccumulator struct {
	row    *Row
	values []float64
	sums   []float64
}

// Discretize emits one result per period in chronological order, including
// periods no fact intersects
func (d *Discretizer) Discretize(facts []*ReducedSeries) GroupedPeriodResults {
	results := make(GroupedPeriodResults, 0, len(d.periods))
	for _, period := range d.periods {
		groups := make(map[string]*rowAccumulator)
		order := make([]string, 0)

		for _, fact := range facts {
			amount, ok := d.Attribute(fact.Series, period)
			if !ok {
				continue
			}

			key := groupKey(fact)
			acc, found := groups[key]
			if !found {
				acc = &rowAccumulator{
					row: &Row{
						Dimensions: copyDimensions(fact.Dimensions),
						Metric:     fact.Series.Metric,
						Unit:       fact.Series.Unit,
					},
				}
				groups[key] = acc
				order = append(order, key)
			} else {
				fillMetadata(acc.row.Dimensions, fact.Dimensions)
			}
			acc.values = append(acc.values, amount)
			acc.sums = append(acc.sums, fact.Series.Value)
		}

		periodResult := &GroupedPeriodResult{
			Period: period.Label,
			Start:  period.Start,
			End:    period.End,
			Rows:   make([]*Row, 0, len(order)),
		}
		for _, key := range order {
			acc := groups[key]
			acc.row.Value = floats.Sum(acc.values)
			acc.row.Sum = floats.Sum(acc.sums)
			periodResult.Rows = append(periodResult.Rows, acc.row)
		}
		periodResult.SortRows()
		results = append(results, periodResult)
	}
	return results
}

// Attribute returns the amount of the fact attributed to the period and
// whether the fact intersects the period at all
func (d *Discretizer) Attribute(s *Series, period Period) (float64, bool) {
	interval := s.Interval()
	periodInterval := &Interval{Begin: period.Start, End: period.End}
	if !periodInterval.Overlaps(interval) {
		return 0, false
	}
	if interval.IsInstant() {
		return s.Value, true
	}

	switch s.SpreadFunction() {
	case FnDssVest:
		return s.Value / float64(d.granularity.SpannedPeriods(interval)), true
	default:
		return s.Value, true
	}
}

func copyDimensions(dims map[Dimension]DimensionValue) map[Dimension]DimensionValue {
	res := make(map[Dimension]DimensionValue, len(dims))
	for k, v := range dims {
		res[k] = v
	}
	return res
}

func groupKey(fact *ReducedSeries) string {
	return string(fact.Series.Metric) + "|" + fact.Series.Unit + "|" + dimensionKey(fact.Dimensions)
}

// fillMetadata copies display hints into a group whose first member had
// none; the first non-empty value wins
func fillMetadata(dst, src map[Dimension]DimensionValue) {
	for dim, val := range src {
		cur := dst[dim]
		if cur.Icon == "" && cur.Label == "" && cur.Description == "" && (val.Icon != "" || val.Label != "" || val.Description != "") {
			dst[dim] = val
		}
	}
}
