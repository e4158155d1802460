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


package analytics_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/penny-vault/atlas-analytics/analytics"
)

var _ = Describe("Discretizer", func() {
	var (
		quarterBudget func(fn analytics.SpreadFn) *analytics.Series
	)

	BeforeEach(func() {
		quarterBudget = func(fn analytics.SpreadFn) *analytics.Series {
			return &analytics.Series{
				Start:  date(2021, 1, 1),
				End:    datePtr(2021, 4, 1),
				Source: analytics.MustParsePath("atlas/budgets/ses"),
				Unit:   "DAI",
				Value:  300,
				Metric: analytics.MetricBudget,
				Fn:     fn,
				Dimensions: map[analytics.Dimension]analytics.Path{
					analytics.DimensionBudget: analytics.MustParsePath("atlas/legacy/core-units/SES"),
				},
			}
		}
	})

	Context("spreading interval facts", func() {
		It("attributes the full value of a Single fact to every period", func() {
			d, err := analytics.NewDiscretizer(date(2021, 1, 1), date(2021, 4, 1), analytics.GranularityMonth)
			Expect(err).To(BeNil())

			results := d.Discretize(analytics.ReduceSeries([]*analytics.Series{quarterBudget(analytics.FnSingle)}, nil))
			Expect(results).To(HaveLen(3))
			for _, period := range results {
				Expect(period.Rows).To(HaveLen(1))
				Expect(period.Rows[0].Value).To(Equal(300.0))
				Expect(period.Rows[0].Sum).To(Equal(300.0))
			}
		})

		It("amortizes a DssVest fact over the periods it spans", func() {
			d, err := analytics.NewDiscretizer(date(2021, 1, 1), date(2021, 4, 1), analytics.GranularityMonth)
			Expect(err).To(BeNil())

			results := d.Discretize(analytics.ReduceSeries([]*analytics.Series{quarterBudget(analytics.FnDssVest)}, nil))
			Expect(results).To(HaveLen(3))
			for _, period := range results {
				Expect(period.Rows).To(HaveLen(1))
				Expect(period.Rows[0].Value).To(BeNumerically("~", 100.0, 1e-9))
				Expect(period.Rows[0].Sum).To(Equal(300.0))
			}
		})

		It("divides by the spanned periods even when the window is shorter", func() {
			d, err := analytics.NewDiscretizer(date(2021, 2, 1), date(2021, 3, 1), analytics.GranularityMonth)
			Expect(err).To(BeNil())

			results := d.Discretize(analytics.ReduceSeries([]*analytics.Series{quarterBudget(analytics.FnDssVest)}, nil))
			Expect(results).To(HaveLen(1))
			Expect(results[0].Rows[0].Value).To(BeNumerically("~", 100.0, 1e-9))
		})

		It("keeps the full value when the total granularity is used", func() {
			d, err := analytics.NewDiscretizer(date(2021, 1, 1), date(2022, 1, 1), analytics.GranularityTotal)
			Expect(err).To(BeNil())

			results := d.Discretize(analytics.ReduceSeries([]*analytics.Series{quarterBudget(analytics.FnDssVest)}, nil))
			Expect(results).To(HaveLen(1))
			Expect(results[0].Period).To(Equal("total"))
			Expect(results[0].Rows[0].Value).To(Equal(300.0))
		})
	})

	Context("point facts", func() {
		It("contributes to the single period containing it", func() {
			d, err := analytics.NewDiscretizer(date(2021, 1, 1), date(2021, 4, 1), analytics.GranularityMonth)
			Expect(err).To(BeNil())

			fact := &analytics.Series{
				Start:  date(2021, 2, 1),
				Source: analytics.MustParsePath("atlas/expenses"),
				Unit:   "DAI",
				Value:  42,
				Metric: analytics.MetricActuals,
			}
			results := d.Discretize(analytics.ReduceSeries([]*analytics.Series{fact}, nil))
			Expect(results).To(HaveLen(3))
			Expect(results[0].Rows).To(BeEmpty())
			Expect(results[1].Rows).To(HaveLen(1))
			Expect(results[1].Rows[0].Value).To(Equal(42.0))
			Expect(results[2].Rows).To(BeEmpty())
		})

		It("attributes a fact with end equal to start as a point", func() {
			d, err := analytics.NewDiscretizer(date(2021, 1, 1), date(2021, 3, 1), analytics.GranularityMonth)
			Expect(err).To(BeNil())

			fact := &analytics.Series{
				Start:  date(2021, 1, 10),
				End:    datePtr(2021, 1, 10),
				Source: analytics.MustParsePath("atlas/expenses"),
				Unit:   "DAI",
				Value:  5,
				Metric: analytics.MetricActuals,
			}
			results := d.Discretize(analytics.ReduceSeries([]*analytics.Series{fact}, nil))
			Expect(results[0].Rows).To(HaveLen(1))
			Expect(results[1].Rows).To(BeEmpty())
		})
	})

	Context("grouping", func() {
		var facts []*analytics.Series

		BeforeEach(func() {
			facts = []*analytics.Series{
				{
					Start:  date(2021, 1, 5),
					Source: analytics.MustParsePath("atlas/expenses/ses"),
					Unit:   "DAI",
					Value:  10,
					Metric: analytics.MetricActuals,
					Dimensions: map[analytics.Dimension]analytics.Path{
						analytics.DimensionBudget:   analytics.MustParsePath("atlas/legacy/core-units/SES"),
						analytics.DimensionCategory: analytics.MustParsePath("atlas/headcount/salaries"),
					},
				},
				{
					Start:  date(2021, 1, 6),
					Source: analytics.MustParsePath("atlas/expenses/grow"),
					Unit:   "DAI",
					Value:  20,
					Metric: analytics.MetricActuals,
					Dimensions: map[analytics.Dimension]analytics.Path{
						analytics.DimensionBudget:   analytics.MustParsePath("atlas/legacy/core-units/GRO"),
						analytics.DimensionCategory: analytics.MustParsePath("atlas/headcount/benefits"),
					},
					DimensionMetadata: &analytics.DimensionMetadata{
						Dimension: analytics.DimensionBudget,
						Path:      analytics.MustParsePath("atlas/legacy"),
						Label:     "Legacy",
					},
				},
				{
					Start:  date(2021, 1, 7),
					Source: analytics.MustParsePath("atlas/expenses/grow"),
					Unit:   "MKR",
					Value:  1,
					Metric: analytics.MetricActuals,
					Dimensions: map[analytics.Dimension]analytics.Path{
						analytics.DimensionBudget: analytics.MustParsePath("atlas/legacy/core-units/GRO"),
					},
				},
			}
		})

		It("merges facts whose reduced dimensions collide", func() {
			d, err := analytics.NewDiscretizer(date(2021, 1, 1), date(2021, 2, 1), analytics.GranularityMonth)
			Expect(err).To(BeNil())

			results := d.Discretize(analytics.ReduceSeries(facts[:2], map[analytics.Dimension]*int{
				analytics.DimensionBudget: lod(2),
			}))
			Expect(results).To(HaveLen(1))
			Expect(results[0].Rows).To(HaveLen(1))

			row := results[0].Rows[0]
			Expect(row.Value).To(Equal(30.0))
			Expect(row.Dimensions).To(HaveLen(1))
			Expect(row.Dimensions[analytics.DimensionBudget].Path).To(Equal("atlas/legacy"))
			Expect(row.Dimensions[analytics.DimensionBudget].Label).To(Equal("Legacy"))
		})

		It("keeps facts apart when their reduced dimensions differ", func() {
			d, err := analytics.NewDiscretizer(date(2021, 1, 1), date(2021, 2, 1), analytics.GranularityMonth)
			Expect(err).To(BeNil())

			results := d.Discretize(analytics.ReduceSeries(facts[:2], map[analytics.Dimension]*int{
				analytics.DimensionBudget: lod(4),
			}))
			Expect(results[0].Rows).To(HaveLen(2))
			Expect(results[0].Rows[0].Dimensions[analytics.DimensionBudget].Path).To(Equal("atlas/legacy/core-units/GRO"))
			Expect(results[0].Rows[0].Dimensions[analytics.DimensionBudget].Label).To(Equal(""))
			Expect(results[0].Rows[1].Dimensions[analytics.DimensionBudget].Path).To(Equal("atlas/legacy/core-units/SES"))
		})

		It("never mixes units in one row", func() {
			d, err := analytics.NewDiscretizer(date(2021, 1, 1), date(2021, 2, 1), analytics.GranularityMonth)
			Expect(err).To(BeNil())

			results := d.Discretize(analytics.ReduceSeries(facts, map[analytics.Dimension]*int{
				analytics.DimensionBudget: lod(1),
			}))
			Expect(results[0].Rows).To(HaveLen(2))
			Expect(results[0].Rows[0].Unit).To(Equal("DAI"))
			Expect(results[0].Rows[0].Value).To(Equal(30.0))
			Expect(results[0].Rows[1].Unit).To(Equal("MKR"))
			Expect(results[0].Rows[1].Value).To(Equal(1.0))
		})

		It("drops dimensions without a level of detail", func() {
			reduced := analytics.ReduceSeries(facts[:1], map[analytics.Dimension]*int{
				analytics.DimensionBudget:   lod(1),
				analytics.DimensionCategory: nil,
			})
			Expect(reduced).To(HaveLen(1))
			Expect(reduced[0].Dimensions).To(HaveLen(1))
			Expect(reduced[0].Dimensions).To(HaveKey(analytics.DimensionBudget))
		})

		It("rolls everything into one row without a level of detail", func() {
			d, err := analytics.NewDiscretizer(date(2021, 1, 1), date(2021, 2, 1), analytics.GranularityMonth)
			Expect(err).To(BeNil())

			results := d.Discretize(analytics.ReduceSeries(facts[:2], nil))
			Expect(results[0].Rows).To(HaveLen(1))
			Expect(results[0].Rows[0].Dimensions).To(BeEmpty())
			Expect(results[0].Rows[0].Value).To(Equal(30.0))
		})

		It("keeps the total across levels of detail", func() {
			d, err := analytics.NewDiscretizer(date(2021, 1, 1), date(2021, 2, 1), analytics.GranularityMonth)
			Expect(err).To(BeNil())

			for n := 0; n <= 4; n++ {
				results := d.Discretize(analytics.ReduceSeries(facts[:2], map[analytics.Dimension]*int{
					analytics.DimensionBudget: lod(n),
				}))
				total := 0.0
				for _, row := range results[0].Rows {
					total += row.Value
				}
				Expect(total).To(Equal(30.0))
			}
		})
	})

	It("emits periods no fact intersects", func() {
		d, err := analytics.NewDiscretizer(date(2021, 1, 1), date(2022, 1, 1), analytics.GranularityQuarter)
		Expect(err).To(BeNil())
		results := d.Discretize(nil)
		Expect(results).To(HaveLen(4))
		for _, period := range results {
			Expect(period.Rows).To(BeEmpty())
		}
		Expect(results[0].Period).To(Equal("2021/Q1"))
		Expect(results[3].Period).To(Equal("2021/Q4"))
	})
})
