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
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/penny-vault/atlas-analytics/analytics"
	"github.com/penny-vault/atlas-analytics/data"
)

var _ = Describe("Variance", func() {
	DescribeTable("ratio",
		func(actual, reference, expected float64) {
			Expect(analytics.VarianceRatio(actual, reference)).To(BeNumerically("~", expected, 1e-9))
		},
		Entry("overspend", 150.0, 100.0, 0.5),
		Entry("underspend", 50.0, 100.0, -0.5),
		Entry("signs are ignored", -150.0, 100.0, 0.5),
		Entry("zero actual", 0.0, 100.0, 0.0),
		Entry("zero reference", 100.0, 0.0, 0.0),
	)

	It("pairs rows of the two metrics", func() {
		results := monthlyResults(
			[]*analytics.Row{
				{Dimensions: budgetDims("atlas/ses"), Metric: analytics.MetricActuals, Unit: "DAI", Value: 150, Sum: 150},
				{Dimensions: budgetDims("atlas/ses"), Metric: analytics.MetricPaymentsOnChain, Unit: "DAI", Value: 100, Sum: 100},
				{Dimensions: budgetDims("atlas/gro"), Metric: analytics.MetricPaymentsOnChain, Unit: "DAI", Value: 40, Sum: 40},
			},
		)

		report := analytics.ComputeVariance(results, analytics.MetricActuals, analytics.MetricPaymentsOnChain)
		Expect(report.Rows).To(HaveLen(2))

		// rows are ordered by dimension key
		gro := report.Rows[0]
		Expect(gro.Dimensions[analytics.DimensionBudget].Path).To(Equal("atlas/gro"))
		Expect(gro.Actual).To(Equal(0.0))
		Expect(gro.Reference).To(Equal(40.0))
		Expect(gro.Difference).To(Equal(-40.0))
		Expect(gro.Ratio).To(Equal(0.0))

		ses := report.Rows[1]
		Expect(ses.Actual).To(Equal(150.0))
		Expect(ses.Reference).To(Equal(100.0))
		Expect(ses.Difference).To(Equal(50.0))
		Expect(ses.Ratio).To(BeNumerically("~", 0.5, 1e-9))

		Expect(report.Actual).To(Equal(150.0))
		Expect(report.Reference).To(Equal(140.0))
		Expect(report.Difference).To(Equal(10.0))
	})

	It("compares each unit separately", func() {
		results := monthlyResults(
			[]*analytics.Row{
				{Dimensions: budgetDims("atlas/ses"), Metric: analytics.MetricActuals, Unit: "DAI", Value: 100, Sum: 100},
				{Dimensions: budgetDims("atlas/ses"), Metric: analytics.MetricActuals, Unit: "MKR", Value: 2, Sum: 2},
				{Dimensions: budgetDims("atlas/ses"), Metric: analytics.MetricPaymentsOnChain, Unit: "DAI", Value: 80, Sum: 80},
				{Dimensions: budgetDims("atlas/ses"), Metric: analytics.MetricPaymentsOnChain, Unit: "MKR", Value: 1, Sum: 1},
			},
		)

		report := analytics.ComputeVariance(results, analytics.MetricActuals, analytics.MetricPaymentsOnChain)
		Expect(report.Rows).To(HaveLen(2))

		dai := report.Rows[0]
		Expect(dai.Unit).To(Equal("DAI"))
		Expect(dai.Actual).To(Equal(100.0))
		Expect(dai.Reference).To(Equal(80.0))
		Expect(dai.Difference).To(Equal(20.0))

		mkr := report.Rows[1]
		Expect(mkr.Unit).To(Equal("MKR"))
		Expect(mkr.Actual).To(Equal(2.0))
		Expect(mkr.Reference).To(Equal(1.0))
		Expect(mkr.Difference).To(Equal(1.0))
		Expect(mkr.Ratio).To(BeNumerically("~", 1.0, 1e-9))
	})

	It("runs against a store", func() {
		ctx := context.Background()
		store := data.NewMemoryStore()
		_, err := store.AddSeriesValues(ctx, []*analytics.Series{
			expenseFact("atlas/legacy/core-units/SES", "DAI", 120, 1),
			{
				Start:  date(2023, 1, 20),
				Source: analytics.MustParsePath("atlas/payments/ses"),
				Unit:   "DAI",
				Value:  100,
				Metric: analytics.MetricPaymentsOnChain,
				Dimensions: map[analytics.Dimension]analytics.Path{
					analytics.DimensionBudget: analytics.MustParsePath("atlas/legacy/core-units/SES"),
				},
			},
		})
		Expect(err).To(BeNil())

		report, err := analytics.NewEngine(store).ExecuteVariance(ctx, &analytics.Query{
			Start:       date(2023, 1, 1),
			End:         date(2024, 1, 1),
			Granularity: analytics.GranularityTotal,
			Lod:         map[analytics.Dimension]*int{analytics.DimensionBudget: lod(3)},
		}, analytics.MetricActuals, analytics.MetricPaymentsOnChain)
		Expect(err).To(BeNil())
		Expect(report.Rows).To(HaveLen(1))
		Expect(report.Rows[0].Period).To(Equal("total"))
		Expect(report.Rows[0].Dimensions[analytics.DimensionBudget].Path).To(Equal("atlas/legacy/core-units"))
		Expect(report.Rows[0].Ratio).To(BeNumerically("~", 0.2, 1e-9))
	})
})
