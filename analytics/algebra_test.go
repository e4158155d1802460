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

func budgetDims(path string) map[analytics.Dimension]analytics.DimensionValue {
	return map[analytics.Dimension]analytics.DimensionValue{
		analytics.DimensionBudget: {Path: path},
	}
}

func monthlyResults(rows ...[]*analytics.Row) analytics.GroupedPeriodResults {
	results := make(analytics.GroupedPeriodResults, 0, len(rows))
	for idx, r := range rows {
		start := date(2023, 1, 1).AddDate(0, idx, 0)
		results = append(results, &analytics.GroupedPeriodResult{
			Period: analytics.GranularityMonth.Label(start),
			Start:  start,
			End:    start.AddDate(0, 1, 0),
			Rows:   r,
		})
	}
	return results
}

var _ = Describe("Query algebra", func() {
	DescribeTable("parsing operators",
		func(name string, expected analytics.Operator) {
			op, err := analytics.ParseOperator(name)
			Expect(err).To(BeNil())
			Expect(op).To(Equal(expected))
			Expect(op.String()).To(Equal(name))
		},
		Entry("VectorAdd", "VectorAdd", analytics.VectorAdd),
		Entry("VectorSubtract", "VectorSubtract", analytics.VectorSubtract),
		Entry("ScalarMultiply", "ScalarMultiply", analytics.ScalarMultiply),
		Entry("ScalarDivide", "ScalarDivide", analytics.ScalarDivide),
	)

	It("rejects unknown operators", func() {
		_, err := analytics.ParseOperator("VectorMultiply")
		Expect(err).To(MatchError(analytics.ErrUnknownOperator))
	})

	Context("vector operations", func() {
		var a, b analytics.GroupedPeriodResults

		BeforeEach(func() {
			a = monthlyResults(
				[]*analytics.Row{
					{Dimensions: budgetDims("atlas/ses"), Metric: analytics.MetricActuals, Unit: "DAI", Value: 100, Sum: 100},
					{Dimensions: budgetDims("atlas/gro"), Metric: analytics.MetricActuals, Unit: "DAI", Value: 50, Sum: 50},
				},
				[]*analytics.Row{},
			)
			b = monthlyResults(
				[]*analytics.Row{
					{Dimensions: budgetDims("atlas/ses"), Metric: analytics.MetricActuals, Unit: "DAI", Value: 30, Sum: 30},
				},
				[]*analytics.Row{
					{Dimensions: budgetDims("atlas/ses"), Metric: analytics.MetricActuals, Unit: "DAI", Value: 7, Sum: 7},
				},
			)
		})

		It("adds matching rows and combines missing rows with zero", func() {
			res, err := analytics.ApplyVector(a, b, analytics.VectorAdd, "")
			Expect(err).To(BeNil())
			Expect(res).To(HaveLen(2))

			jan := res.Period("2023/01")
			Expect(jan.Rows).To(HaveLen(2))
			Expect(jan.Row(analytics.MetricActuals, budgetDims("atlas/ses")).Value).To(Equal(130.0))
			Expect(jan.Row(analytics.MetricActuals, budgetDims("atlas/ses")).Sum).To(Equal(130.0))
			Expect(jan.Row(analytics.MetricActuals, budgetDims("atlas/gro")).Value).To(Equal(50.0))

			feb := res.Period("2023/02")
			Expect(feb.Rows).To(HaveLen(1))
			Expect(feb.Rows[0].Value).To(Equal(7.0))
		})

		It("subtracts the right hand side", func() {
			res, err := analytics.ApplyVector(a, b, analytics.VectorSubtract, "")
			Expect(err).To(BeNil())
			Expect(res.Period("2023/01").Row(analytics.MetricActuals, budgetDims("atlas/ses")).Value).To(Equal(70.0))
			Expect(res.Period("2023/02").Rows[0].Value).To(Equal(-7.0))
		})

		It("treats an empty result as the identity of VectorAdd", func() {
			empty := monthlyResults([]*analytics.Row{}, []*analytics.Row{})
			res, err := analytics.ApplyVector(a, empty, analytics.VectorAdd, "")
			Expect(err).To(BeNil())
			Expect(res).To(HaveLen(2))
			Expect(res.Period("2023/01").Rows).To(HaveLen(2))
			Expect(res.Period("2023/01").Row(analytics.MetricActuals, budgetDims("atlas/ses")).Value).To(Equal(100.0))
			Expect(res.Period("2023/01").Row(analytics.MetricActuals, budgetDims("atlas/gro")).Value).To(Equal(50.0))
			Expect(res.Period("2023/02").Rows).To(BeEmpty())
		})

		It("keeps units apart without a result currency", func() {
			left := monthlyResults([]*analytics.Row{
				{Dimensions: budgetDims("atlas/ses"), Metric: analytics.MetricActuals, Unit: "DAI", Value: 100, Sum: 100},
			})
			right := monthlyResults([]*analytics.Row{
				{Dimensions: budgetDims("atlas/ses"), Metric: analytics.MetricActuals, Unit: "DAI", Value: 10, Sum: 10},
				{Dimensions: budgetDims("atlas/ses"), Metric: analytics.MetricActuals, Unit: "MKR", Value: 1, Sum: 1},
			})

			res, err := analytics.ApplyVector(left, right, analytics.VectorAdd, "")
			Expect(err).To(BeNil())
			jan := res.Period("2023/01")
			Expect(jan.Rows).To(HaveLen(2))
			Expect(jan.UnitRow(analytics.MetricActuals, "DAI", budgetDims("atlas/ses")).Value).To(Equal(110.0))
			Expect(jan.UnitRow(analytics.MetricActuals, "MKR", budgetDims("atlas/ses")).Value).To(Equal(1.0))
		})

		It("sums every unit of a side into the result currency", func() {
			left := monthlyResults([]*analytics.Row{
				{Dimensions: budgetDims("atlas/ses"), Metric: analytics.MetricActuals, Unit: "DAI", Value: 100, Sum: 100},
			})
			right := monthlyResults([]*analytics.Row{
				{Dimensions: budgetDims("atlas/ses"), Metric: analytics.MetricActuals, Unit: "DAI", Value: 10, Sum: 10},
				{Dimensions: budgetDims("atlas/ses"), Metric: analytics.MetricActuals, Unit: "USDC", Value: 1, Sum: 1},
			})

			res, err := analytics.ApplyVector(left, right, analytics.VectorSubtract, "DAI")
			Expect(err).To(BeNil())
			jan := res.Period("2023/01")
			Expect(jan.Rows).To(HaveLen(1))
			Expect(jan.Rows[0].Unit).To(Equal("DAI"))
			Expect(jan.Rows[0].Value).To(Equal(89.0))
			Expect(jan.Rows[0].Sum).To(Equal(89.0))
		})

		It("relabels rows with the result currency", func() {
			res, err := analytics.ApplyVector(a, b, analytics.VectorAdd, "USD")
			Expect(err).To(BeNil())
			for _, period := range res {
				for _, row := range period.Rows {
					Expect(row.Unit).To(Equal("USD"))
				}
			}
		})

		It("does not modify its inputs", func() {
			_, err := analytics.ApplyVector(a, b, analytics.VectorAdd, "USD")
			Expect(err).To(BeNil())
			Expect(a[0].Rows[0].Value).To(Equal(100.0))
			Expect(a[0].Rows[0].Unit).To(Equal("DAI"))
			Expect(b[0].Rows[0].Value).To(Equal(30.0))
		})

		It("propagates the unused sum marker", func() {
			b[0].Rows[0].Sum = analytics.UnusedSum
			res, err := analytics.ApplyVector(a, b, analytics.VectorAdd, "")
			Expect(err).To(BeNil())
			Expect(res.Period("2023/01").Row(analytics.MetricActuals, budgetDims("atlas/ses")).Sum).To(Equal(analytics.UnusedSum))
		})

		It("keeps periods ordered chronologically", func() {
			res, err := analytics.ApplyVector(b[1:], a[:1], analytics.VectorAdd, "")
			Expect(err).To(BeNil())
			Expect(res).To(HaveLen(2))
			Expect(res[0].Period).To(Equal("2023/01"))
			Expect(res[1].Period).To(Equal("2023/02"))
		})

		It("refuses a scalar operator", func() {
			_, err := analytics.ApplyVector(a, b, analytics.ScalarMultiply, "")
			Expect(err).To(MatchError(analytics.ErrOperatorMismatch))
		})
	})

	Context("scalar operations", func() {
		var inputs, operand analytics.GroupedPeriodResults

		BeforeEach(func() {
			inputs = monthlyResults(
				[]*analytics.Row{
					{Dimensions: budgetDims("atlas/ses"), Metric: analytics.MetricActuals, Unit: "MKR", Value: 10, Sum: 10},
				},
				[]*analytics.Row{
					{Dimensions: budgetDims("atlas/ses"), Metric: analytics.MetricActuals, Unit: "MKR", Value: 4, Sum: 4},
				},
			)
			operand = monthlyResults(
				[]*analytics.Row{
					{Metric: analytics.MetricDailyMkrPriceChange, Unit: "DAI", Value: 2, Sum: 2000},
				},
				[]*analytics.Row{},
			)
		})

		It("multiplies by the operand value", func() {
			res, err := analytics.ApplyScalar(inputs, operand, analytics.ScalarMultiply, false, "DAI")
			Expect(err).To(BeNil())
			row := res.Period("2023/01").Rows[0]
			Expect(row.Value).To(Equal(20.0))
			Expect(row.Unit).To(Equal("DAI"))
			Expect(row.Sum).To(Equal(analytics.UnusedSum))
			Expect(row.OperandMissing).To(BeFalse())
		})

		It("multiplies by the operand sum when requested", func() {
			res, err := analytics.ApplyScalar(inputs, operand, analytics.ScalarMultiply, true, "DAI")
			Expect(err).To(BeNil())
			Expect(res.Period("2023/01").Rows[0].Value).To(Equal(20000.0))
		})

		It("flags rows of periods without an operand", func() {
			res, err := analytics.ApplyScalar(inputs, operand, analytics.ScalarMultiply, true, "DAI")
			Expect(err).To(BeNil())
			row := res.Period("2023/02").Rows[0]
			Expect(row.Value).To(Equal(0.0))
			Expect(row.OperandMissing).To(BeTrue())
			Expect(res.CheckComplete()).To(MatchError(analytics.ErrMissingOperand))
		})

		It("divides and flags a zero divisor", func() {
			operand[0].Rows[0].Value = 0
			operand[1].Rows = append(operand[1].Rows, &analytics.Row{Metric: analytics.MetricDailyMkrPriceChange, Unit: "DAI", Value: 2, Sum: 2})

			res, err := analytics.ApplyScalar(inputs, operand, analytics.ScalarDivide, false, "")
			Expect(err).To(BeNil())
			Expect(res.Period("2023/01").Rows[0].OperandMissing).To(BeTrue())
			Expect(res.Period("2023/01").Rows[0].Unit).To(Equal("MKR"))
			Expect(res.Period("2023/02").Rows[0].Value).To(Equal(2.0))
		})

		It("refuses a vector operator", func() {
			_, err := analytics.ApplyScalar(inputs, operand, analytics.VectorAdd, false, "")
			Expect(err).To(MatchError(analytics.ErrOperatorMismatch))
		})
	})
})
