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


package cmd

import (
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/penny-vault/atlas-analytics/analytics"
	"github.com/penny-vault/atlas-analytics/handler"
)

var _ = Describe("Definitions", func() {
	var dir string

	BeforeEach(func() {
		var err error
		dir, err = os.MkdirTemp("", "atlas-cmd")
		Expect(err).To(BeNil())
		DeferCleanup(os.RemoveAll, dir)
	})

	write := func(name, contents string) string {
		fn := filepath.Join(dir, name)
		Expect(os.WriteFile(fn, []byte(contents), 0o600)).To(Succeed())
		return fn
	}

	It("reads a TOML query", func() {
		fn := write("query.toml", `
start = 2023-01-01T00:00:00Z
end = 2024-01-01T00:00:00Z
granularity = "quarter"
metrics = ["Actuals", "Budget"]
currency = "DAI"

[lod]
budget = 3

[select]
budget = ["atlas/legacy"]
`)
		var query analytics.Query
		Expect(readDefinition(fn, &query)).To(Succeed())
		Expect(query.Start.Equal(time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC))).To(BeTrue())
		Expect(query.Granularity).To(Equal(analytics.GranularityQuarter))
		Expect(query.Metrics).To(Equal([]analytics.Metric{analytics.MetricActuals, analytics.MetricBudget}))
		Expect(*query.Lod[analytics.DimensionBudget]).To(Equal(3))
		Expect(query.Select[analytics.DimensionBudget]).To(HaveLen(1))
		Expect(query.Select[analytics.DimensionBudget][0].String()).To(Equal("atlas/legacy"))
	})

	It("reads a JSON conversion plan", func() {
		fn := write("plan.json", `{
			"query": {"start": "2023-01-01T00:00:00Z", "end": "2023-02-01T00:00:00Z", "granularity": "month"},
			"conversion": {"targetCurrency": "DAI", "conversions": [{"currency": "MKR", "metric": "DailyMkrPriceChange"}]}
		}`)
		var plan handler.MultiCurrencyRequest
		Expect(readDefinition(fn, &plan)).To(Succeed())
		Expect(plan.Conversion.TargetCurrency).To(Equal("DAI"))
		Expect(plan.Conversion.Conversions).To(HaveLen(1))
		Expect(plan.Conversion.Conversions[0].Metric).To(Equal(analytics.MetricDailyMkrPriceChange))
	})

	It("reports parse failures with the file name", func() {
		fn := write("broken.toml", "granularity = ")
		var query analytics.Query
		err := readDefinition(fn, &query)
		Expect(err).ToNot(BeNil())
		Expect(err.Error()).To(ContainSubstring("broken.toml"))
	})
})

var _ = Describe("Tables", func() {
	It("renders one line per row", func() {
		results := analytics.GroupedPeriodResults{
			{
				Period: "2023/01",
				Rows: []*analytics.Row{
					{
						Dimensions: map[analytics.Dimension]analytics.DimensionValue{
							analytics.DimensionBudget: {Path: "atlas/legacy"},
						},
						Metric: analytics.MetricActuals,
						Unit:   "DAI",
						Value:  150,
						Sum:    analytics.UnusedSum,
					},
				},
			},
		}
		out := ResultsTable(results)
		Expect(out).To(ContainSubstring("2023/01"))
		Expect(out).To(ContainSubstring("atlas/legacy"))
		Expect(out).To(ContainSubstring("150.0000"))
	})

	It("marks empty results", func() {
		Expect(ResultsTable(analytics.GroupedPeriodResults{})).To(Equal("<NO DATA>"))
	})

	It("renders variance totals", func() {
		report := &analytics.VarianceReport{
			ActualMetric:    analytics.MetricActuals,
			ReferenceMetric: analytics.MetricBudget,
			Rows: []*analytics.VarianceRow{
				{Period: "total", Unit: "DAI", Actual: 150, Reference: 100, Difference: 50, Ratio: 0.5},
			},
			Actual:     150,
			Reference:  100,
			Difference: 50,
			Ratio:      0.5,
		}
		out := VarianceTable(report)
		Expect(out).To(ContainSubstring("50.00%"))
	})
})
