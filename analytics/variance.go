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
	"context"
	"math"
	"time"

	"github.com/penny-vault/atlas-analytics/observability/opentelemetry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"gonum.org/v1/gonum/floats"
)

// VarianceRow compares two metrics for one period and dimension group
type VarianceRow struct {
	Period     string                       `json:"period"`
	Start      time.Time                    `json:"start"`
	End        time.Time                    `json:"end"`
	Dimensions map[Dimension]DimensionValue `json:"dimensions"`
	Unit       string                       `json:"unit"`
	Actual     float64                      `json:"actual"`
	Reference  float64                      `json:"reference"`
	Difference float64                      `json:"difference"`
	Ratio      float64                      `json:"ratio"`
}

type VarianceReport struct {
	ActualMetric    Metric         `json:"actualMetric"`
	ReferenceMetric Metric         `json:"referenceMetric"`
	Rows            []*VarianceRow `json:"rows"`
	Actual          float64        `json:"actual"`
	Reference       float64        `json:"reference"`
	Difference      float64        `json:"difference"`
	Ratio           float64        `json:"ratio"`
}

// VarianceRatio is abs(actual)/abs(reference) - 1, or 0 when either side is
// zero
func VarianceRatio(actual, reference float64) float64 {
	if actual == 0 || reference == 0 {
		return 0
	}
	return math.Abs(actual)/math.Abs(reference) - 1
}

// ComputeVariance pairs the rows of two metrics that share a period, reduced
// dimensions and unit. A side without a row counts as zero.
func ComputeVariance(results GroupedPeriodResults, actual, reference Metric) *VarianceReport {
	actualSet := filterMetric(results, actual, actual)
	referenceSet := filterMetric(results, reference, actual)

	// both sides carry the same metric name so rows line up by dimensions and unit
	diff, _ := ApplyVector(actualSet, referenceSet, VectorSubtract, "")

	report := &VarianceReport{
		ActualMetric:    actual,
		ReferenceMetric: reference,
		Rows:            make([]*VarianceRow, 0),
	}

	actuals := make([]float64, 0)
	references := make([]float64, 0)
	for _, period := range diff {
		actualPeriod := actualSet.Period(period.Period)
		referencePeriod := referenceSet.Period(period.Period)
		for _, row := range period.Rows {
			vr := &VarianceRow{
				Period:     period.Period,
				Start:      period.Start,
				End:        period.End,
				Dimensions: row.Dimensions,
				Unit:       row.Unit,
				Difference: row.Value,
			}
			if actualPeriod != nil {
				if match := actualPeriod.UnitRow(actual, row.Unit, row.Dimensions); match != nil {
					vr.Actual = match.Value
				}
			}
			if referencePeriod != nil {
				if match := referencePeriod.UnitRow(actual, row.Unit, row.Dimensions); match != nil {
					vr.Reference = match.Value
				}
			}
			vr.Ratio = VarianceRatio(vr.Actual, vr.Reference)
			actuals = append(actuals, vr.Actual)
			references = append(references, vr.Reference)
			report.Rows = append(report.Rows, vr)
		}
	}

	report.Actual = floats.Sum(actuals)
	report.Reference = floats.Sum(references)
	report.Difference = report.Actual - report.Reference
	report.Ratio = VarianceRatio(report.Actual, report.Reference)

	return report
}

// filterMetric keeps the rows of one metric, renaming them to as
func filterMetric(results GroupedPeriodResults, metric, as Metric) GroupedPeriodResults {
	res := make(GroupedPeriodResults, 0, len(results))
	for _, p := range results {
		out := &GroupedPeriodResult{
			Period: p.Period,
			Start:  p.Start,
			End:    p.End,
			Rows:   make([]*Row, 0),
		}
		for _, row := range p.Rows {
			if row.Metric != metric {
				continue
			}
			cp := row.clone()
			cp.Metric = as
			out.Rows = append(out.Rows, cp)
		}
		res = append(res, out)
	}
	return res
}

// ExecuteVariance runs query for both metrics and compares them
func (e *Engine) ExecuteVariance(ctx context.Context, query *Query, actual, reference Metric) (*VarianceReport, error) {
	ctx, span := otel.Tracer(opentelemetry.Name).Start(ctx, "analytics.ExecuteVariance")
	defer span.End()

	q := *query
	q.Metrics = []Metric{actual, reference}

	results, err := e.Execute(ctx, &q)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "variance query failed")
		return nil, err
	}

	return ComputeVariance(results, actual, reference), nil
}
