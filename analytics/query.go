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
	"time"

	"github.com/rs/zerolog"
)

// Query is a rollup request. Select filters facts by dimension prefix (OR
// within a dimension, AND across dimensions); Lod controls how deep each
// dimension path is kept in the output, and a nil or absent entry drops the
// dimension from the output rows.
type Query struct {
	Start       time.Time            `json:"start" toml:"start"`
	End         time.Time            `json:"end" toml:"end"`
	Granularity Granularity          `json:"granularity" toml:"granularity"`
	Lod         map[Dimension]*int   `json:"lod" toml:"lod"`
	Select      map[Dimension][]Path `json:"select" toml:"select"`
	Metrics     []Metric             `json:"metrics" toml:"metrics"`
	Currency    string               `json:"currency" toml:"currency"`
}

func (q *Query) Validate() error {
	if err := q.Granularity.Valid(); err != nil {
		return err
	}
	if q.Start.After(q.End) {
		return fmt.Errorf("%w: start %s, end %s", ErrInvalidTimeRange, q.Start.Format(time.RFC3339), q.End.Format(time.RFC3339))
	}
	return nil
}

// SeriesQuery extracts the store filter from the query
func (q *Query) SeriesQuery() *SeriesQuery {
	return &SeriesQuery{
		Start:    q.Start,
		End:      q.End,
		Select:   q.Select,
		Metrics:  q.Metrics,
		Currency: q.Currency,
	}
}

func (q *Query) MarshalZerologObject(e *zerolog.Event) {
	metrics := make([]string, len(q.Metrics))
	for idx, m := range q.Metrics {
		metrics[idx] = string(m)
	}
	e.Time("Start", q.Start).Time("End", q.End).Str("Granularity", string(q.Granularity)).Strs("Metrics", metrics).Str("Currency", q.Currency)
}

// SeriesQuery is the filter handed to a store. Empty Currency and empty
// Metrics are unconstrained; dimensions without prefixes in Select are not
// filtered.
type SeriesQuery struct {
	Start    time.Time
	End      time.Time
	Select   map[Dimension][]Path
	Metrics  []Metric
	Currency string
}

// Matches reports whether the fact satisfies every constraint of the query.
// Adapters that cannot push the filter down to their storage use it directly.
func (sq *SeriesQuery) Matches(s *Series) bool {
	return sq.MatchesWindow(s) && sq.MatchesUnit(s) && sq.MatchesMetric(s) && sq.MatchesDimensions(s)
}

// MatchesWindow checks the fact intersects [Start, End). A point fact
// matches when Start <= t < End.
func (sq *SeriesQuery) MatchesWindow(s *Series) bool {
	window := &Interval{Begin: sq.Start, End: sq.End}
	if window.IsInstant() {
		return false
	}
	return window.Overlaps(s.Interval())
}

func (sq *SeriesQuery) MatchesUnit(s *Series) bool {
	return sq.Currency == "" || s.Unit == sq.Currency
}

func (sq *SeriesQuery) MatchesMetric(s *Series) bool {
	if len(sq.Metrics) == 0 {
		return true
	}
	for _, m := range sq.Metrics {
		if s.Metric == m {
			return true
		}
	}
	return false
}

func (sq *SeriesQuery) MatchesDimensions(s *Series) bool {
	for dim, prefixes := range sq.Select {
		if len(prefixes) == 0 {
			continue
		}
		path, ok := s.Dimensions[dim]
		if !ok {
			return false
		}
		matched := false
		for _, prefix := range prefixes {
			if path.StartsWith(prefix) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	return true
}

// ExpressionInputs selects the facts the operator is applied to
type ExpressionInputs struct {
	Metrics  []Metric `json:"metrics" toml:"metrics"`
	Currency string   `json:"currency" toml:"currency"`
}

// ExpressionOperand selects the per-period scalar (or vector) the inputs are
// combined with
type ExpressionOperand struct {
	Metric   Metric `json:"metric" toml:"metric"`
	Currency string `json:"currency" toml:"currency"`
	UseSum   bool   `json:"useSum" toml:"useSum"`
}

type Expression struct {
	Inputs         ExpressionInputs  `json:"inputs" toml:"inputs"`
	Operator       string            `json:"operator" toml:"operator"`
	Operand        ExpressionOperand `json:"operand" toml:"operand"`
	ResultCurrency string            `json:"resultCurrency" toml:"resultCurrency"`
}

// CompoundQuery derives its result by combining two base query results
// through an algebra operator
type CompoundQuery struct {
	Start       time.Time            `json:"start" toml:"start"`
	End         time.Time            `json:"end" toml:"end"`
	Granularity Granularity          `json:"granularity" toml:"granularity"`
	Lod         map[Dimension]*int   `json:"lod" toml:"lod"`
	Select      map[Dimension][]Path `json:"select" toml:"select"`
	Expression  Expression           `json:"expression" toml:"expression"`
}

// OperandSelection is the fixed dimension filter used for operand queries:
// price data published under the atlas root.
var OperandSelection = []Path{MustParsePath("atlas")}

// InputsQuery is the base query evaluated for the left-hand side of the
// expression
func (cq *CompoundQuery) InputsQuery() *Query {
	return &Query{
		Start:       cq.Start,
		End:         cq.End,
		Granularity: cq.Granularity,
		Lod:         cq.Lod,
		Select:      cq.Select,
		Metrics:     cq.Expression.Inputs.Metrics,
		Currency:    cq.Expression.Inputs.Currency,
	}
}

// OperandQuery is the base query evaluated for the right-hand side of the
// expression. It always rolls price data up to the first path segment.
func (cq *CompoundQuery) OperandQuery() *Query {
	lod := 1
	return &Query{
		Start:       cq.Start,
		End:         cq.End,
		Granularity: cq.Granularity,
		Lod:         map[Dimension]*int{DimensionPriceData: &lod},
		Select:      map[Dimension][]Path{DimensionPriceData: OperandSelection},
		Metrics:     []Metric{cq.Expression.Operand.Metric},
		Currency:    cq.Expression.Operand.Currency,
	}
}

type CurrencyConversion struct {
	Metric   Metric `json:"metric" toml:"metric"`
	Currency string `json:"currency" toml:"currency"`
}

// MultiCurrencyConversion re-expresses facts recorded in several currencies
// in TargetCurrency. Each conversion prices facts recorded in Currency with
// the per-period sum of Metric.
type MultiCurrencyConversion struct {
	TargetCurrency string               `json:"targetCurrency" toml:"targetCurrency"`
	Conversions    []CurrencyConversion `json:"conversions" toml:"conversions"`
}

func (mcc *MultiCurrencyConversion) Validate() error {
	if mcc.TargetCurrency == "" {
		return ErrNoConversions
	}
	return nil
}
