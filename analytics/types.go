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

// Dimension names a hierarchical axis a series is tagged with. The known
// dimensions are declared as constants; any other value is accepted so new
// dimensions can be introduced by loaders without a code change.
type Dimension string

const (
	DimensionBudget          Dimension = "budget"
	DimensionCategory        Dimension = "category"
	DimensionWallet          Dimension = "wallet"
	DimensionProject         Dimension = "project"
	DimensionReport          Dimension = "report"
	DimensionPriceData       Dimension = "priceData"
	DimensionTransactionType Dimension = "transactionType"
)

var knownDimensions = map[Dimension]bool{
	DimensionBudget:          true,
	DimensionCategory:        true,
	DimensionWallet:          true,
	DimensionProject:         true,
	DimensionReport:          true,
	DimensionPriceData:       true,
	DimensionTransactionType: true,
}

// IsKnown reports whether the dimension is one of the declared constants
func (d Dimension) IsKnown() bool {
	return knownDimensions[d]
}

type Metric string

const (
	MetricActuals                  Metric = "Actuals"
	MetricForecast                 Metric = "Forecast"
	MetricBudget                   Metric = "Budget"
	MetricPaymentsOnChain          Metric = "PaymentsOnChain"
	MetricPaymentsOffChainIncluded Metric = "PaymentsOffChainIncluded"
	MetricProtocolNetOutflow       Metric = "ProtocolNetOutflow"
	MetricContributors             Metric = "Contributors"
	MetricFTEs                     Metric = "FTEs"
	MetricDailyMkrPriceChange      Metric = "DailyMkrPriceChange"
)

// SpreadFn controls how an interval fact is attributed to the periods it
// overlaps.
type SpreadFn string

const (
	// FnSingle attributes the full value to every intersecting period
	FnSingle SpreadFn = "Single"
	// FnDssVest amortizes the value linearly over the calendar periods the
	// fact spans
	FnDssVest SpreadFn = "DssVest"
)

func ParseSpreadFn(s string) (SpreadFn, error) {
	switch SpreadFn(s) {
	case FnSingle, "":
		return FnSingle, nil
	case FnDssVest:
		return FnDssVest, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownSpreadFn, s)
	}
}

// DimensionMetadata carries display hints for one dimension value of a
// series. It never takes part in arithmetic.
type DimensionMetadata struct {
	Dimension   Dimension `json:"dimension"`
	Path        Path      `json:"path"`
	Icon        string    `json:"icon,omitempty"`
	Label       string    `json:"label,omitempty"`
	Description string    `json:"description,omitempty"`
}

// Series is a single immutable financial fact
type Series struct {
	ID                string             `json:"id,omitempty"`
	Start             time.Time          `json:"start"`
	End               *time.Time         `json:"end,omitempty"`
	Source            Path               `json:"source"`
	Unit              string             `json:"unit"`
	Value             float64            `json:"value"`
	Metric            Metric             `json:"metric"`
	Fn                SpreadFn           `json:"fn,omitempty"`
	Dimensions        map[Dimension]Path `json:"dimensions"`
	DimensionMetadata *DimensionMetadata `json:"dimensionMetadata,omitempty"`
}

// IsPoint reports whether the series is a point-in-time fact. A series
// whose end equals its start is treated as a point.
func (s *Series) IsPoint() bool {
	return s.End == nil || !s.End.After(s.Start)
}

// Interval returns the half-open window [Start, End) covered by the series.
// Point facts return an interval with Begin == End.
func (s *Series) Interval() *Interval {
	if s.IsPoint() {
		return &Interval{Begin: s.Start, End: s.Start}
	}
	return &Interval{Begin: s.Start, End: *s.End}
}

// SpreadFunction returns the normalized spread function of the series
func (s *Series) SpreadFunction() SpreadFn {
	if s.Fn == "" {
		return FnSingle
	}
	return s.Fn
}

// Validate checks the invariants every stored fact must satisfy
func (s *Series) Validate() error {
	if s.Metric == "" {
		return fmt.Errorf("%w: metric is required", ErrInvalidSeries)
	}
	if s.Unit == "" {
		return fmt.Errorf("%w: unit is required", ErrInvalidSeries)
	}
	if s.Source.IsEmpty() {
		return fmt.Errorf("%w: source is required", ErrInvalidSeries)
	}
	if s.Start.IsZero() {
		return fmt.Errorf("%w: start is required", ErrInvalidSeries)
	}
	if s.End != nil {
		if err := (&Interval{Begin: s.Start, End: *s.End}).Valid(); err != nil {
			return fmt.Errorf("%w: end %s is before start %s", ErrInvalidSeries, s.End.Format(time.RFC3339), s.Start.Format(time.RFC3339))
		}
	}
	if _, err := ParseSpreadFn(string(s.Fn)); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidSeries, err.Error())
	}
	return nil
}

func (s *Series) MarshalZerologObject(e *zerolog.Event) {
	e.Str("Source", s.Source.String()).Str("Metric", string(s.Metric)).Str("Unit", s.Unit).Time("Start", s.Start).Float64("Value", s.Value)
}

// DimensionValue is one distinct value of a dimension as reported by a
// store catalog
type DimensionValue struct {
	Path        string `json:"path"`
	Icon        string `json:"icon,omitempty"`
	Label       string `json:"label,omitempty"`
	Description string `json:"description,omitempty"`
}

// DimensionCatalog lists the values observed for one dimension
type DimensionCatalog struct {
	Name   Dimension        `json:"name"`
	Values []DimensionValue `json:"values"`
}
