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

	"github.com/penny-vault/atlas-analytics/observability/opentelemetry"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Engine answers rollup queries over the facts of a SeriesReader. It holds
// no mutable state, so calls may run concurrently.
type Engine struct {
	store SeriesReader
}

func NewEngine(store SeriesReader) *Engine {
	return &Engine{
		store: store,
	}
}

// Execute fetches the matching facts, reduces their dimensions to the
// requested level of detail and buckets them into periods
func (e *Engine) Execute(ctx context.Context, query *Query) (GroupedPeriodResults, error) {
	ctx, span := otel.Tracer(opentelemetry.Name).Start(ctx, "analytics.Execute")
	defer span.End()

	subLog := log.With().Object("Query", query).Logger()

	if err := query.Validate(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid query")
		subLog.Warn().Err(err).Msg("rejecting invalid query")
		return nil, err
	}

	discretizer, err := NewDiscretizer(query.Start, query.End, query.Granularity)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "could not generate periods")
		return nil, err
	}

	series, err := e.store.GetMatchingSeries(ctx, query.SeriesQuery())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "store query failed")
		subLog.Error().Stack().Err(err).Msg("could not fetch matching series")
		return nil, err
	}

	span.SetAttributes(attribute.Int("series.count", len(series)))
	subLog.Debug().Int("NumSeries", len(series)).Msg("discretizing series")

	return discretizer.Discretize(ReduceSeries(series, query.Lod)), nil
}

// ExecuteCompound evaluates the expression's inputs and operand queries and
// combines them with the expression operator
func (e *Engine) ExecuteCompound(ctx context.Context, compound *CompoundQuery) (GroupedPeriodResults, error) {
	ctx, span := otel.Tracer(opentelemetry.Name).Start(ctx, "analytics.ExecuteCompound")
	defer span.End()

	op, err := ParseOperator(compound.Expression.Operator)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "unknown operator")
		log.Warn().Err(err).Str("Operator", compound.Expression.Operator).Msg("rejecting compound query")
		return nil, err
	}
	span.SetAttributes(attribute.String("operator", op.String()))

	inputs, err := e.Execute(ctx, compound.InputsQuery())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "inputs query failed")
		return nil, err
	}

	operand, err := e.Execute(ctx, compound.OperandQuery())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "operand query failed")
		return nil, err
	}

	switch typed := op.(type) {
	case VectorOperator:
		return ApplyVector(inputs, operand, typed, compound.Expression.ResultCurrency)
	case ScalarOperator:
		return ApplyScalar(inputs, operand, typed, compound.Expression.Operand.UseSum, compound.Expression.ResultCurrency)
	default:
		return nil, ErrUnknownOperator
	}
}

// Dimensions proxies the store catalog
func (e *Engine) Dimensions(ctx context.Context) ([]*DimensionCatalog, error) {
	ctx, span := otel.Tracer(opentelemetry.Name).Start(ctx, "analytics.Dimensions")
	defer span.End()
	return e.store.Dimensions(ctx)
}

func (e *Engine) Metrics(ctx context.Context) ([]Metric, error) {
	ctx, span := otel.Tracer(opentelemetry.Name).Start(ctx, "analytics.Metrics")
	defer span.End()
	return e.store.Metrics(ctx)
}

func (e *Engine) Currencies(ctx context.Context) ([]string, error) {
	ctx, span := otel.Tracer(opentelemetry.Name).Start(ctx, "analytics.Currencies")
	defer span.End()
	return e.store.Currencies(ctx)
}
