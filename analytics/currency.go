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

// ExecuteMultiCurrency runs query in the target currency and then, for each
// conversion in order, prices the facts recorded in the conversion currency
// with the per-period sum of the conversion metric and adds them to the
// running result
func (e *Engine) ExecuteMultiCurrency(ctx context.Context, query *Query, conversion *MultiCurrencyConversion) (GroupedPeriodResults, error) {
	ctx, span := otel.Tracer(opentelemetry.Name).Start(ctx, "analytics.ExecuteMultiCurrency")
	defer span.End()

	if err := conversion.Validate(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid conversion")
		return nil, err
	}

	span.SetAttributes(
		attribute.String("currency.target", conversion.TargetCurrency),
		attribute.Int("currency.conversions", len(conversion.Conversions)),
	)

	baseQuery := *query
	baseQuery.Currency = conversion.TargetCurrency

	result, err := e.Execute(ctx, &baseQuery)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "base query failed")
		return nil, err
	}

	for _, conv := range conversion.Conversions {
		subLog := log.With().Str("Currency", conv.Currency).Str("Metric", string(conv.Metric)).Str("TargetCurrency", conversion.TargetCurrency).Logger()
		subLog.Debug().Msg("applying currency conversion")

		compound := &CompoundQuery{
			Start:       query.Start,
			End:         query.End,
			Granularity: query.Granularity,
			Lod:         query.Lod,
			Select:      query.Select,
			Expression: Expression{
				Inputs: ExpressionInputs{
					Metrics:  baseQuery.Metrics,
					Currency: conv.Currency,
				},
				Operator: ScalarMultiply.String(),
				Operand: ExpressionOperand{
					Metric:   conv.Metric,
					Currency: conversion.TargetCurrency,
					UseSum:   true,
				},
				ResultCurrency: conversion.TargetCurrency,
			},
		}

		converted, err := e.ExecuteCompound(ctx, compound)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "conversion failed")
			subLog.Error().Err(err).Msg("could not convert currency")
			return nil, err
		}

		result, err = ApplyVector(result, converted, VectorAdd, conversion.TargetCurrency)
		if err != nil {
			return nil, err
		}
	}

	return result, nil
}
