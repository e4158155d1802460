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

package handler

import (
	"context"
	"errors"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/penny-vault/atlas-analytics/analytics"
	"github.com/penny-vault/atlas-analytics/common"
	"github.com/penny-vault/atlas-analytics/observability/opentelemetry"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
)

// MultiCurrencyRequest is the body of POST /multi-currency
type MultiCurrencyRequest struct {
	Query      analytics.Query                   `json:"query" toml:"query"`
	Conversion analytics.MultiCurrencyConversion `json:"conversion" toml:"conversion"`
}

// VarianceRequest is the body of POST /variance
type VarianceRequest struct {
	Query     analytics.Query  `json:"query" toml:"query"`
	Actual    analytics.Metric `json:"actual" toml:"actual"`
	Reference analytics.Metric `json:"reference" toml:"reference"`
}

// Analytics exposes an analytics engine over HTTP
type Analytics struct {
	engine *analytics.Engine
}

func NewAnalytics(engine *analytics.Engine) *Analytics {
	return &Analytics{
		engine: engine,
	}
}

// toFiberError maps malformed input to 400 and everything else to 500
func toFiberError(err error) error {
	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return fiberErr
	}
	if analytics.IsInputError(err) {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	return fiber.ErrInternalServerError
}

func decodeBody(c *fiber.Ctx, dst interface{}) error {
	if err := json.Unmarshal(c.Body(), dst); err != nil {
		log.Warn().Err(err).Str("Route", c.Route().Path).Msg("could not decode request body")
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	return nil
}

// respond serves the cached response for the request body when present,
// otherwise it computes, caches and returns it
func respond(c *fiber.Ctx, namespace string, compute func(ctx context.Context) (interface{}, error)) error {
	ctx, span := otel.Tracer(opentelemetry.Name).Start(c.UserContext(), namespace)
	defer span.End()
	span.SetAttributes(opentelemetry.SpanAttributesFromFiber(c)...)

	subLog := log.With().Str("Endpoint", namespace).Logger()
	key := common.CacheKey(namespace, c.Body())

	if cached, found, err := common.CacheGet(ctx, key); err == nil && found {
		c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
		c.Set("X-Cache", "HIT")
		return c.Send(cached)
	} else if err != nil && !errors.Is(err, common.ErrCacheNotConfigured) {
		subLog.Warn().Err(err).Msg("cache lookup failed")
	}

	res, err := compute(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "request failed")
		if !analytics.IsInputError(err) {
			subLog.Error().Stack().Err(err).Msg("could not compute response")
		}
		return toFiberError(err)
	}

	body, err := json.Marshal(res)
	if err != nil {
		span.RecordError(err)
		subLog.Error().Err(err).Msg("could not encode response")
		return fiber.ErrInternalServerError
	}

	if err := common.CacheSet(ctx, key, body); err != nil && !errors.Is(err, common.ErrCacheNotConfigured) {
		subLog.Warn().Err(err).Msg("could not cache response")
	}

	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	c.Set("X-Cache", "MISS")
	return c.Send(body)
}

// Query handles POST /query
func (a *Analytics) Query(c *fiber.Ctx) error {
	var query analytics.Query
	if err := decodeBody(c, &query); err != nil {
		return err
	}
	return respond(c, "analytics.query", func(ctx context.Context) (interface{}, error) {
		return a.engine.Execute(ctx, &query)
	})
}

// Compound handles POST /compound
func (a *Analytics) Compound(c *fiber.Ctx) error {
	var compound analytics.CompoundQuery
	if err := decodeBody(c, &compound); err != nil {
		return err
	}
	return respond(c, "analytics.compound", func(ctx context.Context) (interface{}, error) {
		return a.engine.ExecuteCompound(ctx, &compound)
	})
}

// MultiCurrency handles POST /multi-currency
func (a *Analytics) MultiCurrency(c *fiber.Ctx) error {
	var req MultiCurrencyRequest
	if err := decodeBody(c, &req); err != nil {
		return err
	}
	return respond(c, "analytics.multi-currency", func(ctx context.Context) (interface{}, error) {
		return a.engine.ExecuteMultiCurrency(ctx, &req.Query, &req.Conversion)
	})
}

// Variance handles POST /variance
func (a *Analytics) Variance(c *fiber.Ctx) error {
	var req VarianceRequest
	if err := decodeBody(c, &req); err != nil {
		return err
	}
	if req.Actual == "" || req.Reference == "" {
		return fiber.NewError(fiber.StatusBadRequest, "actual and reference metrics are required")
	}
	return respond(c, "analytics.variance", func(ctx context.Context) (interface{}, error) {
		return a.engine.ExecuteVariance(ctx, &req.Query, req.Actual, req.Reference)
	})
}

// Dimensions handles GET /dimensions
func (a *Analytics) Dimensions(c *fiber.Ctx) error {
	return respond(c, "analytics.dimensions", func(ctx context.Context) (interface{}, error) {
		return a.engine.Dimensions(ctx)
	})
}

// Metrics handles GET /metrics
func (a *Analytics) Metrics(c *fiber.Ctx) error {
	return respond(c, "analytics.metrics", func(ctx context.Context) (interface{}, error) {
		return a.engine.Metrics(ctx)
	})
}

// Currencies handles GET /currencies
func (a *Analytics) Currencies(c *fiber.Ctx) error {
	return respond(c, "analytics.currencies", func(ctx context.Context) (interface{}, error) {
		return a.engine.Currencies(ctx)
	})
}
