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

package data

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/jackc/pgsql"
	"github.com/jackc/pgx/v4"
	"github.com/penny-vault/atlas-analytics/analytics"
	"github.com/penny-vault/atlas-analytics/data/database"
	"github.com/penny-vault/atlas-analytics/observability/opentelemetry"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var seriesColumns = []string{
	"id",
	"source",
	"start_ts",
	"end_ts",
	"metric",
	"unit",
	"value",
	"fn",
	"dimensions",
	"dimension_metadata",
}

// PgStore keeps series in the analytics_series table of a PostgreSQL
// database. It uses the pool configured in the database package.
type PgStore struct {
}

func NewPgStore() *PgStore {
	return &PgStore{}
}

// escapeLike escapes the LIKE wildcards in s
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// BuildSeriesQuery translates a series query into SQL. Dimension keys are
// passed as bind parameters so arbitrary dimension names are safe.
func BuildSeriesQuery(query *analytics.SeriesQuery) (string, []interface{}) {
	stmt := &pgsql.SelectStatement{}
	for _, col := range seriesColumns {
		stmt.Select(pgx.Identifier{col}.Sanitize())
	}
	stmt.From(pgx.Identifier{database.SeriesTable}.Sanitize())

	stmt.Where("(((end_ts IS NULL OR end_ts <= start_ts) AND start_ts >= ? AND start_ts < ?) OR (end_ts > start_ts AND start_ts < ? AND end_ts > ?))",
		query.Start, query.End, query.End, query.Start)

	if query.Currency != "" {
		stmt.Where("unit = ?", query.Currency)
	}

	if len(query.Metrics) > 0 {
		placeholders := make([]string, len(query.Metrics))
		metrics := make([]interface{}, len(query.Metrics))
		for idx, m := range query.Metrics {
			placeholders[idx] = "?"
			metrics[idx] = string(m)
		}
		stmt.Where(fmt.Sprintf("metric IN (%s)", strings.Join(placeholders, ", ")), metrics...)
	}

	for dim, prefixes := range query.Select {
		if len(prefixes) == 0 {
			continue
		}
		clauses := make([]string, 0, len(prefixes))
		args := make([]interface{}, 0, len(prefixes)*4)
		for _, prefix := range prefixes {
			if prefix.IsEmpty() {
				clauses = append(clauses, "dimensions->>? IS NOT NULL")
				args = append(args, string(dim))
				continue
			}
			clauses = append(clauses, "(dimensions->>? = ? OR dimensions->>? LIKE ?)")
			args = append(args, string(dim), prefix.String(), string(dim), escapeLike(prefix.String())+"/%")
		}
		stmt.Where(fmt.Sprintf("(%s)", strings.Join(clauses, " OR ")), args...)
	}

	stmt.Order("start_ts, id")

	return pgsql.Build(stmt)
}

func (p *PgStore) GetMatchingSeries(ctx context.Context, query *analytics.SeriesQuery) ([]*analytics.Series, error) {
	ctx, span := otel.Tracer(opentelemetry.Name).Start(ctx, "pgstore.GetMatchingSeries")
	defer span.End()

	subLog := log.With().Time("Start", query.Start).Time("End", query.End).Str("Currency", query.Currency).Logger()

	sql, args := BuildSeriesQuery(query)

	trx, err := database.Trx(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "could not begin transaction")
		subLog.Error().Stack().Err(err).Msg("could not get transaction when querying series")
		return nil, err
	}

	rows, err := trx.Query(ctx, sql, args...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "database query failed")
		subLog.Error().Stack().Err(err).Str("Query", sql).Msg("could not query series")
		if err := trx.Rollback(ctx); err != nil {
			subLog.Error().Stack().Err(err).Msg("could not rollback transaction")
		}
		return nil, err
	}

	res := make([]*analytics.Series, 0)
	for rows.Next() {
		s, err := scanSeries(rows)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "scan failed")
			subLog.Error().Stack().Err(err).Msg("could not scan series")
			rows.Close()
			if err := trx.Rollback(ctx); err != nil {
				subLog.Error().Stack().Err(err).Msg("could not rollback transaction")
			}
			return nil, err
		}
		res = append(res, s)
	}

	if err := rows.Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "reading rows failed")
		subLog.Error().Stack().Err(err).Msg("could not read series rows")
		if err := trx.Rollback(ctx); err != nil {
			subLog.Error().Stack().Err(err).Msg("could not rollback transaction")
		}
		return nil, err
	}

	if err := trx.Commit(ctx); err != nil {
		subLog.Warn().Stack().Err(err).Msg("could not commit transaction")
	}

	span.SetAttributes(attribute.Int("series.count", len(res)))
	return res, nil
}

func scanSeries(rows pgx.Rows) (*analytics.Series, error) {
	var (
		id, source, metric, unit, fn string
		start                        time.Time
		end                          *time.Time
		value                        float64
		dimensions, metadata         []byte
	)

	if err := rows.Scan(&id, &source, &start, &end, &metric, &unit, &value, &fn, &dimensions, &metadata); err != nil {
		return nil, err
	}

	sourcePath, err := analytics.ParsePath(source)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrCorruptSeries, err.Error())
	}

	s := &analytics.Series{
		ID:         id,
		Start:      start,
		End:        end,
		Source:     sourcePath,
		Unit:       unit,
		Value:      value,
		Metric:     analytics.Metric(metric),
		Fn:         analytics.SpreadFn(fn),
		Dimensions: make(map[analytics.Dimension]analytics.Path),
	}

	if len(dimensions) > 0 {
		if err := json.Unmarshal(dimensions, &s.Dimensions); err != nil {
			return nil, fmt.Errorf("%w: %s", ErrCorruptSeries, err.Error())
		}
	}

	if len(metadata) > 0 && string(metadata) != "null" {
		s.DimensionMetadata = &analytics.DimensionMetadata{}
		if err := json.Unmarshal(metadata, s.DimensionMetadata); err != nil {
			return nil, fmt.Errorf("%w: %s", ErrCorruptSeries, err.Error())
		}
	}

	return s, nil
}

func (p *PgStore) ClearSeriesBySource(ctx context.Context, source analytics.Path, recursive bool) (int64, error) {
	ctx, span := otel.Tracer(opentelemetry.Name).Start(ctx, "pgstore.ClearSeriesBySource")
	defer span.End()

	subLog := log.With().Str("Source", source.String()).Bool("Recursive", recursive).Logger()

	var sql string
	var args []interface{}
	switch {
	case recursive && source.IsEmpty():
		sql = fmt.Sprintf("DELETE FROM %s", pgx.Identifier{database.SeriesTable}.Sanitize())
	case recursive:
		sql = fmt.Sprintf("DELETE FROM %s WHERE source = $1 OR source LIKE $2", pgx.Identifier{database.SeriesTable}.Sanitize())
		args = []interface{}{source.String(), escapeLike(source.String()) + "/%"}
	default:
		sql = fmt.Sprintf("DELETE FROM %s WHERE source = $1", pgx.Identifier{database.SeriesTable}.Sanitize())
		args = []interface{}{source.String()}
	}

	trx, err := database.Trx(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "could not begin transaction")
		subLog.Error().Stack().Err(err).Msg("could not get transaction when clearing series")
		return 0, err
	}

	tag, err := trx.Exec(ctx, sql, args...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "delete failed")
		subLog.Error().Stack().Err(err).Str("Query", sql).Msg("could not clear series")
		if err := trx.Rollback(ctx); err != nil {
			subLog.Error().Stack().Err(err).Msg("could not rollback transaction")
		}
		return 0, err
	}

	if err := trx.Commit(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "commit failed")
		subLog.Error().Stack().Err(err).Msg("could not commit transaction")
		return 0, err
	}

	subLog.Debug().Int64("Deleted", tag.RowsAffected()).Msg("cleared series")
	return tag.RowsAffected(), nil
}

func (p *PgStore) AddSeriesValues(ctx context.Context, series []*analytics.Series) ([]*analytics.Series, error) {
	ctx, span := otel.Tracer(opentelemetry.Name).Start(ctx, "pgstore.AddSeriesValues")
	defer span.End()

	subLog := log.With().Int("NumSeries", len(series)).Logger()

	sql := fmt.Sprintf("INSERT INTO %s (%s) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)",
		pgx.Identifier{database.SeriesTable}.Sanitize(), strings.Join(seriesColumns, ", "))

	trx, err := database.Trx(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "could not begin transaction")
		subLog.Error().Stack().Err(err).Msg("could not get transaction when inserting series")
		return nil, err
	}

	inserted := make([]*analytics.Series, 0, len(series))
	for _, s := range series {
		cp := *s
		if cp.ID == "" {
			cp.ID = uuid.New().String()
		}

		args, err := seriesArgs(&cp)
		if err == nil {
			_, err = trx.Exec(ctx, sql, args...)
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "insert failed")
			subLog.Error().Stack().Err(err).Object("Series", &cp).Msg("could not insert series")
			if err := trx.Rollback(ctx); err != nil {
				subLog.Error().Stack().Err(err).Msg("could not rollback transaction")
			}
			return nil, err
		}
		inserted = append(inserted, &cp)
	}

	if err := trx.Commit(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "commit failed")
		subLog.Error().Stack().Err(err).Msg("could not commit transaction")
		return nil, err
	}

	return inserted, nil
}

func seriesArgs(s *analytics.Series) ([]interface{}, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}

	dimensions, err := json.Marshal(s.Dimensions)
	if err != nil {
		return nil, err
	}

	var metadata []byte
	if s.DimensionMetadata != nil {
		if metadata, err = json.Marshal(s.DimensionMetadata); err != nil {
			return nil, err
		}
	}

	return []interface{}{
		s.ID,
		s.Source.String(),
		s.Start,
		s.End,
		string(s.Metric),
		s.Unit,
		s.Value,
		string(s.SpreadFunction()),
		dimensions,
		metadata,
	}, nil
}

// distinctStrings runs a single column query and returns its values
func distinctStrings(ctx context.Context, sql string) ([]string, error) {
	subLog := log.With().Str("Query", sql).Logger()

	trx, err := database.Trx(ctx)
	if err != nil {
		subLog.Error().Stack().Err(err).Msg("could not get transaction")
		return nil, err
	}

	rows, err := trx.Query(ctx, sql)
	if err != nil {
		subLog.Error().Stack().Err(err).Msg("catalog query failed")
		if err := trx.Rollback(ctx); err != nil {
			subLog.Error().Stack().Err(err).Msg("could not rollback transaction")
		}
		return nil, err
	}

	res := make([]string, 0)
	for rows.Next() {
		var val string
		if err := rows.Scan(&val); err != nil {
			subLog.Error().Stack().Err(err).Msg("could not scan catalog value")
			rows.Close()
			if err := trx.Rollback(ctx); err != nil {
				subLog.Error().Stack().Err(err).Msg("could not rollback transaction")
			}
			return nil, err
		}
		res = append(res, val)
	}

	if err := trx.Commit(ctx); err != nil {
		subLog.Warn().Stack().Err(err).Msg("could not commit transaction")
	}
	return res, nil
}

func (p *PgStore) Metrics(ctx context.Context) ([]analytics.Metric, error) {
	ctx, span := otel.Tracer(opentelemetry.Name).Start(ctx, "pgstore.Metrics")
	defer span.End()

	vals, err := distinctStrings(ctx, fmt.Sprintf("SELECT DISTINCT metric FROM %s ORDER BY metric", pgx.Identifier{database.SeriesTable}.Sanitize()))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "metrics query failed")
		return nil, err
	}

	res := make([]analytics.Metric, len(vals))
	for idx, v := range vals {
		res[idx] = analytics.Metric(v)
	}
	return res, nil
}

func (p *PgStore) Currencies(ctx context.Context) ([]string, error) {
	ctx, span := otel.Tracer(opentelemetry.Name).Start(ctx, "pgstore.Currencies")
	defer span.End()

	res, err := distinctStrings(ctx, fmt.Sprintf("SELECT DISTINCT unit FROM %s ORDER BY unit", pgx.Identifier{database.SeriesTable}.Sanitize()))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "currencies query failed")
		return nil, err
	}
	return res, nil
}

func (p *PgStore) Dimensions(ctx context.Context) ([]*analytics.DimensionCatalog, error) {
	ctx, span := otel.Tracer(opentelemetry.Name).Start(ctx, "pgstore.Dimensions")
	defer span.End()

	sql := fmt.Sprintf(`SELECT DISTINCT d.key, d.value,
		COALESCE(CASE WHEN dimension_metadata->>'dimension' = d.key AND dimension_metadata->>'path' = d.value THEN dimension_metadata->>'icon' END, ''),
		COALESCE(CASE WHEN dimension_metadata->>'dimension' = d.key AND dimension_metadata->>'path' = d.value THEN dimension_metadata->>'label' END, ''),
		COALESCE(CASE WHEN dimension_metadata->>'dimension' = d.key AND dimension_metadata->>'path' = d.value THEN dimension_metadata->>'description' END, '')
	FROM %s, jsonb_each_text(dimensions) d`, pgx.Identifier{database.SeriesTable}.Sanitize())

	trx, err := database.Trx(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "could not begin transaction")
		log.Error().Stack().Err(err).Msg("could not get transaction when listing dimensions")
		return nil, err
	}

	rows, err := trx.Query(ctx, sql)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "dimensions query failed")
		log.Error().Stack().Err(err).Str("Query", sql).Msg("could not list dimensions")
		if err := trx.Rollback(ctx); err != nil {
			log.Error().Stack().Err(err).Msg("could not rollback transaction")
		}
		return nil, err
	}

	c := newCatalog()
	for rows.Next() {
		var dim string
		var val analytics.DimensionValue
		if err := rows.Scan(&dim, &val.Path, &val.Icon, &val.Label, &val.Description); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "scan failed")
			log.Error().Stack().Err(err).Msg("could not scan dimension")
			rows.Close()
			if err := trx.Rollback(ctx); err != nil {
				log.Error().Stack().Err(err).Msg("could not rollback transaction")
			}
			return nil, err
		}
		c.addDimensionValue(analytics.Dimension(dim), val)
	}

	if err := trx.Commit(ctx); err != nil {
		log.Warn().Stack().Err(err).Msg("could not commit transaction")
	}

	return c.Dimensions(), nil
}

// Close releases the database pool. Transactions still open at this point
// were leaked and are logged.
func (p *PgStore) Close() error {
	if n := database.NumOpenTransactions(); n > 0 {
		log.Warn().Int("NumOpen", n).Msg("closing database with open transactions")
		database.LogOpenTransactions()
	}
	database.Close()
	return nil
}
