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


package data_test

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/pashagolub/pgxmock"
	"github.com/penny-vault/atlas-analytics/analytics"
	"github.com/penny-vault/atlas-analytics/data"
	"github.com/penny-vault/atlas-analytics/data/database"
	"github.com/penny-vault/atlas-analytics/pgxmockhelper"
	"github.com/spf13/viper"
)

var _ = Describe("PgStore", func() {
	var (
		ctx    context.Context
		dbPool pgxmock.PgxConnIface
		store  *data.PgStore
		err    error
	)

	BeforeEach(func() {
		ctx = context.Background()
		dbPool, err = pgxmock.NewConn()
		Expect(err).To(BeNil())
		database.SetPool(dbPool)
		store = data.NewPgStore()
	})

	AfterEach(func() {
		Expect(dbPool.ExpectationsWereMet()).To(Succeed())
		Expect(database.NumOpenTransactions()).To(Equal(0))
	})

	Describe("building the series query", func() {
		It("selects from the series table in chronological order", func() {
			sql, args := data.BuildSeriesQuery(&analytics.SeriesQuery{
				Start: date(2021, 1, 1),
				End:   date(2021, 4, 1),
			})
			Expect(sql).To(ContainSubstring(`from "analytics_series"`))
			Expect(sql).To(ContainSubstring("order by start_ts, id"))
			Expect(args).To(HaveLen(4))
			Expect(args[0]).To(Equal(date(2021, 1, 1)))
			Expect(args[1]).To(Equal(date(2021, 4, 1)))
		})

		It("binds every filter as a parameter", func() {
			sql, args := data.BuildSeriesQuery(&analytics.SeriesQuery{
				Start:    date(2021, 1, 1),
				End:      date(2021, 4, 1),
				Currency: "DAI",
				Metrics:  []analytics.Metric{analytics.MetricActuals, analytics.MetricBudget},
				Select: map[analytics.Dimension][]analytics.Path{
					analytics.DimensionBudget: {analytics.MustParsePath("atlas/core_units")},
				},
			})
			Expect(sql).ToNot(ContainSubstring("?"))
			Expect(sql).To(ContainSubstring("$11"))
			Expect(sql).ToNot(ContainSubstring("atlas/core_units"))
			Expect(args).To(HaveLen(11))
			Expect(args[4]).To(Equal("DAI"))
			Expect(args[5:7]).To(Equal([]interface{}{"Actuals", "Budget"}))
			Expect(args[7:]).To(Equal([]interface{}{"budget", "atlas/core_units", "budget", `atlas/core\_units/%`}))
		})
	})

	Describe("reading series", func() {
		It("decodes every column", func() {
			pgxmockhelper.MockDBSeriesQuery(dbPool, "../testdata/series.csv", date(2021, 1, 1), date(2021, 4, 1))

			series, err := store.GetMatchingSeries(ctx, &analytics.SeriesQuery{
				Start: date(2021, 1, 1),
				End:   date(2021, 4, 1),
			})
			Expect(err).To(BeNil())
			Expect(series).To(HaveLen(6))

			budget := series[0]
			Expect(budget.ID).To(Equal("b1"))
			Expect(budget.Source.String()).To(Equal("atlas/budgets/core-units/ses"))
			Expect(budget.End).ToNot(BeNil())
			Expect(*budget.End).To(BeTemporally("==", time.Date(2021, 4, 1, 0, 0, 0, 0, time.UTC)))
			Expect(budget.SpreadFunction()).To(Equal(analytics.FnDssVest))
			Expect(budget.Dimensions[analytics.DimensionBudget].String()).To(Equal("atlas/legacy/core-units/SES"))
			Expect(budget.Dimensions[analytics.DimensionCategory].String()).To(Equal("atlas/headcount"))
			Expect(budget.DimensionMetadata).ToNot(BeNil())
			Expect(budget.DimensionMetadata.Dimension).To(Equal(analytics.DimensionBudget))
			Expect(budget.DimensionMetadata.Label).To(Equal("Sustainable Ecosystem Scaling"))

			Expect(series[1].DimensionMetadata).To(BeNil())

			expense := series[2]
			Expect(expense.IsPoint()).To(BeTrue())
			Expect(expense.Value).To(Equal(120.0))
			Expect(expense.Metric).To(Equal(analytics.MetricActuals))

			Expect(series[4].Unit).To(Equal("MKR"))
			Expect(series[5].Dimensions).To(HaveKey(analytics.DimensionPriceData))
		})

		It("feeds the engine", func() {
			pgxmockhelper.MockDBSeriesQuery(dbPool, "../testdata/series.csv", date(2021, 1, 1), date(2021, 4, 1))

			results, err := analytics.NewEngine(store).Execute(ctx, &analytics.Query{
				Start:       date(2021, 1, 1),
				End:         date(2021, 4, 1),
				Granularity: analytics.GranularityQuarter,
				Metrics:     []analytics.Metric{analytics.MetricBudget},
			})
			Expect(err).To(BeNil())
			Expect(results).To(HaveLen(1))

			var budget *analytics.Row
			for _, row := range results[0].Rows {
				if row.Metric == analytics.MetricBudget {
					budget = row
				}
			}
			Expect(budget).ToNot(BeNil())
			Expect(budget.Value).To(BeNumerically("~", 600, 1e-9))
		})

		It("switches role when one is configured", func() {
			viper.Set("database.role", "analytics_reader")
			DeferCleanup(viper.Set, "database.role", "")

			pgxmockhelper.MockDBSeriesQueryWithRole(dbPool, "../testdata/series.csv", date(2021, 2, 1), date(2021, 3, 1))

			series, err := store.GetMatchingSeries(ctx, &analytics.SeriesQuery{
				Start: date(2021, 2, 1),
				End:   date(2021, 3, 1),
			})
			Expect(err).To(BeNil())
			Expect(series).To(HaveLen(3))
		})

		It("rolls back when the query fails", func() {
			dbPool.ExpectBegin()
			dbPool.ExpectQuery("(?i)select").WillReturnError(errors.New("connection reset by peer"))
			dbPool.ExpectRollback()

			_, err := store.GetMatchingSeries(ctx, &analytics.SeriesQuery{
				Start: date(2021, 1, 1),
				End:   date(2021, 4, 1),
			})
			Expect(err).ToNot(BeNil())
		})
	})

	Describe("writing series", func() {
		It("clears a source and its descendants", func() {
			dbPool.ExpectBegin()
			dbPool.ExpectExec("DELETE FROM").
				WithArgs("atlas/expenses/ses", "atlas/expenses/ses/%").
				WillReturnResult(pgxmock.NewResult("DELETE", 3))
			dbPool.ExpectCommit()

			deleted, err := store.ClearSeriesBySource(ctx, analytics.MustParsePath("atlas/expenses/ses"), true)
			Expect(err).To(BeNil())
			Expect(deleted).To(Equal(int64(3)))
		})

		It("clears only the exact source", func() {
			dbPool.ExpectBegin()
			dbPool.ExpectExec("DELETE FROM").
				WithArgs("atlas/expenses/ses").
				WillReturnResult(pgxmock.NewResult("DELETE", 1))
			dbPool.ExpectCommit()

			deleted, err := store.ClearSeriesBySource(ctx, analytics.MustParsePath("atlas/expenses/ses"), false)
			Expect(err).To(BeNil())
			Expect(deleted).To(Equal(int64(1)))
		})

		It("inserts series in one transaction", func() {
			dbPool.ExpectBegin()
			dbPool.ExpectExec("INSERT INTO").WillReturnResult(pgxmock.NewResult("INSERT", 1))
			dbPool.ExpectExec("INSERT INTO").WillReturnResult(pgxmock.NewResult("INSERT", 1))
			dbPool.ExpectCommit()

			inserted, err := store.AddSeriesValues(ctx, fixture()[:2])
			Expect(err).To(BeNil())
			Expect(inserted).To(HaveLen(2))
			Expect(inserted[0].ID).ToNot(BeEmpty())
		})

		It("rolls back when a series is invalid", func() {
			bad := fixture()[1]
			bad.Metric = ""

			dbPool.ExpectBegin()
			dbPool.ExpectExec("INSERT INTO").WillReturnResult(pgxmock.NewResult("INSERT", 1))
			dbPool.ExpectRollback()

			_, err := store.AddSeriesValues(ctx, []*analytics.Series{fixture()[0], bad})
			Expect(err).To(MatchError(analytics.ErrInvalidSeries))
		})
	})

	Describe("catalog", func() {
		It("lists distinct metrics", func() {
			dbPool.ExpectBegin()
			dbPool.ExpectQuery("SELECT DISTINCT metric").WillReturnRows(
				pgxmock.NewRows([]string{"metric"}).AddRow("Actuals").AddRow("Budget"))
			dbPool.ExpectCommit()

			metrics, err := store.Metrics(ctx)
			Expect(err).To(BeNil())
			Expect(metrics).To(Equal([]analytics.Metric{analytics.MetricActuals, analytics.MetricBudget}))
		})

		It("merges dimension metadata", func() {
			dbPool.ExpectBegin()
			dbPool.ExpectQuery("SELECT DISTINCT d.key").WillReturnRows(
				pgxmock.NewRows([]string{"key", "value", "icon", "label", "description"}).
					AddRow("budget", "atlas/legacy/core-units/SES", "", "", "").
					AddRow("budget", "atlas/legacy/core-units/SES", "", "SES", "").
					AddRow("category", "atlas/headcount", "", "", ""))
			dbPool.ExpectCommit()

			dims, err := store.Dimensions(ctx)
			Expect(err).To(BeNil())
			Expect(dims).To(HaveLen(2))
			Expect(dims[0].Name).To(Equal(analytics.DimensionBudget))
			Expect(dims[0].Values).To(HaveLen(1))
			Expect(dims[0].Values[0].Label).To(Equal("SES"))
			Expect(dims[1].Name).To(Equal(analytics.DimensionCategory))
		})
	})
})

var _ = Describe("Open", func() {
	AfterEach(func() {
		viper.Set("store.backend", "")
		viper.Set("store.badger.path", "")
	})

	It("opens the memory store", func() {
		viper.Set("store.backend", data.BackendMemory)
		store, err := data.Open(context.Background())
		Expect(err).To(BeNil())
		Expect(store).To(BeAssignableToTypeOf(&data.MemoryStore{}))
	})

	It("requires a path for badger", func() {
		viper.Set("store.backend", data.BackendBadger)
		_, err := data.Open(context.Background())
		Expect(err).To(MatchError(data.ErrMissingDataPath))
	})

	It("rejects unknown backends", func() {
		viper.Set("store.backend", "cassandra")
		_, err := data.Open(context.Background())
		Expect(err).To(MatchError(data.ErrUnknownBackend))
	})
})
