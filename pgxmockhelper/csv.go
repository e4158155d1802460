// Copyright 2021-2023
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package pgxmockhelper

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/jackc/pgconn"
	"github.com/pashagolub/pgxmock"
	"github.com/rs/zerolog/log"
)

// SeriesColumnTypes converts the columns of testdata/series.csv into the
// types scanned by the postgres series store
var SeriesColumnTypes = map[string]string{
	"start_ts":           "timestamp",
	"end_ts":             "*timestamp",
	"value":              "float64",
	"dimensions":         "jsonb",
	"dimension_metadata": "jsonb",
}

type CSVRows struct {
	rows    [][]any
	header  []string
	dateCol int
}

// parseJSONB turns `key=value;key=value` into a JSON object. An empty string
// is a SQL NULL.
func parseJSONB(val string) ([]byte, error) {
	if val == "" {
		return nil, nil
	}
	obj := make(map[string]string)
	for _, pair := range strings.Split(val, ";") {
		kv := strings.SplitN(pair, "=", 2)
		if len(kv) != 2 {
			continue
		}
		obj[kv[0]] = kv[1]
	}
	return json.Marshal(obj)
}

func NewCSVRows(csvFn string, typeMap map[string]string) *CSVRows {
	subLog := log.With().Str("CsvFn", csvFn).Logger()

	rows := &CSVRows{
		dateCol: -1,
		rows:    make([][]any, 0),
	}
	rawData, err := os.ReadFile(csvFn)
	if err != nil {
		subLog.Panic().Err(err).Msg("could not read file")
	}

	// break raw data into an array of lines
	lines := strings.Split(string(rawData), "\n")

	// sanity checks:
	// - array length is at least 3 (header + content + trailing newline)
	// - make sure last line ends in newline
	if len(lines) < 2 {
		subLog.Panic().Int("NumLines", len(lines)).Msg("input file does not have enough lines, need at least 2 (header + trailing new line)")
	}
	if lines[len(lines)-1] != "" {
		subLog.Panic().Msg("input file is missing a trailing new line")
	}

	// parse header
	headerRaw := lines[0]
	lines = lines[1 : len(lines)-1] // discard first and last rows
	rows.header = strings.Split(headerRaw, ",")

	// parse each line and create a row
	for _, ll := range lines {
		cols := make([]any, len(rows.header))
		parts := strings.Split(ll, ",")
		for idx, val := range parts {
			colName := rows.header[idx]
			typeConv, ok := typeMap[colName]
			if !ok {
				// no type conversion specified - use as is
				cols[idx] = val
				continue
			}

			switch typeConv {
			case "timestamp":
				parsed, err := time.Parse(time.RFC3339, val)
				if err != nil {
					subLog.Panic().Err(err).Str("Val", val).Msg("could not convert val to timestamp")
				}
				cols[idx] = parsed
				if rows.dateCol == -1 {
					rows.dateCol = idx
				}
			case "*timestamp":
				var ts *time.Time
				if val != "" {
					parsed, err := time.Parse(time.RFC3339, val)
					if err != nil {
						subLog.Panic().Err(err).Str("Val", val).Msg("could not convert val to timestamp")
					}
					ts = &parsed
				}
				cols[idx] = ts
			case "float64":
				parsed, err := strconv.ParseFloat(val, 64)
				if err != nil {
					subLog.Panic().Err(err).Str("Val", val).Msg("could not convert val to float64")
				}
				cols[idx] = parsed
			case "jsonb":
				parsed, err := parseJSONB(val)
				if err != nil {
					subLog.Panic().Err(err).Str("Val", val).Msg("could not convert val to jsonb")
				}
				cols[idx] = parsed
			default:
				cols[idx] = val
			}
		}
		rows.rows = append(rows.rows, cols)
	}

	return rows
}

// Between keeps rows whose first timestamp column lies in [a, b)
func (csvRows *CSVRows) Between(a time.Time, b time.Time) *CSVRows {
	newRows := make([][]any, 0, len(csvRows.rows))
	if len(csvRows.rows) == 0 {
		return csvRows
	}
	if csvRows.dateCol == -1 {
		log.Panic().Time("a", a).Time("b", b).Msg("no date column found")
	}
	for _, row := range csvRows.rows {
		t := row[csvRows.dateCol].(time.Time)
		if t.Before(b) && (t.After(a) || t.Equal(a)) {
			newRows = append(newRows, row)
		}
	}
	csvRows.rows = newRows
	return csvRows
}

func (csvRows *CSVRows) Len() int {
	return len(csvRows.rows)
}

func (csvRows *CSVRows) Rows() *pgxmock.Rows {
	r := pgxmock.NewRows(csvRows.header)
	for _, row := range csvRows.rows {
		r.AddRow(row...)
	}
	return r
}

// MockDBSeriesQuery expects one series query returning the rows of fn that
// start in [a, b)
func MockDBSeriesQuery(db pgxmock.PgxConnIface, fn string, a, b time.Time) {
	db.ExpectBegin()
	db.ExpectQuery("(?i)select (.+) from \"analytics_series\"").WillReturnRows(
		NewCSVRows(fn, SeriesColumnTypes).Between(a, b).Rows())
	db.ExpectCommit()
}

// MockDBSeriesQueryWithRole is MockDBSeriesQuery for a connection that
// switches role at the start of each transaction
func MockDBSeriesQueryWithRole(db pgxmock.PgxConnIface, fn string, a, b time.Time) {
	db.ExpectBegin()
	db.ExpectExec("SET ROLE").WillReturnResult(pgconn.CommandTag("SET ROLE"))
	db.ExpectQuery("(?i)select (.+) from \"analytics_series\"").WillReturnRows(
		NewCSVRows(fn, SeriesColumnTypes).Between(a, b).Rows())
	db.ExpectCommit()
}
