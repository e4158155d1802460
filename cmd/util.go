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
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/goccy/go-json"
	"github.com/olekukonko/tablewriter"
	"github.com/pelletier/go-toml/v2"
	"github.com/penny-vault/atlas-analytics/analytics"
	"github.com/penny-vault/atlas-analytics/data"
	"github.com/penny-vault/atlas-analytics/messenger"
	"github.com/rs/zerolog/log"
)

// openStore opens the configured series store or exits
func openStore(ctx context.Context) analytics.SeriesStore {
	store, err := data.Open(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("could not open series store")
	}
	return store
}

func closeStore(store analytics.SeriesStore) {
	if err := store.Close(); err != nil {
		log.Error().Err(err).Msg("could not close series store")
	}
}

// notifyReload tells running servers that facts under prefix changed. It is
// a no-op when no NATS server is configured.
func notifyReload(prefix analytics.Path, deleted int64, inserted int) {
	if !messenger.Enabled() {
		return
	}
	if err := messenger.Initialize(); err != nil {
		log.Warn().Err(err).Msg("servers were not notified of the reload")
		return
	}
	defer messenger.Close()

	if err := messenger.PublishReload(messenger.NewReloadEvent(prefix, deleted, inserted)); err != nil {
		log.Warn().Err(err).Msg("servers were not notified of the reload")
	}
}

// readDefinition decodes fn into dst. Files ending in `.toml` are parsed as
// TOML, everything else as JSON.
func readDefinition(fn string, dst interface{}) error {
	raw, err := os.ReadFile(fn)
	if err != nil {
		return err
	}

	switch strings.ToLower(filepath.Ext(fn)) {
	case ".toml":
		err = toml.Unmarshal(raw, dst)
	default:
		err = json.Unmarshal(raw, dst)
	}
	if err != nil {
		return fmt.Errorf("could not parse %s: %w", fn, err)
	}
	return nil
}

func mustReadDefinition(fn string, dst interface{}) {
	if err := readDefinition(fn, dst); err != nil {
		log.Fatal().Err(err).Str("FileName", fn).Msg("could not read definition")
	}
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// dimensionColumns returns the sorted set of dimensions used by any row
func dimensionColumns(results analytics.GroupedPeriodResults) []analytics.Dimension {
	seen := make(map[analytics.Dimension]bool)
	for _, period := range results {
		for _, row := range period.Rows {
			for dim := range row.Dimensions {
				seen[dim] = true
			}
		}
	}
	cols := make([]analytics.Dimension, 0, len(seen))
	for dim := range seen {
		cols = append(cols, dim)
	}
	sort.Slice(cols, func(i, j int) bool { return cols[i] < cols[j] })
	return cols
}

// ResultsTable formats results as an ASCII table with one line per row
func ResultsTable(results analytics.GroupedPeriodResults) string {
	if len(results) == 0 {
		return "<NO DATA>"
	}

	dims := dimensionColumns(results)
	header := []string{"Period"}
	for _, dim := range dims {
		header = append(header, string(dim))
	}
	header = append(header, "Metric", "Unit", "Value", "Sum")

	s := &strings.Builder{}
	table := tablewriter.NewWriter(s)
	table.SetHeader(header)
	table.SetBorder(false)

	numRows := 0
	for _, period := range results {
		for _, row := range period.Rows {
			line := []string{period.Period}
			for _, dim := range dims {
				line = append(line, row.Dimensions[dim].Path)
			}
			value := fmt.Sprintf("%.4f", row.Value)
			if row.OperandMissing {
				value += "*"
			}
			sum := fmt.Sprintf("%.4f", row.Sum)
			if row.Sum == analytics.UnusedSum {
				sum = "-"
			}
			line = append(line, string(row.Metric), row.Unit, value, sum)
			table.Append(line)
			numRows++
		}
	}

	footer := make([]string, len(header))
	footer[0] = "Num Rows"
	footer[1] = fmt.Sprintf("%d", numRows)
	table.SetFooter(footer)

	table.Render()
	return s.String()
}

// VarianceTable formats a variance report as an ASCII table
func VarianceTable(report *analytics.VarianceReport) string {
	if len(report.Rows) == 0 {
		return "<NO DATA>"
	}

	seen := make(map[analytics.Dimension]bool)
	for _, row := range report.Rows {
		for dim := range row.Dimensions {
			seen[dim] = true
		}
	}
	dims := make([]analytics.Dimension, 0, len(seen))
	for dim := range seen {
		dims = append(dims, dim)
	}
	sort.Slice(dims, func(i, j int) bool { return dims[i] < dims[j] })

	header := []string{"Period"}
	for _, dim := range dims {
		header = append(header, string(dim))
	}
	header = append(header, "Unit", string(report.ActualMetric), string(report.ReferenceMetric), "Difference", "Ratio")

	s := &strings.Builder{}
	table := tablewriter.NewWriter(s)
	table.SetHeader(header)
	table.SetBorder(false)

	for _, row := range report.Rows {
		line := []string{row.Period}
		for _, dim := range dims {
			line = append(line, row.Dimensions[dim].Path)
		}
		line = append(line, row.Unit,
			fmt.Sprintf("%.4f", row.Actual),
			fmt.Sprintf("%.4f", row.Reference),
			fmt.Sprintf("%.4f", row.Difference),
			fmt.Sprintf("%.2f%%", row.Ratio*100))
		table.Append(line)
	}

	footer := make([]string, len(header))
	footer[0] = "Total"
	footer[len(header)-4] = fmt.Sprintf("%.4f", report.Actual)
	footer[len(header)-3] = fmt.Sprintf("%.4f", report.Reference)
	footer[len(header)-2] = fmt.Sprintf("%.4f", report.Difference)
	footer[len(header)-1] = fmt.Sprintf("%.2f%%", report.Ratio*100)
	table.SetFooter(footer)

	table.Render()
	return s.String()
}

// printResults writes results to stdout honoring --json
func printResults(results analytics.GroupedPeriodResults) {
	if JSONOutput {
		if err := writeJSON(os.Stdout, results); err != nil {
			log.Fatal().Err(err).Msg("could not encode results")
		}
		return
	}
	fmt.Print(ResultsTable(results))
}

// printList writes a list of names to stdout honoring --json
func printList(header string, items []string) {
	if JSONOutput {
		if err := writeJSON(os.Stdout, items); err != nil {
			log.Fatal().Err(err).Msg("could not encode list")
		}
		return
	}

	s := &strings.Builder{}
	table := tablewriter.NewWriter(s)
	table.SetHeader([]string{header})
	table.SetBorder(false)
	for _, item := range items {
		table.Append([]string{item})
	}
	table.Render()
	fmt.Print(s.String())
}
