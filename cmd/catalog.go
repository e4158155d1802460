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
	"os"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/penny-vault/atlas-analytics/analytics"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(dimensionsCmd)
	rootCmd.AddCommand(metricsCmd)
	rootCmd.AddCommand(currenciesCmd)
}

var dimensionsCmd = &cobra.Command{
	Use:   "dimensions",
	Short: "List every dimension and the values it takes",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		store := openStore(ctx)
		defer closeStore(store)

		catalogs, err := analytics.NewEngine(store).Dimensions(ctx)
		if err != nil {
			log.Fatal().Err(err).Msg("could not list dimensions")
		}

		if JSONOutput {
			if err := writeJSON(os.Stdout, catalogs); err != nil {
				log.Fatal().Err(err).Msg("could not encode dimensions")
			}
			return
		}

		s := &strings.Builder{}
		table := tablewriter.NewWriter(s)
		table.SetHeader([]string{"Dimension", "Path", "Label", "Description"})
		table.SetBorder(false)
		table.SetAutoMergeCells(true)
		for _, catalog := range catalogs {
			for _, value := range catalog.Values {
				table.Append([]string{string(catalog.Name), value.Path, value.Label, value.Description})
			}
		}
		table.Render()
		fmt.Print(s.String())
	},
}

var metricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "List every metric present in the store",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		store := openStore(ctx)
		defer closeStore(store)

		metrics, err := analytics.NewEngine(store).Metrics(ctx)
		if err != nil {
			log.Fatal().Err(err).Msg("could not list metrics")
		}
		names := make([]string, len(metrics))
		for idx, metric := range metrics {
			names[idx] = string(metric)
		}
		printList("Metric", names)
	},
}

var currenciesCmd = &cobra.Command{
	Use:   "currencies",
	Short: "List every unit present in the store",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		store := openStore(ctx)
		defer closeStore(store)

		currencies, err := analytics.NewEngine(store).Currencies(ctx)
		if err != nil {
			log.Fatal().Err(err).Msg("could not list currencies")
		}
		printList("Currency", currencies)
	},
}
