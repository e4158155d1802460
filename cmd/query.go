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

	"github.com/penny-vault/atlas-analytics/analytics"
	"github.com/penny-vault/atlas-analytics/handler"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(compoundCmd)
	rootCmd.AddCommand(convertCmd)
	rootCmd.AddCommand(varianceCmd)
}

var queryCmd = &cobra.Command{
	Use:   "query <query.toml|query.json>",
	Short: "Execute an analytics query",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()

		var query analytics.Query
		mustReadDefinition(args[0], &query)

		store := openStore(ctx)
		defer closeStore(store)

		results, err := analytics.NewEngine(store).Execute(ctx, &query)
		if err != nil {
			log.Fatal().Err(err).Object("Query", &query).Msg("query failed")
		}
		printResults(results)
	},
}

var compoundCmd = &cobra.Command{
	Use:   "compound <compound.toml|compound.json>",
	Short: "Execute a compound query combining two result sets with an operator",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()

		var compound analytics.CompoundQuery
		mustReadDefinition(args[0], &compound)

		store := openStore(ctx)
		defer closeStore(store)

		results, err := analytics.NewEngine(store).ExecuteCompound(ctx, &compound)
		if err != nil {
			log.Fatal().Err(err).Str("Operator", compound.Expression.Operator).Msg("compound query failed")
		}
		if err := results.CheckComplete(); err != nil {
			log.Warn().Err(err).Msg("some rows were computed without an operand")
		}
		printResults(results)
	},
}

var convertCmd = &cobra.Command{
	Use:   "convert <plan.toml|plan.json>",
	Short: "Execute a query and convert every currency into a single target currency",
	Long: `Execute a query and convert every currency into a single target currency.
The plan holds a "query" and a "conversion" with the target currency and one
price metric per source currency.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()

		var plan handler.MultiCurrencyRequest
		mustReadDefinition(args[0], &plan)

		store := openStore(ctx)
		defer closeStore(store)

		results, err := analytics.NewEngine(store).ExecuteMultiCurrency(ctx, &plan.Query, &plan.Conversion)
		if err != nil {
			log.Fatal().Err(err).Str("TargetCurrency", plan.Conversion.TargetCurrency).Msg("conversion failed")
		}
		if err := results.CheckComplete(); err != nil {
			log.Warn().Err(err).Msg("some periods have no conversion rate")
		}
		printResults(results)
	},
}

var varianceCmd = &cobra.Command{
	Use:   "variance <variance.toml|variance.json>",
	Short: "Compare an actual metric against a reference metric per period",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()

		var req handler.VarianceRequest
		mustReadDefinition(args[0], &req)

		store := openStore(ctx)
		defer closeStore(store)

		report, err := analytics.NewEngine(store).ExecuteVariance(ctx, &req.Query, req.Actual, req.Reference)
		if err != nil {
			log.Fatal().Err(err).Str("Actual", string(req.Actual)).Str("Reference", string(req.Reference)).Msg("variance failed")
		}

		if JSONOutput {
			if err := writeJSON(os.Stdout, report); err != nil {
				log.Fatal().Err(err).Msg("could not encode report")
			}
			return
		}
		fmt.Print(VarianceTable(report))
	},
}
