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

	"github.com/goccy/go-json"
	"github.com/penny-vault/atlas-analytics/analytics"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(loadCmd)
}

var loadCmd = &cobra.Command{
	Use:   "load <source-prefix> <series.json>",
	Short: "Replace every series under source-prefix with the series in a JSON file",
	Long: `Replace every series under source-prefix with the series in a JSON file.
The file holds an array of series. Every series must validate and have a
source below source-prefix, otherwise nothing is deleted.`,
	Args: cobra.ExactArgs(2),
	Run: func(_ *cobra.Command, args []string) {
		ctx := context.Background()

		prefix, err := analytics.ParsePath(args[0])
		if err != nil {
			log.Fatal().Err(err).Str("Prefix", args[0]).Msg("invalid source prefix")
		}

		raw, err := os.ReadFile(args[1])
		if err != nil {
			log.Fatal().Err(err).Str("FileName", args[1]).Msg("could not read series file")
		}

		series := make([]*analytics.Series, 0)
		if err := json.Unmarshal(raw, &series); err != nil {
			log.Fatal().Err(err).Str("FileName", args[1]).Msg("could not parse series file")
		}

		store := openStore(ctx)
		defer closeStore(store)

		deleted, inserted, err := analytics.Reload(ctx, store, prefix, series)
		if err != nil {
			log.Fatal().Err(err).Str("Prefix", prefix.String()).Int64("NumDeleted", deleted).Msg("reload failed")
		}
		notifyReload(prefix, deleted, len(inserted))
		fmt.Printf("loaded %d series under %s\n", len(inserted), prefix)
	},
}
