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

	"github.com/penny-vault/atlas-analytics/analytics"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var clearRecursive bool

func init() {
	clearCmd.Flags().BoolVarP(&clearRecursive, "recursive", "r", false, "Also delete series whose source is below the given source")

	rootCmd.AddCommand(clearCmd)
}

var clearCmd = &cobra.Command{
	Use:   "clear <source>",
	Short: "Delete every series loaded from source",
	Args:  cobra.ExactArgs(1),
	Run: func(_ *cobra.Command, args []string) {
		ctx := context.Background()

		source, err := analytics.ParsePath(args[0])
		if err != nil {
			log.Fatal().Err(err).Str("Source", args[0]).Msg("invalid source path")
		}

		subLog := log.With().Str("Source", source.String()).Bool("Recursive", clearRecursive).Logger()

		store := openStore(ctx)
		defer closeStore(store)

		deleted, err := store.ClearSeriesBySource(ctx, source, clearRecursive)
		if err != nil {
			subLog.Fatal().Stack().Err(err).Msg("could not clear series")
		}

		subLog.Info().Int64("NumDeleted", deleted).Msg("cleared series")
		notifyReload(source, deleted, 0)
		fmt.Printf("deleted %d series\n", deleted)
	},
}
