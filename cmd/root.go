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
	"fmt"
	"os"

	"github.com/penny-vault/atlas-analytics/common"
	"github.com/rs/zerolog/log"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var Profile bool
var Trace bool
var JSONOutput bool

// bindFlag binds a persistent flag to a viper key and an environment variable
func bindFlag(key, env, flag string) {
	if err := viper.BindEnv(key, env); err != nil {
		log.Panic().Err(err).Str("Key", key).Msg("could not bind environment variable")
	}
	if err := viper.BindPFlag(key, rootCmd.PersistentFlags().Lookup(flag)); err != nil {
		log.Panic().Err(err).Str("Key", key).Msg("could not bind flag")
	}
}

func init() {
	cobra.OnInitialize(common.SetupLogging)

	// Database
	rootCmd.PersistentFlags().String("database-url", "", "PostgreSQL connection string")
	bindFlag("database.url", "DATABASE_URL", "database-url")

	rootCmd.PersistentFlags().String("database-role", "", "Role to assume for every transaction (optional)")
	bindFlag("database.role", "ANALYTICS_DATABASE_ROLE", "database-role")

	// Series store
	rootCmd.PersistentFlags().String("store", "postgres", "Series store backend: one of `postgres`, `badger`, or `memory`")
	bindFlag("store.backend", "ANALYTICS_STORE", "store")

	rootCmd.PersistentFlags().String("badger-path", "", "Directory of the badger series store")
	bindFlag("store.badger.path", "ANALYTICS_BADGER_PATH", "badger-path")

	rootCmd.PersistentFlags().Int("badger-compression", 2, "zstd compression level (1-4) of badger values")
	bindFlag("store.badger.compression_level", "ANALYTICS_BADGER_COMPRESSION", "badger-compression")

	// Reload notifications
	rootCmd.PersistentFlags().String("nats-server", "", "NATS server that reload notifications are exchanged through (optional)")
	bindFlag("nats.server", "NATS_SERVER", "nats-server")

	rootCmd.PersistentFlags().String("nats-credentials", "", "NATS credentials file")
	bindFlag("nats.credentials", "NATS_CREDENTIALS", "nats-credentials")

	rootCmd.PersistentFlags().String("nats-reload-subject", "analytics.reload", "Subject reload notifications are published on")
	bindFlag("nats.reload_subject", "NATS_RELOAD_SUBJECT", "nats-reload-subject")

	// Period alignment
	rootCmd.PersistentFlags().String("timezone", "UTC", "Timezone periods are aligned in")
	bindFlag("analytics.timezone", "ANALYTICS_TIMEZONE", "timezone")

	// Logging configuration
	rootCmd.PersistentFlags().String("log-level", "warning", "Logging level")
	bindFlag("log.level", "ANALYTICS_LOG_LEVEL", "log-level")

	rootCmd.PersistentFlags().Bool("log-report-caller", false, "Log function name that called log statement")
	bindFlag("log.report_caller", "ANALYTICS_LOG_REPORT_CALLER", "log-report-caller")

	rootCmd.PersistentFlags().String("log-output", "stderr", "Write logs to specified output one of: file path, `stdout`, or `stderr`")
	bindFlag("log.output", "ANALYTICS_LOG_OUTPUT", "log-output")

	rootCmd.PersistentFlags().Bool("log-pretty", true, "Format logs for humans instead of JSON")
	bindFlag("log.pretty", "ANALYTICS_LOG_PRETTY", "log-pretty")

	rootCmd.PersistentFlags().BoolVar(&JSONOutput, "json", false, "Print results as JSON instead of a table")
	rootCmd.PersistentFlags().BoolVar(&Profile, "cpu-profile", false, "Run pprof and save in profile.out")
	rootCmd.PersistentFlags().BoolVar(&Trace, "trace", false, "Trace program execution and save in trace.out")
}

var rootCmd = &cobra.Command{
	Use:     "analytics",
	Version: common.CurrentVersion.String(),
	Short:   "Atlas analytics is a dimensional time-series analytics engine",
	Long: `Aggregate budget, expense and price facts into calendar periods grouped by
hierarchical dimensions, combine result sets algebraically and convert between currencies.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
