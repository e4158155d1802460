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
	"os"
	"os/signal"
	"runtime/pprof"
	"runtime/trace"

	"github.com/go-co-op/gocron"
	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/penny-vault/atlas-analytics/analytics"
	"github.com/penny-vault/atlas-analytics/common"
	"github.com/penny-vault/atlas-analytics/messenger"
	"github.com/penny-vault/atlas-analytics/middleware"
	"github.com/penny-vault/atlas-analytics/observability/opentelemetry"
	"github.com/penny-vault/atlas-analytics/router"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func init() {
	if err := viper.BindEnv("server.port", "PORT"); err != nil {
		log.Panic().Err(err).Msg("could not bind server.port")
	}
	serveCmd.Flags().IntP("port", "p", 3000, "Port to run application server on")
	if err := viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port")); err != nil {
		log.Panic().Err(err).Msg("could not bind server.port")
	}

	serveCmd.Flags().String("cors-origins", "*", "Comma separated list of origins allowed to call the API")
	if err := viper.BindPFlag("server.cors_origins", serveCmd.Flags().Lookup("cors-origins")); err != nil {
		log.Panic().Err(err).Msg("could not bind server.cors_origins")
	}

	// Cache
	if err := viper.BindEnv("cache.redis_url", "REDIS_URL"); err != nil {
		log.Panic().Err(err).Msg("could not bind cache.redis_url")
	}
	serveCmd.Flags().Bool("cache-redis", false, "Share cached results through redis")
	if err := viper.BindPFlag("cache.redis", serveCmd.Flags().Lookup("cache-redis")); err != nil {
		log.Panic().Err(err).Msg("could not bind cache.redis")
	}
	serveCmd.Flags().Int("cache-ttl", 3600, "Seconds a cached result stays in redis")
	if err := viper.BindPFlag("cache.ttl", serveCmd.Flags().Lookup("cache-ttl")); err != nil {
		log.Panic().Err(err).Msg("could not bind cache.ttl")
	}
	serveCmd.Flags().Int("cache-purge-minutes", 15, "Minutes between purges of the in-process result cache")
	if err := viper.BindPFlag("cache.purge_minutes", serveCmd.Flags().Lookup("cache-purge-minutes")); err != nil {
		log.Panic().Err(err).Msg("could not bind cache.purge_minutes")
	}

	// Tracing
	if err := viper.BindEnv("otlp.endpoint", "OTEL_EXPORTER_OTLP_ENDPOINT"); err != nil {
		log.Panic().Err(err).Msg("could not bind otlp.endpoint")
	}

	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the analytics API server",
	Long:  `Run HTTP server that exposes the analytics engine`,
	Run: func(cmd *cobra.Command, args []string) {
		if Profile {
			f, err := os.Create("profile.out")
			if err != nil {
				log.Fatal().Err(err).Msg("could not create profile output file")
			}
			if err := pprof.StartCPUProfile(f); err != nil {
				log.Fatal().Err(err).Msg("could not start cpu profile")
			}
			defer pprof.StopCPUProfile()
		}

		if Trace {
			f, err := os.Create("trace.out")
			if err != nil {
				log.Fatal().Err(err).Msg("failed to create trace output file")
			}
			defer func() {
				if err := f.Close(); err != nil {
					log.Fatal().Err(err).Msg("failed to close trace file")
				}
			}()

			if err := trace.Start(f); err != nil {
				log.Fatal().Err(err).Msg("failed to start trace")
			}
			defer trace.Stop()
		}

		ctx := context.Background()

		if viper.GetString("otlp.endpoint") != "" {
			shutdown, err := opentelemetry.Setup()
			if err != nil {
				log.Fatal().Err(err).Msg("could not setup opentelemetry")
			}
			defer func() {
				if err := shutdown(ctx); err != nil {
					log.Error().Err(err).Msg("could not flush traces")
				}
			}()
		}

		if err := common.SetupCache(); err != nil {
			log.Fatal().Err(err).Msg("could not setup result cache")
		}

		store := openStore(ctx)
		defer closeStore(store)

		engine := analytics.NewEngine(store)

		// Results computed from reloaded facts are stale on every instance
		if messenger.Enabled() {
			if err := messenger.Initialize(); err != nil {
				log.Fatal().Err(err).Msg("could not connect to NATS")
			}
			defer messenger.Close()

			if _, err := messenger.SubscribeReload(func(event *messenger.ReloadEvent) {
				log.Info().Str("Prefix", event.Prefix).Int("NumEntries", common.CacheLen()).Msg("series reloaded; purging local result cache")
				common.CachePurge()
			}); err != nil {
				log.Fatal().Err(err).Msg("could not subscribe to reload events")
			}
		}

		// Create new Fiber instance
		app := fiber.New(fiber.Config{
			JSONEncoder: json.Marshal,
			JSONDecoder: json.Unmarshal,
		})

		// shutdown cleanly on interrupt
		c := make(chan os.Signal, 1)
		signal.Notify(c, os.Interrupt)
		go func() {
			sig := <-c // block until signal is read
			log.Info().Str("Signal", sig.String()).Msg("received signal; shutting down")
			if err := app.Shutdown(); err != nil {
				log.Fatal().Err(err).Msg("could not shutdown server")
			}
		}()

		// Configure CORS
		corsConfig := cors.Config{
			AllowOrigins: viper.GetString("server.cors_origins"),
			AllowHeaders: "*",
			AllowMethods: "GET,POST,HEAD",
		}
		app.Use(cors.New(corsConfig))

		// Setup logging middleware
		app.Use(middleware.NewLogger())

		// Setup routes
		router.SetupRoutes(app, engine)

		// Results computed before a reload must not outlive it in the local tier
		scheduler := gocron.NewScheduler(common.GetTimezone())
		if _, err := scheduler.Every(viper.GetInt("cache.purge_minutes")).Minutes().Do(func() {
			log.Debug().Int("NumEntries", common.CacheLen()).Msg("purging local result cache")
			common.CachePurge()
		}); err != nil {
			log.Fatal().Err(err).Msg("could not schedule cache purge")
		}
		scheduler.StartAsync()
		defer scheduler.Stop()

		// Start server on http://${heroku-url}:${port}
		if err := app.Listen(":" + viper.GetString("server.port")); err != nil {
			log.Fatal().Err(err).Msg("server stopped")
		}
	},
}
