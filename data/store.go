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

	"github.com/penny-vault/atlas-analytics/analytics"
	"github.com/penny-vault/atlas-analytics/data/database"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

const (
	BackendPostgres = "postgres"
	BackendBadger   = "badger"
	BackendMemory   = "memory"
)

// Open returns the series store selected by `store.backend`
func Open(ctx context.Context) (analytics.SeriesStore, error) {
	backend := viper.GetString("store.backend")
	subLog := log.With().Str("Backend", backend).Logger()

	switch backend {
	case BackendPostgres, "":
		if err := database.Connect(ctx); err != nil {
			subLog.Error().Stack().Err(err).Msg("could not connect to database")
			return nil, err
		}
		subLog.Info().Msg("using postgres series store")
		return NewPgStore(), nil
	case BackendBadger:
		path := viper.GetString("store.badger.path")
		if path == "" {
			return nil, ErrMissingDataPath
		}
		store, err := NewBadgerStore(path, viper.GetInt("store.badger.compression_level"))
		if err != nil {
			return nil, err
		}
		subLog.Info().Str("Path", path).Msg("using badger series store")
		return store, nil
	case BackendMemory:
		subLog.Warn().Msg("using in-memory series store; data will not survive a restart")
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, backend)
	}
}
