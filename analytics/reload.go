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

package analytics

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
)

// Reload replaces every fact under prefix with series and returns the number
// of facts deleted along with the inserted facts. All facts are
// validated before anything is deleted. The clear and the insert are not
// atomic; concurrent reloads of overlapping prefixes race.
func Reload(ctx context.Context, store SeriesWriter, prefix Path, series []*Series) (int64, []*Series, error) {
	subLog := log.With().Str("Prefix", prefix.String()).Int("NumSeries", len(series)).Logger()

	for idx, s := range series {
		if err := s.Validate(); err != nil {
			subLog.Warn().Err(err).Int("Index", idx).Msg("rejecting reload")
			return 0, nil, fmt.Errorf("series %d: %w", idx, err)
		}
		for dim := range s.Dimensions {
			if !dim.IsKnown() {
				subLog.Warn().Str("Dimension", string(dim)).Str("Source", s.Source.String()).Msg("series tagged with an unknown dimension")
			}
		}
		if !s.Source.StartsWith(prefix) {
			subLog.Warn().Str("Source", s.Source.String()).Msg("rejecting reload")
			return 0, nil, fmt.Errorf("%w: %s is not under %s", ErrSourceOutsidePrefix, s.Source, prefix)
		}
	}

	deleted, err := store.ClearSeriesBySource(ctx, prefix, true)
	if err != nil {
		subLog.Error().Stack().Err(err).Msg("could not clear series")
		return 0, nil, err
	}

	inserted, err := store.AddSeriesValues(ctx, series)
	if err != nil {
		subLog.Error().Stack().Err(err).Int64("Deleted", deleted).Msg("could not insert series after clearing prefix")
		return deleted, nil, err
	}

	subLog.Info().Int64("Deleted", deleted).Int("Inserted", len(inserted)).Msg("reloaded series")
	return deleted, inserted, nil
}
