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
	"sync"

	"github.com/google/uuid"
	"github.com/penny-vault/atlas-analytics/analytics"
	"github.com/rs/zerolog/log"
)

// MemoryStore keeps series in process memory. It is used by tests and by
// `serve` when no database is configured.
type MemoryStore struct {
	locker sync.RWMutex
	series []*analytics.Series
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		series: make([]*analytics.Series, 0),
	}
}

func (m *MemoryStore) GetMatchingSeries(ctx context.Context, query *analytics.SeriesQuery) ([]*analytics.Series, error) {
	m.locker.RLock()
	defer m.locker.RUnlock()

	res := make([]*analytics.Series, 0)
	for _, s := range m.series {
		if query.Matches(s) {
			res = append(res, s)
		}
	}
	return res, nil
}

func (m *MemoryStore) ClearSeriesBySource(ctx context.Context, source analytics.Path, recursive bool) (int64, error) {
	m.locker.Lock()
	defer m.locker.Unlock()

	kept := make([]*analytics.Series, 0, len(m.series))
	for _, s := range m.series {
		if !sourceMatches(s.Source, source, recursive) {
			kept = append(kept, s)
		}
	}

	deleted := int64(len(m.series) - len(kept))
	m.series = kept

	log.Debug().Str("Source", source.String()).Bool("Recursive", recursive).Int64("Deleted", deleted).Msg("cleared series from memory store")
	return deleted, nil
}

func (m *MemoryStore) AddSeriesValues(ctx context.Context, series []*analytics.Series) ([]*analytics.Series, error) {
	inserted := make([]*analytics.Series, 0, len(series))
	for _, s := range series {
		if err := s.Validate(); err != nil {
			log.Warn().Object("Series", s).Err(err).Msg("refusing to insert invalid series")
			return nil, err
		}
		cp := *s
		if cp.ID == "" {
			cp.ID = uuid.New().String()
		}
		inserted = append(inserted, &cp)
	}

	m.locker.Lock()
	defer m.locker.Unlock()
	m.series = append(m.series, inserted...)

	return inserted, nil
}

func (m *MemoryStore) Dimensions(ctx context.Context) ([]*analytics.DimensionCatalog, error) {
	return m.catalog().Dimensions(), nil
}

func (m *MemoryStore) Metrics(ctx context.Context) ([]analytics.Metric, error) {
	return m.catalog().Metrics(), nil
}

func (m *MemoryStore) Currencies(ctx context.Context) ([]string, error) {
	return m.catalog().Currencies(), nil
}

// Len returns the number of stored series
func (m *MemoryStore) Len() int {
	m.locker.RLock()
	defer m.locker.RUnlock()
	return len(m.series)
}

func (m *MemoryStore) Close() error {
	return nil
}

func (m *MemoryStore) catalog() *catalog {
	m.locker.RLock()
	defer m.locker.RUnlock()

	c := newCatalog()
	for _, s := range m.series {
		c.add(s)
	}
	return c
}

// sourceMatches reports whether source is cleared by a clear of prefix
func sourceMatches(source, prefix analytics.Path, recursive bool) bool {
	if recursive {
		return source.StartsWith(prefix)
	}
	return source.Equal(prefix)
}
