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

import "context"

// SeriesReader is the read side of a series store; it is all the engine
// needs
type SeriesReader interface {
	// GetMatchingSeries returns every fact satisfying SeriesQuery.Matches
	GetMatchingSeries(ctx context.Context, query *SeriesQuery) ([]*Series, error)

	// Dimensions lists each dimension with the distinct values observed
	Dimensions(ctx context.Context) ([]*DimensionCatalog, error)
	Metrics(ctx context.Context) ([]Metric, error)
	Currencies(ctx context.Context) ([]string, error)
}

// SeriesWriter is used by ingestion to replace facts by source
type SeriesWriter interface {
	// ClearSeriesBySource deletes facts whose source equals source or, when
	// recursive is set, starts with it. It returns the number of deleted
	// facts.
	ClearSeriesBySource(ctx context.Context, source Path, recursive bool) (int64, error)

	// AddSeriesValues appends facts and returns them with assigned ids.
	// Inserting the same fact twice yields two additive facts.
	AddSeriesValues(ctx context.Context, series []*Series) ([]*Series, error)
}

type SeriesStore interface {
	SeriesReader
	SeriesWriter
	Close() error
}
