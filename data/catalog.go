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
	"sort"

	"github.com/penny-vault/atlas-analytics/analytics"
)

// catalog accumulates the distinct dimensions, metrics and units of the
// series it is shown
type catalog struct {
	dimensions map[analytics.Dimension]map[string]analytics.DimensionValue
	metrics    map[analytics.Metric]bool
	currencies map[string]bool
}

func newCatalog() *catalog {
	return &catalog{
		dimensions: make(map[analytics.Dimension]map[string]analytics.DimensionValue),
		metrics:    make(map[analytics.Metric]bool),
		currencies: make(map[string]bool),
	}
}

func (c *catalog) add(s *analytics.Series) {
	c.metrics[s.Metric] = true
	c.currencies[s.Unit] = true
	for dim, path := range s.Dimensions {
		val := analytics.DimensionValue{Path: path.String()}
		if meta := s.DimensionMetadata; meta != nil && meta.Dimension == dim && meta.Path.Equal(path) {
			val.Icon = meta.Icon
			val.Label = meta.Label
			val.Description = meta.Description
		}
		c.addDimensionValue(dim, val)
	}
}

// addDimensionValue records val; a value carrying display metadata replaces
// one without
func (c *catalog) addDimensionValue(dim analytics.Dimension, val analytics.DimensionValue) {
	values, ok := c.dimensions[dim]
	if !ok {
		values = make(map[string]analytics.DimensionValue)
		c.dimensions[dim] = values
	}
	cur, ok := values[val.Path]
	if !ok || (cur.Icon == "" && cur.Label == "" && cur.Description == "") {
		values[val.Path] = val
	}
}

func (c *catalog) Dimensions() []*analytics.DimensionCatalog {
	names := make([]string, 0, len(c.dimensions))
	for dim := range c.dimensions {
		names = append(names, string(dim))
	}
	sort.Strings(names)

	res := make([]*analytics.DimensionCatalog, 0, len(names))
	for _, name := range names {
		values := c.dimensions[analytics.Dimension(name)]
		entry := &analytics.DimensionCatalog{
			Name:   analytics.Dimension(name),
			Values: make([]analytics.DimensionValue, 0, len(values)),
		}
		for _, val := range values {
			entry.Values = append(entry.Values, val)
		}
		sort.Slice(entry.Values, func(i, j int) bool {
			return entry.Values[i].Path < entry.Values[j].Path
		})
		res = append(res, entry)
	}
	return res
}

func (c *catalog) Metrics() []analytics.Metric {
	res := make([]analytics.Metric, 0, len(c.metrics))
	for m := range c.metrics {
		res = append(res, m)
	}
	sort.Slice(res, func(i, j int) bool {
		return res[i] < res[j]
	})
	return res
}

func (c *catalog) Currencies() []string {
	res := make([]string, 0, len(c.currencies))
	for unit := range c.currencies {
		res = append(res, unit)
	}
	sort.Strings(res)
	return res
}
