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

import "time"

// Interval is the half-open time range [Begin, End). An interval with
// Begin == End represents a single instant.
type Interval struct {
	Begin time.Time
	End   time.Time
}

func (interval *Interval) IsInstant() bool {
	return !interval.End.After(interval.Begin)
}

// Contains reports whether t falls inside the interval
func (interval *Interval) Contains(t time.Time) bool {
	return !t.Before(interval.Begin) && t.Before(interval.End)
}

// Overlaps reports whether two intervals share at least one instant. An
// instant overlaps an interval when the interval contains it.
func (interval *Interval) Overlaps(other *Interval) bool {
	switch {
	case interval.IsInstant() && other.IsInstant():
		return interval.Begin.Equal(other.Begin)
	case other.IsInstant():
		return interval.Contains(other.Begin)
	case interval.IsInstant():
		return other.Contains(interval.Begin)
	}
	return other.Begin.Before(interval.End) && other.End.After(interval.Begin)
}

// Valid rejects an interval that ends before it begins
func (interval *Interval) Valid() error {
	if interval.Begin.After(interval.End) {
		return ErrInvalidTimeRange
	}

	return nil
}
