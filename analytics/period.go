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
	"fmt"
	"strings"
	"time"
)

type Granularity string

const (
	GranularityDay     Granularity = "day"
	GranularityWeek    Granularity = "week"
	GranularityMonth   Granularity = "month"
	GranularityQuarter Granularity = "quarter"
	GranularityYear    Granularity = "year"
	GranularityTotal   Granularity = "total"
)

// ParseGranularity accepts the canonical names as well as the adverbial
// forms (daily, monthly, annual, ...) used by older report clients.
func ParseGranularity(s string) (Granularity, error) {
	switch strings.ToLower(s) {
	case "day", "daily":
		return GranularityDay, nil
	case "week", "weekly":
		return GranularityWeek, nil
	case "month", "monthly":
		return GranularityMonth, nil
	case "quarter", "quarterly":
		return GranularityQuarter, nil
	case "year", "yearly", "annual", "annually":
		return GranularityYear, nil
	case "total":
		return GranularityTotal, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownGranularity, s)
	}
}

func (g Granularity) Valid() error {
	_, err := ParseGranularity(string(g))
	return err
}

// Period is one calendar bucket of a query window
type Period struct {
	Label string
	Start time.Time
	End   time.Time
}

// Floor returns the start of the calendar period containing t. Weeks are
// ISO-8601 weeks beginning on Monday and quarters are calendar quarters.
// Alignment happens in t's location.
func (g Granularity) Floor(t time.Time) time.Time {
	loc := t.Location()
	switch g {
	case GranularityDay:
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
	case GranularityWeek:
		day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
		offset := (int(day.Weekday()) + 6) % 7
		return day.AddDate(0, 0, -offset)
	case GranularityMonth:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, loc)
	case GranularityQuarter:
		month := ((t.Month()-1)/3)*3 + 1
		return time.Date(t.Year(), month, 1, 0, 0, 0, 0, loc)
	case GranularityYear:
		return time.Date(t.Year(), 1, 1, 0, 0, 0, 0, loc)
	default:
		return t
	}
}

// Next returns the start of the period following the aligned period start
func (g Granularity) Next(aligned time.Time) time.Time {
	switch g {
	case GranularityDay:
		return aligned.AddDate(0, 0, 1)
	case GranularityWeek:
		return aligned.AddDate(0, 0, 7)
	case GranularityMonth:
		return aligned.AddDate(0, 1, 0)
	case GranularityQuarter:
		return aligned.AddDate(0, 3, 0)
	case GranularityYear:
		return aligned.AddDate(1, 0, 0)
	default:
		return aligned
	}
}

// Label formats the period containing t, e.g. `2023/01` for a month or
// `2023/Q1` for a quarter
func (g Granularity) Label(t time.Time) string {
	switch g {
	case GranularityDay:
		return t.Format("2006/01/02")
	case GranularityWeek:
		year, week := t.ISOWeek()
		return fmt.Sprintf("%d/W%02d", year, week)
	case GranularityMonth:
		return t.Format("2006/01")
	case GranularityQuarter:
		return fmt.Sprintf("%d/Q%d", t.Year(), (int(t.Month())-1)/3+1)
	case GranularityYear:
		return t.Format("2006")
	default:
		return string(GranularityTotal)
	}
}

// Periods splits [start, end) into chronologically ordered calendar periods.
// The first and last period are clipped to the window so the periods are
// contiguous and exactly cover it.
func Periods(start, end time.Time, granularity Granularity) ([]Period, error) {
	if err := granularity.Valid(); err != nil {
		return nil, err
	}
	if start.After(end) {
		return nil, ErrInvalidTimeRange
	}

	periods := make([]Period, 0)
	if start.Equal(end) {
		return periods, nil
	}

	if granularity == GranularityTotal {
		return append(periods, Period{
			Label: granularity.Label(start),
			Start: start,
			End:   end,
		}), nil
	}

	cur := start
	for cur.Before(end) {
		aligned := granularity.Floor(cur)
		periodEnd := granularity.Next(aligned)
		if periodEnd.After(end) {
			periodEnd = end
		}
		periods = append(periods, Period{
			Label: granularity.Label(aligned),
			Start: cur,
			End:   periodEnd,
		})
		cur = periodEnd
	}

	return periods, nil
}

// SpannedPeriods counts the calendar periods touched by the interval. Point
// intervals and the total granularity always span exactly one period.
func (g Granularity) SpannedPeriods(interval *Interval) int {
	if g == GranularityTotal || interval.IsInstant() {
		return 1
	}

	count := 0
	for cur := g.Floor(interval.Begin); cur.Before(interval.End); cur = g.Next(cur) {
		count++
	}
	return count
}
