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
	"sort"
)

// Operator combines two query results. It is implemented only by
// VectorOperator and ScalarOperator.
type Operator interface {
	fmt.Stringer
	operator()
}

// VectorOperator merges two period-aligned result sets row by row
type VectorOperator int

const (
	VectorAdd VectorOperator = iota
	VectorSubtract
)

func (VectorOperator) operator() {}

func (op VectorOperator) String() string {
	switch op {
	case VectorAdd:
		return "VectorAdd"
	case VectorSubtract:
		return "VectorSubtract"
	default:
		return fmt.Sprintf("VectorOperator(%d)", int(op))
	}
}

func (op VectorOperator) apply(a, b float64) float64 {
	switch op {
	case VectorSubtract:
		return a - b
	default:
		return a + b
	}
}

// ScalarOperator scales every row of a result set by a per-period scalar
type ScalarOperator int

const (
	ScalarMultiply ScalarOperator = iota
	ScalarDivide
)

func (ScalarOperator) operator() {}

func (op ScalarOperator) String() string {
	switch op {
	case ScalarMultiply:
		return "ScalarMultiply"
	case ScalarDivide:
		return "ScalarDivide"
	default:
		return fmt.Sprintf("ScalarOperator(%d)", int(op))
	}
}

// apply returns false when the result is undefined
func (op ScalarOperator) apply(value, scalar float64) (float64, bool) {
	switch op {
	case ScalarDivide:
		if scalar == 0 {
			return 0, false
		}
		return value / scalar, true
	default:
		return value * scalar, true
	}
}

// ParseOperator maps a wire name to its operator
func ParseOperator(name string) (Operator, error) {
	switch name {
	case "VectorAdd":
		return VectorAdd, nil
	case "VectorSubtract":
		return VectorSubtract, nil
	case "ScalarMultiply":
		return ScalarMultiply, nil
	case "ScalarDivide":
		return ScalarDivide, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownOperator, name)
	}
}

// ApplyVector merges a and b by (period, dimensions, metric, unit). A row
// present on only one side is combined with zero. When resultCurrency is set
// units are not part of the key: rows of one side sharing dimensions and
// metric are summed first and the result takes resultCurrency as its unit. Sums are combined when both sides carry one,
// otherwise the result sum is UnusedSum.
func ApplyVector(a, b GroupedPeriodResults, op Operator, resultCurrency string) (GroupedPeriodResults, error) {
	vectorOp, ok := op.(VectorOperator)
	if !ok {
		return nil, fmt.Errorf("%w: %s passed to vector operation", ErrOperatorMismatch, op)
	}

	bByPeriod := make(map[string]*GroupedPeriodResult, len(b))
	for _, p := range b {
		bByPeriod[p.Period] = p
	}

	seen := make(map[string]bool, len(a))
	result := make(GroupedPeriodResults, 0, len(a))
	for _, pa := range a {
		seen[pa.Period] = true
		result = append(result, mergePeriod(pa, bByPeriod[pa.Period], vectorOp, resultCurrency))
	}
	for _, pb := range b {
		if !seen[pb.Period] {
			result = append(result, mergePeriod(nil, pb, vectorOp, resultCurrency))
		}
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Start.Before(result[j].Start)
	})

	return result, nil
}

func mergePeriod(pa, pb *GroupedPeriodResult, op VectorOperator, resultCurrency string) *GroupedPeriodResult {
	var out *GroupedPeriodResult
	var aRows, bRows []*Row
	if pa != nil {
		out = &GroupedPeriodResult{Period: pa.Period, Start: pa.Start, End: pa.End}
		aRows = pa.Rows
	} else {
		out = &GroupedPeriodResult{Period: pb.Period, Start: pb.Start, End: pb.End}
	}
	if pb != nil {
		bRows = pb.Rows
	}

	keyFn := func(row *Row) string { return row.GroupKey() + "|" + row.Unit }
	if resultCurrency != "" {
		keyFn = (*Row).GroupKey
	}
	aRows = collapseRows(aRows, keyFn)
	bRows = collapseRows(bRows, keyFn)

	bIndex := make(map[string]*Row, len(bRows))
	for _, row := range bRows {
		bIndex[keyFn(row)] = row
	}

	out.Rows = make([]*Row, 0, len(aRows)+len(bRows))
	matched := make(map[string]bool, len(bRows))
	for _, ra := range aRows {
		key := keyFn(ra)
		matched[key] = true
		out.Rows = append(out.Rows, mergeRows(ra, bIndex[key], op, resultCurrency))
	}
	for _, rb := range bRows {
		if !matched[keyFn(rb)] {
			out.Rows = append(out.Rows, mergeRows(nil, rb, op, resultCurrency))
		}
	}

	out.SortRows()
	return out
}

// collapseRows sums rows sharing a key so each key appears once. Order of
// first appearance is kept.
func collapseRows(rows []*Row, keyFn func(*Row) string) []*Row {
	res := make([]*Row, 0, len(rows))
	byKey := make(map[string]*Row, len(rows))
	for _, row := range rows {
		key := keyFn(row)
		acc, ok := byKey[key]
		if !ok {
			acc = row.clone()
			byKey[key] = acc
			res = append(res, acc)
			continue
		}
		acc.Value += row.Value
		if acc.Sum == UnusedSum || row.Sum == UnusedSum {
			acc.Sum = UnusedSum
		} else {
			acc.Sum += row.Sum
		}
		acc.OperandMissing = acc.OperandMissing || row.OperandMissing
		fillMetadata(acc.Dimensions, row.Dimensions)
	}
	return res
}

func mergeRows(ra, rb *Row, op VectorOperator, resultCurrency string) *Row {
	var res *Row
	aValue, bValue := 0.0, 0.0
	aSum, bSum := 0.0, 0.0
	missing := false

	if ra != nil {
		res = ra.clone()
		aValue, aSum = ra.Value, ra.Sum
		missing = ra.OperandMissing
	} else {
		res = rb.clone()
	}
	if rb != nil {
		bValue, bSum = rb.Value, rb.Sum
		missing = missing || rb.OperandMissing
		if ra != nil {
			fillMetadata(res.Dimensions, rb.Dimensions)
		}
	}

	res.Value = op.apply(aValue, bValue)
	if aSum == UnusedSum || bSum == UnusedSum {
		res.Sum = UnusedSum
	} else {
		res.Sum = op.apply(aSum, bSum)
	}
	res.OperandMissing = missing
	if resultCurrency != "" {
		res.Unit = resultCurrency
	}
	return res
}

// ApplyScalar scales every row of inputs by the operand's scalar for the same
// period: the first operand row's Sum when useSum is set, otherwise its
// Value. Periods with no operand row, or a zero divisor, produce rows with
// value 0 and OperandMissing set.
func ApplyScalar(inputs, operand GroupedPeriodResults, op Operator, useSum bool, resultCurrency string) (GroupedPeriodResults, error) {
	scalarOp, ok := op.(ScalarOperator)
	if !ok {
		return nil, fmt.Errorf("%w: %s passed to scalar operation", ErrOperatorMismatch, op)
	}

	scalars := make(map[string]float64, len(operand))
	for _, p := range operand {
		if len(p.Rows) == 0 {
			continue
		}
		if useSum {
			scalars[p.Period] = p.Rows[0].Sum
		} else {
			scalars[p.Period] = p.Rows[0].Value
		}
	}

	result := make(GroupedPeriodResults, 0, len(inputs))
	for _, p := range inputs {
		scalar, found := scalars[p.Period]
		out := &GroupedPeriodResult{
			Period: p.Period,
			Start:  p.Start,
			End:    p.End,
			Rows:   make([]*Row, 0, len(p.Rows)),
		}
		for _, row := range p.Rows {
			res := row.clone()
			res.Sum = UnusedSum
			if resultCurrency != "" {
				res.Unit = resultCurrency
			}
			value, defined := scalarOp.apply(row.Value, scalar)
			if !found || !defined {
				res.Value = 0
				res.OperandMissing = true
			} else {
				res.Value = value
			}
			out.Rows = append(out.Rows, res)
		}
		result = append(result, out)
	}

	return result, nil
}
