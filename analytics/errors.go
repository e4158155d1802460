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

import "errors"

var (
	ErrInvalidPath         = errors.New("invalid path; segments must be non-empty")
	ErrInvalidTimeRange    = errors.New("start must not be after end")
	ErrUnknownGranularity  = errors.New("unknown granularity")
	ErrUnknownSpreadFn     = errors.New("unknown spread function")
	ErrUnknownOperator     = errors.New("unknown compound operator")
	ErrOperatorMismatch    = errors.New("operator is not valid for this operation")
	ErrMissingOperand      = errors.New("operand value missing for period")
	ErrInvalidSeries       = errors.New("invalid series")
	ErrSourceOutsidePrefix = errors.New("series source is outside of the reload prefix")
	ErrNoConversions       = errors.New("multi-currency conversion has no target currency")
)

// IsInputError reports whether err was caused by malformed caller input
// as opposed to a failure in the store.
func IsInputError(err error) bool {
	for _, target := range []error{
		ErrInvalidPath,
		ErrInvalidTimeRange,
		ErrUnknownGranularity,
		ErrUnknownSpreadFn,
		ErrUnknownOperator,
		ErrOperatorMismatch,
		ErrInvalidSeries,
		ErrSourceOutsidePrefix,
		ErrNoConversions,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
