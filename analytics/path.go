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
)

const PathSeparator = "/"

// Path is an immutable hierarchical identifier such as
// `atlas/legacy/core-units/SES`. It addresses both dimension values and
// series sources. The zero value is the empty (root) path.
type Path struct {
	segments []string
}

// ParsePath splits s on '/' and returns the resulting Path. The empty
// string yields the root path; any empty segment (leading, trailing or
// doubled separators) is rejected.
func ParsePath(s string) (Path, error) {
	if s == "" {
		return Path{}, nil
	}

	parts := strings.Split(s, PathSeparator)
	for idx, part := range parts {
		if part == "" {
			return Path{}, fmt.Errorf("%w: %q has an empty segment at position %d", ErrInvalidPath, s, idx)
		}
	}

	return Path{segments: parts}, nil
}

// MustParsePath is like ParsePath but panics on malformed input. Use it for
// constants.
func MustParsePath(s string) Path {
	p, err := ParsePath(s)
	if err != nil {
		panic(err)
	}
	return p
}

func (p Path) String() string {
	return strings.Join(p.segments, PathSeparator)
}

// Len returns the number of segments
func (p Path) Len() int {
	return len(p.segments)
}

func (p Path) IsEmpty() bool {
	return len(p.segments) == 0
}

// Segments returns a copy of the path segments
func (p Path) Segments() []string {
	res := make([]string, len(p.segments))
	copy(res, p.segments)
	return res
}

// ApplyLod truncates the path to its first n segments. Paths with n or fewer
// segments are returned unchanged and n <= 0 yields the root path.
func (p Path) ApplyLod(n int) Path {
	if n <= 0 {
		return Path{}
	}
	if n >= len(p.segments) {
		return p
	}
	// segments are never mutated so sharing the backing array is safe
	return Path{segments: p.segments[:n:n]}
}

// StartsWith compares segment-wise; `atlas/legacy` starts with `atlas` but
// `atlasx/legacy` does not.
func (p Path) StartsWith(prefix Path) bool {
	if len(prefix.segments) > len(p.segments) {
		return false
	}
	for idx, seg := range prefix.segments {
		if p.segments[idx] != seg {
			return false
		}
	}
	return true
}

func (p Path) Equal(other Path) bool {
	return len(p.segments) == len(other.segments) && p.StartsWith(other)
}

func (p Path) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *Path) UnmarshalText(text []byte) error {
	parsed, err := ParsePath(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}
