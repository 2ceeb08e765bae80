// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package trigger

import (
	"fmt"
	"strings"

	"github.com/bureau-foundation/datapress/lib/workflow"
)

// MatchPath reports whether a slash-separated path matches a watch
// pattern. The pattern syntax is deliberately small:
//
//   - a literal segment matches itself byte-wise
//   - `*` within a segment matches any run of characters in that
//     segment (never a slash)
//   - a segment that is exactly `**` matches any number of segments;
//     in the middle of a pattern it may match zero ("a/**/b" matches
//     "a/b"), at the end it must match at least one ("data/**"
//     matches paths under data/, not the bare path "data")
//
// Syntactically invalid patterns (see ValidatePattern) never match.
func MatchPath(pattern, path string) bool {
	if ValidatePattern(pattern) != nil {
		return false
	}
	return matchSegments(strings.Split(pattern, "/"), strings.Split(path, "/"))
}

// MatchAny returns the paths that match at least one pattern,
// preserving the input order of paths. Patterns that fail
// ValidatePattern are skipped.
func MatchAny(patterns, paths []string) []string {
	var matched []string
	for _, path := range paths {
		for _, pattern := range patterns {
			if MatchPath(pattern, path) {
				matched = append(matched, path)
				break
			}
		}
	}
	return matched
}

// ValidatePattern checks watch pattern syntax. Returns nil for valid
// patterns. Invalid: empty patterns, empty segments (leading or
// trailing slash, "//"), and `**` combined with other characters in
// one segment ("a**" is almost always a typo for "a/**" or "a*").
func ValidatePattern(pattern string) error {
	if pattern == "" {
		return fmt.Errorf("empty pattern")
	}
	for _, segment := range strings.Split(pattern, "/") {
		if segment == "" {
			return fmt.Errorf("pattern %q has an empty segment", pattern)
		}
		if strings.Contains(segment, "**") && segment != "**" {
			return fmt.Errorf("pattern %q mixes ** with other characters in one segment", pattern)
		}
	}
	return nil
}

// ValidateRules checks every pattern in a trigger section and returns
// issues in the same human-readable form workflow.Validate uses. The
// runner merges these into its load-time validation so a bad pattern
// fails the run before evaluation instead of silently never matching.
func ValidateRules(rule workflow.Trigger) []string {
	var issues []string
	if rule.Push == nil {
		return nil
	}
	for index, pattern := range rule.Push.Paths {
		if err := ValidatePattern(pattern); err != nil {
			issues = append(issues, fmt.Sprintf("on.push.paths[%d]: %v", index, err))
		}
	}
	for index, pattern := range rule.Push.Branches {
		if err := ValidatePattern(pattern); err != nil {
			issues = append(issues, fmt.Sprintf("on.push.branches[%d]: %v", index, err))
		}
	}
	return issues
}

// matchSegments matches pattern segments against path segments with
// backtracking over `**`.
func matchSegments(pattern, path []string) bool {
	if len(pattern) == 0 {
		return len(path) == 0
	}

	if pattern[0] == "**" {
		if len(pattern) == 1 {
			// Trailing ** needs at least one segment: the watch
			// pattern "air_quality_raw.csv/**" covers paths under
			// the directory, not a file with the directory's name.
			return len(path) >= 1
		}
		for skip := 0; skip <= len(path); skip++ {
			if matchSegments(pattern[1:], path[skip:]) {
				return true
			}
		}
		return false
	}

	if len(path) == 0 {
		return false
	}
	if !matchSegment(pattern[0], path[0]) {
		return false
	}
	return matchSegments(pattern[1:], path[1:])
}

// matchSegment matches a single segment against a pattern segment
// containing literals and `*`. Iterative wildcard matching with
// single-star backtracking; linear in the segment length for
// realistic patterns.
func matchSegment(pattern, segment string) bool {
	patternIdx, segmentIdx := 0, 0
	starIdx, backtrack := -1, 0

	for segmentIdx < len(segment) {
		switch {
		case patternIdx < len(pattern) && pattern[patternIdx] == '*':
			starIdx = patternIdx
			backtrack = segmentIdx
			patternIdx++
		case patternIdx < len(pattern) && pattern[patternIdx] == segment[segmentIdx]:
			patternIdx++
			segmentIdx++
		case starIdx >= 0:
			// Let the last * swallow one more character and retry.
			patternIdx = starIdx + 1
			backtrack++
			segmentIdx = backtrack
		default:
			return false
		}
	}

	for patternIdx < len(pattern) && pattern[patternIdx] == '*' {
		patternIdx++
	}
	return patternIdx == len(pattern)
}
