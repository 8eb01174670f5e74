/*
 * Copyright 2025 Herdworks, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package hub

import (
	"fmt"
	"strings"
)

// ValidatePattern rejects patterns with empty segments or a `**` anywhere
// but the final segment.
func ValidatePattern(pattern string) error {
	if pattern == "" {
		return fmt.Errorf("%w: empty pattern", ErrInvalidPattern)
	}

	segments := strings.Split(pattern, "/")

	for i, segment := range segments {
		if segment == "" {
			return fmt.Errorf("%w: empty segment in %q", ErrInvalidPattern, pattern)
		}

		if segment == "**" && i != len(segments)-1 {
			return fmt.Errorf("%w: ** must be the final segment in %q", ErrInvalidPattern, pattern)
		}
	}

	return nil
}

// MatchTopic reports whether a concrete topic matches a pattern. Both are
// split on "/" and compared segment by segment: `*` consumes exactly one
// segment, a final `**` consumes one or more remaining segments, and a
// pattern with fewer segments than the topic and no `**` does not match.
func MatchTopic(pattern, topic string) bool {
	patSegments := strings.Split(pattern, "/")
	topicSegments := strings.Split(topic, "/")

	for i, segment := range patSegments {
		if segment == "**" {
			return i == len(patSegments)-1 && len(topicSegments) > i
		}

		if i >= len(topicSegments) {
			return false
		}

		if segment == "*" {
			continue
		}

		if segment != topicSegments[i] {
			return false
		}
	}

	return len(topicSegments) == len(patSegments)
}
