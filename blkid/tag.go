// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package blkid

import (
	"fmt"
	"strings"
)

// ParseTagString splits a "NAME=value" device specification (e.g.
// "LABEL=rootfs" or `UUID="6014-3962"`).
//
// The tag name is a non-empty uppercase ASCII identifier. The value may be
// wrapped in double quotes; backslash escapes are honored inside quotes only.
func ParseTagString(spec string) (name, value string, err error) {
	name, rest, ok := strings.Cut(spec, "=")
	if !ok {
		return "", "", fmt.Errorf("not a NAME=value spec: %q", spec)
	}

	if !ValidTagName(name) {
		return "", "", fmt.Errorf("invalid tag name: %q", name)
	}

	if !strings.HasPrefix(rest, `"`) {
		return name, rest, nil
	}

	var sb strings.Builder

	escaped := false

	for i := 1; i < len(rest); i++ {
		c := rest[i]

		switch {
		case escaped:
			sb.WriteByte(c)

			escaped = false
		case c == '\\':
			escaped = true
		case c == '"':
			if i != len(rest)-1 {
				return "", "", fmt.Errorf("garbage after closing quote: %q", spec)
			}

			return name, sb.String(), nil
		default:
			sb.WriteByte(c)
		}
	}

	return "", "", fmt.Errorf("unbalanced quotes: %q", spec)
}

// ValidTagName reports whether s is a valid tag name: a non-empty uppercase
// ASCII identifier.
func ValidTagName(s string) bool {
	if s == "" {
		return false
	}

	for i := range len(s) {
		c := s[i]

		switch {
		case c >= 'A' && c <= 'Z':
		case c == '_':
		case c >= '0' && c <= '9':
			if i == 0 {
				return false
			}
		default:
			return false
		}
	}

	return true
}

// quoteTagValue renders a tag value for the cache file, quoting when needed.
func quoteTagValue(v string) string {
	if v != "" && !strings.ContainsAny(v, " \t\"\\") {
		return v
	}

	var sb strings.Builder

	sb.WriteByte('"')

	for i := range len(v) {
		if v[i] == '"' || v[i] == '\\' {
			sb.WriteByte('\\')
		}

		sb.WriteByte(v[i])
	}

	sb.WriteByte('"')

	return sb.String()
}
