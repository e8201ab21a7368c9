// Copyright (C) 2020 Storj Labs, Inc.
// See LICENSE for copying information.

package redis

import "strings"

// prefixPattern returns a SCAN pattern that matches keys starting with
// prefix, treating glob characters in prefix literally.
func prefixPattern(prefix string) string {
	var pattern strings.Builder
	for _, r := range prefix {
		switch r {
		case '?', '*', '[', ']', '\\':
			pattern.WriteByte('\\')
		}
		pattern.WriteRune(r)
	}
	pattern.WriteByte('*')
	return pattern.String()
}
