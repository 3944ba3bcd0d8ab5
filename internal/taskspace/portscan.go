// Copyright 2026 The Switcheroo Authors
// SPDX-License-Identifier: Apache-2.0

package taskspace

import (
	"regexp"
	"strconv"
)

// portPatterns are tried in order against each line of the editor
// server's stdout; the first match wins. Order matters: the
// announcement line is checked first because it is the most specific
// signal, before falling back to any bare "host:port" occurrence.
var portPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)web ui available at .*:(\d+)`),
	regexp.MustCompile(`localhost:(\d+)`),
	regexp.MustCompile(`127\.0\.0\.1:(\d+)`),
	regexp.MustCompile(`0\.0\.0\.0:(\d+)`),
}

// ScanPortFromLine returns the first port number matched in line by any
// of portPatterns in order, or 0 if none match.
func ScanPortFromLine(line string) int {
	for _, pattern := range portPatterns {
		if match := pattern.FindStringSubmatch(line); match != nil {
			port, err := strconv.Atoi(match[1])
			if err != nil {
				return 0
			}
			return port
		}
	}
	return 0
}
