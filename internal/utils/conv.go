package utils

import (
	"strconv"
	"strings"
)

// StringToInt converts string to int, returns 0 if error
func StringToInt(s string) int {
	i, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return i
}

// ParseID parses a positive database id. The "comment-" prefix used by DOM ids is accepted.
func ParseID(s string) (uint, bool) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "comment-")
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}

// ParseOffset returns a non-negative offset, 0 for junk input.
func ParseOffset(s string) int {
	if n := StringToInt(s); n > 0 {
		return n
	}
	return 0
}
