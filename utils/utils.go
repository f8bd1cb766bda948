// Package utils provides utility functions for the application.
package utils

import (
	"fmt"
	"strings"
)

func ToPtr[T any](v T) *T {
	return &v
}

// ParseBoolToken accepts the boolean spellings used by query strings: true/false, t/f, yes/no,
// y/n, on/off and 1/0, in any case.
func ParseBoolToken(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "t", "yes", "y", "on", "1":
		return true, nil
	case "false", "f", "no", "n", "off", "0":
		return false, nil
	}
	return false, fmt.Errorf("invalid boolean value %q", s)
}

// SplitList splits a comma separated value, trimming items and dropping empty ones.
func SplitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// Unique returns items without duplicates, keeping first occurrences in order.
func Unique[T comparable](items []T) []T {
	seen := make(map[T]struct{}, len(items))
	out := make([]T, 0, len(items))
	for _, it := range items {
		if _, ok := seen[it]; ok {
			continue
		}
		seen[it] = struct{}{}
		out = append(out, it)
	}
	return out
}
