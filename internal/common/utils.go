package common

import "strings"

// ErrorHasAny reports whether err's message contains any of the substrings.
// Drivers that do not expose typed errors are matched this way.
func ErrorHasAny(err error, subs ...string) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, sub := range subs {
		if sub != "" && strings.Contains(msg, sub) {
			return true
		}
	}
	return false
}
