package router

import "strings"

// MatchOption resolves a free-text answer to one of the offered quick replies.
// Strategies run in order across all options: exact match, prefix in either
// direction, then substring containment in either direction. Comparison ignores
// case and surrounding whitespace.
func MatchOption(msg string, options []string) (string, bool) {
	m := fold(msg)
	if m == "" {
		return "", false
	}
	strategies := []func(m, o string) bool{
		func(m, o string) bool { return m == o },
		func(m, o string) bool { return strings.HasPrefix(m, o) || strings.HasPrefix(o, m) },
		func(m, o string) bool { return strings.Contains(m, o) || strings.Contains(o, m) },
	}
	for _, match := range strategies {
		for _, opt := range options {
			o := fold(opt)
			if o != "" && match(m, o) {
				return opt, true
			}
		}
	}
	return "", false
}

func fold(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
