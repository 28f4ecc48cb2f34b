// Package dept canonicalizes free-text organizational-unit labels. Every
// department comparison in the engine goes through this package; raw string
// equality against team labels is an authorization bug.
package dept

import "strings"

// aliasClasses groups historically-used spellings of the same department.
// Each class is symmetric: every member expands to the full class.
var aliasClasses = [][]string{
	{"qa", "testing", "quality assurance", "qa/testing", "qa testing", "quality"},
	{"development", "dev", "engineering", "software development", "backend", "software engineering"},
	{"design", "ui", "ux", "ui/ux", "ui ux design", "product design"},
	{"research", "r&d", "r & d", "research and development"},
	{"devops", "operations", "ops", "infrastructure", "infra"},
	{"mobile", "app development", "mobile development"},
	{"marketing", "growth"},
	{"data", "data science", "analytics"},
}

var classOf = buildIndex()

func buildIndex() map[string]int {
	idx := make(map[string]int)
	for i, class := range aliasClasses {
		for _, label := range class {
			idx[canon(label)] = i
		}
	}
	return idx
}

// canon strips case and all non-alphanumeric characters.
func canon(label string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(label) {
		if r >= 'a' && r <= 'z' || r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Normalize returns the canonical key for a label: the first member of its
// alias class, or the stripped label itself when the label is unknown.
// Unknown labels are not an error; they just never alias to anything else.
func Normalize(label string) string {
	key := canon(label)
	if i, ok := classOf[key]; ok {
		return canon(aliasClasses[i][0])
	}
	return key
}

// ExpandAliases returns every canonical key the label is equivalent to.
// Unknown labels expand to just themselves.
func ExpandAliases(label string) []string {
	key := canon(label)
	i, ok := classOf[key]
	if !ok {
		return []string{key}
	}
	out := make([]string, 0, len(aliasClasses[i]))
	for _, v := range aliasClasses[i] {
		out = append(out, canon(v))
	}
	return out
}

// Matches reports whether two labels refer to the same department, i.e.
// their alias expansions intersect.
func Matches(a, b string) bool {
	set := map[string]bool{}
	for _, k := range ExpandAliases(a) {
		set[k] = true
	}
	for _, k := range ExpandAliases(b) {
		if set[k] {
			return true
		}
	}
	return false
}

// MatchesAny reports whether label matches at least one of the given labels.
func MatchesAny(label string, labels []string) bool {
	for _, l := range labels {
		if Matches(label, l) {
			return true
		}
	}
	return false
}
