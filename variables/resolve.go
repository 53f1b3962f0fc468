// Package variables substitutes named placeholders in email subjects and
// bodies. The placeholder syntax is {name}; resolution is a single flat
// pass and unknown placeholders are left in place so missing bindings stay
// visible in previews.
package variables

import (
	"regexp"
)

const namePattern = `[A-Za-z_][A-Za-z0-9_.-]*`

var (
	placeholderRe = regexp.MustCompile(`\{(` + namePattern + `)\}`)
	legacyRe      = regexp.MustCompile(`\{\{\s*(` + namePattern + `)\s*\}\}`)
	nameRe        = regexp.MustCompile(`^` + namePattern + `$`)
)

// ValidName reports whether name can appear inside a placeholder.
func ValidName(name string) bool {
	return nameRe.MatchString(name)
}

// Resolve replaces every {name} in text with vars[name]. Substituted values
// are not re-scanned, and names missing from vars are left as {name}.
func Resolve(text string, vars map[string]string) string {
	return placeholderRe.ReplaceAllStringFunc(text, func(m string) string {
		name := m[1 : len(m)-1]
		if v, ok := vars[name]; ok {
			return v
		}
		return m
	})
}

// NormalizeLegacy rewrites {{name}} placeholders to {name}.
func NormalizeLegacy(text string) string {
	return legacyRe.ReplaceAllString(text, "{$1}")
}

// Placeholders returns the distinct placeholder names in text, in order of
// first appearance.
func Placeholders(text string) []string {
	seen := map[string]bool{}
	var names []string
	for _, m := range placeholderRe.FindAllStringSubmatch(text, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			names = append(names, m[1])
		}
	}
	return names
}

// Missing returns placeholder names in text that have no entry in vars.
func Missing(text string, vars map[string]string) []string {
	var missing []string
	for _, name := range Placeholders(text) {
		if _, ok := vars[name]; !ok {
			missing = append(missing, name)
		}
	}
	return missing
}
