package runtime

import (
	"regexp"
	"strings"
)

// Interpolator renders node text against the session variables.
type Interpolator func(text string, vars map[string]any) string

var placeholder = regexp.MustCompile(`\{\{\s*([A-Za-z_][\w.]*)\s*\}\}|\{([A-Za-z_][\w.]*)\}`)

// DefaultInterpolator replaces {{name}} and {name} with the value of the variable.
// Dotted names walk nested objects. Unknown names are left untouched.
func DefaultInterpolator(text string, vars map[string]any) string {
	if !strings.Contains(text, "{") || len(vars) == 0 {
		return text
	}
	return placeholder.ReplaceAllStringFunc(text, func(match string) string {
		groups := placeholder.FindStringSubmatch(match)
		name := groups[1]
		if name == "" {
			name = groups[2]
		}
		value, ok := lookup(vars, name)
		if !ok {
			return match
		}
		return Stringify(value)
	})
}

func lookup(vars map[string]any, path string) (any, bool) {
	var current any = vars
	for _, key := range strings.Split(path, ".") {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = m[key]
		if !ok {
			return nil, false
		}
	}
	return current, true
}
