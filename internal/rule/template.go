package rule

import "regexp"

// placeholderPattern matches {{fieldName}} references in channel
// message templates.
var placeholderPattern = regexp.MustCompile(`\{\{([a-zA-Z_][a-zA-Z0-9_]*)\}\}`)

// Render substitutes {{fieldName}} placeholders in a message template
// with values from the triggering event. Placeholders that do not
// resolve to a fact are left literal.
func Render(template string, e *Event) string {
	if template == "" {
		return ""
	}
	return placeholderPattern.ReplaceAllStringFunc(template, func(match string) string {
		name := match[2 : len(match)-2]
		if value, ok := e.Facts[name]; ok {
			return value.Text()
		}
		return match
	})
}
