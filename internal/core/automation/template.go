package automation

import (
	"fmt"
	"regexp"
	"strings"
)

var placeholderRe = regexp.MustCompile(`\{\{\s*([^}]+?)\s*\}\}`)

// substitute replaces {{dot.path}} placeholders in a template with the
// matching values from trigger data. Unresolvable placeholders are left
// in place so a misconfigured template is visible in the output rather
// than silently blanked.
func substitute(template string, data map[string]interface{}) string {
	return placeholderRe.ReplaceAllStringFunc(template, func(match string) string {
		path := strings.TrimSpace(strings.Trim(match, "{}"))
		if value, ok := resolvePath(data, path); ok {
			return fmt.Sprintf("%v", value)
		}
		return match
	})
}
