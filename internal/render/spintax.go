// Package render turns campaign message templates into send-ready text.
package render

import (
	"regexp"
	"strings"
)

// GroupNameToken is replaced with the target group's subject at send time.
const GroupNameToken = "{group_name}"

// spintaxRe matches a single non-nested {opt1|opt2|...} group. A group must
// contain at least one pipe, so literal tokens like {group_name} pass
// through untouched. Nested groups are unsupported: the pattern only matches
// brace pairs with no inner braces, and anything else is left as-is.
var spintaxRe = regexp.MustCompile(`\{([^{}|]*(?:\|[^{}|]*)+)\}`)

// Spintax resolves every spintax group in one pass, choosing an option per
// occurrence via pick(n), which must return an index in [0,n).
func Spintax(message string, pick func(n int) int) string {
	return spintaxRe.ReplaceAllStringFunc(message, func(group string) string {
		options := strings.Split(group[1:len(group)-1], "|")
		return options[pick(len(options))]
	})
}

// GroupName substitutes the {group_name} token with the given subject.
func GroupName(message, subject string) string {
	return strings.ReplaceAll(message, GroupNameToken, subject)
}

// Message renders a campaign message for one target group: spintax first
// (when enabled), then group-name substitution.
func Message(message string, useSpintax bool, subject string, pick func(n int) int) string {
	if useSpintax {
		message = Spintax(message, pick)
	}
	return GroupName(message, subject)
}
