package cherry

import "strings"

// reactionEmoji converts an emoji as written in a message
// (`<:name:id>` or `<a:name:id>`) into the form the reactions endpoint
// expects (`name:id`). Unicode emoji are returned unchanged.
func reactionEmoji(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "<") || !strings.HasSuffix(s, ">") {
		return s
	}
	s = strings.TrimSuffix(strings.TrimPrefix(s, "<"), ">")
	s = strings.TrimPrefix(s, "a")
	return strings.TrimPrefix(s, ":")
}
