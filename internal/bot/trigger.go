// ABOUTME: Mention detection for @botname tokens in message content
// ABOUTME: Matching is case-insensitive and bounded on both sides by non-name characters

package bot

import "strings"

func isNameChar(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '_' || c == '-'
}

// Mentions returns the bots in names mentioned as @name in content, in order
// of first appearance. "mail@curator.com"-style text does not count.
func Mentions(content string, names []string) []string {
	known := make(map[string]string, len(names))
	for _, n := range names {
		known[strings.ToLower(n)] = n
	}

	var found []string
	seen := make(map[string]struct{})
	for i := 0; i < len(content); i++ {
		if content[i] != '@' {
			continue
		}
		if i > 0 && isNameChar(content[i-1]) {
			continue
		}
		j := i + 1
		for j < len(content) && isNameChar(content[j]) {
			j++
		}
		// Trailing hyphens are punctuation, not part of the name.
		token := strings.ToLower(strings.TrimRight(content[i+1:j], "-"))
		if name, ok := known[token]; ok {
			if _, dup := seen[name]; !dup {
				seen[name] = struct{}{}
				found = append(found, name)
			}
		}
		i = j - 1
	}
	return found
}
