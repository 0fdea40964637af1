// Package mention decides which roster member a free-text message is
// addressed to. Pure string matching: no bus, no I/O.
package mention

import (
	"strings"

	"go-agent-fleet/internal/roster"
)

// accentTable maps precomposed accented letters to their base letter. The
// combining-mark strip alone misses these, so both passes run.
var accentTable = map[rune]rune{
	'á': 'a', 'é': 'e', 'í': 'i', 'ó': 'o', 'ú': 'u', 'ñ': 'n',
	'à': 'a', 'è': 'e', 'ì': 'i', 'ò': 'o', 'ù': 'u',
	'â': 'a', 'ê': 'e', 'î': 'i', 'ô': 'o', 'û': 'u',
	'ä': 'a', 'ë': 'e', 'ï': 'i', 'ö': 'o', 'ü': 'u',
}

var greetings = []string{"hola", "hi", "hello", "hey", "ola", "buenas"}

func normalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= 0x0300 && r <= 0x036f {
			continue // combining marks
		}
		if plain, ok := accentTable[r]; ok {
			r = plain
		}
		b.WriteRune(r)
	}
	return b.String()
}

// candidateNames returns the member's normalized display name and aliases,
// order preserved, empties dropped.
func candidateNames(m roster.Member) []string {
	names := make([]string, 0, 1+len(m.Aliases))
	if n := normalize(m.DisplayName); n != "" {
		names = append(names, n)
	}
	for _, a := range m.Aliases {
		if n := normalize(a); n != "" {
			names = append(names, n)
		}
	}
	return names
}

// matches applies the mention rules to normalized text for one candidate
// name, in priority order: @name, leading name:/name, greeting+name, and
// /talk name.
func matches(text, name string) bool {
	if strings.HasPrefix(text, "@"+name) || strings.Contains(text, " @"+name) {
		return true
	}
	if strings.HasPrefix(text, name+":") || strings.HasPrefix(text, name+",") {
		return true
	}
	for _, g := range greetings {
		if !strings.HasPrefix(text, g+" ") && !strings.HasPrefix(text, g+",") {
			continue
		}
		after := strings.TrimSpace(text[len(g):])
		if strings.HasPrefix(after, name+" ") ||
			strings.HasPrefix(after, name+",") ||
			strings.HasPrefix(after, name+":") {
			return true
		}
	}
	if strings.HasPrefix(text, "/talk ") {
		after := strings.TrimSpace(text[len("/talk "):])
		if strings.HasPrefix(after, name) {
			return true
		}
	}
	return false
}

// Detect returns the first roster member mentioned in the message, scanning
// the roster in its given order. Members without a display name are
// excluded from matching.
func Detect(message string, team []roster.Member) (roster.Member, bool) {
	if strings.TrimSpace(message) == "" || len(team) == 0 {
		return roster.Member{}, false
	}
	text := normalize(message)
	for _, m := range team {
		if strings.TrimSpace(m.DisplayName) == "" {
			continue
		}
		for _, name := range candidateNames(m) {
			if matches(text, name) {
				return m, true
			}
		}
	}
	return roster.Member{}, false
}
