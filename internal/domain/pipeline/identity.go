package pipeline

import (
	"regexp"
	"strings"
)

// keyEscapes covers characters that are structural in hierarchical document
// paths. Parentheses are escaped too so a literal "(dot)" in an address cannot
// collide with an escaped '.'.
var keyEscapes = strings.NewReplacer(
	"(", "(lparen)",
	")", "(rparen)",
	".", "(dot)",
	"/", "(slash)",
	"#", "(hash)",
	"$", "(dollar)",
	"[", "(lbracket)",
	"]", "(rbracket)",
)

// ParticipantKey maps an email address to the stable identifier used as the
// participant's document key in every stage.
func ParticipantKey(email string) string {
	return keyEscapes.Replace(strings.ToLower(strings.TrimSpace(email)))
}

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// ValidEmail reports whether s looks like an email address
func ValidEmail(s string) bool {
	return emailPattern.MatchString(strings.TrimSpace(s))
}

// keyFor accepts either a participant key or a raw email address.
// Keys never contain '.', so anything that still looks like an email is keyed.
func keyFor(keyOrEmail string) string {
	if strings.Contains(keyOrEmail, "@") && strings.Contains(keyOrEmail, ".") {
		return ParticipantKey(keyOrEmail)
	}
	return strings.TrimSpace(keyOrEmail)
}
