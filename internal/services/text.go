package services

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// Length limits, in runes.
const (
	MaxChatRunes     = 1000
	MaxNicknameRunes = 32
	MinUsernameRunes = 3
	MaxUsernameRunes = 32
)

// whitespaceRE collapses consecutive whitespace to a single space.
var whitespaceRE = regexp.MustCompile(`\s+`)

var usernameRE = regexp.MustCompile(`^[\p{L}\p{N}_.-]+$`)

// normalizeContent trims and NFC-normalises chat text. Inner whitespace,
// including newlines, is preserved.
func normalizeContent(s string) string {
	return strings.TrimSpace(norm.NFC.String(s))
}

// normalizeNickname trims, NFC-normalises and collapses whitespace.
func normalizeNickname(s string) string {
	return whitespaceRE.ReplaceAllString(strings.TrimSpace(norm.NFC.String(s)), " ")
}

// normalizeUsername folds login names so "Alice" and "alice" are the same
// account. Casers are stateful, so one is built per call.
func normalizeUsername(s string) string {
	return cases.Lower(language.Und).String(strings.TrimSpace(norm.NFC.String(s)))
}

func validateNickname(field, nick string) error {
	n := utf8.RuneCountInString(nick)
	if n == 0 {
		return invalid(field, "must not be empty")
	}
	if n > MaxNicknameRunes {
		return invalid(field, "at most %d characters", MaxNicknameRunes)
	}
	return nil
}

func validateUsername(name string) error {
	n := utf8.RuneCountInString(name)
	if n < MinUsernameRunes || n > MaxUsernameRunes {
		return invalid("username", "must be %d..%d characters", MinUsernameRunes, MaxUsernameRunes)
	}
	if !usernameRE.MatchString(name) {
		return invalid("username", "letters, digits, '_', '.' and '-' only")
	}
	return nil
}
