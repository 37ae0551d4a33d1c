package preprocess

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// combinators that may dangle at either end of a selected tactic. Longer
// tokens come first so that THENL is not read as THEN.
var combinators = []string{
	"THENL", "THEN1", "THEN", "by",
	">>", `\\`, ">-", ">|", ">~",
	",", ";",
}

// TrimTactic strips whitespace and dangling tactic combinators from both
// ends of a selected proof fragment, so that "  >> simp[] THEN" becomes
// "simp[]".
func TrimTactic(text string) string {
	for {
		s := strings.TrimSpace(text)
		s = trimLeadingCombinator(s)
		s = trimTrailingCombinator(s)
		if s == text {
			return s
		}
		text = s
	}
}

// TacticCommand wraps a trimmed tactic for the proof manager. It returns ""
// when nothing is left after trimming.
func TacticCommand(text string) string {
	tac := TrimTactic(text)
	if tac == "" {
		return ""
	}
	return "proofManagerLib.e (" + tac + ")"
}

func trimLeadingCombinator(s string) string {
	for _, c := range combinators {
		if !strings.HasPrefix(s, c) {
			continue
		}
		if isWord(c) {
			next, _ := utf8.DecodeRuneInString(s[len(c):])
			if len(s) > len(c) && isIdent(next) {
				continue
			}
		}
		return s[len(c):]
	}
	return s
}

func trimTrailingCombinator(s string) string {
	for _, c := range combinators {
		if !strings.HasSuffix(s, c) {
			continue
		}
		if isWord(c) {
			prev, _ := utf8.DecodeLastRuneInString(s[:len(s)-len(c)])
			if len(s) > len(c) && isIdent(prev) {
				continue
			}
		}
		return s[:len(s)-len(c)]
	}
	return s
}

func isWord(token string) bool {
	r, _ := utf8.DecodeRuneInString(token)
	return unicode.IsLetter(r)
}

func isIdent(r rune) bool {
	return r == '_' || r == '\'' || unicode.IsLetter(r) || unicode.IsDigit(r)
}
