package preprocess

import (
	"regexp"
	"strings"

	"github.com/Iron-Ham/holrepl/internal/errors"
)

// quotation matches a HOL term quotation in any of its four spellings. It
// has four capturing groups, one per spelling.
const quotation = "(?:‘([^’]*)’|“([^”]*)”|``([^`]*)``|`([^`]*)`)"

var (
	theoremHeader = regexp.MustCompile(`(?m)^(?:Theorem|Triviality)\s+[A-Za-z0-9_']+(?:\[[^\]\n]*\])?\s*:`)
	proofKeyword  = regexp.MustCompile(`(?m)^Proof\b`)
	qedKeyword    = regexp.MustCompile(`(?m)^QED\b`)

	goalCall  = regexp.MustCompile(`\b(?:store_thm\s*\(\s*"[^"]*"\s*,|prove\s*\()\s*` + quotation)
	termQuote = regexp.MustCompile(quotation)

	subgoalPatterns = []*regexp.Regexp{
		regexp.MustCompile(quotation + `\s*(?:suffices_by|by)\b`),
		regexp.MustCompile(`\bsg\s*` + quotation),
	}
)

// ExtractGoal returns the goal of the proof enclosing offset: the statement
// of a Theorem or Triviality block, the term of a store_thm or prove call,
// or failing both the quotation offset falls in. The error wraps
// errors.ErrNoGoal when there is none.
func ExtractGoal(text string, offset int) (string, error) {
	if offset < 0 || offset > len(text) {
		return "", errors.NewPreprocessError(errors.ErrNoGoal, offset)
	}
	for _, find := range []func(string, int) (string, bool){theoremGoal, callGoal, quotedGoal} {
		if goal, ok := find(text, offset); ok {
			return goal, nil
		}
	}
	return "", errors.NewPreprocessError(errors.ErrNoGoal, offset)
}

// GoalCommand returns the proof manager command that sets goal.
func GoalCommand(goal string) string {
	return "proofManagerLib.g ‘" + goal + "’"
}

// ExtractSubgoal returns the term of the first "‘t’ by", "‘t’ suffices_by"
// or "sg ‘t’" in a selected fragment. The error wraps errors.ErrNoSubgoal
// when there is none.
func ExtractSubgoal(text string) (string, error) {
	best, term := -1, ""
	for _, re := range subgoalPatterns {
		loc := re.FindStringSubmatchIndex(text)
		if loc == nil || (best >= 0 && loc[0] >= best) {
			continue
		}
		if t := strings.TrimSpace(quoted(text, loc, 1)); t != "" {
			best, term = loc[0], t
		}
	}
	if best < 0 {
		return "", errors.NewPreprocessError(errors.ErrNoSubgoal, -1)
	}
	return term, nil
}

// SubgoalCommand returns the proof manager command that opens term as a
// new subgoal.
func SubgoalCommand(term string) string {
	return "proofManagerLib.e (sg ‘" + term + "’)"
}

// theoremGoal finds the Theorem block whose header starts at or before
// offset and whose QED is at or after it. A block with no QED yet extends
// to the next header.
func theoremGoal(text string, offset int) (string, bool) {
	headers := theoremHeader.FindAllStringIndex(text, -1)
	for i, h := range headers {
		if h[0] > offset {
			break
		}
		proof := proofKeyword.FindStringIndex(text[h[1]:])
		if proof == nil {
			continue
		}
		bodyEnd := h[1] + proof[0]

		end := len(text)
		if i+1 < len(headers) {
			end = headers[i+1][0]
		}
		if bodyEnd > end {
			continue
		}
		if qed := qedKeyword.FindStringIndex(text[bodyEnd:end]); qed != nil {
			end = bodyEnd + qed[1]
		}
		if offset > end {
			continue
		}
		if goal := strings.TrimSpace(text[h[1]:bodyEnd]); goal != "" {
			return goal, true
		}
	}
	return "", false
}

// callGoal finds a store_thm or prove call that starts at or before offset
// and whose statement has not ended before it.
func callGoal(text string, offset int) (string, bool) {
	var goal string
	var found bool
	for _, loc := range goalCall.FindAllStringSubmatchIndex(text, -1) {
		if loc[0] > offset {
			break
		}
		end := len(text)
		if semi := strings.IndexByte(text[loc[1]:], ';'); semi >= 0 {
			end = loc[1] + semi + 1
		}
		if offset <= end {
			goal, found = strings.TrimSpace(quoted(text, loc, 1)), true
		}
	}
	return goal, found && goal != ""
}

func quotedGoal(text string, offset int) (string, bool) {
	for _, loc := range termQuote.FindAllStringSubmatchIndex(text, -1) {
		if loc[0] <= offset && offset <= loc[1] {
			goal := strings.TrimSpace(quoted(text, loc, 1))
			return goal, goal != ""
		}
	}
	return "", false
}

// quoted returns the body of whichever quotation group participated in a
// match, starting at capturing group first.
func quoted(text string, loc []int, first int) string {
	for g := first; g < first+4; g++ {
		if start := loc[2*g]; start >= 0 {
			return text[start:loc[2*g+1]]
		}
	}
	return ""
}
