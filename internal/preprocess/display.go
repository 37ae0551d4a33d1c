package preprocess

import "strings"

// DisplayForm returns text as it should be shown in place of the raw
// submission: trailing spaces removed from each line, runs of blank lines
// collapsed to one, and surrounding blank lines dropped.
func DisplayForm(text string) string {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	out := make([]string, 0, len(lines))
	blank := false
	for _, line := range lines {
		line = strings.TrimRight(line, " \t")
		if line == "" {
			if blank || len(out) == 0 {
				continue
			}
			blank = true
		} else {
			blank = false
		}
		out = append(out, line)
	}
	return strings.TrimRight(strings.Join(out, "\n"), "\n")
}
