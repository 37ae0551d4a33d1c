package preprocess

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
)

// openClause matches "open A B ...;" where each name is an SML identifier.
// Qualified or symbolic names are not valid structure names and are ignored.
// It is only applied to text masked by maskLiterals.
var openClause = regexp.MustCompile(`\bopen((?:\s+[A-Za-z][A-Za-z0-9_']*)+)\s*;`)

const quietToggle = "val _ = HOL_Interactive.toggle_quietdec();"

// ExpandImports rewrites text so that every structure it opens is loaded
// first. All open clauses are removed and replaced by a prelude:
//
//	val _ = print "Loading A B ...\n";
//	load "A";
//	load "B";
//	val _ = HOL_Interactive.toggle_quietdec();
//	open A B;
//	val _ = HOL_Interactive.toggle_quietdec();
//	val _ = print "Finished loading A B\n";
//
// followed by the remaining text. load directives are sorted and de-duplicated;
// the open clause keeps first-appearance order since later structures shadow
// earlier ones. Text without open clauses is returned with trailing
// whitespace removed.
//
// Clauses inside comments and string literals are left alone.
func ExpandImports(text string) string {
	spans, opened := findOpens(text)
	if len(spans) == 0 {
		return trimTrailing(text)
	}

	loads := slices.Clone(opened)
	slices.Sort(loads)
	names := strings.Join(opened, " ")

	var b strings.Builder
	fmt.Fprintf(&b, "val _ = print \"Loading %s ...\\n\";\n", names)
	for _, name := range loads {
		fmt.Fprintf(&b, "load %q;\n", name)
	}
	b.WriteString(quietToggle + "\n")
	fmt.Fprintf(&b, "open %s;\n", names)
	b.WriteString(quietToggle + "\n")
	fmt.Fprintf(&b, "val _ = print \"Finished loading %s\\n\";", names)

	var kept strings.Builder
	last := 0
	for _, sp := range spans {
		kept.WriteString(text[last:sp[0]])
		last = sp[1]
	}
	kept.WriteString(text[last:])
	rest := strings.Trim(kept.String(), " \t\r\n")
	if rest != "" {
		b.WriteString("\n")
		b.WriteString(rest)
	}
	return b.String()
}

// Dependencies returns the sorted, distinct structure names opened by text.
func Dependencies(text string) []string {
	_, names := findOpens(text)
	slices.Sort(names)
	return names
}

// findOpens returns the byte spans of the open clauses in text and the
// distinct names they open, in order of first appearance.
func findOpens(text string) (spans [][2]int, names []string) {
	masked := maskLiterals(text)
	seen := make(map[string]bool)
	for _, loc := range openClause.FindAllStringSubmatchIndex(masked, -1) {
		spans = append(spans, [2]int{loc[0], loc[1]})
		for _, name := range strings.Fields(masked[loc[2]:loc[3]]) {
			if !seen[name] {
				seen[name] = true
				names = append(names, name)
			}
		}
	}
	return spans, names
}

// maskLiterals returns text with (* nested *) comments and string literals
// blanked out. Byte offsets and line breaks are unchanged. An unterminated
// comment or string runs to the end of text.
func maskLiterals(text string) string {
	b := []byte(text)
	depth := 0
	inString := false
	for i := 0; i < len(b); i++ {
		opens := b[i] == '(' && i+1 < len(b) && b[i+1] == '*'
		closes := b[i] == '*' && i+1 < len(b) && b[i+1] == ')'
		switch {
		case inString:
			if b[i] == '"' {
				inString = false
				continue
			}
			if b[i] == '\\' && i+1 < len(b) {
				blank(b, i)
				i++
			}
			blank(b, i)
		case depth > 0:
			if opens || closes {
				if opens {
					depth++
				} else {
					depth--
				}
				blank(b, i)
				i++
			}
			blank(b, i)
		case opens:
			depth = 1
			blank(b, i)
			i++
			blank(b, i)
		case b[i] == '"':
			inString = true
		}
	}
	return string(b)
}

func blank(b []byte, i int) {
	if b[i] != '\n' {
		b[i] = ' '
	}
}

func trimTrailing(text string) string {
	return strings.TrimRight(text, " \t\r\n")
}
