package preprocess

import (
	"slices"
	"strings"
	"testing"

	"github.com/Iron-Ham/holrepl/internal/errors"
)

func TestExpandImports(t *testing.T) {
	input := "open fooTheory barTheory;\n\nval x = 1;\n"
	got := ExpandImports(input)

	want := strings.Join([]string{
		`val _ = print "Loading fooTheory barTheory ...\n";`,
		`load "barTheory";`,
		`load "fooTheory";`,
		`val _ = HOL_Interactive.toggle_quietdec();`,
		`open fooTheory barTheory;`,
		`val _ = HOL_Interactive.toggle_quietdec();`,
		`val _ = print "Finished loading fooTheory barTheory\n";`,
		`val x = 1;`,
	}, "\n")
	if got != want {
		t.Errorf("ExpandImports() =\n%s\nwant\n%s", got, want)
	}
}

func TestExpandImports_Ordering(t *testing.T) {
	got := ExpandImports("open fooTheory barTheory;\nTheorem t: T\nProof\n  simp[]\nQED")

	loadBar := strings.Index(got, `load "barTheory";`)
	loadFoo := strings.Index(got, `load "fooTheory";`)
	open := strings.Index(got, "open fooTheory barTheory;")
	body := strings.Index(got, "Theorem t: T")

	if loadBar < 0 || loadFoo < 0 || open < 0 || body < 0 {
		t.Fatalf("missing parts in:\n%s", got)
	}
	if !(loadBar < loadFoo && loadFoo < open && open < body) {
		t.Errorf("wrong order: bar=%d foo=%d open=%d body=%d", loadBar, loadFoo, open, body)
	}
	if strings.Count(got, "open ") != 1 {
		t.Errorf("expected exactly one open clause:\n%s", got)
	}
}

func TestExpandImports_MultipleClauses(t *testing.T) {
	got := ExpandImports("open listTheory;\nval a = 1;\nopen arithmeticTheory listTheory;\nval b = 2;")

	if strings.Count(got, `load "listTheory";`) != 1 {
		t.Errorf("duplicate names should load once:\n%s", got)
	}
	if !strings.Contains(got, "open listTheory arithmeticTheory;") {
		t.Errorf("open should keep first-appearance order:\n%s", got)
	}
	if !strings.HasSuffix(got, "val a = 1;\n\nval b = 2;") {
		t.Errorf("remaining text not preserved:\n%s", got)
	}
}

func TestExpandImports_NoOpens(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain", "val x = 1;", "val x = 1;"},
		{"trailing whitespace", "val x = 1;  \n\n\t", "val x = 1;"},
		{"leading kept", "\n  val x = 1;\n", "\n  val x = 1;"},
		{"open inside identifier", "val reopen = 1;", "val reopen = 1;"},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExpandImports(tt.input)
			if got != tt.want {
				t.Errorf("ExpandImports(%q) = %q, want %q", tt.input, got, tt.want)
			}
			if again := ExpandImports(got); again != got {
				t.Errorf("not idempotent: %q -> %q", got, again)
			}
		})
	}
}

func TestDependencies(t *testing.T) {
	got := Dependencies("open fooTheory barTheory;\nopen bossLib fooTheory;")
	want := []string{"barTheory", "bossLib", "fooTheory"}
	if !slices.Equal(got, want) {
		t.Errorf("Dependencies() = %v, want %v", got, want)
	}
	if got := Dependencies("val x = 1;"); len(got) != 0 {
		t.Errorf("Dependencies() = %v, want none", got)
	}
}

func TestExpandImports_IgnoresCommentsAndStrings(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"comment", "(* open oldTheory; *)\nval x = 1;"},
		{"nested comment", "(* outer (* inner *) open oldTheory; *)\nval x = 1;"},
		{"multi-line comment", "(*\n  open oldTheory;\n*)\nval x = 1;"},
		{"string", `val s = "open oldTheory;";`},
		{"escaped quote", `val s = "say \"hi\" open oldTheory;";`},
		{"unterminated comment", "val x = 1; (* open oldTheory;"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExpandImports(tt.input); got != tt.input {
				t.Errorf("ExpandImports(%q) = %q, want it unchanged", tt.input, got)
			}
			if deps := Dependencies(tt.input); len(deps) != 0 {
				t.Errorf("Dependencies(%q) = %v, want none", tt.input, deps)
			}
		})
	}
}

func TestExpandImports_CommentNextToClause(t *testing.T) {
	input := "(* open oldTheory; *)\nopen newTheory;\nval s = \"(*\";\nopen listTheory;"
	got := ExpandImports(input)

	if !slices.Equal(Dependencies(input), []string{"listTheory", "newTheory"}) {
		t.Errorf("Dependencies() = %v", Dependencies(input))
	}
	if strings.Contains(got, `load "oldTheory"`) {
		t.Errorf("commented-out structure was loaded:\n%s", got)
	}
	if !strings.Contains(got, "open newTheory listTheory;") {
		t.Errorf("missing combined open clause:\n%s", got)
	}
	if !strings.HasSuffix(got, "(* open oldTheory; *)\n\nval s = \"(*\";") {
		t.Errorf("comment and string not preserved:\n%s", got)
	}
}

func TestTrimTactic(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"simp[]", "simp[]"},
		{"  >> simp[]  ", "simp[]"},
		{"rw[] THEN", "rw[]"},
		{`\\ fs[]`, "fs[]"},
		{"THEN1 (simp[])", "(simp[])"},
		{">- metis_tac[] >>", "metis_tac[]"},
		{"Induct_on `l` THENL", "Induct_on `l`"},
		{">| [simp[], fs[]] ;", "[simp[], fs[]]"},
		{"strip_tac,", "strip_tac"},
		{"by simp[]", "simp[]"},
		{"byz_tac", "byz_tac"},
		{"ASM_THEN", "ASM_THEN"},
		{">> >> simp[] >> >>", "simp[]"},
		{">>", ""},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := TrimTactic(tt.input); got != tt.want {
				t.Errorf("TrimTactic(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestTacticCommand(t *testing.T) {
	if got := TacticCommand(">> simp[] \n"); got != "proofManagerLib.e (simp[])" {
		t.Errorf("TacticCommand() = %q", got)
	}
	if got := TacticCommand(" THEN "); got != "" {
		t.Errorf("TacticCommand() on an empty tactic = %q", got)
	}
}

const script = `open arithmeticTheory;

Theorem add_comm_thm[simp]:
  !m n. m + n = n + m
Proof
  rw[] >> ‘0 < 1’ by simp[] >>
  decide_tac
QED

val old_style = store_thm("old_style",
  ‘!x. x = x’,
  rw[]);

val anon = prove(“T /\ T”, simp[]);

val q = ‘a ==> a’;
`

func TestExtractGoal(t *testing.T) {
	at := func(marker string) int {
		i := strings.Index(script, marker)
		if i < 0 {
			t.Fatalf("marker %q not in script", marker)
		}
		return i
	}

	tests := []struct {
		name   string
		offset int
		want   string
	}{
		{"theorem header", at("Theorem add_comm"), "!m n. m + n = n + m"},
		{"theorem statement", at("m + n"), "!m n. m + n = n + m"},
		{"inside proof quotation", at("0 < 1"), "!m n. m + n = n + m"},
		{"at QED", at("QED"), "!m n. m + n = n + m"},
		{"store_thm", at("rw[]);"), "!x. x = x"},
		{"prove", at("simp[]);"), "T /\\ T"},
		{"bare quotation", at("a ==> a"), "a ==> a"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractGoal(script, tt.offset)
			if err != nil {
				t.Fatalf("ExtractGoal failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("ExtractGoal() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExtractGoal_UnfinishedTheorem(t *testing.T) {
	text := "Theorem wip:\n  P x ==> Q x\nProof\n  strip_tac >>\n"
	got, err := ExtractGoal(text, len(text))
	if err != nil || got != "P x ==> Q x" {
		t.Errorf("ExtractGoal() = %q, %v", got, err)
	}
}

func TestExtractGoal_None(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		offset int
	}{
		{"open clause", script, 2},
		{"plain text", "val x = 1;", 4},
		{"negative offset", script, -1},
		{"past end", "x", 5},
		{"empty quotation", "val e = ‘’;", 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ExtractGoal(tt.text, tt.offset)
			if !errors.Is(err, errors.ErrNoGoal) {
				t.Errorf("ExtractGoal() error = %v, want ErrNoGoal", err)
			}
			if !errors.IsUserFacing(err) {
				t.Error("goal extraction failures should be user-facing")
			}
		})
	}
}

func TestGoalCommand(t *testing.T) {
	if got := GoalCommand("!x. x = x"); got != "proofManagerLib.g ‘!x. x = x’" {
		t.Errorf("GoalCommand() = %q", got)
	}
}

func TestExtractSubgoal(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"by", "‘0 < n’ by simp[]", "0 < n"},
		{"suffices_by", "‘P x’ suffices_by metis_tac[]", "P x"},
		{"sg", "sg ‘x = y’ >- simp[]", "x = y"},
		{"backticks", "`a < b` by decide_tac", "a < b"},
		{"earliest wins", "sg ‘first’ >> ‘second’ by simp[]", "first"},
		{"trimmed", "‘  spaced  ’ by fs[]", "spaced"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractSubgoal(tt.input)
			if err != nil {
				t.Fatalf("ExtractSubgoal failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("ExtractSubgoal() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExtractSubgoal_None(t *testing.T) {
	for _, input := range []string{"simp[]", "‘x’", "‘’ by simp[]", "bysg ‘x’"} {
		if _, err := ExtractSubgoal(input); !errors.Is(err, errors.ErrNoSubgoal) {
			t.Errorf("ExtractSubgoal(%q) error = %v, want ErrNoSubgoal", input, err)
		}
	}
}

func TestSubgoalCommand(t *testing.T) {
	if got := SubgoalCommand("0 < n"); got != "proofManagerLib.e (sg ‘0 < n’)" {
		t.Errorf("SubgoalCommand() = %q", got)
	}
}

func TestDisplayForm(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"val x = 1;", "val x = 1;"},
		{"\n\nval x = 1;  \n\n\n\nval y = 2;\n\n", "val x = 1;\n\nval y = 2;"},
		{"a\r\nb", "a\nb"},
		{"  indented\n", "  indented"},
		{"\n \n", ""},
	}
	for _, tt := range tests {
		if got := DisplayForm(tt.input); got != tt.want {
			t.Errorf("DisplayForm(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestProofAction(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"print", "proofManagerLib.p ()"},
		{"backup", "proofManagerLib.b ()"},
		{"rotate", "proofManagerLib.r 1"},
		{"restart", "proofManagerLib.restart ()"},
		{"drop", "proofManagerLib.drop ()"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, ok := ParseProofAction(tt.name)
			if !ok {
				t.Fatalf("ParseProofAction(%q) failed", tt.name)
			}
			if a.String() != tt.name {
				t.Errorf("String() = %q", a.String())
			}
			if got := a.Command(); got != tt.want {
				t.Errorf("Command() = %q, want %q", got, tt.want)
			}
		})
	}

	if _, ok := ParseProofAction("expand"); ok {
		t.Error("ParseProofAction should reject unknown names")
	}
	if ProofAction(42).Command() != "" || ProofAction(42).String() != "unknown" {
		t.Error("unknown action should have no command")
	}
}
