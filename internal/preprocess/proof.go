package preprocess

// ProofAction is a proof manager command that takes no argument.
type ProofAction int

const (
	// ProofPrint shows the current goal stack.
	ProofPrint ProofAction = iota
	// ProofBackup undoes the last tactic.
	ProofBackup
	// ProofRotate rotates the subgoals of the current goal.
	ProofRotate
	// ProofRestart returns to the initial goal.
	ProofRestart
	// ProofDrop abandons the current proof.
	ProofDrop
)

var proofCommands = map[ProofAction]string{
	ProofPrint:   "proofManagerLib.p ()",
	ProofBackup:  "proofManagerLib.b ()",
	ProofRotate:  "proofManagerLib.r 1",
	ProofRestart: "proofManagerLib.restart ()",
	ProofDrop:    "proofManagerLib.drop ()",
}

// Command returns the REPL text for a, or "" for an unknown action.
func (a ProofAction) Command() string {
	return proofCommands[a]
}

// String returns the action's name.
func (a ProofAction) String() string {
	switch a {
	case ProofPrint:
		return "print"
	case ProofBackup:
		return "backup"
	case ProofRotate:
		return "rotate"
	case ProofRestart:
		return "restart"
	case ProofDrop:
		return "drop"
	default:
		return "unknown"
	}
}

// ParseProofAction maps a name from String back to its action.
func ParseProofAction(name string) (ProofAction, bool) {
	for a := ProofPrint; a <= ProofDrop; a++ {
		if a.String() == name {
			return a, true
		}
	}
	return 0, false
}
