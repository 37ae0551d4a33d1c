// Package preprocess turns editor text into REPL input.
//
// Every function is pure: no I/O, no state. The session layer picks the
// transform for each command:
//
//   - [ExpandImports]: send text, loading every structure it opens first
//   - [TacticCommand]: apply a selected tactic to the current goal
//   - [ExtractGoal] and [GoalCommand]: set the goal of the proof at the cursor
//   - [ExtractSubgoal] and [SubgoalCommand]: open the subgoal in a selection
//   - [DisplayForm]: the cleaned text shown in place of the raw submission
package preprocess
