// Package workspace manages per-workspace state: the dependency search path
// file and the lock that keeps a second session from starting in the same
// workspace.
//
// The deps file is a JSON array of directories. Entries may begin with an
// environment variable reference such as "$HOLDIR/examples"; relative
// entries are taken relative to the workspace root.
package workspace
