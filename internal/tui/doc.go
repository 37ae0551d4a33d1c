// Package tui is a bubbletea viewer for a notebook session: the cells above,
// an input line below. Enter sends the line as a new cell, Ctrl-C interrupts
// (or clears a non-empty line) and Ctrl-D quits.
package tui
