// Package terminal presents a kernel as a raw-mode pseudoterminal.
//
// Output and overflow events are rewritten for a terminal in raw mode and
// written to an io.Writer. Keystrokes passed to [Terminal.HandleInput] are
// echoed, line-edited and submitted on Enter; [Terminal.SendRaw] submits
// plugin text through the same line buffer without echo.
package terminal
