package kernel

import (
	"bytes"
	"regexp"
	"strings"
)

// sentinelByte is written after each submission and emitted by a REPL
// started with --zero whenever it prompts again.
const sentinelByte = 0x00

// completion decides where one execution's output ends.
type completion interface {
	// split breaks a stdout chunk at completion points. A completion is
	// declared between consecutive segments.
	split(chunk []byte) [][]byte
	// observe records routed output and reports whether the stream is
	// sitting at a prompt, which arms the quiet-window timer.
	observe(text string, isError bool) bool
	// terminator is appended to each framed submission after the newline.
	terminator() string
	// reset forgets any accumulated state.
	reset()
	// timed reports whether completion depends on the quiet-window timer.
	timed() bool
}

type sentinelCompletion struct{}

func (sentinelCompletion) split(chunk []byte) [][]byte {
	return bytes.Split(chunk, []byte{sentinelByte})
}

func (sentinelCompletion) observe(string, bool) bool { return false }
func (sentinelCompletion) terminator() string        { return string(rune(sentinelByte)) }
func (sentinelCompletion) reset()                    {}
func (sentinelCompletion) timed() bool               { return false }

// maxPromptLine bounds the retained last line; prompts are short.
const maxPromptLine = 1024

// debounceCompletion treats a prompt on the last stdout line, followed by a
// quiet window, as completion.
type debounceCompletion struct {
	prompt *regexp.Regexp
	line   string
}

func newDebounceCompletion(prompt *regexp.Regexp) *debounceCompletion {
	return &debounceCompletion{prompt: prompt}
}

func (d *debounceCompletion) split(chunk []byte) [][]byte {
	return [][]byte{chunk}
}

func (d *debounceCompletion) observe(text string, isError bool) bool {
	if !isError {
		buf := d.line + text
		if i := strings.LastIndexByte(buf, '\n'); i >= 0 {
			buf = buf[i+1:]
		}
		if len(buf) > maxPromptLine {
			buf = buf[len(buf)-maxPromptLine:]
		}
		d.line = buf
	}
	return d.prompt.MatchString(d.line)
}

func (d *debounceCompletion) terminator() string { return "" }
func (d *debounceCompletion) reset()             { d.line = "" }
func (d *debounceCompletion) timed() bool        { return true }
