//go:build !unix

package process

import (
	"os"
	"os/exec"

	"github.com/Iron-Ham/holrepl/internal/errors"
)

// setProcessGroup is a no-op; without process groups only the direct child
// can be signalled and helpers it starts may survive it.
func setProcessGroup(cmd *exec.Cmd) {}

func sendSignal(p *os.Process, _ int, sig Signal, _ Scope) error {
	if sig == SignalInt {
		return errors.ErrSignalUnsupported
	}
	return p.Kill()
}
