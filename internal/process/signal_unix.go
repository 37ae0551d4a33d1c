//go:build unix

package process

import (
	"os"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// setProcessGroup makes the child the leader of a new process group.
func setProcessGroup(cmd *exec.Cmd) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Setpgid = true
}

func sendSignal(_ *os.Process, pid int, sig Signal, scope Scope) error {
	target := pid
	if scope == ScopeGroup {
		target = -pid
	}
	return unix.Kill(target, unixSignal(sig))
}

func unixSignal(sig Signal) syscall.Signal {
	if sig == SignalInt {
		return unix.SIGINT
	}
	return unix.SIGTERM
}
