package kernel

import (
	"context"

	"github.com/Iron-Ham/holrepl/internal/execution"
	"github.com/Iron-Ham/holrepl/internal/process"
)

// message is anything the loop goroutine handles.
type message any

type startRequest struct {
	ctx   context.Context
	opts  StartOptions
	reply chan error
}

type startMsg struct{ req *startRequest }

type cancelStartMsg struct{ req *startRequest }

type submitMsg struct{ exec *execution.Execution }

type controlKind int

const (
	ctrlSync controlKind = iota
	ctrlInterrupt
	ctrlStop
)

type controlMsg struct {
	kind  controlKind
	reply chan error
}

type dataMsg struct {
	gen    uint64
	stream process.Stream
	chunk  []byte
}

type exitMsg struct {
	gen uint64
	err error
}

// quietMsg is posted when a debounce window elapses. seq ties it to the
// arming that produced it; execID to the execution that was current.
type quietMsg struct {
	gen    uint64
	seq    uint64
	execID string
}

type readyTimeoutMsg struct{ gen uint64 }

type closeMsg struct{}
