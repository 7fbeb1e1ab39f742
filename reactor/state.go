package reactor

import (
	"sync/atomic"
)

// LoopState represents the lifecycle state of a [Loop].
//
//	StateAwake → StateRunning        [Run]
//	StateAwake → StateTerminating    [Stop before Run]
//	StateRunning → StateTerminating  [Stop]
//	StateTerminating → StateTerminated
//	StateRunning → StateTerminated   [idle or context done]
type LoopState uint32

const (
	// StateAwake indicates the loop has been created but not started.
	StateAwake LoopState = iota
	// StateRunning indicates the loop is processing tasks.
	StateRunning
	// StateTerminating indicates a stop has been requested.
	StateTerminating
	// StateTerminated indicates the loop has exited, and will not run again.
	StateTerminated
)

func (s LoopState) String() string {
	switch s {
	case StateAwake:
		return "Awake"
	case StateRunning:
		return "Running"
	case StateTerminating:
		return "Terminating"
	case StateTerminated:
		return "Terminated"
	default:
		return "Unknown"
	}
}

type loopState struct {
	v atomic.Uint32
}

func (s *loopState) Load() LoopState { return LoopState(s.v.Load()) }

func (s *loopState) Store(state LoopState) { s.v.Store(uint32(state)) }

// TryTransition attempts a CAS from one state to another.
func (s *loopState) TryTransition(from, to LoopState) bool {
	return s.v.CompareAndSwap(uint32(from), uint32(to))
}
