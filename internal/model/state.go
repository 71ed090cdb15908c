package model

import (
	"errors"
	"fmt"
)

type State string

const (
	StateInit       State = "init"
	StateUploaded   State = "uploaded"
	StateProcessing State = "processing"
	StateDone       State = "done"
	StateError      State = "error"
)

var (
	ErrIllegalTransition = errors.New("illegal image state transition")
	ErrStaleState        = errors.New("image state was changed concurrently or image is gone")
)

// transitions lists every allowed edge; done and error are terminal.
// uploaded -> error covers a run that fails before it manages to enter processing.
var transitions = map[State][]State{
	StateInit:       {StateUploaded},
	StateUploaded:   {StateProcessing, StateError},
	StateProcessing: {StateDone, StateError},
}

func (s State) Valid() bool {
	switch s {
	case StateInit, StateUploaded, StateProcessing, StateDone, StateError:
		return true
	}
	return false
}

func (s State) Terminal() bool {
	return s == StateDone || s == StateError
}

// To returns next if s -> next is an allowed edge
func (s State) To(next State) (State, error) {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return next, nil
		}
	}
	return s, fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, s, next)
}
