package strategy

import "sync"

// StateMachine tracks the lifecycle of the current spot order.
type StateMachine struct {
	mu    sync.Mutex
	State State
}

func NewStateMachine() *StateMachine {
	return &StateMachine{State: StateIdle}
}

func (s *StateMachine) Apply(event Event) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.State = nextState(s.State, event)
	return s.State
}

func (s *StateMachine) Current() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.State
}

func nextState(current State, event Event) State {
	switch current {
	case StateIdle:
		if event == EventSubmitted {
			return StateAwaitingFills
		}
	case StateAwaitingFills:
		switch event {
		case EventFilled:
			return StateFilled
		case EventAborted:
			return StateIdle
		}
	case StateFilled:
		if event == EventReset {
			return StateIdle
		}
	}
	return current
}
