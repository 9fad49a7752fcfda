package listener

import "time"

// State is the supervisor's position in its connection lifecycle.
type State int

const (
	Disconnected State = iota
	Connecting
	Listening
	Stopped
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Listening:
		return "listening"
	case Stopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Stats is a point-in-time snapshot for status reporting.
type Stats struct {
	State            State
	SessionID        string
	ConnectedSince   time.Time
	Sessions         int64 // sessions that reached Listening
	ConnectFailures  int64
	ConnectionFaults int64 // sessions lost while listening
	EventsReceived   int64
	EventsIgnored    int64
	HandlerFailures  int64
}

// State returns the current state.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats.State
}

// Stats returns a copy of the current counters.
func (s *Supervisor) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

func (s *Supervisor) setState(st State) {
	s.mu.Lock()
	prev := s.stats.State
	s.stats.State = st
	s.mu.Unlock()
	if prev != st {
		s.logger.Debug("listener state changed", "from", prev.String(), "to", st.String())
	}
}

func (s *Supervisor) record(fn func(*Stats)) {
	s.mu.Lock()
	fn(&s.stats)
	s.mu.Unlock()
}
