package bridge

// action is the outbound command a session transition asks the dispatcher
// to emit.
type action int

const (
	actionNone action = iota
	actionStart
	actionStop
)

// session tracks whether a charge is running and the length to use for the
// next "charge now" command. The Worker is its only owner; all access is
// serialized behind the Worker's lock.
type session struct {
	// duration is the session length in seconds. Last write wins.
	duration uint16
	active   bool
}

// applyDuration records v as the length of future charge sessions. A value
// of 0 is a stop trigger, not a session length: the stored duration is left
// untouched and a stop is requested if a charge is running.
func (s *session) applyDuration(v uint16) action {
	if v == 0 {
		if !s.active {
			return actionNone
		}
		s.active = false
		return actionStop
	}
	s.duration = v
	return actionNone
}

// applyRate starts a charge at r Amps, or stops the running one when r is
// 0. A non-zero rate while already charging re-triggers the session with
// the new rate and the stored duration.
func (s *session) applyRate(r uint8) action {
	if r == 0 {
		if !s.active {
			return actionNone
		}
		s.active = false
		return actionStop
	}
	s.active = true
	return actionStart
}
