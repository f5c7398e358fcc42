package agent

// HealthStatus is the monitor's current belief about the host.
type HealthStatus int

const (
	StatusUp HealthStatus = iota
	StatusDown
)

func (s HealthStatus) String() string {
	if s == StatusDown {
		return "DOWN"
	}
	return "UP"
}

// Notification messages
const (
	MessageDown = "Server appears to be down"
	MessageUp   = "Server appears to be back up"
)

// next applies the transition table to a reachability sample. It returns the
// new status and the message to send, or an empty message for a self-loop.
func (s HealthStatus) next(reachable bool) (HealthStatus, string) {
	switch {
	case s == StatusUp && !reachable:
		return StatusDown, MessageDown
	case s == StatusDown && reachable:
		return StatusUp, MessageUp
	default:
		return s, ""
	}
}
