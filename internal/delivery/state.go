package delivery

// State is a step of a single send request.
type State int

const (
	StateReceived State = iota
	StatePersisting
	StatePersisted
	StateDelivering
	StateAcknowledging
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateReceived:
		return "received"
	case StatePersisting:
		return "persisting"
	case StatePersisted:
		return "persisted"
	case StateDelivering:
		return "delivering"
	case StateAcknowledging:
		return "acknowledging"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}
