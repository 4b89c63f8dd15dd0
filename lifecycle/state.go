package lifecycle

// State is a generation's position in the deployment lifecycle.
type State int

const (
	// StateIdle means no generation has been deployed.
	StateIdle State = iota
	// StateInstalling means the static tier is being pre-populated.
	StateInstalling
	// StateWaiting means the generation is installed but an older
	// generation still controls open clients.
	StateWaiting
	// StateActivating means stale tiers are being deleted.
	StateActivating
	// StateControlling is the steady state.
	StateControlling
	// StateRedundant marks a generation superseded by a newer deploy.
	StateRedundant
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateInstalling:
		return "installing"
	case StateWaiting:
		return "waiting"
	case StateActivating:
		return "activating"
	case StateControlling:
		return "controlling"
	case StateRedundant:
		return "redundant"
	default:
		return "unknown"
	}
}

// Transition describes one state change of one generation.
type Transition struct {
	Generation string
	From       State
	To         State
}
