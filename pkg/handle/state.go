package handle

// State is the availability state of a proposed handle.
type State int

const (
	Idle State = iota
	Checking
	Available
	Taken
	// Indeterminate covers handles too short or containing whitespace.
	Indeterminate
	// Error means the directory lookup failed. It is distinct from Taken
	// but equally not submittable.
	Error
)

var stateNames = [...]string{
	Idle:          "idle",
	Checking:      "checking",
	Available:     "available",
	Taken:         "taken",
	Indeterminate: "indeterminate",
	Error:         "error",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// ParseState converts a state name back to a State.
func ParseState(name string) (State, bool) {
	for i, n := range stateNames {
		if n == name {
			return State(i), true
		}
	}
	return Idle, false
}

// Submittable reports whether a form carrying this state may be submitted.
func (s State) Submittable() bool {
	return s == Available
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
