package pipeline

// State is a step of one question cycle.
type State int

const (
	Idle State = iota
	CheckingAuth
	Rewriting
	Searching
	Fetching
	Synthesizing
	Done
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case CheckingAuth:
		return "checking_auth"
	case Rewriting:
		return "rewriting"
	case Searching:
		return "searching"
	case Fetching:
		return "fetching"
	case Synthesizing:
		return "synthesizing"
	case Done:
		return "done"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// MarshalText renders the state name in JSON traces.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
