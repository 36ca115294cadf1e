package reconnect

// AttemptOutcome is the result of one connect attempt.
type AttemptOutcome int

const (
	AttemptPending AttemptOutcome = iota
	AttemptSucceeded
	AttemptFailed
)

func (o AttemptOutcome) String() string {
	switch o {
	case AttemptPending:
		return "pending"
	case AttemptSucceeded:
		return "succeeded"
	case AttemptFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Attempt describes one connect try of the current attempt loop.
type Attempt struct {
	URL     string // without password
	Number  int    // 1-based within the loop
	Outcome AttemptOutcome
	Err     error
}
