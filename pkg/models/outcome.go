package models

// OutcomeState is the terminal result of waiting for a job.
type OutcomeState string

const (
	OutcomeSucceeded OutcomeState = "succeeded"
	OutcomeFailed    OutcomeState = "failed"
	OutcomeTimedOut  OutcomeState = "timed_out"
)

// NoHandleReason is the failure reason when submission returned no handle.
const NoHandleReason = "no handle"

// Outcome is how a job ended. Failed and TimedOut are normal results, not
// errors: the job simply did not produce anything.
type Outcome struct {
	State    OutcomeState `json:"state"`
	Handle   JobHandle    `json:"handle,omitempty"`
	Reason   string       `json:"reason,omitempty"`
	Attempts int          `json:"attempts"`
	Result   *RawResult   `json:"-"`
}

func Succeeded(handle JobHandle, result *RawResult, attempts int) Outcome {
	return Outcome{State: OutcomeSucceeded, Handle: handle, Result: result, Attempts: attempts}
}

func Failed(handle JobHandle, reason string, attempts int) Outcome {
	return Outcome{State: OutcomeFailed, Handle: handle, Reason: reason, Attempts: attempts}
}

func TimedOut(handle JobHandle, attempts int) Outcome {
	return Outcome{
		State:    OutcomeTimedOut,
		Handle:   handle,
		Reason:   "maximum attempts reached",
		Attempts: attempts,
	}
}

// OK reports whether the job produced a result.
func (o Outcome) OK() bool {
	return o.State == OutcomeSucceeded
}
