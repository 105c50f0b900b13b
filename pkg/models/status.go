package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// RawStatus is the vendor's status value, which arrives either as a number
// (50) or a string ("succeed"). It is kept in its textual form.
type RawStatus string

// UnmarshalJSON accepts numbers, strings and null.
func (s *RawStatus) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*s = ""
		return nil
	}
	if data[0] == '"' {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		*s = RawStatus(str)
		return nil
	}
	var num json.Number
	if err := json.Unmarshal(data, &num); err != nil {
		return fmt.Errorf("status: %w", err)
	}
	*s = RawStatus(num.String())
	return nil
}

// Phase is the lifecycle position of a job as seen by the client.
type Phase string

const (
	PhasePending      Phase = "pending"
	PhaseSucceeded    Phase = "succeeded"
	PhaseFailed       Phase = "failed"
	PhaseUnrecognized Phase = "unrecognized"
)

// Status is a classified observation of a job.
type Status struct {
	Phase  Phase     `json:"phase"`
	Raw    RawStatus `json:"raw,omitempty"`
	Reason string    `json:"reason,omitempty"` // failure message for PhaseFailed
}

// IsTerminal reports whether polling should stop.
func (s Status) IsTerminal() bool {
	return s.Phase == PhaseSucceeded || s.Phase == PhaseFailed
}

// Pending reports whether the job should be polled again. Unrecognized
// statuses are treated as still in progress.
func (s Status) Pending() bool {
	return !s.IsTerminal()
}

func (s Status) String() string {
	if s.Raw == "" {
		return string(s.Phase)
	}
	return fmt.Sprintf("%s(%s)", s.Phase, s.Raw)
}

// UnknownFailure is the reason used when a failed record has no message.
const UnknownFailure = "unknown"

var classification = map[RawStatus]Phase{
	"50":         PhaseSucceeded,
	"succeed":    PhaseSucceeded,
	"30":         PhaseFailed,
	"failed":     PhaseFailed,
	"20":         PhasePending,
	"42":         PhasePending,
	"45":         PhasePending,
	"processing": PhasePending,
	"pending":    PhasePending,
}

// Classify maps a raw status to a Status using the fixed vendor table.
// failMsg is only consulted for failures.
func Classify(raw RawStatus, failMsg string) Status {
	phase, ok := classification[RawStatus(strings.TrimSpace(string(raw)))]
	if !ok {
		return Status{Phase: PhaseUnrecognized, Raw: raw}
	}
	st := Status{Phase: phase, Raw: raw}
	if phase == PhaseFailed {
		st.Reason = strings.TrimSpace(failMsg)
		if st.Reason == "" {
			st.Reason = UnknownFailure
		}
	}
	return st
}

// NoRecord is the status used when the query response has no entry for the
// handle yet.
func NoRecord() Status {
	return Status{Phase: PhasePending}
}
