// pkg/events/outcome.go
package events

import (
	"encoding/json"
	"fmt"
	"time"
)

// Status is what a handler reports back to the delivering orchestrator.
type Status string

const (
	// StatusPending: no determination yet; the orchestrator applies its
	// default retry policy. Also what an absent outcome decays to.
	StatusPending Status = "pending"
	// StatusDone: handled successfully. Terminal.
	StatusDone Status = "done"
	// StatusSkip: deliberately not handled (business rule). Terminal, and
	// distinct from done.
	StatusSkip Status = "skip"
	// StatusReschedule: redeliver after Delay.
	StatusReschedule Status = "reschedule"
	// StatusFail: unrecoverable failure with a reason. Terminal.
	StatusFail Status = "fail"
)

// Outcome is the result of handling one event delivery.
type Outcome struct {
	Status Status
	Delay  time.Duration // reschedule only
	Reason string        // fail only
}

func Pending() Outcome { return Outcome{Status: StatusPending} }
func Done() Outcome    { return Outcome{Status: StatusDone} }
func Skip() Outcome    { return Outcome{Status: StatusSkip} }

func Reschedule(delay time.Duration) Outcome {
	return Outcome{Status: StatusReschedule, Delay: delay}
}

func Fail(reason string) Outcome {
	return Outcome{Status: StatusFail, Reason: reason}
}

func Failf(format string, args ...any) Outcome {
	return Outcome{Status: StatusFail, Reason: fmt.Sprintf(format, args...)}
}

// Terminal reports whether the orchestrator should stop redelivering.
func (o Outcome) Terminal() bool {
	switch o.Status {
	case StatusDone, StatusSkip, StatusFail:
		return true
	}
	return false
}

type outcomeWire struct {
	Outcome      Status `json:"outcome"`
	DelaySeconds int64  `json:"delay_seconds,omitempty"`
	Reason       string `json:"reason,omitempty"`
}

func (o Outcome) MarshalJSON() ([]byte, error) {
	s := o.Status
	if s == "" {
		s = StatusPending
	}
	return json.Marshal(outcomeWire{
		Outcome:      s,
		DelaySeconds: int64(o.Delay / time.Second),
		Reason:       o.Reason,
	})
}

func (o *Outcome) UnmarshalJSON(b []byte) error {
	var w outcomeWire
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	o.Status = w.Outcome
	o.Delay = time.Duration(w.DelaySeconds) * time.Second
	o.Reason = w.Reason
	return nil
}
