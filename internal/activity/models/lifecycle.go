package models

import (
	"fmt"
	"strings"

	dErrors "credence/pkg/domain-errors"
)

// Status is the lifecycle state of an activity.
type Status string

const (
	StatusDraft       Status = "draft"
	StatusPending     Status = "pending"
	StatusPendingInfo Status = "pending_info"
	StatusVerified    Status = "verified"
	StatusRejected    Status = "rejected"
	StatusWithdrawn   Status = "withdrawn"
)

func (s Status) String() string { return string(s) }

func (s Status) IsValid() bool {
	switch s {
	case StatusDraft, StatusPending, StatusPendingInfo, StatusVerified, StatusRejected, StatusWithdrawn:
		return true
	}
	return false
}

// ParseStatus parses a status filter from external input.
func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToLower(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", dErrors.New(dErrors.CodeValidation, "unknown status")
	}
	return st, nil
}

// Action is a requested lifecycle step.
type Action string

const (
	ActionSubmit      Action = "submit"
	ActionApprove     Action = "approve"
	ActionReject      Action = "reject"
	ActionRequestInfo Action = "request_info"
	ActionResubmit    Action = "resubmit"
	ActionWithdraw    Action = "withdraw"
)

func (a Action) String() string { return string(a) }

// ParseAction parses an action name from external input.
func ParseAction(s string) (Action, error) {
	a := Action(strings.ToLower(strings.TrimSpace(s)))
	switch a {
	case ActionSubmit, ActionApprove, ActionReject, ActionRequestInfo, ActionResubmit, ActionWithdraw:
		return a, nil
	}
	return "", dErrors.New(dErrors.CodeValidation, "unknown action")
}

// transitions is the complete lifecycle. Anything absent is illegal.
var transitions = map[Status]map[Action]Status{
	StatusDraft: {
		ActionSubmit: StatusPending,
	},
	StatusPending: {
		ActionApprove:     StatusVerified,
		ActionReject:      StatusRejected,
		ActionRequestInfo: StatusPendingInfo,
	},
	StatusPendingInfo: {
		ActionResubmit: StatusPending,
	},
	StatusVerified: {
		ActionWithdraw: StatusWithdrawn,
	},
	StatusRejected: {
		ActionWithdraw: StatusWithdrawn,
	},
}

// Next returns the status reached by applying action in from.
func Next(from Status, action Action) (Status, error) {
	if to, ok := transitions[from][action]; ok {
		return to, nil
	}
	return "", dErrors.New(dErrors.CodeInvalidTransition,
		fmt.Sprintf("action %s is not allowed from status %s", action, from))
}

// IsTerminal reports whether no further action is possible from s.
func (s Status) IsTerminal() bool {
	return len(transitions[s]) == 0
}

// Step is one recorded transition as seen by Replay.
type Step struct {
	SequenceNo int64
	From       Status
	To         Status
	Action     Action
}

// Replay folds steps from the initial draft status and returns the resulting
// status. Sequences must start at 1 and be gap-free, each step must start
// where the previous ended, and every step must be a legal transition.
func Replay(steps []Step) (Status, error) {
	current := StatusDraft
	for i, step := range steps {
		want := int64(i + 1)
		if step.SequenceNo != want {
			return "", dErrors.New(dErrors.CodeLedgerInconsistency,
				fmt.Sprintf("sequence gap: expected %d, found %d", want, step.SequenceNo))
		}
		if step.From != current {
			return "", dErrors.New(dErrors.CodeLedgerInconsistency,
				fmt.Sprintf("sequence %d starts from %s but activity was %s", step.SequenceNo, step.From, current))
		}
		to, err := Next(step.From, step.Action)
		if err != nil || to != step.To {
			return "", dErrors.New(dErrors.CodeLedgerInconsistency,
				fmt.Sprintf("sequence %d records illegal transition %s -[%s]-> %s", step.SequenceNo, step.From, step.Action, step.To))
		}
		current = to
	}
	return current, nil
}
