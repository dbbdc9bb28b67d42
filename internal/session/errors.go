package session

import (
	"errors"
	"fmt"
	"strings"

	"github.com/deeplearn-app/deeplearn/internal/policy"
)

// ErrComplete is returned (wrapped in InvalidIntentError) for intents sent to a
// finished session.
var ErrComplete = errors.New("session is complete")

// InvalidIntentError rejects an intent without changing state. When the intent
// was a submit that failed validation, Missing lists what the draft still needs.
type InvalidIntentError struct {
	Intent  IntentKind
	Reason  string
	Missing []policy.MissingRequirement
	Err     error
}

func (e *InvalidIntentError) Error() string {
	if len(e.Missing) > 0 {
		names := make([]string, 0, len(e.Missing))
		for _, m := range e.Missing {
			names = append(names, describe(m))
		}
		return "answer not ready to submit: missing " + strings.Join(names, ", ")
	}
	if e.Err != nil {
		return fmt.Sprintf("%s rejected: %v", e.Intent, e.Err)
	}
	return fmt.Sprintf("%s rejected: %s", e.Intent, e.Reason)
}

func (e *InvalidIntentError) Unwrap() error { return e.Err }

func describe(m policy.MissingRequirement) string {
	switch m.Requirement {
	case policy.RequireAnyOf:
		return "one of (" + describeAll(m.Options, " or ") + ")"
	case policy.RequireAllOf:
		return "all of (" + describeAll(m.Parts, " and ") + ")"
	}
	return string(m.Requirement)
}

func describeAll(ms []policy.MissingRequirement, sep string) string {
	names := make([]string, 0, len(ms))
	for _, m := range ms {
		names = append(names, describe(m))
	}
	return strings.Join(names, sep)
}

// AlreadySubmittedError guards against a duplicate submit or an edit after the
// group's answer was recorded.
type AlreadySubmittedError struct {
	GroupIndex int
}

func (e *AlreadySubmittedError) Error() string {
	return fmt.Sprintf("group %d already submitted", e.GroupIndex)
}
