package session

import "github.com/deeplearn-app/deeplearn/internal/model"

// IntentKind names a user action forwarded by the UI layer.
type IntentKind string

const (
	IntentToggleSelection IntentKind = "toggle_selection"
	IntentToggleClue      IntentKind = "toggle_clue"
	IntentSetOtherClue    IntentKind = "set_other_clue"
	IntentSetReasoning    IntentKind = "set_reasoning"
	IntentSetConfidence   IntentKind = "set_confidence"
	IntentSubmit          IntentKind = "submit"
	IntentAdvance         IntentKind = "advance"
	IntentRestart         IntentKind = "restart"
)

// Intent is one user action. Only the field matching Kind is read.
type Intent struct {
	Kind       IntentKind `json:"type"`
	Position   int        `json:"position,omitempty"`
	Label      string     `json:"label,omitempty"`
	Text       string     `json:"text,omitempty"`
	Confidence int        `json:"confidence,omitempty"`
}

// Dispatch applies in and returns the resulting state. A rejected intent returns
// the unchanged state together with the error.
func (c *Controller) Dispatch(in Intent) (model.State, error) {
	switch in.Kind {
	case IntentToggleSelection:
		return c.ToggleSelection(in.Position)
	case IntentToggleClue:
		return c.ToggleClue(in.Label)
	case IntentSetOtherClue:
		return c.SetOtherClue(in.Text)
	case IntentSetReasoning:
		return c.SetReasoning(in.Text)
	case IntentSetConfidence:
		return c.SetConfidence(in.Confidence)
	case IntentSubmit:
		return c.Submit()
	case IntentAdvance:
		return c.Advance()
	case IntentRestart:
		return c.Restart()
	}
	return c.State(), &InvalidIntentError{Intent: in.Kind, Reason: "unknown intent"}
}
