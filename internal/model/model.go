package model

import (
	"fmt"
	"slices"
	"time"
)

// Label is the ground-truth label of a media item.
type Label string

const (
	// LabelReal marks unaltered media.
	LabelReal Label = "real"
	// LabelSynthetic marks AI-generated or altered media.
	LabelSynthetic Label = "synthetic"
)

// ParseLabel accepts the canonical labels plus "fake", which older data files use for synthetic.
func ParseLabel(s string) (Label, error) {
	switch s {
	case "real":
		return LabelReal, nil
	case "synthetic", "fake":
		return LabelSynthetic, nil
	}
	return "", fmt.Errorf("unknown label %q", s)
}

// Item is one piece of media inside a group.
type Item struct {
	URL   string `json:"url"`
	Label Label  `json:"label"`
}

// ItemGroup is one case shown to the user.
type ItemGroup struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Items       []Item `json:"items"`
}

// Catalog is the ordered list of groups a session walks through.
type Catalog struct {
	Name   string
	Groups []ItemGroup
}

// Len returns the number of groups.
func (c Catalog) Len() int { return len(c.Groups) }

// Clone returns a deep copy of c.
func (c Catalog) Clone() Catalog {
	out := Catalog{Name: c.Name, Groups: make([]ItemGroup, len(c.Groups))}
	for i, g := range c.Groups {
		g.Items = slices.Clone(g.Items)
		out.Groups[i] = g
	}
	return out
}

// DisplayOrder maps a view position to a canonical index within a group.
type DisplayOrder []int

// Valid reports whether o is a permutation of [0, n).
func (o DisplayOrder) Valid(n int) bool {
	if len(o) != n {
		return false
	}
	seen := make([]bool, n)
	for _, c := range o {
		if c < 0 || c >= n || seen[c] {
			return false
		}
		seen[c] = true
	}
	return true
}

// Canonical returns the canonical index shown at view position v.
func (o DisplayOrder) Canonical(v int) int { return o[v] }

// View returns the view position of canonical index c, or -1.
func (o DisplayOrder) View(c int) int {
	return slices.Index(o, c)
}

// Inverse returns the canonical → view mapping.
func (o DisplayOrder) Inverse() DisplayOrder {
	inv := make(DisplayOrder, len(o))
	for v, c := range o {
		inv[c] = v
	}
	return inv
}

// MapToCanonical translates a set of view positions to canonical indices.
// Positions outside the order are dropped. The result is sorted.
func (o DisplayOrder) MapToCanonical(views []int) []int {
	out := make([]int, 0, len(views))
	for _, v := range views {
		if v < 0 || v >= len(o) {
			continue
		}
		out = append(out, o[v])
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// MapToView translates a set of canonical indices back to view positions. The result is sorted.
func (o DisplayOrder) MapToView(canonical []int) []int {
	inv := o.Inverse()
	out := make([]int, 0, len(canonical))
	for _, c := range canonical {
		if c < 0 || c >= len(inv) {
			continue
		}
		out = append(out, inv[c])
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// Phase is the state of a session controller.
type Phase string

const (
	PhasePresenting Phase = "presenting"
	PhaseSubmitting Phase = "submitting"
	PhaseFeedback   Phase = "feedback"
	PhaseComplete   Phase = "complete"
)

// SessionTag identifies which run of an activity a session belongs to.
type SessionTag string

const (
	// TagPre is the warm-up quiz; correctness is withheld from the user.
	TagPre SessionTag = "pre"
	// TagPost is the mastery quiz; correctness is shown.
	TagPost SessionTag = "post"
	// TagEthics is the reflection survey.
	TagEthics SessionTag = "ethics"
)

// ParseSessionTag validates a tag string.
func ParseSessionTag(s string) (SessionTag, error) {
	switch t := SessionTag(s); t {
	case TagPre, TagPost, TagEthics:
		return t, nil
	}
	return "", fmt.Errorf("unknown session tag %q", s)
}

// ExposesCorrectness reports whether feedback for this tag may show correctness to the user.
func (t SessionTag) ExposesCorrectness() bool { return t == TagPost }

// Confidence bounds for AnswerDraft.Confidence.
const (
	MinConfidence     = 1
	MaxConfidence     = 5
	DefaultConfidence = 3
)

// AnswerDraft is the in-progress answer for the current group.
type AnswerDraft struct {
	SelectedViews []int    `json:"selectedViewPositions"`
	Clues         []string `json:"selectedClueLabels"`
	OtherClue     string   `json:"freeTextClue"`
	Reasoning     string   `json:"reasoningText"`
	Confidence    int      `json:"confidence"`
}

// NewDraft returns an empty draft with the default confidence.
func NewDraft() AnswerDraft {
	return AnswerDraft{Confidence: DefaultConfidence}
}

// Clone returns a deep copy of d.
func (d AnswerDraft) Clone() AnswerDraft {
	d.SelectedViews = slices.Clone(d.SelectedViews)
	d.Clues = slices.Clone(d.Clues)
	return d
}

// SubmittedAnswer is the immutable record of a submission for one group.
type SubmittedAnswer struct {
	GroupIndex        int          `json:"groupIndex"`
	Draft             AnswerDraft  `json:"draft"`
	Order             DisplayOrder `json:"viewOrder"`
	SelectedCanonical []int        `json:"selectedCanonicalIndices"`
	GroundTruth       []int        `json:"groundTruthIndices"`
	Correct           bool         `json:"correct"`
	SubmittedAt       time.Time    `json:"timestamp"`
}

// ViewItem is a media item as placed on screen.
type ViewItem struct {
	Position int    `json:"position"`
	URL      string `json:"url"`
}

// Feedback is what the UI may show after a submission.
// Correct is nil when the session tag withholds correctness.
type Feedback struct {
	GroupIndex int   `json:"groupIndex"`
	Correct    *bool `json:"correct,omitempty"`
	// SyntheticViews lists the view positions of synthetic items, only alongside Correct.
	SyntheticViews []int `json:"syntheticViewPositions,omitempty"`
}

// State is the read-only snapshot of a session handed to the UI layer.
type State struct {
	SessionID  string      `json:"sessionId"`
	UserID     string      `json:"userId"`
	Tag        SessionTag  `json:"sessionTag"`
	Phase      Phase       `json:"phase"`
	GroupIndex int         `json:"groupIndex"`
	GroupCount int         `json:"groupCount"`
	Title      string      `json:"title,omitempty"`
	Prompt     string      `json:"description,omitempty"`
	Items      []ViewItem  `json:"items,omitempty"`
	Draft      AnswerDraft `json:"draft"`
	Submitted  bool        `json:"submitted"`
	Feedback   *Feedback   `json:"feedback,omitempty"`
	Answered   int         `json:"answered"`
}

// TelemetryEvent is the record relayed to the remote collector for each submission.
type TelemetryEvent struct {
	EventID             string       `json:"eventId"`
	SessionID           string       `json:"sessionId,omitempty"`
	UserID              string       `json:"userId"`
	SessionTag          SessionTag   `json:"sessionTag"`
	GroupIndex          int          `json:"groupIndex"`
	GroupTitle          string       `json:"groupTitle"`
	ViewOrder           DisplayOrder `json:"viewOrder"`
	CanonicalSelections []int        `json:"canonicalSelections"`
	GroundTruthIndices  []int        `json:"groundTruthIndices"`
	Correct             bool         `json:"correct"`
	Clues               []string     `json:"clues"`
	OtherClue           string       `json:"otherClue"`
	Reasoning           string       `json:"reasoning"`
	Confidence          int          `json:"confidence"`
	Timestamp           time.Time    `json:"timestamp"`
}

// EngineConfig holds runtime engine parameters set via CLI flags.
type EngineConfig struct {
	Mode            string // validation mode name or rule expression
	EthicsMode      string // validation mode for the ethics catalog
	MinReasonLength int
	NothingLabel    string // clue label that excludes all others
	Lang            string
}
