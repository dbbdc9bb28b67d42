package policy

import (
	"fmt"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/deeplearn-app/deeplearn/internal/model"
)

const (
	// DefaultMinReasonLength is the trimmed reasoning length the reason predicate requires.
	DefaultMinReasonLength = 10
	// DefaultNothingLabel is the clue label meaning "nothing detected".
	DefaultNothingLabel = "nothing-detected"
)

// Requirement names a condition a draft must meet before it can be submitted.
type Requirement string

const (
	RequireClue      Requirement = "clue"
	RequireReason    Requirement = "reason"
	RequireSelection Requirement = "selection"
	// RequireAnyOf groups alternatives; meeting any one of its Options is enough.
	RequireAnyOf Requirement = "any_of"
	// RequireAllOf groups parts that must all be met; it appears as one option of an any_of.
	RequireAllOf Requirement = "all_of"
)

// MissingRequirement describes one unmet requirement, for UI feedback.
type MissingRequirement struct {
	Requirement Requirement          `json:"requirement"`
	MinLength   int                  `json:"minLength,omitempty"`
	Options     []MissingRequirement `json:"options,omitempty"`
	Parts       []MissingRequirement `json:"parts,omitempty"`
}

// Policy decides whether an answer draft is ready to submit.
type Policy struct {
	Mode            Mode
	MinReasonLength int
	NothingLabel    string
}

// New returns a Policy for mode. Zero values select the defaults.
func New(mode Mode, minReasonLength int, nothingLabel string) *Policy {
	if minReasonLength <= 0 {
		minReasonLength = DefaultMinReasonLength
	}
	if nothingLabel == "" {
		nothingLabel = DefaultNothingLabel
	}
	return &Policy{Mode: mode, MinReasonLength: minReasonLength, NothingLabel: nothingLabel}
}

// CanSubmit reports whether the draft satisfies the policy's mode.
func (p *Policy) CanSubmit(d model.AnswerDraft) bool {
	return p.Mode.Rule.satisfied(p, d)
}

// Explain lists the requirements the draft still misses. It returns nil when the
// draft can be submitted.
func (p *Policy) Explain(d model.AnswerDraft) []MissingRequirement {
	if p.CanSubmit(d) {
		return nil
	}
	return p.Mode.Rule.missing(p, d)
}

// ToggleClue adds or removes label from clues. The nothing label is mutually
// exclusive with every other label: selecting it clears the rest and selecting
// any other label clears it. The result is sorted.
func (p *Policy) ToggleClue(clues []string, label string) []string {
	out := slices.Clone(clues)
	if i := slices.Index(out, label); i >= 0 {
		return slices.Delete(out, i, i+1)
	}
	if label == p.NothingLabel {
		return []string{label}
	}
	out = slices.DeleteFunc(out, func(c string) bool { return c == p.NothingLabel })
	out = append(out, label)
	slices.Sort(out)
	return out
}

func (p *Policy) check(r Requirement, d model.AnswerDraft) bool {
	switch r {
	case RequireClue:
		return len(d.Clues) > 0 || strings.TrimSpace(d.OtherClue) != ""
	case RequireReason:
		return utf8.RuneCountInString(strings.TrimSpace(d.Reasoning)) >= p.MinReasonLength
	case RequireSelection:
		return len(d.SelectedViews) > 0
	}
	return false
}

func (p *Policy) describe(r Requirement) MissingRequirement {
	m := MissingRequirement{Requirement: r}
	if r == RequireReason {
		m.MinLength = p.MinReasonLength
	}
	return m
}

// Rule is a composable submission condition.
type Rule interface {
	satisfied(p *Policy, d model.AnswerDraft) bool
	missing(p *Policy, d model.AnswerDraft) []MissingRequirement
	String() string
}

type predicate Requirement

// Predicate returns the rule that checks a single requirement.
func Predicate(r Requirement) Rule { return predicate(r) }

func (r predicate) satisfied(p *Policy, d model.AnswerDraft) bool {
	return p.check(Requirement(r), d)
}

func (r predicate) missing(p *Policy, d model.AnswerDraft) []MissingRequirement {
	if r.satisfied(p, d) {
		return nil
	}
	return []MissingRequirement{p.describe(Requirement(r))}
}

func (r predicate) String() string { return string(r) }

type allOf []Rule

// All returns a rule met when every sub-rule is met.
func All(rules ...Rule) Rule { return allOf(rules) }

func (a allOf) satisfied(p *Policy, d model.AnswerDraft) bool {
	for _, r := range a {
		if !r.satisfied(p, d) {
			return false
		}
	}
	return true
}

func (a allOf) missing(p *Policy, d model.AnswerDraft) []MissingRequirement {
	var out []MissingRequirement
	for _, r := range a {
		out = append(out, r.missing(p, d)...)
	}
	return out
}

func (a allOf) String() string { return join(a, "&") }

type anyOf []Rule

// Any returns a rule met when at least one sub-rule is met.
func Any(rules ...Rule) Rule { return anyOf(rules) }

func (a anyOf) satisfied(p *Policy, d model.AnswerDraft) bool {
	for _, r := range a {
		if r.satisfied(p, d) {
			return true
		}
	}
	return false
}

func (a anyOf) missing(p *Policy, d model.AnswerDraft) []MissingRequirement {
	if a.satisfied(p, d) {
		return nil
	}
	var opts []MissingRequirement
	for _, r := range a {
		ms := r.missing(p, d)
		if len(ms) > 1 {
			// Every part of a conjunction is needed; keep them together as one option.
			opts = append(opts, MissingRequirement{Requirement: RequireAllOf, Parts: ms})
			continue
		}
		opts = append(opts, ms...)
	}
	if len(opts) == 1 {
		return opts
	}
	return []MissingRequirement{{Requirement: RequireAnyOf, Options: opts}}
}

func (a anyOf) String() string { return join(a, "|") }

func join(rules []Rule, sep string) string {
	parts := make([]string, len(rules))
	for i, r := range rules {
		parts[i] = r.String()
	}
	return strings.Join(parts, sep)
}

// ParseRule parses an expression of requirement names joined by "&" (and) and
// "|" (or). "&" binds tighter than "|", so "selection&clue|reason" means
// (selection and clue) or reason.
func ParseRule(expr string) (Rule, error) {
	var alts []Rule
	for _, alt := range strings.Split(expr, "|") {
		var terms []Rule
		for _, term := range strings.Split(alt, "&") {
			name := Requirement(strings.TrimSpace(term))
			switch name {
			case RequireClue, RequireReason, RequireSelection:
				terms = append(terms, Predicate(name))
			case "":
				return nil, fmt.Errorf("empty term in rule %q", expr)
			default:
				return nil, fmt.Errorf("unknown requirement %q in rule %q", name, expr)
			}
		}
		if len(terms) == 1 {
			alts = append(alts, terms[0])
		} else {
			alts = append(alts, All(terms...))
		}
	}
	if len(alts) == 1 {
		return alts[0], nil
	}
	return Any(alts...), nil
}
