package policy

import (
	"fmt"
	"sort"
	"strings"
)

// Mode is a named submission rule.
type Mode struct {
	Name string
	Rule Rule
}

// Built-in modes seen across the activity screens.
var (
	ClueRequired      = Mode{Name: "clue-required", Rule: Predicate(RequireClue)}
	ReasonRequired    = Mode{Name: "reason-required", Rule: Predicate(RequireReason)}
	EitherOr          = Mode{Name: "either-or", Rule: Any(Predicate(RequireClue), Predicate(RequireReason))}
	SelectionRequired = Mode{Name: "selection-required", Rule: Predicate(RequireSelection)}
)

var builtinModes = map[string]Mode{
	ClueRequired.Name:      ClueRequired,
	ReasonRequired.Name:    ReasonRequired,
	EitherOr.Name:          EitherOr,
	SelectionRequired.Name: SelectionRequired,
}

// ModeNames lists the built-in mode names, sorted.
func ModeNames() []string {
	names := make([]string, 0, len(builtinModes))
	for n := range builtinModes {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// ParseMode resolves a built-in mode name or parses s as a rule expression
// (see ParseRule), so new modes need only configuration.
func ParseMode(s string) (Mode, error) {
	s = strings.TrimSpace(s)
	if m, ok := builtinModes[strings.ToLower(s)]; ok {
		return m, nil
	}
	r, err := ParseRule(s)
	if err != nil {
		return Mode{}, fmt.Errorf("parse mode %q (built-ins: %s): %w", s, strings.Join(ModeNames(), ", "), err)
	}
	return Mode{Name: r.String(), Rule: r}, nil
}
