package i18n

import (
	"context"
	"strings"

	"github.com/deeplearn-app/deeplearn/internal/policy"
)

// Missing renders unmet submission requirements as user-facing sentences.
func Missing(ctx context.Context, missing []policy.MissingRequirement) []string {
	out := make([]string, 0, len(missing))
	for _, m := range missing {
		out = append(out, requirement(ctx, m))
	}
	return out
}

func requirement(ctx context.Context, m policy.MissingRequirement) string {
	switch m.Requirement {
	case policy.RequireClue:
		return T(ctx, "MissingClue")
	case policy.RequireReason:
		return Td(ctx, "MissingReason", map[string]any{"MinLength": m.MinLength})
	case policy.RequireSelection:
		return T(ctx, "MissingSelection")
	case policy.RequireAnyOf:
		return Td(ctx, "MissingAnyOf", map[string]any{
			"Options": strings.Join(Missing(ctx, m.Options), " "),
		})
	case policy.RequireAllOf:
		return Td(ctx, "MissingAllOf", map[string]any{
			"Parts": strings.Join(Missing(ctx, m.Parts), " "),
		})
	}
	return string(m.Requirement)
}
