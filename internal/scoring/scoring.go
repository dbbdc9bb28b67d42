package scoring

import (
	"slices"

	"github.com/deeplearn-app/deeplearn/internal/model"
)

// Result is the verdict for one submitted selection.
type Result struct {
	Correct             bool  `json:"correct"`
	CanonicalSelections []int `json:"canonicalSelections"`
	GroundTruth         []int `json:"groundTruthIndices"`
}

// GroundTruth returns the sorted canonical indices of the group's synthetic items.
func GroundTruth(group model.ItemGroup) []int {
	out := []int{}
	for i, it := range group.Items {
		if it.Label == model.LabelSynthetic {
			out = append(out, i)
		}
	}
	return out
}

// Score maps the selected view positions through order and compares them with the
// group's ground truth. Only an exact set match is correct; there is no partial credit.
// View positions outside the order are ignored.
func Score(group model.ItemGroup, order model.DisplayOrder, selectedViews []int) Result {
	selected := order.MapToCanonical(selectedViews)
	truth := GroundTruth(group)
	return Result{
		Correct:             slices.Equal(selected, truth),
		CanonicalSelections: selected,
		GroundTruth:         truth,
	}
}
