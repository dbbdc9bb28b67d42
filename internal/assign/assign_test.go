package assign

import (
	"fmt"
	"testing"

	"github.com/deeplearn-app/deeplearn/internal/model"
)

func groupOf(n int) model.ItemGroup {
	g := model.ItemGroup{Title: fmt.Sprintf("group of %d", n)}
	for i := 0; i < n; i++ {
		g.Items = append(g.Items, model.Item{URL: fmt.Sprintf("/v%d", i), Label: model.LabelReal})
	}
	return g
}

func TestAssignIsPermutation(t *testing.T) {
	a := NewSeeded(1, 2)
	for n := 1; n <= 8; n++ {
		g := groupOf(n)
		for i := 0; i < 200; i++ {
			order := a.Assign(g)
			if !order.Valid(n) {
				t.Fatalf("Assign(%d items) = %v is not a permutation", n, order)
			}
		}
	}
}

func TestAssignGlobalSourceIsPermutation(t *testing.T) {
	a := New()
	g := groupOf(5)
	for i := 0; i < 100; i++ {
		if order := a.Assign(g); !order.Valid(5) {
			t.Fatalf("Assign = %v is not a permutation", order)
		}
	}
}

func TestAssignUniform(t *testing.T) {
	tests := []struct {
		n     int
		perms int
	}{
		{2, 2},
		{3, 6},
		{4, 24},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("n=%d", tt.n), func(t *testing.T) {
			a := NewSeeded(42, uint64(tt.n))
			g := groupOf(tt.n)
			const perPerm = 2000
			trials := perPerm * tt.perms
			counts := make(map[string]int)
			for i := 0; i < trials; i++ {
				counts[fmt.Sprint(a.Assign(g))]++
			}
			if len(counts) != tt.perms {
				t.Fatalf("expected all %d permutations, saw %d", tt.perms, len(counts))
			}
			// Chi-square against the uniform distribution. The bound is well above the
			// 99.9th percentile for 23 degrees of freedom (~49.7).
			var chi2 float64
			for _, c := range counts {
				d := float64(c) - perPerm
				chi2 += d * d / perPerm
			}
			if chi2 > 60 {
				t.Errorf("chi-square %.2f suggests a non-uniform shuffle: %v", chi2, counts)
			}
		})
	}
}

func TestAssignSingleItem(t *testing.T) {
	order := New().Assign(groupOf(1))
	if len(order) != 1 || order[0] != 0 {
		t.Errorf("expected [0], got %v", order)
	}
}

func TestIdentity(t *testing.T) {
	order := Identity(3)
	for i, c := range order {
		if i != c {
			t.Errorf("Identity(3)[%d] = %d", i, c)
		}
	}
}
