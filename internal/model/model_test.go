package model

import (
	"slices"
	"testing"
)

// permutations returns every ordering of [0, n).
func permutations(n int) []DisplayOrder {
	if n == 0 {
		return []DisplayOrder{{}}
	}
	var out []DisplayOrder
	for _, p := range permutations(n - 1) {
		for i := 0; i <= len(p); i++ {
			q := make(DisplayOrder, 0, n)
			q = append(q, p[:i]...)
			q = append(q, n-1)
			q = append(q, p[i:]...)
			out = append(out, q)
		}
	}
	return out
}

// subsets returns every subset of [0, n) as a sorted slice.
func subsets(n int) [][]int {
	var out [][]int
	for mask := 0; mask < 1<<n; mask++ {
		s := []int{}
		for i := 0; i < n; i++ {
			if mask&(1<<i) != 0 {
				s = append(s, i)
			}
		}
		out = append(out, s)
	}
	return out
}

func TestCatalogClone(t *testing.T) {
	orig := Catalog{Name: "c", Groups: []ItemGroup{
		{Title: "g", Items: []Item{{URL: "a.mp4", Label: LabelSynthetic}}},
	}}
	cp := orig.Clone()
	orig.Groups[0].Title = "changed"
	orig.Groups[0].Items[0].Label = LabelReal

	if cp.Name != "c" || cp.Groups[0].Title != "g" || cp.Groups[0].Items[0].Label != LabelSynthetic {
		t.Errorf("clone shares state with original: %+v", cp)
	}
}

func TestDisplayOrderRoundTrip(t *testing.T) {
	for n := 1; n <= 4; n++ {
		for _, order := range permutations(n) {
			if !order.Valid(n) {
				t.Fatalf("permutation %v reported invalid", order)
			}
			for _, views := range subsets(n) {
				back := order.MapToView(order.MapToCanonical(views))
				if !slices.Equal(back, views) {
					t.Errorf("order %v: round trip of %v gave %v", order, views, back)
				}
			}
		}
	}
}

func TestDisplayOrderInverse(t *testing.T) {
	order := DisplayOrder{2, 0, 1}
	inv := order.Inverse()
	for v := range order {
		if inv[order.Canonical(v)] != v {
			t.Errorf("inverse mismatch at view %d", v)
		}
		if order.View(order.Canonical(v)) != v {
			t.Errorf("View(Canonical(%d)) != %d", v, v)
		}
	}
	if order.View(7) != -1 {
		t.Error("expected -1 for unknown canonical index")
	}
}

func TestDisplayOrderValid(t *testing.T) {
	tests := []struct {
		name  string
		order DisplayOrder
		n     int
		want  bool
	}{
		{"identity", DisplayOrder{0, 1}, 2, true},
		{"swapped", DisplayOrder{1, 0}, 2, true},
		{"wrong length", DisplayOrder{0}, 2, false},
		{"duplicate", DisplayOrder{0, 0}, 2, false},
		{"out of range", DisplayOrder{0, 2}, 2, false},
		{"negative", DisplayOrder{-1, 0}, 2, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.order.Valid(tt.n); got != tt.want {
				t.Errorf("Valid(%d) = %v, want %v", tt.n, got, tt.want)
			}
		})
	}
}

func TestMapToCanonicalDropsOutOfRange(t *testing.T) {
	order := DisplayOrder{1, 0}
	got := order.MapToCanonical([]int{0, 5, -1, 0})
	if !slices.Equal(got, []int{1}) {
		t.Errorf("MapToCanonical = %v, want [1]", got)
	}
}

func TestParseLabel(t *testing.T) {
	tests := []struct {
		in      string
		want    Label
		wantErr bool
	}{
		{"real", LabelReal, false},
		{"synthetic", LabelSynthetic, false},
		{"fake", LabelSynthetic, false},
		{"Real", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		got, err := ParseLabel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLabel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("ParseLabel(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSessionTagExposesCorrectness(t *testing.T) {
	if TagPre.ExposesCorrectness() {
		t.Error("pre must withhold correctness")
	}
	if !TagPost.ExposesCorrectness() {
		t.Error("post must expose correctness")
	}
	if TagEthics.ExposesCorrectness() {
		t.Error("ethics must withhold correctness")
	}
	if _, err := ParseSessionTag("mid"); err == nil {
		t.Error("expected error for unknown tag")
	}
}
