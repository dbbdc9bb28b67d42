package assign

import (
	"math/rand/v2"
	"sync"

	"github.com/deeplearn-app/deeplearn/internal/model"
)

// Assigner produces display orders for item groups.
type Assigner struct {
	mu  sync.Mutex
	rng *rand.Rand // nil uses the global source
}

// New returns an Assigner backed by the global random source.
func New() *Assigner {
	return &Assigner{}
}

// NewSeeded returns an Assigner with a deterministic source, for tests and replays.
func NewSeeded(seed1, seed2 uint64) *Assigner {
	return &Assigner{rng: rand.New(rand.NewPCG(seed1, seed2))}
}

// Assign returns a uniformly random permutation of the group's canonical indices
// (Fisher–Yates). Index i of the result is the canonical item shown at view position i.
func (a *Assigner) Assign(group model.ItemGroup) model.DisplayOrder {
	order := Identity(len(group.Items))
	shuffle := rand.Shuffle
	if a.rng != nil {
		a.mu.Lock()
		defer a.mu.Unlock()
		shuffle = a.rng.Shuffle
	}
	shuffle(len(order), func(i, j int) {
		order[i], order[j] = order[j], order[i]
	})
	return order
}

// Identity returns the unshuffled order for n items.
func Identity(n int) model.DisplayOrder {
	order := make(model.DisplayOrder, n)
	for i := range order {
		order[i] = i
	}
	return order
}
