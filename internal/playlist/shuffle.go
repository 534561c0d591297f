package playlist

import (
	"nufang/pkg/models"

	"github.com/samber/lo"
	"github.com/samber/lo/mutable"
)

// Shuffle holds the ephemeral random ordering used in random mode. It stores
// identifiers only; real playlist indices are looked up at navigation time.
type Shuffle struct {
	order []string
}

// Generate replaces the order with a fresh uniform permutation of tracks.
// When more than one track is present the track identified by currentID is
// never placed first.
func (sh *Shuffle) Generate(tracks []models.Track, currentID string) {
	order := lo.Map(tracks, func(t models.Track, _ int) string {
		return t.ID
	})
	mutable.Shuffle(order)

	if len(order) > 1 && currentID != "" && order[0] == currentID {
		order[0], order[1] = order[1], order[0]
	}
	sh.order = order
}

// Reset drops the order; it is regenerated on demand
func (sh *Shuffle) Reset() {
	sh.order = nil
}

// Empty reports whether no order has been generated
func (sh *Shuffle) Empty() bool {
	return len(sh.order) == 0
}

// Order returns a copy of the current ordering
func (sh *Shuffle) Order() []string {
	result := make([]string, len(sh.order))
	copy(result, sh.order)
	return result
}

func (sh *Shuffle) indexOf(id string) int {
	return lo.IndexOf(sh.order, id)
}
