package playlist

import (
	"fmt"

	"nufang/pkg/models"
)

// Mode selects how next/previous navigation walks the playlist
type Mode string

const (
	Sequential Mode = "sequential"
	RepeatAll  Mode = "repeat-all"
	RepeatOne  Mode = "repeat-one"
	Random     Mode = "random"
)

// Modes lists every valid play mode
var Modes = []Mode{Sequential, RepeatAll, RepeatOne, Random}

// ParseMode converts a string into a Mode
func ParseMode(s string) (Mode, error) {
	for _, m := range Modes {
		if string(m) == s {
			return m, nil
		}
	}
	return "", fmt.Errorf("unknown play mode %q", s)
}

// Target is a navigation result: the track to play and its playlist index
type Target struct {
	Track models.Track
	Index int
}

// Next computes the track after current under mode. The second return value
// is false when there is no such track. In random mode an empty shuffle is
// generated on demand.
func Next(store *Store, current *models.Track, mode Mode, shuffle *Shuffle) (Target, bool) {
	return step(store, current, mode, shuffle, 1)
}

// Previous computes the track before current under mode
func Previous(store *Store, current *models.Track, mode Mode, shuffle *Shuffle) (Target, bool) {
	return step(store, current, mode, shuffle, -1)
}

func step(store *Store, current *models.Track, mode Mode, shuffle *Shuffle, dir int) (Target, bool) {
	n := store.Len()
	if current == nil || n == 0 {
		return Target{}, false
	}

	index := locate(store, current.ID)
	if index < 0 {
		return Target{}, false
	}

	var next int
	switch mode {
	case Sequential:
		next = index + dir
		if next < 0 || next >= n {
			return Target{}, false
		}
	case Random:
		return stepShuffle(store, current.ID, shuffle, dir)
	default:
		// repeat-all; repeat-one only differs on end-of-track
		next = (index + dir + n) % n
	}

	track, _ := store.At(next)
	return Target{Track: track, Index: next}, true
}

func stepShuffle(store *Store, currentID string, shuffle *Shuffle, dir int) (Target, bool) {
	if shuffle == nil {
		shuffle = &Shuffle{}
	}
	if shuffle.Empty() || shuffle.indexOf(currentID) < 0 {
		shuffle.Generate(store.Tracks(), currentID)
	}

	n := len(shuffle.order)
	pos := (shuffle.indexOf(currentID) + dir + n) % n
	id := shuffle.order[pos]

	index := store.IndexOf(id)
	if index < 0 {
		// order is stale relative to the playlist
		shuffle.Generate(store.Tracks(), currentID)
		n = len(shuffle.order)
		pos = (shuffle.indexOf(currentID) + dir + n) % n
		index = store.IndexOf(shuffle.order[pos])
		if index < 0 {
			return Target{}, false
		}
	}

	track, _ := store.At(index)
	return Target{Track: track, Index: index}, true
}

// locate prefers the store's active index when it still points at id.
func locate(store *Store, id string) int {
	if track, ok := store.At(store.Current()); ok && track.ID == id {
		return store.Current()
	}
	return store.IndexOf(id)
}
