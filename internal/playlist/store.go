package playlist

import (
	"nufang/pkg/models"

	"github.com/samber/lo"
)

// Store is the ordered, de-duplicated sequence of tracks eligible for playback
// together with the index of the active entry (-1 when none).
//
// Store is not safe for concurrent use; the player controller serialises access.
type Store struct {
	tracks  []models.Track
	current int
}

// NewStore creates an empty playlist store
func NewStore() *Store {
	return &Store{
		tracks:  make([]models.Track, 0),
		current: -1,
	}
}

// Len returns the number of tracks
func (s *Store) Len() int {
	return len(s.tracks)
}

// Tracks returns a copy of all tracks
func (s *Store) Tracks() []models.Track {
	result := make([]models.Track, len(s.tracks))
	copy(result, s.tracks)
	return result
}

// At returns the track at index
func (s *Store) At(index int) (models.Track, bool) {
	if index < 0 || index >= len(s.tracks) {
		return models.Track{}, false
	}
	return s.tracks[index], true
}

// IndexOf returns the position of the track with the given identifier, or -1.
func (s *Store) IndexOf(id string) int {
	_, index, found := lo.FindIndexOf(s.tracks, func(t models.Track) bool {
		return t.ID == id
	})
	if !found {
		return -1
	}
	return index
}

// Contains reports whether a track with the identifier is present
func (s *Store) Contains(id string) bool {
	return s.IndexOf(id) >= 0
}

// Current returns the index of the active entry
func (s *Store) Current() int {
	return s.current
}

// SetCurrent points the store at index. Anything outside the playlist clears it.
func (s *Store) SetCurrent(index int) {
	if index < 0 || index >= len(s.tracks) {
		s.current = -1
		return
	}
	s.current = index
}

// Append adds the track at the end unless its identifier is already present.
// It reports whether the track was added.
func (s *Store) Append(track models.Track) bool {
	if s.Contains(track.ID) {
		return false
	}
	s.tracks = append(s.tracks, track)
	return true
}

// AppendAlbum appends every song of the album (cover-enriched) under the same
// de-duplication rule as Append and returns how many were added.
func (s *Store) AppendAlbum(album models.Album) int {
	added := 0
	for _, song := range album.Enriched().Songs {
		if s.Append(song) {
			added++
		}
	}
	return added
}

// Remove deletes the entry with the given identifier. removedCurrent is true
// when the deleted entry was the active one; ok is false when nothing matched.
func (s *Store) Remove(id string) (removedCurrent bool, ok bool) {
	index := s.IndexOf(id)
	if index < 0 {
		return false, false
	}

	s.tracks = append(s.tracks[:index], s.tracks[index+1:]...)

	switch {
	case index == s.current:
		s.current = -1
		removedCurrent = true
	case index < s.current:
		s.current--
	}
	return removedCurrent, true
}

// Clear empties the playlist and clears the active index
func (s *Store) Clear() {
	s.tracks = s.tracks[:0]
	s.current = -1
}

// ReplaceWith discards prior contents unconditionally. Duplicate identifiers
// in tracks keep their first occurrence only.
func (s *Store) ReplaceWith(tracks []models.Track) {
	s.tracks = lo.UniqBy(tracks, func(t models.Track) string {
		return t.ID
	})
	s.current = -1
}
