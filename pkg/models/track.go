package models

import "github.com/google/uuid"

// AlbumType classifies an album in the catalog
type AlbumType string

const (
	AlbumStudio   AlbumType = "album"
	AlbumLive     AlbumType = "live"
	AlbumRemaster AlbumType = "remaster"
	AlbumOther    AlbumType = "other"
)

// Track represents one playable audio item
type Track struct {
	ID         string  `json:"id" yaml:"id"`
	Title      string  `json:"title" yaml:"title"`
	Album      string  `json:"album" yaml:"album"`
	FilePath   string  `json:"filePath" yaml:"filePath"`
	Duration   float64 `json:"duration,omitempty" yaml:"duration,omitempty"` // in seconds, 0 if unknown
	CoverImage string  `json:"coverImage,omitempty" yaml:"coverImage,omitempty"`
}

// NewTrack builds an ad-hoc track whose identifier is derived from filePath,
// so the same locator always yields the same id.
func NewTrack(title, album, filePath string) Track {
	return Track{
		ID:       uuid.NewSHA1(uuid.NameSpaceURL, []byte(filePath)).String(),
		Title:    title,
		Album:    album,
		FilePath: filePath,
	}
}

// HasDuration reports whether the track declares its own duration
func (t Track) HasDuration() bool {
	return t.Duration > 0
}

// WithCover returns a copy of the track carrying cover when the track has none of its own.
func (t Track) WithCover(cover string) Track {
	if t.CoverImage == "" {
		t.CoverImage = cover
	}
	return t
}

// Album is a named, ordered collection of tracks sharing a cover image
type Album struct {
	ID         string    `json:"id" yaml:"id"`
	Name       string    `json:"name" yaml:"name"`
	CoverImage string    `json:"coverImage,omitempty" yaml:"coverImage,omitempty"`
	Year       string    `json:"year,omitempty" yaml:"year,omitempty"`
	Type       AlbumType `json:"type,omitempty" yaml:"type,omitempty"`
	Songs      []Track   `json:"songs" yaml:"songs"`
}

// Enriched returns a copy of the album whose songs inherit the album cover
// where they do not declare their own.
func (a Album) Enriched() Album {
	songs := make([]Track, len(a.Songs))
	for i, song := range a.Songs {
		songs[i] = song.WithCover(a.CoverImage)
	}
	a.Songs = songs
	return a
}

// FindSong returns the song with the given identifier
func (a Album) FindSong(id string) (Track, bool) {
	for _, song := range a.Songs {
		if song.ID == id {
			return song, true
		}
	}
	return Track{}, false
}

// Catalog is the document shape holding every known album
type Catalog struct {
	Albums []Album `json:"albums" yaml:"albums"`
}
