package player

import "nufang/pkg/models"

// SetAlbums replaces the known catalog. Every album is cover-enriched on the way in.
func (c *Controller) SetAlbums(albums []models.Album) {
	enriched := make([]models.Album, len(albums))
	for i, album := range albums {
		enriched[i] = album.Enriched()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.albums = enriched
	c.logger.WithField("albums", len(enriched)).Info("Catalog updated")
}

// Albums returns a copy of the known catalog
func (c *Controller) Albums() []models.Album {
	c.mu.Lock()
	defer c.mu.Unlock()

	result := make([]models.Album, len(c.albums))
	copy(result, c.albums)
	return result
}

// Album looks up an album by identifier
func (c *Controller) Album(id string) (models.Album, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, album := range c.albums {
		if album.ID == id {
			return album, true
		}
	}
	return models.Album{}, false
}

// CurrentAlbum returns the album most recently loaded for playback
func (c *Controller) CurrentAlbum() (models.Album, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.currentAlbum == nil {
		return models.Album{}, false
	}
	return *c.currentAlbum, true
}

// FindTrack searches the catalog for a song, returning it with its album
func (c *Controller) FindTrack(id string) (models.Track, models.Album, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, album := range c.albums {
		if song, ok := album.FindSong(id); ok {
			return song, album, true
		}
	}
	return models.Track{}, models.Album{}, false
}
