package player

// ShowPlayer makes the player bar visible
func (c *Controller) ShowPlayer() { c.setVisibility(&c.playerVisible, true) }

// HidePlayer hides the player bar
func (c *Controller) HidePlayer() { c.setVisibility(&c.playerVisible, false) }

// TogglePlayer flips player bar visibility
func (c *Controller) TogglePlayer() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.playerVisible = !c.playerVisible
	c.notifyLocked()
}

// ShowPlaylist makes the playlist panel visible
func (c *Controller) ShowPlaylist() { c.setVisibility(&c.playlistVisible, true) }

// HidePlaylist hides the playlist panel
func (c *Controller) HidePlaylist() { c.setVisibility(&c.playlistVisible, false) }

// TogglePlaylist flips playlist panel visibility
func (c *Controller) TogglePlaylist() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.playlistVisible = !c.playlistVisible
	c.notifyLocked()
}

func (c *Controller) setVisibility(flag *bool, visible bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	*flag = visible
	c.notifyLocked()
}
