package cache

import (
	"testing"
	"time"

	"nufang/pkg/models"
)

func TestMemoryCacheSetGet(t *testing.T) {
	c := NewMemoryCache(time.Minute)
	defer c.Close()

	c.Set("a", 1)
	if v, ok := c.Get("a"); !ok || v.(int) != 1 {
		t.Errorf("Expected 1, got %v (found=%v)", v, ok)
	}

	c.Delete("a")
	if _, ok := c.Get("a"); ok {
		t.Error("Expected entry to be deleted")
	}

	c.Set("b", 2)
	c.Set("c", 3)
	if c.Size() != 2 {
		t.Errorf("Expected size 2, got %d", c.Size())
	}
	c.Clear()
	if c.Size() != 0 {
		t.Errorf("Expected empty cache after Clear, got %d", c.Size())
	}
}

func TestMemoryCacheExpiry(t *testing.T) {
	c := NewMemoryCache(20 * time.Millisecond)
	defer c.Close()

	c.Set("k", "v")
	time.Sleep(40 * time.Millisecond)

	if _, ok := c.Get("k"); ok {
		t.Error("Expected entry to expire")
	}
}

func TestDurationCache(t *testing.T) {
	dc := NewDurationCache()
	defer dc.Close()

	if _, ok := dc.GetDuration("/music/a.mp3"); ok {
		t.Error("Expected miss on empty cache")
	}

	dc.SetDuration("/music/a.mp3", 215.5)
	if d, ok := dc.GetDuration("/music/a.mp3"); !ok || d != 215.5 {
		t.Errorf("Expected 215.5, got %v (found=%v)", d, ok)
	}

	track := models.Track{ID: "x", Title: "X", FilePath: "/music/a.mp3"}
	dc.SetTrack("/music/a.mp3", track)
	got, ok := dc.GetTrack("/music/a.mp3")
	if !ok || got.Title != "X" {
		t.Errorf("Expected cached track, got %+v (found=%v)", got, ok)
	}

	// durations and tracks share the path without colliding
	if d, _ := dc.GetDuration("/music/a.mp3"); d != 215.5 {
		t.Errorf("Track entry overwrote duration: %v", d)
	}
}
