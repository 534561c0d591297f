package player

import "strings"

// Resolver turns a track's filePath into a locator the audio output can open.
type Resolver struct {
	// BasePath is the application base: a directory or a URL prefix.
	BasePath string
	// MusicBaseURL, when set, serves every "/music/..." path instead of BasePath.
	MusicBaseURL string
}

// Resolve maps path onto the configured bases. Absolute URLs and data:/blob:
// locators are returned untouched.
func (r Resolver) Resolve(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	if strings.HasPrefix(path, "data:") || strings.HasPrefix(path, "blob:") {
		return path
	}

	if strings.HasPrefix(path, "/music/") && r.MusicBaseURL != "" {
		return strings.TrimSuffix(r.MusicBaseURL, "/") + "/" + strings.TrimPrefix(path, "/")
	}

	base := r.BasePath
	if base == "" {
		base = "/"
	}
	normalizedBase := strings.TrimSuffix(base, "/")
	normalizedPath := strings.TrimPrefix(path, "/")

	if normalizedPath == "" {
		if normalizedBase == "" {
			return "/"
		}
		return normalizedBase + "/"
	}
	return normalizedBase + "/" + normalizedPath
}
