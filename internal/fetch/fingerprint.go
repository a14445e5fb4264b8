package fetch

import (
	"crypto/sha1"
	"encoding/hex"
	"net/url"
	"path/filepath"
	"strings"
)

// Fingerprint canonicalizes a source locator so that equivalent locators
// produce the same cache key. YouTube URLs in any of their usual shapes
// collapse to the video ID; anything else is normalized structurally.
func Fingerprint(locator string) string {
	raw := strings.TrimSpace(locator)
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}

	host := strings.ToLower(u.Hostname())
	host = strings.TrimPrefix(host, "www.")
	host = strings.TrimPrefix(host, "m.")

	switch host {
	case "youtube.com", "music.youtube.com":
		if id := u.Query().Get("v"); id != "" {
			return "youtube:" + id
		}
		// /shorts/ID, /embed/ID, /live/ID
		parts := strings.Split(strings.Trim(u.Path, "/"), "/")
		if len(parts) == 2 {
			switch parts[0] {
			case "shorts", "embed", "live", "v":
				return "youtube:" + parts[1]
			}
		}
	case "youtu.be":
		if id := strings.Trim(u.Path, "/"); id != "" {
			return "youtube:" + id
		}
	}

	u.Fragment = ""
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	return strings.TrimRight(u.String(), "/")
}

// ArtifactPath maps a cache key to a stable filename under dir, so a re-fetch
// of the same key replaces the previous artifact in place.
func ArtifactPath(dir, key string) string {
	sum := sha1.Sum([]byte(key))
	return filepath.Join(dir, hex.EncodeToString(sum[:])+".wav")
}
