// Package fetch turns remote media locators into local files. The downloader
// is an external yt-dlp process; from the pipeline's viewpoint it is a
// black-box, possibly-slow, possibly-failing operation.
package fetch

import (
	"context"
)

// Fetcher retrieves remote media to the local filesystem.
type Fetcher interface {
	// FetchAudio downloads the audio track of locator into destDir and
	// returns the path of the resulting file.
	FetchAudio(ctx context.Context, locator, destDir string) (string, error)
	// FetchVideo downloads the video track of locator to destPath,
	// trimmed to [startSec, endSec) when endSec > 0.
	FetchVideo(ctx context.Context, locator, destPath string, startSec, endSec float64) (string, error)
}
