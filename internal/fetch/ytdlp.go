package fetch

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"os"
	"os/exec"
	"strings"

	"github.com/driftaudio/driftd/internal/retry"
)

// YTDLPFetcher downloads media with the yt-dlp command-line tool.
type YTDLPFetcher struct {
	binary string
	retry  retry.Config
}

// NewYTDLPFetcher creates a fetcher using the given yt-dlp binary
// (default "yt-dlp" resolved from PATH).
func NewYTDLPFetcher(binary string) *YTDLPFetcher {
	if binary == "" {
		binary = "yt-dlp"
	}
	return &YTDLPFetcher{binary: binary, retry: retry.DefaultConfig()}
}

// FetchAudio downloads the best audio track of locator as WAV into destDir.
// The output filename is derived from the canonical key so repeat fetches of
// the same source overwrite in place.
func (f *YTDLPFetcher) FetchAudio(ctx context.Context, locator, destDir string) (string, error) {
	if _, err := exec.LookPath(f.binary); err != nil {
		return "", fmt.Errorf("%s not found in PATH: %w", f.binary, err)
	}
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create download directory: %w", err)
	}

	dest := ArtifactPath(destDir, Fingerprint(locator))

	// -x extract audio, best quality, forced WAV container so the render
	// stage has a known input format. --force-overwrites because the dest
	// name is stable per source.
	args := []string{
		"-x",
		"--audio-format", "wav",
		"--audio-quality", "0",
		"--no-playlist",
		"--force-overwrites",
		"-o", dest,
		locator,
	}

	err := retry.Do(ctx, f.retry, func() error {
		return f.run(ctx, args)
	})
	if err != nil {
		return "", err
	}

	if _, statErr := os.Stat(dest); statErr != nil {
		return "", fmt.Errorf("audio file not found after download: %w", statErr)
	}
	return dest, nil
}

// FetchVideo downloads the video track of locator to destPath, trimmed to the
// given window when endSec > 0.
func (f *YTDLPFetcher) FetchVideo(ctx context.Context, locator, destPath string, startSec, endSec float64) (string, error) {
	if _, err := exec.LookPath(f.binary); err != nil {
		return "", fmt.Errorf("%s not found in PATH: %w", f.binary, err)
	}

	args := []string{
		"-f", "bestvideo[ext=mp4]/best[ext=mp4]/best",
		"--no-playlist",
		"--force-overwrites",
	}
	if endSec > 0 {
		args = append(args, "--download-sections", fmt.Sprintf("*%s-%s", clock(startSec), clock(endSec)))
	}
	args = append(args, "-o", destPath, locator)

	if err := retry.Do(ctx, f.retry, func() error { return f.run(ctx, args) }); err != nil {
		return "", err
	}
	if _, statErr := os.Stat(destPath); statErr != nil {
		return "", fmt.Errorf("video file not found after download: %w", statErr)
	}
	return destPath, nil
}

// run executes yt-dlp, surfacing the tail of stderr on failure.
func (f *YTDLPFetcher) run(ctx context.Context, args []string) error {
	cmd := exec.CommandContext(ctx, f.binary, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	log.Printf("fetch: running %s %s", f.binary, strings.Join(args, " "))
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%s failed: %w: %s", f.binary, err, lastLine(stderr.String()))
	}
	return nil
}

// clock formats seconds as MM:SS for yt-dlp section arguments.
func clock(sec float64) string {
	s := int(sec)
	return fmt.Sprintf("%02d:%02d", s/60, s%60)
}

// lastLine returns the final non-empty line of tool output, which is where
// yt-dlp puts its actual error.
func lastLine(out string) string {
	lines := strings.Split(strings.TrimSpace(out), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if line := strings.TrimSpace(lines[i]); line != "" {
			return line
		}
	}
	return "no output"
}
