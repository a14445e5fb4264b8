// Package search looks up media in the upstream catalog by free-text query.
// It shells out to yt-dlp's flat-playlist search; it is stateless and has no
// caching concerns.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os/exec"
	"strings"
)

// Video is one search result descriptor.
type Video struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Thumbnail string `json:"thumbnail"`
	Duration  string `json:"duration"`
	Channel   string `json:"channel"`
	URL       string `json:"url"`
}

// Searcher finds media descriptors for a query.
type Searcher interface {
	Search(ctx context.Context, query string, limit int) ([]Video, error)
}

// YTDLPSearcher implements Searcher with the yt-dlp command-line tool.
type YTDLPSearcher struct {
	binary string
}

// NewYTDLPSearcher creates a searcher using the given yt-dlp binary
// (default "yt-dlp" resolved from PATH).
func NewYTDLPSearcher(binary string) *YTDLPSearcher {
	if binary == "" {
		binary = "yt-dlp"
	}
	return &YTDLPSearcher{binary: binary}
}

// Search returns up to limit ranked results for the query.
func (s *YTDLPSearcher) Search(ctx context.Context, query string, limit int) ([]Video, error) {
	if limit <= 0 {
		limit = 5
	}
	if _, err := exec.LookPath(s.binary); err != nil {
		return nil, fmt.Errorf("%s not found in PATH: %w", s.binary, err)
	}

	cmd := exec.CommandContext(ctx, s.binary,
		"--dump-json",
		"--flat-playlist",
		"--no-download",
		"--default-search", "ytsearch",
		fmt.Sprintf("ytsearch%d:%s", limit, query),
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("search failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return ParseResults(out), nil
}

// rawResult is the subset of yt-dlp's per-line JSON we care about.
type rawResult struct {
	ID             string  `json:"id"`
	Title          string  `json:"title"`
	Thumbnail      string  `json:"thumbnail"`
	DurationString string  `json:"duration_string"`
	Duration       float64 `json:"duration"`
	Channel        string  `json:"channel"`
	WebpageURL     string  `json:"webpage_url"`
}

// ParseResults decodes yt-dlp's one-JSON-object-per-line search output.
// Malformed lines are skipped, not fatal.
func ParseResults(out []byte) []Video {
	videos := make([]Video, 0)
	for _, line := range strings.Split(string(out), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		var raw rawResult
		if err := json.Unmarshal([]byte(line), &raw); err != nil {
			log.Printf("search: skipping malformed result line: %v", err)
			continue
		}
		videos = append(videos, raw.toVideo())
	}
	return videos
}

func (r rawResult) toVideo() Video {
	v := Video{
		ID:        r.ID,
		Title:     r.Title,
		Thumbnail: r.Thumbnail,
		Duration:  r.DurationString,
		Channel:   r.Channel,
		URL:       r.WebpageURL,
	}
	if v.Duration == "" {
		if r.Duration > 0 {
			sec := int(r.Duration)
			v.Duration = fmt.Sprintf("%d:%02d", sec/60, sec%60)
		} else {
			v.Duration = "Unknown"
		}
	}
	if v.Channel == "" {
		v.Channel = "Unknown"
	}
	if v.URL == "" && v.ID != "" {
		v.URL = "https://www.youtube.com/watch?v=" + v.ID
	}
	// Flat-playlist results sometimes carry no usable thumbnail URL.
	if !strings.HasPrefix(v.Thumbnail, "http://") && !strings.HasPrefix(v.Thumbnail, "https://") {
		if v.ID != "" {
			v.Thumbnail = fmt.Sprintf("https://i.ytimg.com/vi/%s/mqdefault.jpg", v.ID)
		} else {
			v.Thumbnail = ""
		}
	}
	return v
}
