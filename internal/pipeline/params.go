package pipeline

import (
	"regexp"
	"strconv"

	"github.com/driftaudio/driftd/internal/render"
	"github.com/driftaudio/driftd/pkg/models"
)

// Preview requests always render this fixed window, regardless of any
// caller-provided trim fields.
const (
	previewStartSec = 15
	previewEndSec   = 35
)

// plan is the validated, resolved shape of a request: what to fetch, how to
// trim, and how to render. Building it performs all parameter validation, so
// a job with a plan never fails on its own parameters again.
type plan struct {
	params    render.Params
	window    *render.Window
	loopVideo bool
	videoURL  string // source of the video track in loop mode
	preview   bool
}

// buildPlan validates the request and resolves it into a plan. All returned
// errors carry the validation category.
func buildPlan(req models.Request) (*plan, error) {
	if req.SourceURL == "" {
		return nil, models.Validationf("youtube_url is required")
	}
	if req.AudioSpeed <= 0 {
		return nil, models.Validationf("audio_speed must be positive, got %v", req.AudioSpeed)
	}
	for _, p := range []struct {
		name  string
		value float64
	}{
		{"room_size", req.RoomSize},
		{"damping", req.Damping},
		{"wet_level", req.WetLevel},
		{"dry_level", req.DryLevel},
	} {
		if p.value < 0 || p.value > 1 {
			return nil, models.Validationf("%s must be in [0, 1], got %v", p.name, p.value)
		}
	}

	pl := &plan{
		params: render.Params{
			Speed:    req.AudioSpeed,
			RoomSize: req.RoomSize,
			Damping:  req.Damping,
			WetLevel: req.WetLevel,
			DryLevel: req.DryLevel,
		},
		preview: req.Preview,
	}

	if req.Preview {
		// Fixed 20-second window starting 15 seconds in; trim fields are
		// not accepted in this mode.
		pl.window = &render.Window{Start: previewStartSec, End: previewEndSec}
		return pl, nil
	}

	var startSec, endSec float64
	var hasStart, hasEnd bool
	if req.StartTime != "" {
		sec, err := parseClock(req.StartTime)
		if err != nil {
			return nil, models.Validationf("start_time: %v", err)
		}
		startSec, hasStart = sec, true
	}
	if req.EndTime != "" {
		sec, err := parseClock(req.EndTime)
		if err != nil {
			return nil, models.Validationf("end_time: %v", err)
		}
		endSec, hasEnd = sec, true
	}
	if hasStart && hasEnd && endSec <= startSec {
		return nil, models.Validationf("end_time %s must be after start_time %s", req.EndTime, req.StartTime)
	}
	if hasStart || hasEnd {
		pl.window = &render.Window{Start: startSec, End: endSec}
		if !hasEnd {
			pl.window.End = 0 // open-ended
		}
	}

	if req.LoopVideo && hasStart && hasEnd {
		pl.loopVideo = true
		pl.videoURL = req.VideoURL
		if pl.videoURL == "" {
			pl.videoURL = req.SourceURL
		}
	}

	return pl, nil
}

// outputName returns the result filename for a job following this plan.
func (p *plan) outputName(jobID string) string {
	switch {
	case p.preview:
		return "preview_" + jobID + ".mp3"
	case p.loopVideo:
		return jobID + ".mp4"
	default:
		return jobID + ".mp3"
	}
}

var clockRE = regexp.MustCompile(`^(\d{1,3}):([0-5]\d)$`)

// parseClock converts an MM:SS string into seconds. The seconds field must be
// two digits below 60.
func parseClock(s string) (float64, error) {
	m := clockRE.FindStringSubmatch(s)
	if m == nil {
		return 0, models.Validationf("invalid time %q: expected MM:SS", s)
	}
	minutes, _ := strconv.Atoi(m[1])
	seconds, _ := strconv.Atoi(m[2])
	return float64(minutes*60 + seconds), nil
}
