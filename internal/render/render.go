// Package render applies the slowed+reverb effect chain to fetched media.
// The actual signal processing is an external ffmpeg process; this package
// builds its invocation and reports its progress.
package render

import (
	"context"
)

// Params are the effect mix parameters. Speed must be positive; the four mix
// parameters are each in [0, 1] and independent of one another.
type Params struct {
	Speed    float64
	RoomSize float64
	Damping  float64
	WetLevel float64
	DryLevel float64
}

// Window is a trim window in seconds from the start of the source.
// End <= 0 means "until the end of the source".
type Window struct {
	Start float64
	End   float64
}

// Duration returns the window length in seconds, or 0 when open-ended.
func (w Window) Duration() float64 {
	if w.End <= 0 {
		return 0
	}
	return w.End - w.Start
}

// Job describes one render: a raw audio artifact (borrowed from the cache),
// the effect parameters, and optionally a video track to mux under the
// processed audio.
type Job struct {
	AudioPath  string
	VideoPath  string // when set, output is video with the processed audio
	LoopVideo  bool   // loop the video to fill the audio duration
	OutputPath string
	Params     Params
	Window     *Window // optional trim applied to the audio input
}

// ProgressFunc receives fractional render progress in [0, 1). Renderers that
// cannot estimate progress simply never call it.
type ProgressFunc func(fraction float64)

// Renderer produces the processed artifact for a job.
type Renderer interface {
	Render(ctx context.Context, job Job, progress ProgressFunc) (string, error)
}
