package render

import (
	"strings"
	"testing"
)

func argsContain(args []string, want ...string) bool {
	joined := " " + strings.Join(args, " ") + " "
	return strings.Contains(joined, " "+strings.Join(want, " ")+" ")
}

func TestBuildArgsAudioOnly(t *testing.T) {
	job := Job{
		AudioPath:  "/cache/abc.wav",
		OutputPath: "/outputs/job1.mp3",
		Params:     Params{Speed: 0.8, RoomSize: 0.75, Damping: 0.5, WetLevel: 0.08, DryLevel: 0.2},
	}

	args, err := BuildArgs(job)
	if err != nil {
		t.Fatalf("BuildArgs failed: %v", err)
	}

	if !argsContain(args, "-i", "/cache/abc.wav") {
		t.Errorf("Missing audio input: %v", args)
	}
	if !argsContain(args, "-c:a", "libmp3lame") {
		t.Errorf("Expected mp3 encoding for audio-only output: %v", args)
	}
	if argsContain(args, "-map", "0:v") {
		t.Errorf("Audio-only render must not map a video stream: %v", args)
	}
	if !argsContain(args, "-progress", "pipe:1") {
		t.Errorf("Progress reporting not enabled: %v", args)
	}
	if args[len(args)-1] != "/outputs/job1.mp3" {
		t.Errorf("Output path must be the final argument: %v", args)
	}
	// The filter must read from input 0 when there is no video input.
	if !strings.Contains(strings.Join(args, " "), "[0:a]") {
		t.Errorf("Filter not bound to audio input: %v", args)
	}
}

func TestBuildArgsTrimWindow(t *testing.T) {
	job := Job{
		AudioPath:  "/cache/abc.wav",
		OutputPath: "/outputs/job1.mp3",
		Params:     Params{Speed: 1.0},
		Window:     &Window{Start: 15, End: 35},
	}

	args, err := BuildArgs(job)
	if err != nil {
		t.Fatalf("BuildArgs failed: %v", err)
	}
	if !argsContain(args, "-ss", "15.000") {
		t.Errorf("Missing trim start: %v", args)
	}
	if !argsContain(args, "-to", "35.000") {
		t.Errorf("Missing trim end: %v", args)
	}
}

func TestBuildArgsOpenEndedWindow(t *testing.T) {
	job := Job{
		AudioPath:  "/cache/abc.wav",
		OutputPath: "/outputs/job1.mp3",
		Params:     Params{Speed: 1.0},
		Window:     &Window{Start: 30},
	}

	args, err := BuildArgs(job)
	if err != nil {
		t.Fatalf("BuildArgs failed: %v", err)
	}
	if !argsContain(args, "-ss", "30.000") {
		t.Errorf("Missing trim start: %v", args)
	}
	for _, a := range args {
		if a == "-to" {
			t.Errorf("Open-ended window must not emit -to: %v", args)
		}
	}
}

func TestBuildArgsLoopedVideo(t *testing.T) {
	job := Job{
		AudioPath:  "/cache/abc.wav",
		VideoPath:  "/work/job1/video.mp4",
		LoopVideo:  true,
		OutputPath: "/outputs/job1.mp4",
		Params:     Params{Speed: 0.8},
	}

	args, err := BuildArgs(job)
	if err != nil {
		t.Fatalf("BuildArgs failed: %v", err)
	}
	if !argsContain(args, "-stream_loop", "-1", "-i", "/work/job1/video.mp4") {
		t.Errorf("Video input not looped: %v", args)
	}
	if !argsContain(args, "-map", "0:v") || !argsContain(args, "-shortest") {
		t.Errorf("Video mux options missing: %v", args)
	}
	// With a video at input 0 the audio moves to input 1.
	if !strings.Contains(strings.Join(args, " "), "[1:a]") {
		t.Errorf("Filter not bound to audio input 1: %v", args)
	}
}

func TestBuildArgsRejectsNonPositiveSpeed(t *testing.T) {
	job := Job{AudioPath: "a.wav", OutputPath: "o.mp3", Params: Params{Speed: 0}}
	if _, err := BuildArgs(job); err == nil {
		t.Error("Expected error for zero speed")
	}
	job.Params.Speed = -1
	if _, err := BuildArgs(job); err == nil {
		t.Error("Expected error for negative speed")
	}
}

func TestEffectFilter(t *testing.T) {
	p := Params{Speed: 0.8, RoomSize: 0.75, Damping: 0.5, WetLevel: 0.08, DryLevel: 0.2}
	filter := EffectFilter(p)

	if !strings.Contains(filter, "asetrate=35280") { // 44100 * 0.8
		t.Errorf("Slowdown rate wrong: %s", filter)
	}
	if !strings.Contains(filter, "aresample=44100") {
		t.Errorf("Resample back to source rate missing: %s", filter)
	}
	if !strings.Contains(filter, "aecho=0.8:0.9:118:0.50") { // 20 + 0.75*130 ms, decay 1-0.5
		t.Errorf("Reverb parameters wrong: %s", filter)
	}
	if !strings.Contains(filter, "weights='0.20 0.08'") {
		t.Errorf("Dry/wet mix weights wrong: %s", filter)
	}
}

func TestEffectFilterDecayClamped(t *testing.T) {
	if f := EffectFilter(Params{Speed: 1, Damping: 1}); !strings.Contains(f, ":0.10[wet]") {
		t.Errorf("Decay not clamped low: %s", f)
	}
	if f := EffectFilter(Params{Speed: 1, Damping: 0}); !strings.Contains(f, ":0.90[wet]") {
		t.Errorf("Decay not clamped high: %s", f)
	}
}

func TestParseProgressLine(t *testing.T) {
	tests := []struct {
		line    string
		wantSec float64
		wantOK  bool
	}{
		{"out_time_us=1500000", 1.5, true},
		{"out_time_ms=2000000", 2.0, true}, // microseconds despite the name
		{"frame=42", 0, false},
		{"out_time_us=garbage", 0, false},
		{"progress=continue", 0, false},
		{"", 0, false},
	}
	for _, tt := range tests {
		sec, ok := parseProgressLine(tt.line)
		if ok != tt.wantOK || sec != tt.wantSec {
			t.Errorf("parseProgressLine(%q) = (%v, %v), want (%v, %v)",
				tt.line, sec, ok, tt.wantSec, tt.wantOK)
		}
	}
}
