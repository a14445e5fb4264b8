package render

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"log"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

const sampleRate = 44100

// FFmpegRenderer renders the effect chain with ffmpeg. asetrate+aresample
// produces the slowed, pitched-down character; a parallel aecho path mixed
// against the dry signal approximates the reverb room.
type FFmpegRenderer struct {
	ffmpeg  string
	ffprobe string
}

// NewFFmpegRenderer creates a renderer using the given binaries
// (defaults "ffmpeg" and "ffprobe" resolved from PATH).
func NewFFmpegRenderer(ffmpeg, ffprobe string) *FFmpegRenderer {
	if ffmpeg == "" {
		ffmpeg = "ffmpeg"
	}
	if ffprobe == "" {
		ffprobe = "ffprobe"
	}
	return &FFmpegRenderer{ffmpeg: ffmpeg, ffprobe: ffprobe}
}

// Render runs ffmpeg for the job, forwarding fractional progress parsed from
// the -progress stream when the output duration can be estimated.
func (r *FFmpegRenderer) Render(ctx context.Context, job Job, progress ProgressFunc) (string, error) {
	if _, err := exec.LookPath(r.ffmpeg); err != nil {
		return "", fmt.Errorf("%s not found in PATH: %w", r.ffmpeg, err)
	}
	if err := os.MkdirAll(filepath.Dir(job.OutputPath), 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	args, err := BuildArgs(job)
	if err != nil {
		return "", err
	}

	totalSec := r.estimateOutputDuration(ctx, job)

	cmd := exec.CommandContext(ctx, r.ffmpeg, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return "", fmt.Errorf("failed to attach progress pipe: %w", err)
	}

	log.Printf("render: running %s %s", r.ffmpeg, strings.Join(args, " "))
	if err := cmd.Start(); err != nil {
		return "", fmt.Errorf("failed to start %s: %w", r.ffmpeg, err)
	}

	scanner := bufio.NewScanner(stdout)
	for scanner.Scan() {
		if progress == nil || totalSec <= 0 {
			continue
		}
		if sec, ok := parseProgressLine(scanner.Text()); ok {
			frac := sec / totalSec
			if frac > 0.999 {
				frac = 0.999
			}
			if frac > 0 {
				progress(frac)
			}
		}
	}

	if err := cmd.Wait(); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("%s failed: %w: %s", r.ffmpeg, err, lastLine(stderr.String()))
	}

	if _, statErr := os.Stat(job.OutputPath); statErr != nil {
		return "", fmt.Errorf("output file not found after render: %w", statErr)
	}
	return job.OutputPath, nil
}

// BuildArgs assembles the full ffmpeg argument list for a job. Exposed for
// tests; it performs no I/O.
func BuildArgs(job Job) ([]string, error) {
	if job.Params.Speed <= 0 {
		return nil, fmt.Errorf("speed must be positive, got %v", job.Params.Speed)
	}

	args := []string{"-y", "-hide_banner", "-nostats", "-progress", "pipe:1"}

	audioInput := 0
	if job.VideoPath != "" {
		if job.LoopVideo {
			args = append(args, "-stream_loop", "-1")
		}
		args = append(args, "-i", job.VideoPath)
		audioInput = 1
	}

	// Trim the audio at the input stage, before the effect chain.
	if w := job.Window; w != nil {
		args = append(args, "-ss", formatSeconds(w.Start))
		if w.End > 0 {
			args = append(args, "-to", formatSeconds(w.End))
		}
	}
	args = append(args, "-i", job.AudioPath)

	filter := fmt.Sprintf("[%d:a]%s[aout]", audioInput, EffectFilter(job.Params))
	args = append(args, "-filter_complex", filter)

	if job.VideoPath != "" {
		args = append(args,
			"-map", "0:v",
			"-map", "[aout]",
			"-c:v", "copy",
			"-c:a", "aac",
			"-shortest",
		)
	} else {
		args = append(args,
			"-map", "[aout]",
			"-c:a", "libmp3lame",
			"-q:a", "2",
		)
	}

	args = append(args, job.OutputPath)
	return args, nil
}

// EffectFilter builds the slowed+reverb filter chain for the given
// parameters: resample-based slowdown, then a dry path and an echo (wet) path
// mixed by the dry/wet levels.
func EffectFilter(p Params) string {
	delayMS := 20 + p.RoomSize*130
	decay := 1 - p.Damping
	if decay < 0.1 {
		decay = 0.1
	}
	if decay > 0.9 {
		decay = 0.9
	}

	return fmt.Sprintf(
		"asetrate=%d,aresample=%d,asplit=2[dry][wetsrc];"+
			"[wetsrc]aecho=0.8:0.9:%.0f:%.2f[wet];"+
			"[dry][wet]amix=inputs=2:normalize=0:weights='%.2f %.2f'",
		int(math.Round(sampleRate*p.Speed)), sampleRate, delayMS, decay, p.DryLevel, p.WetLevel)
}

// estimateOutputDuration predicts the processed duration so progress can be
// reported as a fraction. Returns 0 when no estimate is possible.
func (r *FFmpegRenderer) estimateOutputDuration(ctx context.Context, job Job) float64 {
	var sourceSec float64
	if w := job.Window; w != nil && w.Duration() > 0 {
		sourceSec = w.Duration()
	} else {
		probed, err := r.probeDuration(ctx, job.AudioPath)
		if err != nil {
			log.Printf("render: could not probe %s: %v", job.AudioPath, err)
			return 0
		}
		sourceSec = probed
		if w := job.Window; w != nil {
			sourceSec -= w.Start
		}
	}
	if sourceSec <= 0 {
		return 0
	}
	// Slowing down stretches the output proportionally.
	return sourceSec / job.Params.Speed
}

// probeDuration asks ffprobe for the container duration in seconds.
func (r *FFmpegRenderer) probeDuration(ctx context.Context, path string) (float64, error) {
	cmd := exec.CommandContext(ctx, r.ffprobe,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	out, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe failed: %w", err)
	}
	sec, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil {
		return 0, fmt.Errorf("unexpected ffprobe output %q: %w", strings.TrimSpace(string(out)), err)
	}
	return sec, nil
}

// parseProgressLine extracts elapsed output seconds from one line of the
// ffmpeg -progress stream. Despite the name, out_time_ms is in microseconds.
func parseProgressLine(line string) (float64, bool) {
	key, value, found := strings.Cut(strings.TrimSpace(line), "=")
	if !found {
		return 0, false
	}
	if key != "out_time_us" && key != "out_time_ms" {
		return 0, false
	}
	us, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil || us < 0 {
		return 0, false
	}
	return float64(us) / 1e6, true
}

func formatSeconds(sec float64) string {
	return strconv.FormatFloat(sec, 'f', 3, 64)
}

func lastLine(out string) string {
	lines := strings.Split(strings.TrimSpace(out), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if line := strings.TrimSpace(lines[i]); line != "" {
			return line
		}
	}
	return "no output"
}
