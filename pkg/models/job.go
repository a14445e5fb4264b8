package models

import (
	"time"
)

// JobStatus represents the lifecycle state of a processing job
type JobStatus string

const (
	JobStatusQueued     JobStatus = "queued"     // Job accepted, waiting for a worker slot
	JobStatusProcessing JobStatus = "processing" // Job running on a worker
	JobStatusCompleted  JobStatus = "completed"  // Job finished, result available
	JobStatusFailed     JobStatus = "failed"     // Job failed permanently
)

// Default effect parameters applied when a submission omits them.
const (
	DefaultAudioSpeed = 0.8
	DefaultRoomSize   = 0.75
	DefaultDamping    = 0.5
	DefaultWetLevel   = 0.08
	DefaultDryLevel   = 0.2
)

// Request is the normalized parameter set for one processing job.
// It is immutable after the job is created.
type Request struct {
	SourceURL  string  `json:"youtube_url"`
	VideoURL   string  `json:"video_url,omitempty"` // optional separate video source for loop mode
	AudioSpeed float64 `json:"audio_speed"`
	RoomSize   float64 `json:"room_size"`
	Damping    float64 `json:"damping"`
	WetLevel   float64 `json:"wet_level"`
	DryLevel   float64 `json:"dry_level"`
	StartTime  string  `json:"start_time,omitempty"` // MM:SS
	EndTime    string  `json:"end_time,omitempty"`   // MM:SS
	LoopVideo  bool    `json:"loop_video"`
	Preview    bool    `json:"preview,omitempty"` // fixed 20s window, set by the preview endpoint
}

// DefaultRequest returns a Request for the given source with all effect
// parameters at their documented defaults.
func DefaultRequest(sourceURL string) Request {
	return Request{
		SourceURL:  sourceURL,
		AudioSpeed: DefaultAudioSpeed,
		RoomSize:   DefaultRoomSize,
		Damping:    DefaultDamping,
		WetLevel:   DefaultWetLevel,
		DryLevel:   DefaultDryLevel,
	}
}

// Job represents one submission and its lifecycle state.
// Job records are owned by the job store; the pipeline mutates them only
// through store.Update.
type Job struct {
	ID          string     `json:"job_id"`
	Request     Request    `json:"request"`
	Status      JobStatus  `json:"status"`
	Progress    float64    `json:"progress"` // 0.0..1.0, monotonic while processing
	ResultPath  string     `json:"result_file,omitempty"`
	Error       string     `json:"error,omitempty"`
	UsedCache   bool       `json:"used_cache"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// NewJob creates a queued job for the given request.
func NewJob(id string, req Request) *Job {
	return &Job{
		ID:        id,
		Request:   req,
		Status:    JobStatusQueued,
		Progress:  0,
		CreatedAt: time.Now(),
	}
}

// SetProgress advances the job progress. Progress is monotonic: attempts to
// move it backwards are ignored. Values are clamped to [0, 1].
func (j *Job) SetProgress(p float64) {
	if p < 0 {
		p = 0
	}
	if p > 1 {
		p = 1
	}
	if p > j.Progress {
		j.Progress = p
	}
}
