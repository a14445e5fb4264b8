// Package pipeline runs one job end to end: validate, resolve the source
// through the cache, render, and record the outcome on the job store.
package pipeline

import (
	"context"
	"errors"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/driftaudio/driftd/internal/cache"
	"github.com/driftaudio/driftd/internal/fetch"
	"github.com/driftaudio/driftd/internal/metrics"
	"github.com/driftaudio/driftd/internal/render"
	"github.com/driftaudio/driftd/internal/store"
	"github.com/driftaudio/driftd/pkg/models"
)

// Config carries the executor's directories and per-stage budgets.
type Config struct {
	CacheDir      string        // raw fetched audio, owned by the cache
	WorkDir       string        // per-job scratch space, removed after the job
	OutputDir     string        // finished artifacts served for download
	FetchTimeout  time.Duration // budget for resolving the source
	RenderTimeout time.Duration // budget for the effects pass
}

// Executor drives a single job through its lifecycle. It is safe for
// concurrent use; each Run call works on its own job.
type Executor struct {
	cfg      Config
	jobs     store.JobStore
	cache    *cache.Cache
	fetcher  fetch.Fetcher
	renderer render.Renderer
	metrics  *metrics.Metrics
}

func NewExecutor(cfg Config, jobs store.JobStore, c *cache.Cache, f fetch.Fetcher, r render.Renderer, m *metrics.Metrics) *Executor {
	return &Executor{
		cfg:      cfg,
		jobs:     jobs,
		cache:    c,
		fetcher:  f,
		renderer: r,
		metrics:  m,
	}
}

// Run executes the job with the given ID. The job must be in the queued
// state. All failures are recorded on the job itself; Run never returns an
// error to the caller because by the time it runs, no caller is waiting.
func (e *Executor) Run(ctx context.Context, jobID string) {
	job, err := e.jobs.Get(jobID)
	if err != nil {
		log.Printf("pipeline: job %s vanished before execution: %v", jobID, err)
		return
	}
	started := time.Now()

	// Validation happens before any fetch or render work; a bad request
	// fails straight out of the queued state.
	pl, err := buildPlan(job.Request)
	if err != nil {
		e.fail(jobID, started, err)
		return
	}

	if err := e.jobs.Update(jobID, func(j *models.Job) error {
		return j.Transition(models.JobStatusProcessing)
	}); err != nil {
		log.Printf("pipeline: job %s could not start: %v", jobID, err)
		return
	}

	audioPath, hit, err := e.resolveSource(ctx, job.Request.SourceURL)
	if err != nil {
		e.fail(jobID, started, categorize(models.CategoryFetch, err))
		return
	}
	if err := e.jobs.Update(jobID, func(j *models.Job) error {
		j.SetProgress(0.1)
		// Latched: once a job has been served from the cache the flag
		// stays set even if later stages refetch.
		j.UsedCache = j.UsedCache || hit
		return nil
	}); err != nil {
		log.Printf("pipeline: job %s: progress update failed: %v", jobID, err)
	}

	jobDir := filepath.Join(e.cfg.WorkDir, jobID)
	videoPath := ""
	if pl.loopVideo {
		videoPath, err = e.fetchVideo(ctx, pl, jobDir)
		if err != nil {
			os.RemoveAll(jobDir)
			e.fail(jobID, started, categorize(models.CategoryFetch, err))
			return
		}
		defer os.RemoveAll(jobDir)
	}

	resultPath, err := e.render(ctx, jobID, pl, audioPath, videoPath)
	if err != nil {
		e.fail(jobID, started, categorize(models.CategoryRender, err))
		return
	}

	if err := e.jobs.Update(jobID, func(j *models.Job) error {
		j.SetProgress(0.9)
		return j.Complete(resultPath)
	}); err != nil {
		log.Printf("pipeline: job %s: completion update failed: %v", jobID, err)
		return
	}
	e.metrics.JobCompleted(time.Since(started).Seconds())
}

// resolveSource obtains the raw audio for the locator, deduplicated and
// bounded by the fetch timeout. The returned flag reports a cache hit.
func (e *Executor) resolveSource(ctx context.Context, locator string) (string, bool, error) {
	fctx, cancel := context.WithTimeout(ctx, e.cfg.FetchTimeout)
	defer cancel()

	key := fetch.Fingerprint(locator)
	return e.cache.Acquire(fctx, key, func(fctx context.Context) (string, error) {
		e.metrics.FetchPerformed()
		return e.fetcher.FetchAudio(fctx, locator, e.cfg.CacheDir)
	})
}

// fetchVideo downloads the trimmed video segment for loop mode into the job's
// scratch directory. Video segments are job-scoped and never cached.
func (e *Executor) fetchVideo(ctx context.Context, pl *plan, jobDir string) (string, error) {
	if err := os.MkdirAll(jobDir, 0o755); err != nil {
		return "", err
	}
	fctx, cancel := context.WithTimeout(ctx, e.cfg.FetchTimeout)
	defer cancel()

	dest := filepath.Join(jobDir, "video.mp4")
	return e.fetcher.FetchVideo(fctx, pl.videoURL, dest, pl.window.Start, pl.window.End)
}

// render runs the effects pass with renderer progress scaled into the
// [0.1, 0.9] band of the job's progress.
func (e *Executor) render(ctx context.Context, jobID string, pl *plan, audioPath, videoPath string) (string, error) {
	rctx, cancel := context.WithTimeout(ctx, e.cfg.RenderTimeout)
	defer cancel()

	rjob := render.Job{
		AudioPath:  audioPath,
		VideoPath:  videoPath,
		LoopVideo:  pl.loopVideo,
		OutputPath: filepath.Join(e.cfg.OutputDir, pl.outputName(jobID)),
		Params:     pl.params,
	}
	if !pl.loopVideo {
		// In loop mode the window was already applied to the video
		// segment at fetch time; the audio plays in full.
		rjob.Window = pl.window
	}

	return e.renderer.Render(rctx, rjob, func(fraction float64) {
		if err := e.jobs.Update(jobID, func(j *models.Job) error {
			j.SetProgress(0.1 + fraction*0.8)
			return nil
		}); err != nil {
			log.Printf("pipeline: job %s: progress update failed: %v", jobID, err)
		}
	})
}

// fail records a terminal failure on the job and in the metrics.
func (e *Executor) fail(jobID string, started time.Time, cause error) {
	cat := models.Categorize(cause)
	if err := e.jobs.Update(jobID, func(j *models.Job) error {
		return j.Fail(cause)
	}); err != nil {
		log.Printf("pipeline: job %s: failure update failed: %v", jobID, err)
	}
	e.metrics.JobFailed(string(cat), time.Since(started).Seconds())
	log.Printf("pipeline: job %s failed (%s): %v", jobID, cat, cause)
}

// categorize wraps err with the given category unless it already carries one.
// Deadline overruns always map to the timeout category.
func categorize(category models.ErrorCategory, err error) error {
	var jerr *models.JobError
	if errors.As(err, &jerr) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return models.NewJobError(models.CategoryTimeout, err)
	}
	return models.NewJobError(category, err)
}
