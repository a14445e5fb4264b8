package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftaudio/driftd/internal/cache"
	"github.com/driftaudio/driftd/internal/scheduler"
	"github.com/driftaudio/driftd/internal/search"
	"github.com/driftaudio/driftd/internal/store"
	"github.com/driftaudio/driftd/pkg/models"
)

type fakeSubmitter struct {
	jobs    store.JobStore
	err     error
	lastReq models.Request
}

func (f *fakeSubmitter) Submit(req models.Request) (*models.Job, error) {
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	job := models.NewJob("test-job-id", req)
	if err := f.jobs.Create(job); err != nil {
		return nil, err
	}
	return job, nil
}

type fakeSearcher struct {
	results []search.Video
	err     error
	query   string
	limit   int
}

func (f *fakeSearcher) Search(ctx context.Context, query string, limit int) ([]search.Video, error) {
	f.query = query
	f.limit = limit
	return f.results, f.err
}

func newTestRouter(t *testing.T) (*mux.Router, *fakeSubmitter, *fakeSearcher, store.JobStore) {
	t.Helper()
	jobs := store.NewMemoryStore()
	t.Cleanup(func() { jobs.Close() })

	submitter := &fakeSubmitter{jobs: jobs}
	searcher := &fakeSearcher{}
	h := NewHandler(submitter, jobs, cache.New(cache.DefaultConfig(), nil), searcher)
	r := mux.NewRouter()
	h.RegisterRoutes(r)
	return r, submitter, searcher, jobs
}

func doJSON(t *testing.T, router *mux.Router, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestProcessAppliesDefaults(t *testing.T) {
	router, submitter, _, _ := newTestRouter(t)

	w := doJSON(t, router, "POST", "/process", map[string]interface{}{
		"youtube_url": "https://youtu.be/abc123def45",
	})
	require.Equal(t, http.StatusAccepted, w.Code)

	// The response carries the created job's full snapshot, not just the id.
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "test-job-id", resp["job_id"])
	assert.Equal(t, string(models.JobStatusQueued), resp["status"])
	assert.Equal(t, 0.0, resp["progress"])
	assert.Equal(t, false, resp["used_cache"])
	assert.NotContains(t, resp, "result_file")
	assert.NotContains(t, resp, "error")

	assert.Equal(t, models.DefaultAudioSpeed, submitter.lastReq.AudioSpeed)
	assert.Equal(t, models.DefaultRoomSize, submitter.lastReq.RoomSize)
	assert.Equal(t, models.DefaultWetLevel, submitter.lastReq.WetLevel)
	assert.False(t, submitter.lastReq.Preview)
}

func TestProcessExplicitZeroPreserved(t *testing.T) {
	router, submitter, _, _ := newTestRouter(t)

	w := doJSON(t, router, "POST", "/process", map[string]interface{}{
		"youtube_url": "https://youtu.be/abc123def45",
		"wet_level":   0,
		"audio_speed": 0.5,
	})
	require.Equal(t, http.StatusAccepted, w.Code)

	// An explicit zero is a dry-only mix, not "use the default".
	assert.Equal(t, 0.0, submitter.lastReq.WetLevel)
	assert.Equal(t, 0.5, submitter.lastReq.AudioSpeed)
	assert.Equal(t, models.DefaultDryLevel, submitter.lastReq.DryLevel)
}

func TestProcessRequiresSource(t *testing.T) {
	router, _, _, _ := newTestRouter(t)

	w := doJSON(t, router, "POST", "/process", map[string]interface{}{"audio_speed": 0.8})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, router, "POST", "/process", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestProcessQueueFull(t *testing.T) {
	router, submitter, _, _ := newTestRouter(t)
	submitter.err = scheduler.ErrQueueFull

	w := doJSON(t, router, "POST", "/process", map[string]interface{}{
		"youtube_url": "https://youtu.be/abc123def45",
	})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestPreviewForcesFixedWindow(t *testing.T) {
	router, submitter, _, _ := newTestRouter(t)

	w := doJSON(t, router, "POST", "/preview", map[string]interface{}{
		"youtube_url": "https://youtu.be/abc123def45",
		"start_time":  "5:00",
		"end_time":    "6:00",
		"loop_video":  true,
	})
	require.Equal(t, http.StatusAccepted, w.Code)

	assert.True(t, submitter.lastReq.Preview)
	assert.Empty(t, submitter.lastReq.StartTime)
	assert.Empty(t, submitter.lastReq.EndTime)
	assert.False(t, submitter.lastReq.LoopVideo)
}

func TestStatus(t *testing.T) {
	router, _, _, jobs := newTestRouter(t)

	job := models.NewJob("known", models.DefaultRequest("https://youtu.be/abc123def45"))
	job.Progress = 0.4
	require.NoError(t, jobs.Create(job))
	require.NoError(t, jobs.Update("known", func(j *models.Job) error {
		return j.Transition(models.JobStatusProcessing)
	}))

	w := doJSON(t, router, "GET", "/status/known", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var got models.Job
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, models.JobStatusProcessing, got.Status)
	assert.Equal(t, 0.4, got.Progress)

	w = doJSON(t, router, "GET", "/status/unknown", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDownload(t *testing.T) {
	router, _, _, jobs := newTestRouter(t)

	dir := t.TempDir()
	result := filepath.Join(dir, "done.mp3")
	require.NoError(t, os.WriteFile(result, []byte("audio-bytes"), 0o644))

	job := models.NewJob("done", models.DefaultRequest("https://youtu.be/abc123def45"))
	require.NoError(t, jobs.Create(job))
	require.NoError(t, jobs.Update("done", func(j *models.Job) error {
		if err := j.Transition(models.JobStatusProcessing); err != nil {
			return err
		}
		return j.Complete(result)
	}))

	w := doJSON(t, router, "GET", "/download/done", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "audio/mpeg", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "done.mp3")
	assert.Equal(t, "audio-bytes", w.Body.String())
}

func TestDownloadNotCompleted(t *testing.T) {
	router, _, _, jobs := newTestRouter(t)

	job := models.NewJob("pending", models.DefaultRequest("https://youtu.be/abc123def45"))
	require.NoError(t, jobs.Create(job))

	w := doJSON(t, router, "GET", "/download/pending", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = doJSON(t, router, "GET", "/download/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDownloadResultFileGone(t *testing.T) {
	router, _, _, jobs := newTestRouter(t)

	job := models.NewJob("gone", models.DefaultRequest("https://youtu.be/abc123def45"))
	require.NoError(t, jobs.Create(job))
	require.NoError(t, jobs.Update("gone", func(j *models.Job) error {
		if err := j.Transition(models.JobStatusProcessing); err != nil {
			return err
		}
		return j.Complete(filepath.Join(t.TempDir(), "vanished.mp3"))
	}))

	w := doJSON(t, router, "GET", "/download/gone", nil)
	assert.Equal(t, http.StatusGone, w.Code)
}

func TestContentTypes(t *testing.T) {
	assert.Equal(t, "video/mp4", contentTypeFor("a.mp4"))
	assert.Equal(t, "audio/wav", contentTypeFor("a.WAV"))
	assert.Equal(t, "audio/mpeg", contentTypeFor("a.mp3"))
	assert.Equal(t, "application/octet-stream", contentTypeFor("a.bin"))
}

func TestListJobs(t *testing.T) {
	router, _, _, jobs := newTestRouter(t)

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, jobs.Create(models.NewJob(id, models.DefaultRequest("https://youtu.be/abc123def45"))))
	}

	w := doJSON(t, router, "GET", "/jobs", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Jobs  []models.Job `json:"jobs"`
		Count int          `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 3, resp.Count)
	assert.Len(t, resp.Jobs, 3)
}

func TestCacheStatus(t *testing.T) {
	router, _, _, _ := newTestRouter(t)

	w := doJSON(t, router, "GET", "/cache-status", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.EqualValues(t, 0, resp["cache_size"])
	assert.EqualValues(t, 50, resp["max_cache_size"])
}

func TestSearch(t *testing.T) {
	router, _, searcher, _ := newTestRouter(t)
	searcher.results = []search.Video{
		{ID: "abc", Title: "first"},
		{ID: "def", Title: "second"},
	}

	w := doJSON(t, router, "GET", "/search?query=lofi+mix&limit=2", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "lofi mix", searcher.query)
	assert.Equal(t, 2, searcher.limit)

	var resp struct {
		Results []search.Video `json:"results"`
		Count   int            `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Count)
}

func TestSearchValidation(t *testing.T) {
	router, _, searcher, _ := newTestRouter(t)

	w := doJSON(t, router, "GET", "/search", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, router, "GET", "/search?query=x&limit=-3", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Oversized limits are capped, not rejected.
	w = doJSON(t, router, "GET", "/search?query=x&limit=500", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, maxSearchLimit, searcher.limit)
}

func TestSearchUpstreamFailure(t *testing.T) {
	router, _, searcher, _ := newTestRouter(t)
	searcher.err = errors.New("yt-dlp exploded")

	w := doJSON(t, router, "GET", "/search?query=x", nil)
	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestHealth(t *testing.T) {
	router, _, _, _ := newTestRouter(t)

	w := doJSON(t, router, "GET", "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"healthy"}`, w.Body.String())
}

func TestRateLimitMiddleware(t *testing.T) {
	router, _, _, _ := newTestRouter(t)

	limiter := NewLimiter(1, 2)
	limited := limiter.Middleware(IPKeyFunc)(router)

	codes := make([]int, 0, 4)
	for i := 0; i < 4; i++ {
		req := httptest.NewRequest("GET", "/health", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		w := httptest.NewRecorder()
		limited.ServeHTTP(w, req)
		codes = append(codes, w.Code)
	}
	assert.Equal(t, http.StatusOK, codes[0])
	assert.Equal(t, http.StatusOK, codes[1])
	assert.Equal(t, http.StatusTooManyRequests, codes[2])

	// A different client has its own bucket.
	req := httptest.NewRequest("GET", "/health", nil)
	req.RemoteAddr = "10.0.0.2:9999"
	w := httptest.NewRecorder()
	limited.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}
