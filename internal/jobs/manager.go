package jobs

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	u "github.com/araddon/gou"

	"github.com/gganty/Gtol/internal/cache"
	"github.com/gganty/Gtol/pkgs/layout"
)

// Errors surfaced by Result.
var (
	ErrNotFound = errors.New("job not found")
	ErrNotReady = errors.New("job not ready")
)

// FailedError wraps the failure reason a worker recorded.
type FailedError struct {
	Reason string
}

func (e *FailedError) Error() string { return e.Reason }

// Config configures a Manager.
type Config struct {
	WorkDir  string        // scratch dir for uploaded inputs and results
	Cache    *cache.Cache  // optional result cache tier
	Params   layout.Params // geometry parameters for every build
	MaxNodes int           // soft parser cutoff, 0 for unlimited
	MaxAge   time.Duration // job retention, defaults to one hour
}

// Manager owns the process-wide job table. All table mutations happen on
// handler goroutines; each worker mutates only its own record.
type Manager struct {
	cfg Config

	mu   sync.Mutex
	jobs map[string]*Job
}

// NewManager creates a Manager and its scratch directory.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.WorkDir == "" {
		cfg.WorkDir = filepath.Join(os.TempDir(), "gtol")
	}
	if err := os.MkdirAll(cfg.WorkDir, 0o755); err != nil {
		return nil, err
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = time.Hour
	}
	if cfg.Params == (layout.Params{}) {
		cfg.Params = layout.DefaultParams()
	}
	return &Manager{cfg: cfg, jobs: make(map[string]*Job)}, nil
}

// Start registers a new job, streams the uploaded input to disk, and
// spawns the pipeline worker. It returns as soon as the upload is stored.
// Jobs past the retention age are evicted opportunistically on every call.
func (m *Manager) Start(file io.Reader, filename string) (*Job, error) {
	m.evictOld()

	if filename == "" {
		filename = "graph.nwk"
	}
	job := newJob(filename)

	inputPath := filepath.Join(m.cfg.WorkDir, fmt.Sprintf("input_%s_%s", job.ID, filepath.Base(filename)))
	out, err := os.Create(inputPath)
	if err != nil {
		return nil, err
	}
	// Hash while streaming so the cache lookup costs no second read
	hasher := sha256.New()
	_, err = io.Copy(io.MultiWriter(out, hasher), file)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(inputPath)
		return nil, err
	}
	job.setInputPath(inputPath)

	m.mu.Lock()
	m.jobs[job.ID] = job
	m.mu.Unlock()

	key := cache.Key(hasher.Sum(nil))
	if m.cfg.Cache != nil {
		if path, ok := m.cfg.Cache.Get(key); ok {
			u.Infof("job %s: cache hit %s", job.ID, key)
			job.setResultPath(path, true)
			job.post(StageComplete, 100)
			close(job.done)
			return job, nil
		}
	}

	go m.run(job, key)
	return job, nil
}

// Get looks a job up by id.
func (m *Manager) Get(id string) (*Job, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	return job, ok
}

// Result returns the path of the finished compressed payload.
func (m *Manager) Result(id string) (string, error) {
	job, ok := m.Get(id)
	if !ok {
		return "", ErrNotFound
	}
	if !job.Done() {
		return "", ErrNotReady
	}
	if msg := job.Err(); msg != "" {
		return "", &FailedError{Reason: msg}
	}
	path, _ := job.result()
	if path == "" {
		return "", &FailedError{Reason: "no result data on disk"}
	}
	return path, nil
}

// run executes the pipeline on a dedicated goroutine. The terminal event
// is posted before done closes; subscribers that miss it synthesize one.
func (m *Manager) run(job *Job, cacheKey string) {
	defer close(job.done)

	if err := m.pipeline(job, cacheKey); err != nil {
		u.Errorf("job %s failed: %v", job.ID, err)
		job.setError(err.Error())
		job.postError(err.Error())
		return
	}
	job.post(StageComplete, 100)
}

// evictOld removes jobs past the retention age and releases their on-disk
// scratch. Shared cache entries are left alone.
func (m *Manager) evictOld() {
	now := time.Now()

	m.mu.Lock()
	var stale []*Job
	for id, job := range m.jobs {
		if now.Sub(job.CreatedAt) > m.cfg.MaxAge && job.Done() {
			stale = append(stale, job)
			delete(m.jobs, id)
		}
	}
	m.mu.Unlock()

	for _, job := range stale {
		if p := job.input(); p != "" {
			os.Remove(p)
		}
		if p, cached := job.result(); p != "" && !cached {
			os.Remove(p)
		}
		u.Debugf("evicted job %s", job.ID)
	}
}
