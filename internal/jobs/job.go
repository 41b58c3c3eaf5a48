// Package jobs runs the tree compute pipeline on background workers and
// fans progress events out to subscribers over bounded channels.
package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/pborman/uuid"
)

// Pipeline stage names, in typical order.
const (
	StageReading      = "reading"
	StageParsing      = "parsing"
	StageLayout       = "layout"
	StageOptimization = "optimization"
	StageCompressing  = "compressing"
	StageComplete     = "complete"
	StageError        = "error"
)

// Event is one progress update. Progress is a percentage in [0, 100].
// Subscribers must tolerate slight regressions within a stage: the channel
// drops under pressure.
type Event struct {
	Stage    string  `json:"stage"`
	Progress float64 `json:"progress"`
	Error    string  `json:"error,omitempty"`
}

// Terminal reports whether the event ends the stream.
func (e Event) Terminal() bool {
	return e.Stage == StageComplete || e.Stage == StageError
}

// eventBuffer bounds the progress channel. The publisher never blocks:
// when the buffer is full the update is dropped.
const eventBuffer = 64

// pollInterval bounds how long a subscriber waits on an empty channel
// before re-checking the done flag.
const pollInterval = 500 * time.Millisecond

// Job is one background build. The worker goroutine owns the write-once
// fields (err, resultPath); handlers read them only after done closes.
type Job struct {
	ID           string
	CreatedAt    time.Time
	OriginalName string

	events chan Event
	done   chan struct{}

	mu           sync.Mutex
	err          string
	inputPath    string
	resultPath   string
	cachedResult bool
}

func newJob(originalName string) *Job {
	return &Job{
		ID:           uuid.New(),
		CreatedAt:    time.Now(),
		OriginalName: originalName,
		events:       make(chan Event, eventBuffer),
		done:         make(chan struct{}),
	}
}

// post publishes a progress update without blocking; full buffer drops it.
func (j *Job) post(stage string, progress float64) {
	select {
	case j.events <- Event{Stage: stage, Progress: progress}:
	default:
	}
}

// postError publishes the terminal error event. It is never dropped
// silently without the reason being recorded first via setError.
func (j *Job) postError(msg string) {
	select {
	case j.events <- Event{Stage: StageError, Progress: 0, Error: msg}:
	default:
	}
}

// Done reports whether the worker has finished, successfully or not.
func (j *Job) Done() bool {
	select {
	case <-j.done:
		return true
	default:
		return false
	}
}

// Err returns the recorded failure reason, empty when none.
func (j *Job) Err() string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.err
}

func (j *Job) setError(msg string) {
	j.mu.Lock()
	j.err = msg
	j.mu.Unlock()
}

func (j *Job) setResultPath(path string, cached bool) {
	j.mu.Lock()
	j.resultPath = path
	j.cachedResult = cached
	j.mu.Unlock()
}

func (j *Job) result() (path string, cached bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.resultPath, j.cachedResult
}

func (j *Job) setInputPath(path string) {
	j.mu.Lock()
	j.inputPath = path
	j.mu.Unlock()
}

func (j *Job) input() string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.inputPath
}

// NextEvent blocks until the next progress event. When the worker has
// finished and the buffer is drained, a terminal "complete" event is
// synthesized so late subscribers always observe an end of stream. The
// second return is false only when ctx is canceled.
func (j *Job) NextEvent(ctx context.Context) (Event, bool) {
	timer := time.NewTimer(pollInterval)
	defer timer.Stop()
	for {
		select {
		case ev := <-j.events:
			return ev, true
		case <-ctx.Done():
			return Event{}, false
		case <-timer.C:
			if j.Done() {
				// Drain once more: the terminal event may have landed
				// between the empty receive and the done check
				select {
				case ev := <-j.events:
					return ev, true
				default:
				}
				if msg := j.Err(); msg != "" {
					return Event{Stage: StageError, Error: msg}, true
				}
				return Event{Stage: StageComplete, Progress: 100}, true
			}
			timer.Reset(pollInterval)
		}
	}
}
