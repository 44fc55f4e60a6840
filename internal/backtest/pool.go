package backtest

import (
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	"github.com/DaviRain-Su/zigquant-core/internal/ids"
	"github.com/DaviRain-Su/zigquant-core/pkg/apperrors"
	"github.com/DaviRain-Su/zigquant-core/pkg/concurrency"
	"github.com/DaviRain-Su/zigquant-core/pkg/logging"
)

func bitsFromFloat64(f float64) uint64 { return math.Float64bits(f) }
func float64FromBits(b uint64) float64 { return math.Float64frombits(b) }

// JobStatus names where a submitted backtest job sits in its lifecycle.
type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
	JobCancelled JobStatus = "cancelled"
)

// Job is a backtest run tracked by the pool: its own progress fraction,
// cooperative cancel flag and eventual result, all safe to read from any
// goroutine while the job executes on the pool. A Job never holds an
// exchange client reference — Run only ever touches req.Series and
// req.Strategy (spec.md §4.5's "backtests never touch a live exchange").
type Job struct {
	ID string

	req        Request
	logger     logging.Logger
	progress   atomic.Uint64 // bits of a float64 fraction in [0,1]
	cancelFlag atomic.Bool

	mu     sync.RWMutex
	status JobStatus
	result Result
	err    error
}

// Progress returns the last published fraction in [0,1].
func (j *Job) Progress() float64 {
	return float64FromBits(j.progress.Load())
}

// Status returns the job's current lifecycle state.
func (j *Job) Status() JobStatus {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.status
}

// Cancel requests cooperative cancellation; Run observes this once per
// candle and stops early, leaving the job in JobCancelled.
func (j *Job) Cancel() {
	j.cancelFlag.Store(true)
}

// Result returns the job's outcome once it has left JobQueued/JobRunning.
// The second return is false while the job is still in flight.
func (j *Job) Result() (Result, error, bool) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if j.status == JobQueued || j.status == JobRunning {
		return Result{}, nil, false
	}
	return j.result, j.err, true
}

func (j *Job) setStatus(s JobStatus) {
	j.mu.Lock()
	j.status = s
	j.mu.Unlock()
}

func (j *Job) setResult(r Result, err error, s JobStatus) {
	j.mu.Lock()
	j.result, j.err, j.status = r, err, s
	j.mu.Unlock()
}

// Pool runs backtest jobs on a bounded alitto/pond worker pool (spec.md
// §4.5/§5.5), wrapping the teacher's generic pkg/concurrency.WorkerPool
// rather than re-implementing task scheduling. The pool is sized once at
// construction and shared by every submitted job.
type Pool struct {
	workers *concurrency.WorkerPool
	logger  logging.Logger

	mu   sync.RWMutex
	jobs map[string]*Job
}

// NewPool builds a backtest job pool with maxWorkers concurrent runs and a
// bounded submission queue of maxQueued.
func NewPool(maxWorkers, maxQueued int, logger logging.Logger) *Pool {
	workers := concurrency.NewWorkerPool(concurrency.PoolConfig{
		Name:        "backtest",
		MaxWorkers:  maxWorkers,
		MaxCapacity: maxQueued,
	}, logger)
	return &Pool{
		workers: workers,
		logger:  logger.WithField("component", "backtest_pool"),
		jobs:    make(map[string]*Job),
	}
}

// Submit enqueues req under a freshly minted job id and returns the Job
// handle immediately; the run itself happens asynchronously on the pool.
func (p *Pool) Submit(req Request) (*Job, error) {
	id := ids.NewBacktestJobID()

	p.mu.Lock()
	if _, exists := p.jobs[id]; exists {
		p.mu.Unlock()
		return nil, fmt.Errorf("%w: backtest job %s", apperrors.ErrAlreadyExists, id)
	}
	job := &Job{ID: id, req: req, logger: p.logger, status: JobQueued}
	p.jobs[id] = job
	p.mu.Unlock()

	if err := p.workers.Submit(func() { p.run(job) }); err != nil {
		job.setResult(Result{}, err, JobFailed)
		return job, err
	}
	return job, nil
}

func (p *Pool) run(job *Job) {
	job.setStatus(JobRunning)

	cancel := func() bool { return job.cancelFlag.Load() }
	onProgress := func(fraction float64) { job.progress.Store(bitsFromFloat64(fraction)) }

	result, err := Run(job.req, cancel, onProgress)
	switch {
	case err != nil:
		job.logger.Warn("backtest job failed", "job_id", job.ID, "error", err)
		job.setResult(Result{}, err, JobFailed)
	case job.cancelFlag.Load():
		job.setResult(result, nil, JobCancelled)
	default:
		job.setResult(result, nil, JobCompleted)
	}
}

// Job looks up a previously submitted job by id.
func (p *Pool) Job(id string) (*Job, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	job, ok := p.jobs[id]
	if !ok {
		return nil, fmt.Errorf("%w: backtest job %s", apperrors.ErrNotFound, id)
	}
	return job, nil
}

// Stop drains the underlying worker pool, waiting for in-flight jobs.
func (p *Pool) Stop() {
	p.workers.Stop()
}
