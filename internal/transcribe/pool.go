package transcribe

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// Job is one transcription request processed by the Pool.
type Job struct {
	Source string
}

// JobResult pairs a finished job with its outcome.
type JobResult struct {
	Source string
	Result *Result
	Err    error
}

// QueueStats reports the current state of the pool queue.
type QueueStats struct {
	Pending   int   `json:"pending"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
}

// Pool fans transcription jobs out over a fixed number of workers sharing
// one provider instance. Adapters keep per-call scratch state call-scoped,
// so a single instance serves all workers. Callers must drain Results.
type Pool struct {
	provider Provider
	jobs     chan Job
	results  chan JobResult
	workers  int
	log      zerolog.Logger
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup

	completed atomic.Int64
	failed    atomic.Int64
}

// NewPool creates a pool of workers feeding the given provider.
func NewPool(provider Provider, workers, queueSize int, log zerolog.Logger) *Pool {
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		provider: provider,
		jobs:     make(chan Job, queueSize),
		results:  make(chan JobResult, queueSize),
		workers:  workers,
		log:      log.With().Str("component", "pool").Logger(),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start launches the worker goroutines.
func (p *Pool) Start() {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
	p.log.Info().Int("workers", p.workers).Msg("transcription pool started")
}

// Stop signals workers to drain, waits for in-flight jobs, and closes the
// results channel.
func (p *Pool) Stop() {
	close(p.jobs)
	p.wg.Wait()
	p.cancel()
	close(p.results)
	p.log.Info().
		Int64("completed", p.completed.Load()).
		Int64("failed", p.failed.Load()).
		Msg("transcription pool stopped")
}

// Enqueue adds a job to the queue. Returns false when the queue is full.
func (p *Pool) Enqueue(j Job) bool {
	select {
	case p.jobs <- j:
		return true
	default:
		return false
	}
}

// Results delivers finished jobs until Stop closes the channel.
func (p *Pool) Results() <-chan JobResult { return p.results }

// Stats returns current queue statistics.
func (p *Pool) Stats() QueueStats {
	return QueueStats{
		Pending:   len(p.jobs),
		Completed: p.completed.Load(),
		Failed:    p.failed.Load(),
	}
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()
	log := p.log.With().Int("worker", id).Logger()

	for job := range p.jobs {
		res, err := p.provider.Transcribe(p.ctx, job.Source)
		if err != nil {
			p.failed.Add(1)
			log.Warn().Err(err).Str("source", job.Source).Msg("transcription failed")
		} else {
			p.completed.Add(1)
			log.Debug().Str("source", job.Source).Msg("transcription complete")
		}
		p.results <- JobResult{Source: job.Source, Result: res, Err: err}
	}
}
