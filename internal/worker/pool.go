package worker

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"studygroup-backend/internal/models"
)

const dequeueTimeout = 30 * time.Second

// Processor runs one job type to completion, recording the outcome itself.
type Processor interface {
	Process(ctx context.Context, job *models.Job) models.AnalysisResult
}

type JobSource interface {
	Dequeue(ctx context.Context, timeout time.Duration, jobTypes ...string) (*models.Job, error)
	Claim(ctx context.Context, jobID uuid.UUID) (bool, error)
	Release(ctx context.Context, jobID uuid.UUID)
}

type JobStatusStore interface {
	UpdateStatus(ctx context.Context, id uuid.UUID, status string) error
	Finish(ctx context.Context, id uuid.UUID, result models.AnalysisResult) error
}

type Pool struct {
	source      JobSource
	jobs        JobStatusStore
	processors  map[string]Processor
	workerCount int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewPool(source JobSource, jobs JobStatusStore, processors map[string]Processor, workerCount int) *Pool {
	if workerCount < 1 {
		workerCount = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		source:      source,
		jobs:        jobs,
		processors:  processors,
		workerCount: workerCount,
		ctx:         ctx,
		cancel:      cancel,
	}
}

func (p *Pool) Start() {
	jobTypes := make([]string, 0, len(p.processors))
	for t := range p.processors {
		jobTypes = append(jobTypes, t)
	}

	for i := 0; i < p.workerCount; i++ {
		p.wg.Add(1)
		go p.worker(i, jobTypes)
	}

	log.Printf("Started %d worker goroutines", p.workerCount)
}

// Stop stops taking new jobs and waits for in-flight ones to finish.
func (p *Pool) Stop() {
	p.cancel()
	p.wg.Wait()
}

func (p *Pool) worker(id int, jobTypes []string) {
	defer p.wg.Done()

	for {
		select {
		case <-p.ctx.Done():
			log.Printf("Worker %d shutting down", id)
			return
		default:
		}

		job, err := p.source.Dequeue(p.ctx, dequeueTimeout, jobTypes...)
		if err != nil {
			if p.ctx.Err() == nil {
				log.Printf("Worker %d: dequeue failed: %v", id, err)
				time.Sleep(time.Second)
			}
			continue
		}
		if job == nil {
			continue // Timeout
		}

		p.handle(id, job)
	}
}

// handle runs a single job. In-flight jobs are not cancelled by Stop.
func (p *Pool) handle(workerID int, job *models.Job) {
	ctx := context.Background()

	locked, err := p.source.Claim(ctx, job.ID)
	if err != nil {
		// The job is already off the queue, so record it rather than drop it.
		log.Printf("Worker %d: failed to claim job %s: %v", workerID, job.ID, err)
		result := models.AnalysisResult{Status: "error", Message: "failed to claim job"}
		if err := p.jobs.Finish(ctx, job.ID, result); err != nil {
			log.Printf("Worker %d: failed to record result of job %s: %v", workerID, job.ID, err)
		}
		return
	}
	if !locked {
		return // Another worker has this job
	}
	defer p.source.Release(ctx, job.ID)

	log.Printf("Worker %d: processing job %s (type: %s)", workerID, job.ID, job.Type)

	if err := p.jobs.UpdateStatus(ctx, job.ID, models.JobStatusProcessing); err != nil {
		log.Printf("Worker %d: failed to mark job %s processing: %v", workerID, job.ID, err)
	}

	processor, ok := p.processors[job.Type]
	if !ok {
		result := models.AnalysisResult{Status: "error", Message: fmt.Sprintf("unknown job type: %s", job.Type)}
		if err := p.jobs.Finish(ctx, job.ID, result); err != nil {
			log.Printf("Worker %d: failed to record result of job %s: %v", workerID, job.ID, err)
		}
		return
	}

	result := processor.Process(ctx, job)
	log.Printf("Worker %d: job %s finished with status %s", workerID, job.ID, result.Status)
}
