package pipeline

import (
	"context"
	"encoding/json"
	"log"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
)

// Stage produces a payload, typically by running a subprocess.
type Stage func(ctx context.Context) (json.RawMessage, error)

// Sink consumes the stage's payload. It always runs, receiving the stage
// error when one occurred, so transport failures can flow through the
// normal invalid-result path instead of silently dropping the job.
type Sink func(ctx context.Context, payload json.RawMessage, stageErr error)

// Queue runs chained two-stage jobs with a bounded number in flight. Jobs
// for different orders run fully in parallel; any per-order serialization is
// the database's business, not the queue's.
type Queue struct {
	sem *semaphore.Weighted
	wg  sync.WaitGroup
}

func NewQueue(limit int64) *Queue {
	if limit <= 0 {
		limit = 4
	}
	return &Queue{sem: semaphore.NewWeighted(limit)}
}

// Go schedules a job: stage runs first, its payload is piped into sink.
// Nothing is shared between the stages beyond that payload.
func (q *Queue) Go(ctx context.Context, stage Stage, sink Sink) {
	jobID := uuid.NewString()

	q.wg.Add(1)
	go func() {
		defer q.wg.Done()

		if err := q.sem.Acquire(ctx, 1); err != nil {
			log.Printf("pipeline: job %s not scheduled: %v", jobID, err)
			sink(ctx, nil, err)
			return
		}
		defer q.sem.Release(1)

		payload, err := stage(ctx)
		if err != nil {
			log.Printf("pipeline: job %s stage failed: %v", jobID, err)
		}
		sink(ctx, payload, err)
	}()
}

// Wait blocks until every scheduled job has finished.
func (q *Queue) Wait() {
	q.wg.Wait()
}
