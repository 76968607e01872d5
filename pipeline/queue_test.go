package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
)

func TestQueue_PipesPayloadBetweenStages(t *testing.T) {
	q := NewQueue(2)

	var got json.RawMessage
	var mu sync.Mutex
	q.Go(context.Background(),
		func(ctx context.Context) (json.RawMessage, error) {
			return json.RawMessage(`{"txid":"abc"}`), nil
		},
		func(ctx context.Context, payload json.RawMessage, stageErr error) {
			mu.Lock()
			defer mu.Unlock()
			got = payload
		},
	)
	q.Wait()

	if string(got) != `{"txid":"abc"}` {
		t.Errorf("unexpected payload %q", got)
	}
}

func TestQueue_SinkSeesStageError(t *testing.T) {
	q := NewQueue(1)
	stageErr := errors.New("subprocess exploded")

	var seen error
	q.Go(context.Background(),
		func(ctx context.Context) (json.RawMessage, error) {
			return nil, stageErr
		},
		func(ctx context.Context, payload json.RawMessage, err error) {
			seen = err
		},
	)
	q.Wait()

	if !errors.Is(seen, stageErr) {
		t.Errorf("expected sink to receive stage error, got %v", seen)
	}
}

func TestQueue_BoundsConcurrency(t *testing.T) {
	q := NewQueue(2)

	var inFlight, peak int64
	block := make(chan struct{})
	for i := 0; i < 8; i++ {
		q.Go(context.Background(),
			func(ctx context.Context) (json.RawMessage, error) {
				n := atomic.AddInt64(&inFlight, 1)
				for {
					p := atomic.LoadInt64(&peak)
					if n <= p || atomic.CompareAndSwapInt64(&peak, p, n) {
						break
					}
				}
				<-block
				atomic.AddInt64(&inFlight, -1)
				return nil, nil
			},
			func(ctx context.Context, payload json.RawMessage, err error) {},
		)
	}

	close(block)
	q.Wait()

	if p := atomic.LoadInt64(&peak); p > 2 {
		t.Errorf("expected at most 2 jobs in flight, saw %d", p)
	}
}

func TestQueue_CanceledContextStillRunsSink(t *testing.T) {
	q := NewQueue(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// Exhaust the semaphore so the canceled job cannot acquire it.
	release := make(chan struct{})
	q.Go(context.Background(),
		func(ctx context.Context) (json.RawMessage, error) { <-release; return nil, nil },
		func(ctx context.Context, payload json.RawMessage, err error) {},
	)

	var sinkErr error
	done := make(chan struct{})
	q.Go(ctx,
		func(ctx context.Context) (json.RawMessage, error) { return nil, nil },
		func(ctx context.Context, payload json.RawMessage, err error) {
			sinkErr = err
			close(done)
		},
	)

	<-done
	close(release)
	q.Wait()

	if sinkErr == nil {
		t.Errorf("expected sink to report the scheduling failure")
	}
}
