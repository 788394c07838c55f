package worker

import (
	"context"
	"log"
	"time"

	"bias-eval-service/internal/service"
)

// Pool claims job ids from the queue and fans them out to N workers. Pool
// size is the backpressure bound: when every worker is busy, freshly
// submitted jobs simply wait in the queued state.
type Pool struct {
	queue      service.Queue
	runner     *Runner
	workers    int
	claimDelay time.Duration
}

func NewPool(queue service.Queue, runner *Runner, workers int) *Pool {
	if workers <= 0 {
		workers = 4
	}
	return &Pool{
		queue:      queue,
		runner:     runner,
		workers:    workers,
		claimDelay: 5 * time.Second,
	}
}

func (p *Pool) Run(ctx context.Context) {
	log.Printf("worker pool started: workers=%d", p.workers)

	jobCh := make(chan string)

	for i := 0; i < p.workers; i++ {
		go func(n int) {
			for jobID := range jobCh {
				err := p.runner.Run(ctx, jobID)
				if err != nil {
					log.Printf("[worker-%d] run job %s error: %v", n, jobID, err)
				}

				// Ack regardless: the job is terminal in the store by now
				// (Run marks failed on abort). If the process died before
				// that, the reaper requeues the id and a fresh claim
				// re-runs it.
				if ackErr := p.queue.Ack(ctx, jobID); ackErr != nil {
					log.Printf("[worker-%d] ack job %s error: %v", n, jobID, ackErr)
				}
			}
		}(i + 1)
	}

	for {
		select {
		case <-ctx.Done():
			close(jobCh)
			log.Println("worker pool stopped")
			return
		default:
			jobID, err := p.queue.ClaimBlocking(ctx, p.claimDelay)
			if err != nil {
				// timeout/redis.Nil/ctx cancel — not fatal
				continue
			}
			select {
			case jobCh <- jobID:
			case <-ctx.Done():
				close(jobCh)
				return
			}
		}
	}
}
