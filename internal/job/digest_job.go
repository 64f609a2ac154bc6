package job

import (
	"context"
	"log"
	"time"

	"coin-digest/internal/domain"

	"go.opentelemetry.io/otel/trace"
)

type DigestRunner interface {
	Run(ctx context.Context) (domain.DeliveryRecord, error)
}

// DigestJob invokes the one-shot digest pipeline on a fixed interval. It keeps
// no state between runs.
type DigestJob struct {
	tracer   trace.Tracer
	runner   DigestRunner
	interval time.Duration
}

func NewDigestJob(tracer trace.Tracer, runner DigestRunner, intervalSecs int) *DigestJob {
	interval := time.Duration(intervalSecs) * time.Second
	if interval <= 0 {
		interval = time.Hour
	}
	return &DigestJob{tracer: tracer, runner: runner, interval: interval}
}

// Start runs once immediately, then on every tick. Blocks until ctx is cancelled.
func (j *DigestJob) Start(ctx context.Context) {
	if j.runner == nil {
		log.Println("Digest job disabled: no runner")
		<-ctx.Done()
		return
	}
	log.Printf("Digest job starting, interval %s", j.interval)

	j.runOnce(ctx)
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Digest job stopped")
			return
		case <-ticker.C:
			j.runOnce(ctx)
		}
	}
}

func (j *DigestJob) runOnce(ctx context.Context) {
	ctx, span := j.tracer.Start(ctx, "digest-job.run-once")
	defer span.End()

	rec, err := j.runner.Run(ctx)
	if err != nil {
		log.Printf("digest job run %s error: %v", rec.RunID, err)
	}
}
