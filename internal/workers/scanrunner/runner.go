package scanrunner

import (
	"context"
	"sync"
	"time"

	"sitewarden/internal/domain"
	"sitewarden/internal/logger"
	"sitewarden/internal/ports"
)

// ScanExecutor performs the scan for a claimed record and writes its final
// state. It never returns an error; failures are recorded on the record.
type ScanExecutor interface {
	Execute(ctx context.Context, rec domain.ScanRecord) domain.ScanRecord
}

// Run starts a dispatcher that claims pending scans and concurrency workers
// that execute them. It returns once ctx is cancelled and every in-flight
// scan has finished.
func Run(ctx context.Context, repo ports.JobRepository, executor ScanExecutor, concurrency int, pollInterval time.Duration, log *logger.Logger) {
	if concurrency < 1 {
		return
	}
	log = log.WithComponent("scanrunner")
	jobsCh := make(chan domain.ScanRecord)

	var wg sync.WaitGroup
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			for rec := range jobsCh {
				// In-flight scans finish even after shutdown starts.
				done := executor.Execute(context.WithoutCancel(ctx), rec)
				log.Infow("scan finished", "worker", idx, "scan_id", rec.ID, "status", done.Status)
			}
		}(i)
	}

	dispatch(ctx, repo, jobsCh, pollInterval, log)
	close(jobsCh)
	wg.Wait()
}

// dispatch claims records until the queue is empty, then waits for the next
// tick. The send blocks until a worker is free, so at most one claimed
// record waits for a worker.
func dispatch(ctx context.Context, repo ports.JobRepository, jobsCh chan<- domain.ScanRecord, pollInterval time.Duration, log *logger.Logger) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		for {
			rec, found, err := repo.ClaimNext(ctx)
			if err != nil {
				if ctx.Err() == nil {
					log.LogError(ctx, err, "scan.claim")
				}
				break
			}
			if !found {
				break
			}
			// The record is already running, so hand it over even if
			// shutdown has begun.
			jobsCh <- rec
		}
	}
}
