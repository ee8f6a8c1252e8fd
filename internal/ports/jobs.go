package ports

import (
	"context"

	"sitewarden/internal/domain"
)

// JobRepository hands pending scan records to background workers. ClaimNext
// moves the oldest pending record to running and returns it; found is false
// when the queue is empty.
type JobRepository interface {
	ClaimNext(ctx context.Context) (rec domain.ScanRecord, found bool, err error)
}
