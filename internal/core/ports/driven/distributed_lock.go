package driven

import (
	"context"
	"time"
)

// SchedulerLockName guards the maintenance scheduler across worker processes
const SchedulerLockName = "scheduler"

// DocumentLockName serialises vector index writes for one document
func DocumentLockName(documentID string) string {
	return "document:" + documentID
}

// IngestionLeaseName is held for the whole of one ingestion run of a document.
// Stale recovery leaves a processing document alone while its lease is held.
func IngestionLeaseName(documentID string) string {
	return "ingest:" + documentID
}

// DistributedLock is a named, expiring mutex shared by every API and worker process.
// Redis backs it when configured; otherwise Postgres advisory locks do.
type DistributedLock interface {
	// Acquire takes name for ttl. It returns false without error when another holder has it.
	Acquire(ctx context.Context, name string, ttl time.Duration) (acquired bool, err error)

	// Release drops name if this process holds it. Releasing an expired or foreign lock is a no-op.
	Release(ctx context.Context, name string) error

	// Extend pushes the expiry of a held lock out to ttl from now.
	// Backends without expiry (advisory locks) only check the lock is still held.
	Extend(ctx context.Context, name string, ttl time.Duration) error

	Ping(ctx context.Context) error
}
