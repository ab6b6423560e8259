package persistence

import "context"

// SnapshotRepository stores conference snapshots.
type SnapshotRepository interface {
	SaveSnapshot(ctx context.Context, snapshot Snapshot) error
	GetSnapshot(ctx context.Context, id string) (Snapshot, error)
	LatestSnapshot(ctx context.Context) (Snapshot, error)
	ListSnapshots(ctx context.Context) ([]SnapshotSummary, error)
	// PruneSnapshots keeps the newest keep snapshots and reports how many were removed.
	PruneSnapshots(ctx context.Context, keep int) (int, error)
}
