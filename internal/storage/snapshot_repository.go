package storage

import (
	"context"

	"github.com/market-tracker/internal/types"
)

// SnapshotRepository holds the current and previous price snapshots in Redis.
// The previous snapshot feeds percent-change alerts; both are replaced
// wholesale on each fetch cycle.
type SnapshotRepository struct {
	kv *KVStore
}

// NewSnapshotRepository creates a snapshot repository.
func NewSnapshotRepository(kv *KVStore) *SnapshotRepository {
	return &SnapshotRepository{kv: kv}
}

// Current returns the latest stored snapshot. The bool reports whether a
// snapshot has ever been stored.
func (r *SnapshotRepository) Current(ctx context.Context) (types.PriceSnapshot, bool, error) {
	snap := types.PriceSnapshot{}
	found, err := r.kv.GetJSON(ctx, KeySnapshotCur, &snap)
	return snap, found, err
}

// Previous returns the snapshot from the cycle before the current one.
func (r *SnapshotRepository) Previous(ctx context.Context) (types.PriceSnapshot, bool, error) {
	snap := types.PriceSnapshot{}
	found, err := r.kv.GetJSON(ctx, KeySnapshotPrev, &snap)
	return snap, found, err
}

// Replace rotates the current snapshot into the previous slot and stores the
// new snapshot as current.
func (r *SnapshotRepository) Replace(ctx context.Context, snap types.PriceSnapshot) error {
	cur, found, err := r.Current(ctx)
	if err != nil {
		return err
	}

	if found && len(cur) > 0 {
		if err := r.kv.PutJSON(ctx, KeySnapshotPrev, cur, 0); err != nil {
			return err
		}
	}

	return r.kv.PutJSON(ctx, KeySnapshotCur, snap, 0)
}
