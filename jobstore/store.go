// Package jobstore keeps sync job records in a key-value store with TTL.
//
// Records are keyed by job id and expire a fixed time after their last
// write. Reads never refresh the TTL. Every mutation goes through Update,
// which is an atomic read-modify-write so concurrent log appends and the
// final status write never overwrite each other.
package jobstore

import (
	"context"
	"errors"
	"time"

	"emusync/models"
)

// DefaultTTL is how long a record lives after its last write.
const DefaultTTL = 15 * time.Minute

// ErrNotFound is returned for unknown or expired job ids.
var ErrNotFound = errors.New("job not found")

// UpdateFunc mutates a record in place. Returning an error aborts the write.
type UpdateFunc func(rec *models.DeviceSyncRecord) error

type Store interface {
	// Create writes a new record, replacing any previous record with that id.
	Create(ctx context.Context, id string, rec models.DeviceSyncRecord) error
	Get(ctx context.Context, id string) (models.DeviceSyncRecord, error)
	// Update applies fn atomically and returns the stored result.
	Update(ctx context.Context, id string, fn UpdateFunc) (models.DeviceSyncRecord, error)
	Close() error
}

func cloneRecord(rec models.DeviceSyncRecord) models.DeviceSyncRecord {
	out := make([]string, len(rec.Output))
	copy(out, rec.Output)
	rec.Output = out
	rec.DeviceSyncRequest.EmulatorActions = append([]models.EmulatorActionEntry(nil), rec.DeviceSyncRequest.EmulatorActions...)
	return rec
}
