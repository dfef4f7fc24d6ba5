package db

import (
	"context"

	"github.com/ukydev/service-logbook/internal/models"
)

// StoredEntry pairs a service entry with the key the store assigned to it.
// The key addresses the document inside the vehicle's partition and is what
// an update must target; the entry's own EntryID never changes and is what
// edit links carry.
type StoredEntry struct {
	Key   string
	Entry models.ServiceEntry
}

// EntryCollection defines the store operations the service-entry workflow
// consumes: an existence check, a full per-vehicle snapshot, an append that
// lets the store assign the key, and a full overwrite at a known key.
type EntryCollection interface {
	HasEntries(ctx context.Context, vehicleNumber string) (bool, error)
	FindEntries(ctx context.Context, vehicleNumber string) ([]StoredEntry, error)
	AppendEntry(ctx context.Context, entry models.ServiceEntry) (string, error)
	ReplaceEntry(ctx context.Context, vehicleNumber, key string, entry models.ServiceEntry) error
}
