package storage

import (
	"context"
	"time"

	"github.com/Memoya/simfly.me-sub000/internal/domain/provider"
)

// NoopArchiver discards snapshots. It is used when archiving is disabled.
type NoopArchiver struct{}

var _ provider.CatalogArchiver = NoopArchiver{}

// ArchiveCatalog does nothing and returns an empty key
func (NoopArchiver) ArchiveCatalog(context.Context, string, time.Time, []provider.NormalizedProduct) (string, error) {
	return "", nil
}
