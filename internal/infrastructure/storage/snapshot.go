package storage

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Memoya/simfly.me-sub000/internal/domain/provider"
	"github.com/Memoya/simfly.me-sub000/internal/infrastructure/config"
)

// snapshot is the archived document layout
type snapshot struct {
	Provider string                       `json:"provider"`
	TakenAt  time.Time                    `json:"takenAt"`
	Count    int                          `json:"count"`
	Products []provider.NormalizedProduct `json:"products"`
}

// SnapshotArchiver writes gzip-compressed JSON catalog snapshots.
type SnapshotArchiver struct {
	store  ObjectStore
	prefix string
}

var _ provider.CatalogArchiver = (*SnapshotArchiver)(nil)

// NewSnapshotArchiver creates an archiver writing below prefix
func NewSnapshotArchiver(store ObjectStore, prefix string) *SnapshotArchiver {
	return &SnapshotArchiver{store: store, prefix: strings.Trim(prefix, "/")}
}

// SnapshotKey returns <prefix>/catalog/<slug>/<yyyy>/<mm>/<dd>/<timestamp>.json.gz
func (a *SnapshotArchiver) SnapshotKey(slug string, takenAt time.Time) string {
	takenAt = takenAt.UTC()
	return path.Join(
		a.prefix,
		"catalog",
		slug,
		takenAt.Format("2006/01/02"),
		takenAt.Format("20060102T150405Z")+".json.gz",
	)
}

// ArchiveCatalog uploads the snapshot and returns its key
func (a *SnapshotArchiver) ArchiveCatalog(ctx context.Context, slug string, takenAt time.Time, products []provider.NormalizedProduct) (string, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	doc := snapshot{Provider: slug, TakenAt: takenAt.UTC(), Count: len(products), Products: products}
	if err := json.NewEncoder(zw).Encode(doc); err != nil {
		return "", fmt.Errorf("storage: encode snapshot: %w", err)
	}
	if err := zw.Close(); err != nil {
		return "", fmt.Errorf("storage: compress snapshot: %w", err)
	}

	key := a.SnapshotKey(slug, takenAt)
	if err := a.store.Upload(ctx, key, buf.Bytes(), "application/json", "gzip"); err != nil {
		return "", err
	}
	return key, nil
}

// NewArchiver returns an S3-backed archiver when storage and snapshot
// archiving are enabled, otherwise a NoopArchiver.
func NewArchiver(ctx context.Context, cfg *config.Config, log *zap.Logger) (provider.CatalogArchiver, error) {
	if !cfg.Storage.Enabled || !cfg.Catalog.ArchiveSnapshots {
		return NoopArchiver{}, nil
	}
	store, err := NewS3ObjectStorage(&cfg.Storage, WithLogger(log.Named("storage")))
	if err != nil {
		return nil, err
	}
	if err := store.EnsureBucket(ctx); err != nil {
		log.Warn("snapshot bucket check failed", zap.String("bucket", store.GetBucket()), zap.Error(err))
	}
	return NewSnapshotArchiver(store, cfg.Storage.Prefix), nil
}
