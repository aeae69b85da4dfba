package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/thinkstack/apiserver/config"
	"github.com/thinkstack/apiserver/types"
)

// ObjectStorage is the bucket surface shared by the MinIO and GCS backends.
type ObjectStorage interface {
	EnsureBucket(ctx context.Context) error
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	// List returns the keys under prefix in lexical order.
	List(ctx context.Context, prefix string) ([]string, error)
	Delete(ctx context.Context, key string) error
	Bucket() string
}

// Supported backend names.
const (
	BackendMinio = "minio"
	BackendGCS   = "gcs"
)

// Open builds the configured object store.
func Open(ctx context.Context, cfg config.StorageConfig) (ObjectStorage, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "", BackendMinio:
		return NewMinioStore(cfg.Minio)
	case BackendGCS:
		return NewGCSStore(ctx, cfg.GCS)
	default:
		return nil, fmt.Errorf("unsupported storage backend %q", cfg.Backend)
	}
}

const snapshotPrefix = "leaderboard/"

// Snapshot is a point-in-time copy of the ranking.
type Snapshot struct {
	TakenAt    time.Time           `json:"taken_at"`
	PointsMode string              `json:"points_mode"`
	Entries    []types.RankedEntry `json:"entries"`
}

// SnapshotKey names the object a snapshot taken at t is stored under.
func SnapshotKey(t time.Time) string {
	return snapshotPrefix + t.UTC().Format("20060102T150405Z") + ".json"
}

// WriteSnapshot uploads snap as JSON and returns its key.
func WriteSnapshot(ctx context.Context, store ObjectStorage, snap Snapshot) (string, error) {
	if snap.Entries == nil {
		snap.Entries = []types.RankedEntry{}
	}
	snap.TakenAt = snap.TakenAt.UTC()

	body, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode snapshot: %w", err)
	}

	key := SnapshotKey(snap.TakenAt)
	if err := store.Put(ctx, key, bytes.NewReader(body), int64(len(body)), "application/json"); err != nil {
		return "", fmt.Errorf("upload %s: %w", key, err)
	}
	return key, nil
}

// ReadSnapshot downloads and decodes the snapshot stored under key.
func ReadSnapshot(ctx context.Context, store ObjectStorage, key string) (Snapshot, error) {
	reader, err := store.Get(ctx, key)
	if err != nil {
		return Snapshot{}, fmt.Errorf("download %s: %w", key, err)
	}
	defer reader.Close()

	var snap Snapshot
	if err := json.NewDecoder(reader).Decode(&snap); err != nil {
		return Snapshot{}, fmt.Errorf("decode %s: %w", key, err)
	}
	return snap, nil
}

// ListSnapshots returns the stored snapshot keys, oldest first.
func ListSnapshots(ctx context.Context, store ObjectStorage) ([]string, error) {
	keys, err := store.List(ctx, snapshotPrefix)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	snapshots := make([]string, 0, len(keys))
	for _, key := range keys {
		if strings.HasSuffix(key, ".json") {
			snapshots = append(snapshots, key)
		}
	}
	slices.Sort(snapshots)
	return snapshots, nil
}

// PruneSnapshots deletes all but the newest keep snapshots and returns the
// deleted keys. keep < 1 keeps everything.
func PruneSnapshots(ctx context.Context, store ObjectStorage, keep int) ([]string, error) {
	if keep < 1 {
		return nil, nil
	}
	snapshots, err := ListSnapshots(ctx, store)
	if err != nil {
		return nil, err
	}
	if len(snapshots) <= keep {
		return nil, nil
	}

	stale := snapshots[:len(snapshots)-keep]
	for i, key := range stale {
		if err := store.Delete(ctx, key); err != nil {
			return stale[:i], fmt.Errorf("delete %s: %w", key, err)
		}
	}
	return stale, nil
}
