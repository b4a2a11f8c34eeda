package backup

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"
)

const (
	snapshotPrefix = "alerts-"
	nameTimeLayout = "20060102-150405"
)

// Snapshot is one serialized copy of the alert history.
type Snapshot struct {
	Version   string                 `json:"version"`
	Timestamp time.Time              `json:"timestamp"`
	Alerts    json.RawMessage        `json:"alerts,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// Storage defines where snapshots are kept.
type Storage interface {
	Save(ctx context.Context, name string, data io.Reader) error
	Load(ctx context.Context, name string) (io.ReadCloser, error)
	List(ctx context.Context, prefix string) ([]string, error)
	Delete(ctx context.Context, name string) error
}

// Service writes and reads alert history snapshots.
type Service struct {
	storage Storage
	version string
}

// NewService creates a snapshot service on top of the given storage.
func NewService(storage Storage, version string) *Service {
	return &Service{
		storage: storage,
		version: version,
	}
}

// CreateSnapshot stamps the snapshot with the service version and the
// current time, then stores it under a timestamped name. The generated
// name is returned.
func (s *Service) CreateSnapshot(ctx context.Context, snap *Snapshot) (string, error) {
	snap.Version = s.version
	snap.Timestamp = time.Now()

	payload, err := json.Marshal(snap)
	if err != nil {
		return "", fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	name := fmt.Sprintf("%s%s.json", snapshotPrefix, snap.Timestamp.Format(nameTimeLayout))
	if err := s.storage.Save(ctx, name, bytes.NewReader(payload)); err != nil {
		return "", fmt.Errorf("failed to save snapshot: %w", err)
	}
	return name, nil
}

// LoadSnapshot reads a stored snapshot back by name.
func (s *Service) LoadSnapshot(ctx context.Context, name string) (*Snapshot, error) {
	reader, err := s.storage.Load(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return &snap, nil
}

// ListSnapshots returns the names of all stored snapshots.
func (s *Service) ListSnapshots(ctx context.Context) ([]string, error) {
	return s.storage.List(ctx, snapshotPrefix)
}

// DeleteSnapshot removes a snapshot by name.
func (s *Service) DeleteSnapshot(ctx context.Context, name string) error {
	return s.storage.Delete(ctx, name)
}

// SnapshotTime extracts the creation time encoded in a snapshot name.
// Names look like "alerts-20060102-150405.json"; anything else reports
// false.
func SnapshotTime(name string) (time.Time, bool) {
	if !strings.HasPrefix(name, snapshotPrefix) {
		return time.Time{}, false
	}
	encoded := strings.TrimSuffix(name[len(snapshotPrefix):], ".json")
	ts, err := time.Parse(nameTimeLayout, encoded)
	if err != nil {
		return time.Time{}, false
	}
	return ts, true
}
