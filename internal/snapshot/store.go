// Package snapshot persists failure snapshots so failed turns can be resumed later.
package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/DomeenoH/dual/internal/logging"
	"github.com/DomeenoH/dual/internal/step"
)

const fileExt = ".json"

// FileSystemStore keeps one JSON file per step id
type FileSystemStore struct {
	dir string // The directory keys will be relative to
	log *logrus.Entry
}

// NewFileSystemStore creates the directory if it does not exist
func NewFileSystemStore(dir string) (*FileSystemStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create snapshot directory: %w", err)
	}
	return &FileSystemStore{dir: dir, log: logging.NewLogger("snapshot")}, nil
}

func (s *FileSystemStore) path(stepID string) (string, error) {
	if stepID == "" || strings.ContainsAny(stepID, `/\`) || stepID == "." || stepID == ".." {
		return "", fmt.Errorf("invalid step id %q", stepID)
	}
	return filepath.Join(s.dir, stepID+fileExt), nil
}

// Record implements step.FailureSink. A later snapshot for the same step replaces the earlier one.
func (s *FileSystemStore) Record(_ context.Context, snapshot step.FailureSnapshot) error {
	path, err := s.path(snapshot.Request.StepID)
	if err != nil {
		return err
	}
	b, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal failure snapshot: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to move snapshot into place: %w", err)
	}
	s.log.WithField("step", snapshot.Request.StepID).Info("Recorded failure snapshot")
	return nil
}

// Get returns the snapshot stored for stepID, or nil if there is none
func (s *FileSystemStore) Get(stepID string) (*step.FailureSnapshot, error) {
	path, err := s.path(stepID)
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	var snapshot step.FailureSnapshot
	if err := json.Unmarshal(b, &snapshot); err != nil {
		return nil, fmt.Errorf("failed to unmarshal failure snapshot: %w", err)
	}
	return &snapshot, nil
}

// List returns every stored snapshot, most recent failure first
func (s *FileSystemStore) List() ([]step.FailureSnapshot, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot directory: %w", err)
	}
	snapshots := []step.FailureSnapshot{}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, fileExt) {
			continue
		}
		snapshot, err := s.Get(strings.TrimSuffix(name, fileExt))
		if err != nil {
			s.log.WithError(err).WithField("file", name).Warn("Skipping unreadable snapshot")
			continue
		}
		if snapshot != nil {
			snapshots = append(snapshots, *snapshot)
		}
	}
	sort.Slice(snapshots, func(i, j int) bool {
		return snapshots[i].FailedAt.After(snapshots[j].FailedAt)
	})
	return snapshots, nil
}

// Delete removes the snapshot for stepID. Deleting a missing snapshot is not an error.
func (s *FileSystemStore) Delete(stepID string) error {
	path, err := s.path(stepID)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}
