package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
)

const (
	contactsDir    = "contacts"
	checkpointFile = "checkpoint.json"
	traceFile      = "trace.jsonl"
)

// FSStore keeps one directory per contact under <baseDir>/contacts/<id>/,
// holding checkpoint.json and trace.jsonl.
//
// Checkpoints are replaced by renaming a freshly written temp file, so
// readers never see a partial checkpoint and no locking is needed.
type FSStore struct {
	baseDir string
}

// NewFSStore creates baseDir if needed.
func NewFSStore(baseDir string) (*FSStore, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}
	return &FSStore{baseDir: baseDir}, nil
}

// BaseDir returns the store's root directory.
func (fs *FSStore) BaseDir() string { return fs.baseDir }

func contactDir(baseDir, contactID string) string {
	return filepath.Join(baseDir, contactsDir, contactID)
}

func (fs *FSStore) checkpointPath(contactID string) string {
	return filepath.Join(contactDir(fs.baseDir, contactID), checkpointFile)
}

func checkID(contactID string) error {
	if contactID == "" {
		return errors.New("contactID cannot be empty")
	}
	if contactID != filepath.Base(contactID) || contactID == "." || contactID == ".." {
		return fmt.Errorf("invalid contactID %q", contactID)
	}
	return nil
}

func (fs *FSStore) SaveCheckpoint(contactID string, checkpoint *Checkpoint) error {
	if err := checkID(contactID); err != nil {
		return err
	}
	if checkpoint == nil {
		return errors.New("checkpoint cannot be nil")
	}

	dir := contactDir(fs.baseDir, contactID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create contact directory: %w", err)
	}

	data, err := json.MarshalIndent(checkpoint, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize checkpoint: %w", err)
	}

	tmp, err := os.CreateTemp(dir, checkpointFile+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp checkpoint file: %w", err)
	}
	_, err = tmp.Write(data)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write temp checkpoint file: %w", err)
	}

	finalPath := fs.checkpointPath(contactID)
	if err := os.Rename(tmp.Name(), finalPath); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to rename checkpoint file: %w", err)
	}

	slog.Debug("Checkpoint saved", "contactID", contactID, "path", finalPath)
	return nil
}

func (fs *FSStore) LoadCheckpoint(contactID string) (*Checkpoint, error) {
	if err := checkID(contactID); err != nil {
		return nil, err
	}

	path := fs.checkpointPath(contactID)
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, &NotFoundError{ContactID: contactID}
	} else if err != nil {
		return nil, fmt.Errorf("failed to read checkpoint file: %w", err)
	}

	var checkpoint Checkpoint
	if err := json.Unmarshal(data, &checkpoint); err != nil {
		return nil, fmt.Errorf("failed to deserialize checkpoint: %w", err)
	}

	slog.Debug("Checkpoint loaded", "contactID", contactID, "path", path)
	return &checkpoint, nil
}

// ListCheckpoints skips directories without a readable checkpoint. The
// result is ordered by contact ID.
func (fs *FSStore) ListCheckpoints() ([]CheckpointInfo, error) {
	entries, err := os.ReadDir(filepath.Join(fs.baseDir, contactsDir))
	if errors.Is(err, os.ErrNotExist) {
		return []CheckpointInfo{}, nil
	} else if err != nil {
		return nil, fmt.Errorf("failed to read contacts directory: %w", err)
	}

	infos := []CheckpointInfo{}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		checkpoint, err := fs.LoadCheckpoint(entry.Name())
		if errors.Is(err, ErrNotFound) {
			continue
		} else if err != nil {
			slog.Warn("Failed to load checkpoint for listing", "contactID", entry.Name(), "error", err)
			continue
		}
		infos = append(infos, checkpoint.ToInfo())
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].ContactID < infos[j].ContactID })

	slog.Debug("Listed checkpoints", "count", len(infos))
	return infos, nil
}

func (fs *FSStore) DeleteCheckpoint(contactID string) error {
	if err := checkID(contactID); err != nil {
		return err
	}

	dir := contactDir(fs.baseDir, contactID)
	if _, err := os.Stat(dir); errors.Is(err, os.ErrNotExist) {
		return &NotFoundError{ContactID: contactID}
	} else if err != nil {
		return fmt.Errorf("failed to stat contact directory: %w", err)
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("failed to remove contact directory: %w", err)
	}

	slog.Debug("Checkpoint deleted", "contactID", contactID, "path", dir)
	return nil
}
