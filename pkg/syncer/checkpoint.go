package syncer

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"zsxqsync/pkg/logger"
)

// Checkpoint records per-group crawl progress so an interrupted run can
// resume from its last cursor instead of re-walking every page.
type Checkpoint struct {
	GroupID   int64     `json:"group_id"`
	GroupName string    `json:"group_name"`
	Cursor    string    `json:"cursor"`
	Pages     int       `json:"pages"`
	Synced    int       `json:"synced"`
	Skipped   int       `json:"skipped"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Version   int       `json:"version"`
}

// CheckpointManager persists checkpoints as one JSON file per group
type CheckpointManager struct {
	dir    string
	logger logger.Logger
}

// NewCheckpointManager creates a manager storing checkpoints under
// baseDir/checkpoints
func NewCheckpointManager(baseDir string, log logger.Logger) (*CheckpointManager, error) {
	if log == nil {
		log = logger.GetLogger()
	}
	dir := filepath.Join(baseDir, "checkpoints")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create checkpoint directory: %w", err)
	}
	return &CheckpointManager{dir: dir, logger: log}, nil
}

func (m *CheckpointManager) path(groupID int64) string {
	return filepath.Join(m.dir, fmt.Sprintf("%d.checkpoint.json", groupID))
}

// Load returns the stored checkpoint for the group, or nil when none exists
func (m *CheckpointManager) Load(groupID int64) (*Checkpoint, error) {
	file, err := os.Open(m.path(groupID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open checkpoint file: %w", err)
	}
	defer file.Close()

	var cp Checkpoint
	if err := json.NewDecoder(file).Decode(&cp); err != nil {
		return nil, fmt.Errorf("failed to decode checkpoint: %w", err)
	}

	m.logger.InfoWithFields("checkpoint loaded", map[string]interface{}{
		"group_id": cp.GroupID,
		"cursor":   cp.Cursor,
		"pages":    cp.Pages,
	})

	return &cp, nil
}

// Create initializes a fresh checkpoint for the group
func (m *CheckpointManager) Create(groupID int64, name string) *Checkpoint {
	return &Checkpoint{
		GroupID:   groupID,
		GroupName: name,
		CreatedAt: time.Now(),
		Version:   1,
	}
}

// Save writes the checkpoint atomically via a temp file and rename
func (m *CheckpointManager) Save(cp *Checkpoint) error {
	cp.UpdatedAt = time.Now()

	tempPath := m.path(cp.GroupID) + ".tmp"
	file, err := os.Create(tempPath)
	if err != nil {
		return fmt.Errorf("failed to create temporary checkpoint file: %w", err)
	}

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(cp); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to encode checkpoint: %w", err)
	}

	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to sync checkpoint file: %w", err)
	}

	if err := file.Close(); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to close checkpoint file: %w", err)
	}

	if err := os.Rename(tempPath, m.path(cp.GroupID)); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to replace checkpoint file: %w", err)
	}

	m.logger.DebugWithFields("checkpoint saved", map[string]interface{}{
		"group_id": cp.GroupID,
		"cursor":   cp.Cursor,
		"synced":   cp.Synced,
	})

	return nil
}

// Clear removes the group's checkpoint once its crawl has completed
func (m *CheckpointManager) Clear(groupID int64) error {
	if err := os.Remove(m.path(groupID)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete checkpoint: %w", err)
	}
	return nil
}
