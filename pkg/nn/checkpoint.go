package nn

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
)

// CheckpointVersion is the current checkpoint format
const CheckpointVersion = 1

// ErrCheckpointVersion is returned for checkpoints written by an incompatible format
var ErrCheckpointVersion = errors.New("unsupported checkpoint version")

// Checkpoint is a serialized network together with what is needed to feed it
type Checkpoint struct {
	Version   int                  `json:"version"`
	RunID     string               `json:"run_id"`
	Epoch     int                  `json:"epoch"`
	ValLoss   float64              `json:"val_loss"`
	Config    Config               `json:"config"`
	Window    int                  `json:"window"`
	Fields    []string             `json:"fields"`
	State     map[string][]float64 `json:"state"`
	CreatedAt time.Time            `json:"created_at"`
}

// NewRunID generates an identifier for a training run
func NewRunID() string {
	return uuid.NewString()
}

// Snapshot captures the network's current parameters
func Snapshot(n *Net, runID string, epoch int, valLoss float64, window int, fields []string) *Checkpoint {
	return &Checkpoint{
		Version:   CheckpointVersion,
		RunID:     runID,
		Epoch:     epoch,
		ValLoss:   valLoss,
		Config:    n.Config,
		Window:    window,
		Fields:    append([]string(nil), fields...),
		State:     n.StateDict(),
		CreatedAt: time.Now().UTC(),
	}
}

// Restore builds a network from the checkpoint
func (c *Checkpoint) Restore() (*Net, error) {
	if c.Version != CheckpointVersion {
		return nil, fmt.Errorf("%w: %d", ErrCheckpointVersion, c.Version)
	}
	n, err := New(c.Config)
	if err != nil {
		return nil, fmt.Errorf("failed to build network: %w", err)
	}
	if err := n.LoadStateDict(c.State); err != nil {
		return nil, fmt.Errorf("failed to load state: %w", err)
	}
	return n, nil
}

// Save writes the checkpoint as zstd-compressed JSON, replacing the file atomically
func (c *Checkpoint) Save(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create checkpoint dir: %w", err)
		}
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".ckpt-*")
	if err != nil {
		return fmt.Errorf("failed to create checkpoint file: %w", err)
	}
	defer os.Remove(tmp.Name())

	enc, err := zstd.NewWriter(tmp)
	if err != nil {
		tmp.Close()
		return fmt.Errorf("failed to create zstd writer: %w", err)
	}
	if err := json.NewEncoder(enc).Encode(c); err != nil {
		enc.Close()
		tmp.Close()
		return fmt.Errorf("failed to encode checkpoint: %w", err)
	}
	if err := enc.Close(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to flush checkpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close checkpoint file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to move checkpoint into place: %w", err)
	}
	return nil
}

// LoadCheckpoint reads a checkpoint written by Save
func LoadCheckpoint(path string) (*Checkpoint, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open checkpoint: %w", err)
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd reader: %w", err)
	}
	defer dec.Close()

	var c Checkpoint
	if err := json.NewDecoder(dec).Decode(&c); err != nil {
		return nil, fmt.Errorf("failed to decode checkpoint: %w", err)
	}
	return &c, nil
}
