package checkpoint

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"git.home.luguber.info/inful/progan/internal/model"
	"git.home.luguber.info/inful/progan/internal/schedule"
)

const recordFormat = 1

// Record is one network's checkpoint file. Resolution, phase and fade-in progress are not
// authoritative here: resume rebuilds them by replaying the schedule from Tick and
// Iteration. Phase and Resolution are kept to cross-check the replay.
type Record struct {
	Format     int        `json:"format"`
	Role       model.Role `json:"role"`
	Level      int        `json:"resolution"`
	Tick       int        `json:"tick"`
	Iteration  int        `json:"iteration"`
	KImgs      int        `json:"kimgs"`
	Stage      int        `json:"stage"`
	Epoch      int        `json:"epoch"`
	Stack      int        `json:"stack"`
	Resolution float64    `json:"resolution_cursor"`
	Phase      string     `json:"phase"`
	LR         float64    `json:"lr"`
	RunID      string     `json:"run_id,omitempty"`
	ConfigHash string     `json:"config_hash,omitempty"`
	Weights    []byte     `json:"weights"`
	Optimizer  []byte     `json:"optimizer"`
	Checksum   string     `json:"checksum"`
}

// Progress is the loop position handed to Snapshot alongside the schedule state.
type Progress struct {
	State      schedule.State
	Stage      int
	Epoch      int
	Stack      int
	RunID      string
	ConfigHash string
}

func newRecord(role model.Role, p Progress, weights, optimizer []byte) Record {
	r := Record{
		Format:     recordFormat,
		Role:       role,
		Level:      p.State.Level(),
		Tick:       p.State.GlobalTick,
		Iteration:  p.State.GlobalIter,
		KImgs:      p.State.KImgs,
		Stage:      p.Stage,
		Epoch:      p.Epoch,
		Stack:      p.Stack,
		Resolution: p.State.Resolution,
		Phase:      string(p.State.Phase),
		LR:         p.State.LR,
		RunID:      p.RunID,
		ConfigHash: p.ConfigHash,
		Weights:    weights,
		Optimizer:  optimizer,
	}
	r.Checksum = r.digest()
	return r
}

func (r Record) digest() string {
	h := sha256.New()
	fmt.Fprintf(h, "%d|%s|%d|%d|%d|", r.Format, r.Role, r.Level, r.Tick, r.Iteration)
	h.Write(r.Weights)
	h.Write([]byte{0})
	h.Write(r.Optimizer)
	return hex.EncodeToString(h.Sum(nil))
}

// Verify checks the checksum and format version.
func (r Record) Verify() error {
	if r.Format != recordFormat {
		return fmt.Errorf("unsupported checkpoint format %d", r.Format)
	}
	if r.Checksum != r.digest() {
		return fmt.Errorf("checksum mismatch")
	}
	return nil
}

// ReadRecord decodes and verifies the record at path.
func ReadRecord(path string) (Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Record{}, err
	}
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return Record{}, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	if err := r.Verify(); err != nil {
		return Record{}, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return r, nil
}

// writeRecord writes r to path through a temporary file in the same directory, syncs it
// and renames it into place, so a crash never leaves a truncated file under a checkpoint
// name.
func writeRecord(path string, r Record) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode checkpoint: %w", err)
	}
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpPath) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		cleanup()
		return err
	}
	if d, err := os.Open(dir); err == nil {
		_ = d.Sync()
		_ = d.Close()
	}
	return nil
}
