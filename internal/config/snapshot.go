package config

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strconv"
	"strings"
)

// Snapshot computes a stable hash of the fields that determine the scheduler trajectory.
// Two runs with equal snapshots replay to identical (resolution, phase) sequences, so the
// value is recorded in the run journal and compared on resume.
func (c *Config) Snapshot() string {
	if c == nil {
		return ""
	}
	h := sha256.New()
	w := func(parts ...string) {
		h.Write([]byte(strings.Join(parts, "=")))
		h.Write([]byte{0})
	}
	w("schedule.trns_tick", strconv.Itoa(c.Schedule.TrnsTick))
	w("schedule.stab_tick", strconv.Itoa(c.Schedule.StabTick))
	w("schedule.tick", strconv.Itoa(c.Schedule.Tick))
	w("schedule.max_resolution", strconv.Itoa(c.Schedule.MaxResolution))
	w("schedule.batch_size", strconv.Itoa(c.Schedule.BatchSize))
	if len(c.Schedule.BatchSizes) > 0 {
		keys := make([]string, 0, len(c.Schedule.BatchSizes))
		for k := range c.Schedule.BatchSizes {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			w("schedule.batch_sizes."+k, strconv.Itoa(c.Schedule.BatchSizes[k]))
		}
	}
	w("schedule.final_stages", strconv.Itoa(c.Schedule.FinalStages))
	w("optimizer.lr", strconv.FormatFloat(c.Optimizer.LR, 'g', -1, 64))
	w("optimizer.lr_decay", strconv.FormatFloat(c.Optimizer.LRDecay, 'g', -1, 64))
	return hex.EncodeToString(h.Sum(nil))
}
