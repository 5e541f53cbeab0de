package sync

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/vonshlovens/obsync-notion/internal/config"
)

// RunRecord is the persisted outcome of one sync run for one pair.
type RunRecord struct {
	ConfigID   string    `json:"config_id"`
	ConfigName string    `json:"config_name"`
	Direction  string    `json:"direction"`
	StartedAt  time.Time `json:"started_at"`
	Created    int       `json:"created"`
	Updated    int       `json:"updated"`
	Failed     int       `json:"failed"`
	Conflicts  int       `json:"conflicts"`
	Error      string    `json:"error,omitempty"`
}

type historyState struct {
	Runs map[string]*RunRecord `json:"runs"`
}

// History records the last run per sync pair in a JSON file under the
// config directory. It is owned by the CLI, not the engine: the engine
// itself never persists anything.
type History struct {
	filePath string
	mu       sync.Mutex
	state    *historyState
	dirty    bool
}

// NewHistory loads (or initializes) the run history file.
func NewHistory() (*History, error) {
	stateDir, err := config.GetStateDir()
	if err != nil {
		return nil, err
	}

	h := &History{
		filePath: filepath.Join(stateDir, "history.json"),
		state:    &historyState{Runs: make(map[string]*RunRecord)},
	}

	data, err := os.ReadFile(h.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return h, nil
		}
		return nil, err
	}

	state := &historyState{}
	if err := json.Unmarshal(data, state); err != nil {
		// A corrupt history file is not worth failing a sync over.
		return h, nil
	}
	if state.Runs == nil {
		state.Runs = make(map[string]*RunRecord)
	}
	h.state = state
	return h, nil
}

// Record stores the outcome of one run.
func (h *History) Record(rec RunRecord) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.state.Runs[rec.ConfigID] = &rec
	h.dirty = true
}

// RecordResult stores the outcome of an engine RunResult.
func (h *History) RecordResult(res RunResult, startedAt time.Time) {
	rec := RunRecord{
		ConfigID:   res.Config.ID,
		ConfigName: res.Config.Name,
		Direction:  string(res.Config.Direction),
		StartedAt:  startedAt,
	}
	if res.Summary != nil {
		rec.Created = res.Summary.Created
		rec.Updated = res.Summary.Updated
		rec.Failed = res.Summary.Failed
		rec.Conflicts = res.Summary.Conflicts
	}
	if res.Err != nil {
		rec.Error = res.Err.Error()
	}
	h.Record(rec)
}

// Get returns the last run for a pair, or nil.
func (h *History) Get(configID string) *RunRecord {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state.Runs[configID]
}

// All returns every recorded run, sorted by pair name.
func (h *History) All() []RunRecord {
	h.mu.Lock()
	defer h.mu.Unlock()

	records := make([]RunRecord, 0, len(h.state.Runs))
	for _, rec := range h.state.Runs {
		records = append(records, *rec)
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].ConfigName < records[j].ConfigName
	})
	return records
}

// Save persists the history to disk when it changed.
func (h *History) Save() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.dirty {
		return nil
	}

	data, err := json.MarshalIndent(h.state, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(h.filePath, data, 0644); err != nil {
		return err
	}

	h.dirty = false
	return nil
}
