// state/state.go
package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"riskgate/logs"
)

// StateManagerInterface is what the orchestrator needs to survive a restart:
// sell timestamps for cooldowns plus a little cycle bookkeeping.
type StateManagerInterface interface {
	// GetFullState returns a deep copy for startup reconciliation.
	GetFullState() AppState
	// RecordSell stores the time a sell was confirmed. Older timestamps never replace newer ones.
	RecordSell(ticker string, ts time.Time) error
	// RecordCycle marks a cycle as completed.
	RecordCycle(cycleID string) error
	// UpdateRealizedPNL accumulates realized profit from confirmed sells.
	UpdateRealizedPNL(pnl float64) error
}

// AppState is the top-level structure persisted to state.json.
type AppState struct {
	Cooldowns       map[string]time.Time `json:"cooldowns"`
	LastCycleID     string               `json:"last_cycle_id"`
	LastCycleAt     time.Time            `json:"last_cycle_at"`
	CyclesCompleted int                  `json:"cycles_completed"`
	RealizedPNL     float64              `json:"realized_pnl"`
}

func (s AppState) clone() AppState {
	out := s
	out.Cooldowns = make(map[string]time.Time, len(s.Cooldowns))
	for k, v := range s.Cooldowns {
		out.Cooldowns[k] = v
	}
	return out
}

// StateManager is the JSON file implementation of StateManagerInterface.
type StateManager struct {
	mu       sync.RWMutex
	filePath string
	state    *AppState
	now      func() time.Time
}

// NewStateManager loads existing state, or creates a fresh file if none exists.
func NewStateManager(filePath string) (*StateManager, error) {
	sm := &StateManager{
		filePath: filePath,
		state:    &AppState{Cooldowns: make(map[string]time.Time)},
		now:      time.Now,
	}

	if dir := filepath.Dir(filePath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create state directory: %w", err)
		}
	}

	if err := sm.load(); err != nil {
		if os.IsNotExist(err) {
			logs.Infof("State file not found at %s. Starting with a fresh state.", filePath)
			if err := sm.save(); err != nil {
				return nil, fmt.Errorf("failed to create initial empty state file: %w", err)
			}
			return sm, nil
		}
		return nil, fmt.Errorf("failed to load initial state: %w", err)
	}
	if sm.state.Cooldowns == nil {
		sm.state.Cooldowns = make(map[string]time.Time)
	}
	return sm, nil
}

// save writes atomically via a temp file. Caller holds the lock.
func (sm *StateManager) save() error {
	data, err := json.MarshalIndent(sm.state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state for saving: %w", err)
	}

	tmpFilePath := sm.filePath + ".tmp"
	if err := os.WriteFile(tmpFilePath, data, 0644); err != nil {
		return fmt.Errorf("failed to write to temporary state file: %w", err)
	}
	return os.Rename(tmpFilePath, sm.filePath)
}

func (sm *StateManager) load() error {
	return readState(sm.filePath, sm.state)
}

func readState(path string, st *AppState) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, st)
}

// Load reads the state file without creating or writing anything.
// A missing file yields an empty state.
func Load(filePath string) (AppState, error) {
	st := AppState{}
	if err := readState(filePath, &st); err != nil && !os.IsNotExist(err) {
		return AppState{}, fmt.Errorf("failed to read state file %s: %w", filePath, err)
	}
	if st.Cooldowns == nil {
		st.Cooldowns = make(map[string]time.Time)
	}
	return st, nil
}

func (sm *StateManager) GetFullState() AppState {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.state.clone()
}

func (sm *StateManager) RecordSell(ticker string, ts time.Time) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if prev, ok := sm.state.Cooldowns[ticker]; ok && prev.After(ts) {
		return nil
	}
	sm.state.Cooldowns[ticker] = ts.UTC()
	return sm.save()
}

func (sm *StateManager) RecordCycle(cycleID string) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.state.LastCycleID = cycleID
	sm.state.LastCycleAt = sm.now().UTC()
	sm.state.CyclesCompleted++
	return sm.save()
}

func (sm *StateManager) UpdateRealizedPNL(pnl float64) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.state.RealizedPNL += pnl
	return sm.save()
}
