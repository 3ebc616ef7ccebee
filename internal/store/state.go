package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"sync"

	"pairbridge/internal/types"
)

// AutomationState is the durable snapshot written after every mutation.
type AutomationState struct {
	// LastRun maps rule id to the last calendar date (YYYY-MM-DD, in the
	// configured timezone) the rule fired.
	LastRun      map[string]string             `json:"last_run"`
	ActiveTrades map[string]*types.TradeRecord `json:"active_trades"`
	History      []types.ClosedTrade           `json:"history"`
	TradeCounter int                           `json:"trade_counter"`
}

var tradeSeq = regexp.MustCompile(`(\d+)$`)

// StateStore owns the crash-recoverable automation state. All access goes
// through its mutex; every state-changing method persists synchronously
// with an atomic replace before returning. A failed write leaves the
// in-memory state authoritative and returns the error for logging.
type StateStore struct {
	mu           sync.Mutex
	path         string
	historyLimit int
	state        AutomationState
}

// NewStateStore loads the state file once. A missing file starts empty; a
// corrupt file is reported so the operator decides, rather than silently
// discarding trades.
func NewStateStore(path string, historyLimit int) (*StateStore, error) {
	s := &StateStore{path: path, historyLimit: historyLimit}
	s.state = AutomationState{
		LastRun:      map[string]string{},
		ActiveTrades: map[string]*types.TradeRecord{},
		TradeCounter: 1,
	}
	b, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, err
	}
	var loaded AutomationState
	if err := json.Unmarshal(b, &loaded); err != nil {
		return nil, fmt.Errorf("state file %s is corrupt: %w", path, err)
	}
	if loaded.LastRun == nil {
		loaded.LastRun = map[string]string{}
	}
	if loaded.ActiveTrades == nil {
		loaded.ActiveTrades = map[string]*types.TradeRecord{}
	}
	s.state = loaded
	s.restoreCounter()
	return s, nil
}

// restoreCounter guarantees the trade-id counter is strictly above every
// trade id seen in active trades or history.
func (s *StateStore) restoreCounter() {
	highest := 0
	bump := func(id string) {
		m := tradeSeq.FindStringSubmatch(id)
		if m == nil {
			return
		}
		if n, err := strconv.Atoi(m[1]); err == nil && n > highest {
			highest = n
		}
	}
	for id := range s.state.ActiveTrades {
		bump(id)
	}
	for _, h := range s.state.History {
		bump(h.TradeID)
	}
	if highest >= s.state.TradeCounter {
		s.state.TradeCounter = highest + 1
	}
	if s.state.TradeCounter < 1 {
		s.state.TradeCounter = 1
	}
}

// save writes the snapshot atomically: temp file in the same directory,
// then rename over the destination. Callers hold s.mu.
func (s *StateStore) save() error {
	b, err := json.MarshalIndent(&s.state, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

// Save persists the current snapshot. Used after batched mutations.
func (s *StateStore) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save()
}

// NextTradeID allocates the next monotonic trade id (T00001, T00002, ...).
func (s *StateStore) NextTradeID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := fmt.Sprintf("T%05d", s.state.TradeCounter)
	s.state.TradeCounter++
	return id
}

// LastRunDate returns the last trigger date recorded for a rule, or "".
func (s *StateStore) LastRunDate(ruleID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.LastRun[ruleID]
}

// MarkTriggered records that a rule fired on the given calendar date and
// persists. Called only after both legs are confirmed open.
func (s *StateStore) MarkTriggered(ruleID, date string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.LastRun[ruleID] = date
	return s.save()
}

// InsertTrade adds an open trade and persists before returning.
func (s *StateStore) InsertTrade(rec *types.TradeRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.ActiveTrades[rec.TradeID] = rec
	return s.save()
}

// GetTrade returns a copy of an active trade.
func (s *StateStore) GetTrade(tradeID string) (types.TradeRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.state.ActiveTrades[tradeID]
	if !ok {
		return types.TradeRecord{}, false
	}
	return *rec, true
}

// ActiveTrades returns copies of all active trades. Callers work on the
// snapshot and never touch the live map, so channel I/O happens with the
// lock released.
func (s *StateStore) ActiveTrades() []types.TradeRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.TradeRecord, 0, len(s.state.ActiveTrades))
	for _, rec := range s.state.ActiveTrades {
		out = append(out, *rec)
	}
	return out
}

// ActiveCount returns the number of open trades.
func (s *StateStore) ActiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.state.ActiveTrades)
}

// UpdateTrade mutates an active trade under the lock. Returns false if the
// trade is gone. The mutation is persisted only when persist is true, so
// per-tick profit refreshes can batch into a single save.
func (s *StateStore) UpdateTrade(tradeID string, persist bool, fn func(*types.TradeRecord)) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.state.ActiveTrades[tradeID]
	if !ok {
		return false, nil
	}
	fn(rec)
	if !persist {
		return true, nil
	}
	return true, s.save()
}

// CloseTrade removes an active trade, appends its history entry (capped,
// oldest dropped first) and persists. Removing an unknown trade is a no-op.
func (s *StateStore) CloseTrade(tradeID string, entry types.ClosedTrade) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.state.ActiveTrades[tradeID]; !ok {
		return false, nil
	}
	delete(s.state.ActiveTrades, tradeID)
	s.state.History = append(s.state.History, entry)
	if s.historyLimit > 0 && len(s.state.History) > s.historyLimit {
		s.state.History = s.state.History[len(s.state.History)-s.historyLimit:]
	}
	return true, s.save()
}

// History returns a copy of the closed-trade history, oldest first.
func (s *StateStore) History() []types.ClosedTrade {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.ClosedTrade, len(s.state.History))
	copy(out, s.state.History)
	return out
}
