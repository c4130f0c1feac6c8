// Package store is the durability boundary of the simulator: one JSON
// document holding the whole ledger aggregate plus the live-mode flag.
// Every write replaces the entire document; there is no incremental state.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// ErrCorruptState marks a state file that exists but cannot be decoded.
// A missing file is not an error; a corrupt one must never be silently
// replaced by an empty ledger.
var ErrCorruptState = errors.New("state file is corrupt")

// Position is the persisted form of a position. The field names match the
// settings document written by earlier versions of the desktop app, so an
// existing file loads unchanged.
type Position struct {
	Ticket       int64     `json:"ticket"`
	Symbol       string    `json:"symbol"`
	Side         string    `json:"type"`
	Volume       float64   `json:"volume"`
	OpenPrice    float64   `json:"open_price"`
	CurrentPrice float64   `json:"current_price"`
	StopLoss     float64   `json:"sl"`
	TakeProfit   float64   `json:"tp"`
	Profit       float64   `json:"profit"`
	Degraded     bool      `json:"degraded,omitempty"`
	Comment      string    `json:"comment,omitempty"`
	OpenTime     time.Time `json:"open_time"`
	ClosePrice   float64   `json:"close_price,omitempty"`
	CloseTime    time.Time `json:"close_time"`
}

// LedgerState is the ledger's section of the document.
type LedgerState struct {
	Positions       []Position `json:"positions"`
	ClosedPositions []Position `json:"closed_positions"`
	NextTicket      int64      `json:"next_ticket"`
	InitialBalance  float64    `json:"initial_balance"`
}

// State is the full persisted record.
type State struct {
	LedgerState
	LiveMode    bool      `json:"live_mode"`
	LastUpdated time.Time `json:"last_updated"`
}

// Store owns the state file. SaveLedger and SaveLiveMode each rewrite the
// whole document, merging the other section from the last known copy.
type Store struct {
	path string

	mu  sync.Mutex
	cur State
}

// Open loads the state file at path, or returns a zero state when the file
// does not exist yet. It is called exactly once at process start.
func Open(path string) (*Store, State, error) {
	s := &Store{path: path}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, s.cur, nil
		}
		return nil, State{}, fmt.Errorf("read state file: %w", err)
	}

	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, State{}, fmt.Errorf("%w: %s: %v", ErrCorruptState, path, err)
	}

	s.cur = st
	return s, st, nil
}

// SaveLedger replaces the ledger section and rewrites the document.
func (s *Store) SaveLedger(ls LedgerState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cur.LedgerState = ls
	return s.writeLocked()
}

// SaveLiveMode replaces the live-mode flag and rewrites the document.
func (s *Store) SaveLiveMode(live bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cur.LiveMode = live
	return s.writeLocked()
}

func (s *Store) writeLocked() error {
	s.cur.LastUpdated = time.Now().UTC()

	data, err := json.MarshalIndent(s.cur, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	// Whole-state replace via rename so a crash mid-write never leaves a
	// half-written document behind.
	tmp := s.path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write state file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace state file: %w", err)
	}
	return nil
}
