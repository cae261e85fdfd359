package game

import (
	"fmt"
	"sync"
	"time"
)

// JournalEntry records one phase transition or applied decision.
type JournalEntry struct {
	Seq    int       `json:"seq"`
	Time   time.Time `json:"time"`
	Round  int       `json:"round"`
	Phase  Phase     `json:"phase"`
	Player PlayerID  `json:"player,omitempty"`
	Event  string    `json:"event"`
	Detail string    `json:"detail,omitempty"`
}

// Journal is an append-only, in-memory audit log. It is safe for concurrent
// readers while the orchestrator appends.
type Journal struct {
	mu      sync.RWMutex
	entries []JournalEntry
}

func (j *Journal) append(e JournalEntry) {
	j.mu.Lock()
	defer j.mu.Unlock()
	e.Seq = len(j.entries) + 1
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	j.entries = append(j.entries, e)
}

// Entries returns a copy of the log, optionally starting after seq.
func (j *Journal) Entries(after int) []JournalEntry {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if after < 0 {
		after = 0
	}
	if after >= len(j.entries) {
		return nil
	}
	return append([]JournalEntry(nil), j.entries[after:]...)
}

// Len is the number of entries.
func (j *Journal) Len() int {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return len(j.entries)
}

func (e JournalEntry) String() string {
	who := ""
	if e.Player != "" {
		who = " " + string(e.Player)
	}
	return fmt.Sprintf("#%d r%d %s%s %s %s", e.Seq, e.Round, e.Phase, who, e.Event, e.Detail)
}
