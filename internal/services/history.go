package services

import (
	"sync"

	"github.com/DalaiLlaama/card/internal/models"
)

// Bounded log of agent activity, newest first
type History struct {
	mu       sync.Mutex
	entries  []models.HistoryEntry
	capacity int
}

func NewHistory(capacity int) *History {
	if capacity < 1 {
		capacity = 1
	}
	return &History{capacity: capacity, entries: make([]models.HistoryEntry, 0, capacity)}
}

// Prepends an entry, evicting the oldest when full
func (h *History) Add(text string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.entries) >= h.capacity {
		h.entries = h.entries[:h.capacity-1]
	}
	h.entries = append([]models.HistoryEntry{{Text: text}}, h.entries...)
}

func (h *History) Entries() []models.HistoryEntry {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]models.HistoryEntry{}, h.entries...)
}

func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.entries)
}
