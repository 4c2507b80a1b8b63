package store

import "sensor_gateway/internal/models"

// DefaultHistoryCapacity matches what a small gateway can hold comfortably.
const DefaultHistoryCapacity = 500

// History is a fixed-capacity FIFO of readings. Once full, each Push evicts the oldest entry.
// It is not safe for concurrent use; Store guards it.
type History struct {
	items []models.Reading
	head  int // index of the oldest entry
	size  int
}

// NewHistory returns an empty ring with the given capacity (DefaultHistoryCapacity if <= 0).
func NewHistory(capacity int) *History {
	if capacity <= 0 {
		capacity = DefaultHistoryCapacity
	}
	return &History{items: make([]models.Reading, capacity)}
}

// Push appends r, evicting the oldest entry when the ring is full.
func (h *History) Push(r models.Reading) {
	capacity := len(h.items)
	if h.size < capacity {
		h.items[(h.head+h.size)%capacity] = r
		h.size++
		return
	}
	h.items[h.head] = r
	h.head = (h.head + 1) % capacity
}

// Len returns the number of stored readings.
func (h *History) Len() int { return h.size }

// Cap returns the configured capacity.
func (h *History) Cap() int { return len(h.items) }

// Each visits the readings oldest-first until fn returns false.
func (h *History) Each(fn func(models.Reading) bool) {
	capacity := len(h.items)
	for i := 0; i < h.size; i++ {
		if !fn(h.items[(h.head+i)%capacity]) {
			return
		}
	}
}

// Last returns up to n most recent readings, oldest-first.
func (h *History) Last(n int) []models.Reading {
	if n <= 0 || n > h.size {
		n = h.size
	}
	out := make([]models.Reading, 0, n)
	skip := h.size - n
	i := 0
	h.Each(func(r models.Reading) bool {
		if i >= skip {
			out = append(out, r.Clone())
		}
		i++
		return true
	})
	return out
}
