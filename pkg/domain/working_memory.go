package domain

import (
	"encoding/json"
	"fmt"
)

// link is one cell of the persistent entry list. Cells are never modified
// after creation, so any number of WorkingMemory values can share a prefix.
type link struct {
	entry MemoryEntry
	prev  *link
}

// WorkingMemory is the immutable, append-only conversation log of a soul.
//
// The zero value is an empty memory without a soul name. Every transformation
// returns a new value; the receiver is never modified.
type WorkingMemory struct {
	soulName string
	tail     *link
	size     int
}

// NewWorkingMemory creates a memory bound to soulName, seeded with entries.
func NewWorkingMemory(soulName string, entries ...MemoryEntry) WorkingMemory {
	return WorkingMemory{soulName: soulName}.WithMemory(entries...)
}

// SoulName returns the stable identity set at construction.
func (wm WorkingMemory) SoulName() string {
	return wm.soulName
}

// Len returns the number of entries.
func (wm WorkingMemory) Len() int {
	return wm.size
}

// WithMemory returns a new WorkingMemory with entries appended in order.
// The soul name is carried forward unchanged. Entries without an ID receive
// one derived from their content and position.
func (wm WorkingMemory) WithMemory(entries ...MemoryEntry) WorkingMemory {
	next := wm
	for _, e := range entries {
		if e.id == "" {
			prevID := ""
			if next.tail != nil {
				prevID = next.tail.entry.id
			}
			e.id = e.deriveID(prevID)
		}
		next.tail = &link{entry: e, prev: next.tail}
		next.size++
	}
	return next
}

// Entries returns the entries oldest first. The slice is freshly allocated.
func (wm WorkingMemory) Entries() []MemoryEntry {
	out := make([]MemoryEntry, wm.size)
	i := wm.size - 1
	for l := wm.tail; l != nil; l = l.prev {
		out[i] = l.entry
		i--
	}
	return out
}

// At returns the entry at index i (oldest is 0). Negative indices count from the end.
func (wm WorkingMemory) At(i int) (MemoryEntry, bool) {
	if i < 0 {
		i += wm.size
	}
	if i < 0 || i >= wm.size {
		return MemoryEntry{}, false
	}
	steps := wm.size - 1 - i
	l := wm.tail
	for ; steps > 0; steps-- {
		l = l.prev
	}
	return l.entry, true
}

// Last returns the most recent entry.
func (wm WorkingMemory) Last() (MemoryEntry, bool) {
	if wm.tail == nil {
		return MemoryEntry{}, false
	}
	return wm.tail.entry, true
}

// Recent returns at most n of the latest entries, oldest first.
func (wm WorkingMemory) Recent(n int) []MemoryEntry {
	if n <= 0 {
		return []MemoryEntry{}
	}
	if n > wm.size {
		n = wm.size
	}
	out := make([]MemoryEntry, n)
	l := wm.tail
	for i := n - 1; i >= 0; i-- {
		out[i] = l.entry
		l = l.prev
	}
	return out
}

// Slice returns entries in [start, end). Negative bounds count from the end
// and out-of-range bounds are clamped.
func (wm WorkingMemory) Slice(start, end int) []MemoryEntry {
	clamp := func(i int) int {
		if i < 0 {
			i += wm.size
		}
		return max(0, min(i, wm.size))
	}
	start, end = clamp(start), clamp(end)
	if start >= end {
		return []MemoryEntry{}
	}
	return wm.Entries()[start:end:end]
}

// Filter returns the entries matching keep, oldest first.
func (wm WorkingMemory) Filter(keep func(MemoryEntry) bool) []MemoryEntry {
	out := []MemoryEntry{}
	for _, e := range wm.Entries() {
		if keep(e) {
			out = append(out, e)
		}
	}
	return out
}

// Region returns the entries placed in the named region.
func (wm WorkingMemory) Region(name string) []MemoryEntry {
	return wm.Filter(func(e MemoryEntry) bool { return e.Region() == name })
}

// Find returns the most recent entry matching match.
func (wm WorkingMemory) Find(match func(MemoryEntry) bool) (MemoryEntry, bool) {
	for l := wm.tail; l != nil; l = l.prev {
		if match(l.entry) {
			return l.entry, true
		}
	}
	return MemoryEntry{}, false
}

type workingMemoryJSON struct {
	SoulName string        `json:"soul_name"`
	Entries  []MemoryEntry `json:"entries"`
}

// MarshalJSON encodes the memory for transcript storage.
func (wm WorkingMemory) MarshalJSON() ([]byte, error) {
	return json.Marshal(workingMemoryJSON{
		SoulName: wm.soulName,
		Entries:  wm.Entries(),
	})
}

// UnmarshalJSON rebuilds a memory written by MarshalJSON.
func (wm *WorkingMemory) UnmarshalJSON(data []byte) error {
	var wire workingMemoryJSON
	if err := json.Unmarshal(data, &wire); err != nil {
		return fmt.Errorf("failed to decode working memory: %w", err)
	}
	*wm = NewWorkingMemory(wire.SoulName, wire.Entries...)
	return nil
}
