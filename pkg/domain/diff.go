package domain

import "fmt"

// MemoryDiff represents what a transformation added to a working memory.
// It is designed to be serialized to JSON for incremental updates on clients.
type MemoryDiff struct {
	SoulName string        `json:"soul_name"`
	From     int           `json:"from"`
	Appended []MemoryEntry `json:"appended"`
}

// Diff calculates the entries appended between older and newer.
// It fails if newer is not an extension of older, which would mean that
// entries were removed or reordered.
func Diff(older, newer WorkingMemory) (*MemoryDiff, error) {
	if older.SoulName() != newer.SoulName() {
		return nil, fmt.Errorf("soul name changed from '%s' to '%s'", older.SoulName(), newer.SoulName())
	}
	if newer.Len() < older.Len() {
		return nil, fmt.Errorf("memory shrank from %d to %d entries", older.Len(), newer.Len())
	}

	oldEntries := older.Entries()
	newEntries := newer.Entries()
	for i, e := range oldEntries {
		if newEntries[i].ID() != e.ID() {
			return nil, fmt.Errorf("entry %d diverged: %s != %s", i, newEntries[i].ID(), e.ID())
		}
	}

	return &MemoryDiff{
		SoulName: newer.SoulName(),
		From:     older.Len(),
		Appended: newEntries[older.Len():],
	}, nil
}
