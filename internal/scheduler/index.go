package scheduler

import (
	"errors"
	"fmt"
	"sort"

	"github.com/google/btree"
)

var (
	// ErrIntervalConflict is returned when an insertion would overlap an existing entry.
	ErrIntervalConflict = errors.New("scheduler: interval conflict")
	// ErrEntryNotFound is returned when no entry matches both interval and occupant.
	ErrEntryNotFound = errors.New("scheduler: entry not found")
)

const indexDegree = 8

// Entry binds an interval to the identifier of whatever occupies it.
type Entry struct {
	Interval Interval
	Occupant string
}

// entryLess orders entries so that two entries compare equal exactly when
// their intervals overlap. Stored entries are pairwise disjoint, which keeps
// the ordering strict across the tree.
func entryLess(a, b Entry) bool {
	return !a.Interval.End.After(b.Interval.Start)
}

// OverlapIndex maps disjoint intervals to occupants. Lookups with any probe
// interval find an overlapping entry in logarithmic time.
type OverlapIndex struct {
	tree *btree.BTreeG[Entry]
}

// NewOverlapIndex returns an empty index.
func NewOverlapIndex() *OverlapIndex {
	return &OverlapIndex{tree: btree.NewG(indexDegree, entryLess)}
}

// IsFree reports whether no stored interval overlaps iv.
func (x *OverlapIndex) IsFree(iv Interval) bool {
	if x == nil || x.tree == nil {
		return true
	}
	return !x.tree.Has(Entry{Interval: iv})
}

// Conflicts returns every stored entry that overlaps iv, ascending by start.
func (x *OverlapIndex) Conflicts(iv Interval) []Entry {
	if x == nil || x.tree == nil {
		return nil
	}
	var out []Entry
	pivot := Entry{Interval: Interval{Start: iv.Start, End: iv.Start}}
	x.tree.AscendGreaterOrEqual(pivot, func(item Entry) bool {
		if !item.Interval.Start.Before(iv.End) {
			return false
		}
		if item.Interval.Overlaps(iv) {
			out = append(out, item)
		}
		return true
	})
	return out
}

// Insert stores iv for occupant. The freeness check is repeated here so a
// stale caller-side probe can never produce a double booking.
func (x *OverlapIndex) Insert(iv Interval, occupant string) error {
	if !iv.Valid() {
		return fmt.Errorf("%w: %s", ErrInvalidInterval, iv)
	}
	if existing, ok := x.tree.Get(Entry{Interval: iv}); ok {
		return fmt.Errorf("%w: %s overlaps %s held by %s", ErrIntervalConflict, iv, existing.Interval, existing.Occupant)
	}
	x.tree.ReplaceOrInsert(Entry{Interval: iv, Occupant: occupant})
	return nil
}

// Remove deletes the entry whose interval equals iv and whose occupant
// matches. An overlapping entry with different bounds or owner is left alone.
func (x *OverlapIndex) Remove(iv Interval, occupant string) error {
	existing, ok := x.tree.Get(Entry{Interval: iv})
	if !ok || !existing.Interval.Equal(iv) || existing.Occupant != occupant {
		return fmt.Errorf("%w: %s for %s", ErrEntryNotFound, iv, occupant)
	}
	x.tree.Delete(existing)
	return nil
}

// Lookup returns the entry overlapping iv, if any.
func (x *OverlapIndex) Lookup(iv Interval) (Entry, bool) {
	if x == nil || x.tree == nil {
		return Entry{}, false
	}
	return x.tree.Get(Entry{Interval: iv})
}

// Entries returns a fresh slice of every entry ascending by start.
func (x *OverlapIndex) Entries() []Entry {
	if x == nil || x.tree == nil {
		return nil
	}
	out := make([]Entry, 0, x.tree.Len())
	x.tree.Ascend(func(item Entry) bool {
		out = append(out, item)
		return true
	})
	return out
}

// IntervalsOf returns the intervals held by occupant, ascending by start.
func (x *OverlapIndex) IntervalsOf(occupant string) []Interval {
	var out []Interval
	for _, entry := range x.Entries() {
		if entry.Occupant == occupant {
			out = append(out, entry.Interval)
		}
	}
	return out
}

// Occupants returns the distinct occupants in the index, sorted.
func (x *OverlapIndex) Occupants() []string {
	seen := make(map[string]struct{})
	for _, entry := range x.Entries() {
		seen[entry.Occupant] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Len returns the number of stored entries.
func (x *OverlapIndex) Len() int {
	if x == nil || x.tree == nil {
		return 0
	}
	return x.tree.Len()
}

// Clone returns an independent copy of the index.
func (x *OverlapIndex) Clone() *OverlapIndex {
	if x == nil || x.tree == nil {
		return NewOverlapIndex()
	}
	return &OverlapIndex{tree: x.tree.Clone()}
}
