// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package mount

import (
	"slices"

	"go.uber.org/zap"
)

// Table is an ordered list of filesystem entries; insertion order is
// preserved.
type Table struct {
	logger *zap.Logger

	entries []*Entry

	cache *Cache

	introComment    string
	trailingComment string

	errCallback ErrCallback

	commentsEnabled bool
}

// TableOption configures a Table.
type TableOption func(*Table)

// WithTableLogger sets the logger for the table.
func WithTableLogger(logger *zap.Logger) TableOption {
	return func(t *Table) {
		t.logger = logger
	}
}

// WithComments enables comment parsing: the intro and trailing comment blocks
// and per-entry comments are kept.
func WithComments() TableOption {
	return func(t *Table) {
		t.commentsEnabled = true
	}
}

// NewTable returns an empty table.
func NewTable(opts ...TableOption) *Table {
	t := &Table{
		logger: zap.NewNop(),
	}

	for _, opt := range opts {
		opt(t)
	}

	return t
}

// SetCache attaches a path/tag resolution cache; the cache may be shared
// between tables, synchronization is left to the caller.
func (t *Table) SetCache(cache *Cache) {
	t.cache = cache
}

// Cache returns the attached cache.
func (t *Table) Cache() *Cache {
	return t.cache
}

// Add appends the entry to the table.
func (t *Table) Add(e *Entry) {
	t.entries = append(t.entries, e)
}

// Remove drops the entry from the table.
func (t *Table) Remove(e *Entry) {
	t.entries = slices.DeleteFunc(t.entries, func(x *Entry) bool { return x == e })
}

// Entries returns the table entries in insertion order.
func (t *Table) Entries() []*Entry {
	return t.entries
}

// NumEntries returns the number of entries.
func (t *Table) NumEntries() int {
	return len(t.entries)
}

// IsEmpty reports an empty table.
func (t *Table) IsEmpty() bool {
	return len(t.entries) == 0
}

// IsMountinfo reports whether the table was built from kernel mountinfo.
func (t *Table) IsMountinfo() bool {
	return len(t.entries) > 0 && t.entries[0].IsKernel()
}

// IntroComment returns the comment block preceding the first entry.
func (t *Table) IntroComment() string {
	return t.introComment
}

// TrailingComment returns the comment block after the last entry.
func (t *Table) TrailingComment() string {
	return t.trailingComment
}

// RootFS returns the root filesystem entry of a mountinfo table: the entry
// whose parent is not a mount in the table.
func (t *Table) RootFS() (*Entry, bool) {
	for _, e := range t.entries {
		if !e.IsKernel() {
			continue
		}

		parentPresent := slices.ContainsFunc(t.entries, func(x *Entry) bool {
			return x != e && x.ID == e.ParentID
		})

		if !parentPresent {
			return e, true
		}
	}

	return nil, false
}

// NextChild returns the next entry whose parent is the given mountinfo entry.
func (t *Table) NextChild(it *Iter, parent *Entry) (*Entry, bool) {
	if parent == nil || !parent.IsKernel() {
		return nil, false
	}

	for {
		e, ok := it.Next()
		if !ok {
			return nil, false
		}

		if e != parent && e.ParentID == parent.ID {
			return e, true
		}
	}
}

// UniqFS removes duplicate entries; two entries are duplicates when cmp
// returns 0. The relative order of the surviving entries is preserved; with
// keepFirst the earlier duplicate survives, otherwise the later one.
func (t *Table) UniqFS(keepFirst bool, cmp func(a, b *Entry) int) {
	if cmp == nil {
		return
	}

	removed := make(map[*Entry]struct{})

	for i, a := range t.entries {
		if _, gone := removed[a]; gone {
			continue
		}

		for _, b := range t.entries[i+1:] {
			if _, gone := removed[b]; gone {
				continue
			}

			if cmp(a, b) == 0 {
				if keepFirst {
					removed[b] = struct{}{}
				} else {
					removed[a] = struct{}{}

					break
				}
			}
		}
	}

	if len(removed) == 0 {
		return
	}

	t.entries = slices.DeleteFunc(t.entries, func(e *Entry) bool {
		_, gone := removed[e]

		return gone
	})

	t.logger.Debug("deduplicated table", zap.Int("removed", len(removed)))
}
