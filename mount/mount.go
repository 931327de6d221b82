// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package mount models mount tables (fstab, mtab, /proc/self/mountinfo) as
// ordered lists of filesystem entries, and implements the lookup engine to
// translate between device identifiers, mount points and tagged references
// (LABEL=, UUID=).
package mount

// Direction selects the iteration order over a table.
type Direction int

// Iteration directions.
//
// For mountinfo tables backward iteration yields most-recently-mounted first,
// which is the usual correct answer for "where is X mounted now?".
const (
	IterForward Direction = iota
	IterBackward
)

// Iter is an iterator over table entries.
type Iter struct {
	table     *Table
	direction Direction
	pos       int
}

// NewIter returns an iterator over the table in the given direction.
func (t *Table) NewIter(direction Direction) *Iter {
	it := &Iter{
		table:     t,
		direction: direction,
	}

	it.Reset()

	return it
}

// Reset rewinds the iterator.
func (it *Iter) Reset() {
	if it.direction == IterForward {
		it.pos = 0
	} else {
		it.pos = len(it.table.entries) - 1
	}
}

// Next returns the next entry, or false when the iteration is done.
func (it *Iter) Next() (*Entry, bool) {
	if it.pos < 0 || it.pos >= len(it.table.entries) {
		return nil, false
	}

	e := it.table.entries[it.pos]

	if it.direction == IterForward {
		it.pos++
	} else {
		it.pos--
	}

	return e, true
}
