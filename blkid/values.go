// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package blkid

import (
	"bytes"
	"fmt"
)

// Value is a single NAME=value probing result.
//
// The backing bytes are always NUL-terminated for string safety; the recorded
// length includes the terminator for string values and excludes it for binary
// values.
type Value struct {
	// Name of the value; unique within the result list.
	Name string

	data []byte // NUL-terminated backing
	size int    // declared length

	chn *chainState
}

// Data returns the value bytes at the declared length.
func (v *Value) Data() []byte {
	return v.data[:v.size]
}

// Size returns the declared length of the value.
func (v *Value) Size() int {
	return v.size
}

// String returns the value as a string with the terminator stripped.
func (v *Value) String() string {
	return string(bytes.TrimRight(v.data, "\x00"))
}

// Values returns the probing results accumulated so far, in the order they
// were produced.
func (p *Prober) Values() []*Value {
	return p.values
}

// NumValues returns the number of probing results.
func (p *Prober) NumValues() int {
	return len(p.values)
}

// LookupValue returns the value with the given name.
func (p *Prober) LookupValue(name string) (*Value, bool) {
	for _, v := range p.values {
		if v.Name == name {
			return v, true
		}
	}

	return nil, false
}

// HasValue reports whether a value with the given name exists.
func (p *Prober) HasValue(name string) bool {
	_, ok := p.LookupValue(name)

	return ok
}

// setValue records a binary value for the current chain; the declared length
// excludes the appended terminator.
func (p *Prober) setValue(name string, data []byte) {
	p.assignValue(name, append(append([]byte(nil), data...), 0), len(data))
}

// setStringValue records a string value for the current chain; the declared
// length includes the terminator.
func (p *Prober) setStringValue(name, value string) {
	p.assignValue(name, append([]byte(value), 0), len(value)+1)
}

// sprintfValue records a formatted string value for the current chain.
func (p *Prober) sprintfValue(name, format string, args ...any) {
	p.setStringValue(name, fmt.Sprintf(format, args...))
}

func (p *Prober) assignValue(name string, data []byte, size int) {
	v := &Value{
		Name: name,

		data: data,
		size: size,

		chn: p.cur,
	}

	// at most one value per (chain, name) pair
	for i, old := range p.values {
		if old.Name == name && old.chn == v.chn {
			p.values[i] = v

			return
		}
	}

	p.values = append(p.values, v)
}

// resetChainValues drops the values produced by the given chain.
func (p *Prober) resetChainValues(st *chainState) {
	filtered := p.values[:0]

	for _, v := range p.values {
		if v.chn != st {
			filtered = append(filtered, v)
		}
	}

	p.values = filtered
}

// saveChainValues removes the given chain's values from the result list and
// returns them.
func (p *Prober) saveChainValues(st *chainState) []*Value {
	var saved []*Value

	filtered := p.values[:0]

	for _, v := range p.values {
		if v.chn == st {
			saved = append(saved, v)
		} else {
			filtered = append(filtered, v)
		}
	}

	p.values = filtered

	return saved
}

// appendValues appends previously saved values back to the result list.
func (p *Prober) appendValues(vals []*Value) {
	p.values = append(p.values, vals...)
}
