// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package blkid

import (
	"fmt"
	"slices"

	"github.com/siderolabs/go-blkid/blkid/internal/chain"
)

// FilterFlag selects the filtering mode.
type FilterFlag int

// Filtering modes.
const (
	// FilterOnlyIn keeps only the named descriptors.
	FilterOnlyIn FilterFlag = iota + 1

	// FilterNotIn skips the named descriptors.
	FilterNotIn
)

// getFilter returns the chain's filter, allocating it on demand.
//
// Touching the filter always resets the probing position: the next DoProbe
// starts from scratch.
func (p *Prober) getFilter(id chain.ID, create bool) []bool {
	st := p.chainByID(id)

	st.idx = -1
	p.cur = nil

	if !st.driver.hasFilter() {
		return nil
	}

	switch {
	case st.fltr == nil && !create:
		return nil
	case st.fltr == nil:
		st.fltr = make([]bool, len(st.driver.infos()))
	default:
		clear(st.fltr)
	}

	return st.fltr
}

func (p *Prober) filterTypes(id chain.ID, flag FilterFlag, names []string) error {
	fltr := p.getFilter(id, true)
	if fltr == nil {
		return fmt.Errorf("chain %q does not support filtering", p.chainByID(id).driver.name())
	}

	for i, info := range p.chainByID(id).driver.infos() {
		has := slices.Contains(names, info.Name)

		switch flag {
		case FilterOnlyIn:
			fltr[i] = !has
		case FilterNotIn:
			fltr[i] = has
		}
	}

	return nil
}

func (p *Prober) filterUsage(id chain.ID, flag FilterFlag, usage Usage) error {
	fltr := p.getFilter(id, true)
	if fltr == nil {
		return fmt.Errorf("chain %q does not support filtering", p.chainByID(id).driver.name())
	}

	for i, info := range p.chainByID(id).driver.infos() {
		has := info.Usage&usage != 0

		switch flag {
		case FilterOnlyIn:
			fltr[i] = !has
		case FilterNotIn:
			fltr[i] = has
		}
	}

	return nil
}

func (p *Prober) invertFilter(id chain.ID) error {
	st := p.chainByID(id)

	st.idx = -1
	p.cur = nil

	if !st.driver.hasFilter() || st.fltr == nil {
		return fmt.Errorf("chain %q has no filter to invert", st.driver.name())
	}

	for i := range st.fltr {
		st.fltr[i] = !st.fltr[i]
	}

	return nil
}

func (p *Prober) resetFilter(id chain.ID) error {
	p.getFilter(id, false)

	return nil
}
