// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package blkid

import (
	"fmt"

	"github.com/siderolabs/go-blkid/blkid/internal/chain"
)

// chainDriver is the contract every probing chain implements.
//
// The chain set is sealed: superblocks, topology and partitions.
type chainDriver interface {
	name() string
	id() chain.ID

	dfltEnabled() bool
	dfltFlags() uint
	hasFilter() bool

	infos() []*chain.Info

	// probe advances the chain one descriptor forward from st.idx; on a
	// match it records values and returns true.
	probe(p *Prober, st *chainState) (bool, error)

	// safeprobe examines every descriptor of the chain; ErrAmbivalent is
	// returned when two or more intolerant signatures are found.
	safeprobe(p *Prober, st *chainState) (bool, error)

	// freeData releases chain-private allocations.
	freeData(p *Prober, st *chainState)
}

// chainDrivers is the sealed chain registry; a driver's position MUST equal
// its chain ID, the iteration driver advances chains by indexing with ID+1.
var chainDrivers = [chain.NumChains]chainDriver{
	superblocksDriver{},
	topologyDriver{},
	partitionsDriver{},
}

func init() {
	for i, drv := range chainDrivers {
		if drv.id() != chain.ID(i) {
			panic(fmt.Sprintf("chain driver %q registered at position %d, but has ID %d", drv.name(), i, drv.id()))
		}
	}
}

// chainState is the per-prober state of one chain.
type chainState struct {
	driver chainDriver

	enabled bool
	flags   uint

	// fltr has one entry per descriptor; true means "skipped"
	fltr []bool

	// idx is the current descriptor index; -1 is the pre-start sentinel
	idx int

	binary bool

	data any
}

func (p *Prober) chainByID(id chain.ID) *chainState {
	return &p.chains[id]
}

// EnableSuperblocks enables/disables the superblocks chain (enabled by default).
func (p *Prober) EnableSuperblocks(enable bool) {
	p.chains[chain.Superblocks].enabled = enable
}

// SetSuperblocksFlags sets the superblocks chain flags (SublksDefault by default).
func (p *Prober) SetSuperblocksFlags(flags uint) {
	p.chains[chain.Superblocks].flags = flags
}

// EnablePartitions enables/disables the partitions chain.
func (p *Prober) EnablePartitions(enable bool) {
	p.chains[chain.Partitions].enabled = enable
}

// SetPartitionsFlags sets the partitions chain flags (PartsDefault by default).
func (p *Prober) SetPartitionsFlags(flags uint) {
	p.chains[chain.Partitions].flags = flags
}

// EnableTopology enables/disables the topology chain.
func (p *Prober) EnableTopology(enable bool) {
	p.chains[chain.Topology].enabled = enable
}

// FilterSuperblocksType filters the superblocks chain by descriptor names.
func (p *Prober) FilterSuperblocksType(flag FilterFlag, names []string) error {
	return p.filterTypes(chain.Superblocks, flag, names)
}

// FilterSuperblocksUsage filters the superblocks chain by usage classes.
func (p *Prober) FilterSuperblocksUsage(flag FilterFlag, usage Usage) error {
	return p.filterUsage(chain.Superblocks, flag, usage)
}

// InvertSuperblocksFilter inverts the superblocks chain filter.
func (p *Prober) InvertSuperblocksFilter() error {
	return p.invertFilter(chain.Superblocks)
}

// ResetSuperblocksFilter resets the superblocks chain filter.
func (p *Prober) ResetSuperblocksFilter() error {
	return p.resetFilter(chain.Superblocks)
}

// FilterPartitionsType filters the partitions chain by descriptor names.
func (p *Prober) FilterPartitionsType(flag FilterFlag, names []string) error {
	return p.filterTypes(chain.Partitions, flag, names)
}

// InvertPartitionsFilter inverts the partitions chain filter.
func (p *Prober) InvertPartitionsFilter() error {
	return p.invertFilter(chain.Partitions)
}

// ResetPartitionsFilter resets the partitions chain filter.
func (p *Prober) ResetPartitionsFilter() error {
	return p.resetFilter(chain.Partitions)
}
