// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package blkid

import (
	"github.com/siderolabs/go-blkid/blkid/internal/chain"
)

// topology describes the I/O geometry of a block device.
type topology struct {
	logicalSectorSize  uint64
	physicalSectorSize uint64
	minimumIOSize      uint64
	optimalIOSize      uint64
	alignmentOffset    uint64
}

// topologyInfos has a single pseudo-descriptor: the values come from the
// kernel, not from on-device bytes.
var topologyInfos = []*chain.Info{
	{
		Name:  "ioctl",
		Usage: chain.UsageOther,
	},
}

type topologyDriver struct{}

func (topologyDriver) name() string      { return "topology" }
func (topologyDriver) id() chain.ID      { return chain.Topology }
func (topologyDriver) dfltEnabled() bool { return false }
func (topologyDriver) dfltFlags() uint   { return 0 }
func (topologyDriver) hasFilter() bool   { return false }

func (topologyDriver) infos() []*chain.Info { return topologyInfos }

func (topologyDriver) freeData(_ *Prober, st *chainState) { st.data = nil }

func (d topologyDriver) probe(p *Prober, st *chainState) (bool, error) {
	p.resetChainValues(st)

	if st.idx+1 >= len(topologyInfos) {
		return false, nil
	}

	st.idx = 0

	if p.devNo == 0 {
		// topology makes no sense for regular files
		return false, nil
	}

	topo, err := p.readTopology()
	if err != nil || topo == nil {
		return false, nil
	}

	if topo.logicalSectorSize != 0 {
		p.sprintfValue("LOGICAL_SECTOR_SIZE", "%d", topo.logicalSectorSize)
	}

	if topo.physicalSectorSize != 0 {
		p.sprintfValue("PHYSICAL_SECTOR_SIZE", "%d", topo.physicalSectorSize)
	}

	if topo.minimumIOSize != 0 {
		p.sprintfValue("MINIMUM_IO_SIZE", "%d", topo.minimumIOSize)
	}

	if topo.optimalIOSize != 0 {
		p.sprintfValue("OPTIMAL_IO_SIZE", "%d", topo.optimalIOSize)
	}

	p.sprintfValue("ALIGNMENT_OFFSET", "%d", topo.alignmentOffset)

	return true, nil
}

func (d topologyDriver) safeprobe(p *Prober, st *chainState) (bool, error) {
	return d.probe(p, st)
}
