// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package blkid

import (
	"go.uber.org/zap"

	"github.com/siderolabs/go-blkid/blkid/internal/chain"
	"github.com/siderolabs/go-blkid/blkid/internal/magic"
	"github.com/siderolabs/go-blkid/blkid/internal/partitions/dos"
	"github.com/siderolabs/go-blkid/blkid/internal/partitions/gpt"
	"github.com/siderolabs/go-blkid/blkid/internal/probe"
)

// partitionInfos is the partition-table catalogue.
var partitionInfos = []*chain.Info{
	dos.Info,
	gpt.Info,
}

type partitionsDriver struct{}

func (partitionsDriver) name() string      { return "partitions" }
func (partitionsDriver) id() chain.ID      { return chain.Partitions }
func (partitionsDriver) dfltEnabled() bool { return false }
func (partitionsDriver) dfltFlags() uint   { return chain.PartsDefault }
func (partitionsDriver) hasFilter() bool   { return true }

func (partitionsDriver) infos() []*chain.Info { return partitionInfos }

func (partitionsDriver) freeData(_ *Prober, st *chainState) { st.data = nil }

func (d partitionsDriver) probe(p *Prober, st *chainState) (bool, error) {
	p.resetChainValues(st)

	if p.probFlags&probeFlagIgnorePT != 0 && p.wipeChain == nil {
		// a RAID member: the visible partition table belongs to the array.
		// With an active wipe area the RAID result itself is suspect (the
		// table may have been written over the zeroed region), so the
		// collision check below must still run.
		return false, nil
	}

	found := false

	for i := st.idx + 1; i < len(partitionInfos); i++ {
		st.idx = i
		info := partitionInfos[i]

		if st.fltr != nil && st.fltr[i] {
			continue
		}

		mag, ok, err := magic.Detect(p, info.Magics)
		if err != nil {
			return false, err
		}

		if !ok {
			continue
		}

		res, err := info.Probe(p, mag)
		if err != nil {
			p.logger.Debug("partition table probe failed",
				zap.String("name", info.Name),
				zap.Error(err),
			)

			continue
		}

		if res == nil {
			continue
		}

		d.emit(p, st, info, mag, res)

		p.logger.Debug("partition table detected",
			zap.String("name", info.Name),
			zap.Int("idx", i),
		)

		found = true

		break
	}

	if !found && st.flags&chain.PartsEntryDetails != 0 && !st.binary {
		// nothing on the device itself, but the device may be a partition:
		// then the signature catalogue applies to its whole disk
		if p.probePartitionEntry() {
			found = true
		}
	}

	return found, nil
}

func (d partitionsDriver) emit(p *Prober, st *chainState, info *chain.Info, mag magic.Match, res *probe.Result) {
	p.setStringValue("PTTYPE", info.Name)

	switch {
	case res.UUID != nil:
		p.setStringValue("PTUUID", res.UUID.String())
	case res.UUIDRaw != nil:
		p.setStringValue("PTUUID", *res.UUIDRaw)
	}

	if mag.Magic != nil {
		p.SetMagic(mag.Offset, mag.Magic.Value)
	}
}

// safeprobe for partition tables is a plain probe: the first detected table
// wins, collisions between tables are not possible as the catalogue is walked
// in order.
func (d partitionsDriver) safeprobe(p *Prober, st *chainState) (bool, error) {
	return d.probe(p, st)
}

// probePartitionEntry emits PART_ENTRY_* values describing the position of
// the probed partition device within its whole-disk partition table.
//
// Best-effort: any failure (no sysfs, no table on the disk) produces no
// values.
func (p *Prober) probePartitionEntry() bool {
	dp, err := p.wholeDiskProber()
	if err != nil || dp == nil {
		return false
	}

	start, size, err := p.partitionPosition()
	if err != nil {
		p.logger.Debug("failed to get partition position", zap.Error(err))

		return false
	}

	for _, info := range partitionInfos {
		mag, ok, err := magic.Detect(dp, info.Magics)
		if err != nil || !ok {
			continue
		}

		res, err := info.Probe(dp, mag)
		if err != nil || res == nil {
			continue
		}

		for _, part := range res.Parts {
			if part.Offset != start || part.Size != size {
				continue
			}

			p.emitPartitionEntry(info.Name, part)

			return true
		}

		break
	}

	return false
}

func (p *Prober) emitPartitionEntry(scheme string, part probe.Partition) {
	p.setStringValue("PART_ENTRY_SCHEME", scheme)

	if part.Label != nil && *part.Label != "" {
		p.setStringValue("PART_ENTRY_NAME", *part.Label)
	}

	if part.UUID != nil {
		p.setStringValue("PART_ENTRY_UUID", part.UUID.String())
	}

	switch {
	case part.TypeUUID != nil:
		p.setStringValue("PART_ENTRY_TYPE", part.TypeUUID.String())
	case part.TypeID != nil:
		p.sprintfValue("PART_ENTRY_TYPE", "0x%x", *part.TypeID)
	}

	p.sprintfValue("PART_ENTRY_NUMBER", "%d", part.Index)
	p.sprintfValue("PART_ENTRY_OFFSET", "%d", part.Offset>>9)
	p.sprintfValue("PART_ENTRY_SIZE", "%d", part.Size>>9)
}
