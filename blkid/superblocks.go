// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package blkid

import (
	"go.uber.org/zap"

	"github.com/siderolabs/go-blkid/blkid/internal/chain"
	"github.com/siderolabs/go-blkid/blkid/internal/filesystems/btrfs"
	"github.com/siderolabs/go-blkid/blkid/internal/filesystems/ext"
	"github.com/siderolabs/go-blkid/blkid/internal/filesystems/iso9660"
	"github.com/siderolabs/go-blkid/blkid/internal/filesystems/luks"
	"github.com/siderolabs/go-blkid/blkid/internal/filesystems/lvm2"
	"github.com/siderolabs/go-blkid/blkid/internal/filesystems/mdraid"
	"github.com/siderolabs/go-blkid/blkid/internal/filesystems/squashfs"
	"github.com/siderolabs/go-blkid/blkid/internal/filesystems/swap"
	"github.com/siderolabs/go-blkid/blkid/internal/filesystems/vfat"
	"github.com/siderolabs/go-blkid/blkid/internal/filesystems/xfs"
	"github.com/siderolabs/go-blkid/blkid/internal/magic"
	"github.com/siderolabs/go-blkid/blkid/internal/probe"
)

// superblockInfos is the superblocks signature catalogue; RAID and crypto
// descriptors come first, the safeprobe collision policy depends on it.
var superblockInfos = []*chain.Info{
	mdraid.Info,
	lvm2.Info,
	luks.Info,
	vfat.Info,
	ext.Ext4,
	ext.Ext3,
	ext.Ext2,
	xfs.Info,
	btrfs.Info,
	iso9660.Info,
	squashfs.Info,
	swap.Info,
}

type superblocksDriver struct{}

func (superblocksDriver) name() string      { return "superblocks" }
func (superblocksDriver) id() chain.ID      { return chain.Superblocks }
func (superblocksDriver) dfltEnabled() bool { return true }
func (superblocksDriver) dfltFlags() uint   { return chain.SublksDefault }
func (superblocksDriver) hasFilter() bool   { return true }

func (superblocksDriver) infos() []*chain.Info { return superblockInfos }

func (superblocksDriver) freeData(_ *Prober, st *chainState) { st.data = nil }

func (d superblocksDriver) probe(p *Prober, st *chainState) (bool, error) {
	// the previous result of this chain is always zeroized
	p.resetChainValues(st)

	if p.size == 0 || (p.size <= 1024 && !p.charDev) {
		// nothing to do on an empty area or one of at most 1 KiB
		return false, nil
	}

	for i := st.idx + 1; i < len(superblockInfos); i++ {
		st.idx = i
		info := superblockInfos[i]

		if st.fltr != nil && st.fltr[i] {
			continue
		}

		if info.MinSize > 0 && info.MinSize > p.size {
			continue
		}

		if info.Usage&chain.UsageRAID != 0 && p.cdromDev {
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
			p.logger.Debug("superblock probe failed",
				zap.String("name", info.Name),
				zap.Error(err),
			)

			continue
		}

		if res == nil {
			continue
		}

		d.emit(p, st, info, mag, res)

		p.logger.Debug("superblock detected",
			zap.String("name", info.Name),
			zap.Int("idx", i),
		)

		return true, nil
	}

	return false, nil
}

func (superblocksDriver) emit(p *Prober, st *chainState, info *chain.Info, mag magic.Match, res *probe.Result) {
	if st.flags&chain.SublksLabel != 0 && res.Label != nil {
		p.setStringValue("LABEL", *res.Label)
	}

	if st.flags&chain.SublksUUID != 0 {
		switch {
		case res.UUID != nil:
			p.setStringValue("UUID", res.UUID.String())
		case res.UUIDRaw != nil:
			p.setStringValue("UUID", *res.UUIDRaw)
		}
	}

	if st.flags&chain.SublksSectype != 0 && res.SecType != nil {
		p.setStringValue("SEC_TYPE", *res.SecType)
	}

	if st.flags&chain.SublksVersion != 0 && res.Version != nil {
		p.setStringValue("VERSION", *res.Version)
	}

	if st.flags&chain.SublksType != 0 {
		p.setStringValue("TYPE", info.Name)
	}

	if st.flags&chain.SublksUsage != 0 {
		p.setStringValue("USAGE", info.Usage.String())
	}

	if mag.Magic != nil {
		p.SetMagic(mag.Offset, mag.Magic.Value)
	}
}

// safeprobe walks the whole chain and keeps the first result; additional
// intolerant matches make the result ambivalent. RAID and crypto signatures
// win immediately: filesystem leftovers are common on their members.
func (d superblocksDriver) safeprobe(p *Prober, st *chainState) (bool, error) {
	var (
		saved    []*Value
		savedIdx = -1
	)

	count, intol := 0, 0

	for {
		ok, err := d.probe(p, st)
		if err != nil {
			return false, err
		}

		if !ok {
			break
		}

		if p.tinyDev && count == 0 {
			// floppy or so: return the first result only
			return true, nil
		}

		count++

		info := superblockInfos[st.idx]

		if !info.Tolerant {
			intol++
		}

		if info.Usage&(chain.UsageRAID|chain.UsageCrypto) != 0 {
			break
		}

		if count == 1 {
			savedIdx = st.idx
			saved = p.saveChainValues(st)
		}
	}

	if count > 1 && intol > 1 {
		p.logger.Debug("ambivalent superblocks result", zap.Int("count", count))

		p.resetChainValues(st)

		return false, ErrAmbivalent
	}

	if count == 0 {
		return false, nil
	}

	if savedIdx != -1 {
		// restore the first result
		p.resetChainValues(st)
		p.appendValues(saved)

		st.idx = savedIdx
	}

	if st.idx >= 0 && superblockInfos[st.idx].Usage&chain.UsageRAID != 0 {
		// a RAID member may expose the partition table of the whole array;
		// such tables must be ignored
		p.probFlags |= probeFlagIgnorePT
	}

	return true, nil
}
