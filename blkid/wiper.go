// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package blkid

import (
	"go.uber.org/zap"

	"github.com/siderolabs/go-blkid/blkid/internal/chain"
)

// Some mkfs-like tools zero a leading part of the device when they create
// their format: LVM wipes the first 8 KiB, mkswap the first page. When a later
// signature is found inside such an area, it must have been written after the
// earlier format, and the earlier result is discarded. A single remembered
// area suffices, as at most one signature is expected per device.

// SetMagic records the signature position and bytes as SBMAGIC/PTMAGIC values
// when the chain flags ask for them.
func (p *Prober) SetMagic(off uint64, magicBytes []byte) {
	chn := p.cur
	if chn == nil || len(magicBytes) == 0 || chn.binary {
		return
	}

	switch chn.driver.id() {
	case chain.Superblocks:
		if chn.flags&chain.SublksMagic != 0 {
			p.setValue("SBMAGIC", magicBytes)
			p.sprintfValue("SBMAGIC_OFFSET", "%d", off)
		}
	case chain.Partitions:
		if chn.flags&chain.PartsMagic != 0 {
			p.setValue("PTMAGIC", magicBytes)
			p.sprintfValue("PTMAGIC_OFFSET", "%d", off)
		}
	}
}

// VerifyCsum reports whether a match with the given checksum should be
// accepted; a bad checksum is accepted only when the superblocks chain opted
// in via SublksBadCsum, and the SBBADCSUM value is set then.
func (p *Prober) VerifyCsum(csum, expected uint64) bool {
	if csum == expected {
		return true
	}

	chn := p.cur

	p.logger.Debug("incorrect checksum",
		zap.Uint64("got", csum),
		zap.Uint64("expected", expected),
	)

	if chn != nil && chn.driver.id() == chain.Superblocks && chn.flags&chain.SublksBadCsum != 0 {
		p.setStringValue("SBBADCSUM", "1")

		return true
	}

	return false
}

// SetWiper declares that the format detected by the current descriptor zeroes
// the given region of the device on creation.
func (p *Prober) SetWiper(off, size uint64) {
	chn := p.cur
	if chn == nil || chn.idx < 0 || chn.idx >= len(chn.driver.infos()) {
		return
	}

	p.wipeOff = off
	p.wipeSize = size
	p.wipeChain = chn

	p.logger.Debug("wiper set",
		zap.String("chain", chn.driver.name()),
		zap.String("name", chn.driver.infos()[chn.idx].Name),
		zap.Uint64("off", off),
		zap.Uint64("size", size),
	)
}

// setWiper resets (size == 0) or records a wipe area without the descriptor
// sanity checks.
func (p *Prober) setWiper(off, size uint64) {
	if size == 0 {
		p.wipeOff, p.wipeSize, p.wipeChain = 0, 0, nil

		return
	}

	p.wipeOff = off
	p.wipeSize = size
	p.wipeChain = p.cur
}

// isWiped reports whether the region lies wholly within the declared wipe
// area.
func (p *Prober) isWiped(off, size uint64) (*chainState, bool) {
	if size == 0 || p.wipeChain == nil {
		return nil, false
	}

	if p.wipeOff <= off && off+size <= p.wipeOff+p.wipeSize {
		return p.wipeChain, true
	}

	return nil, false
}

// UseWiper discards the earlier chain's result if the given region falls
// wholly within its declared wipe area (e.g. an MBR found inside a zeroed LVM
// PV header was written after the PV and wins).
func (p *Prober) UseWiper(off, size uint64) {
	if chn, ok := p.isWiped(off, size); ok {
		p.logger.Debug("previously wiped area modified, ignoring the earlier result",
			zap.String("chain", chn.driver.name()),
		)

		p.setWiper(0, 0)
		p.resetChainValues(chn)
	}
}
