// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package vfat recognizes FAT12/FAT16/FAT32 filesystems.
package vfat

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/siderolabs/go-pointer"

	"github.com/siderolabs/go-blkid/blkid/internal/chain"
	"github.com/siderolabs/go-blkid/blkid/internal/magic"
	"github.com/siderolabs/go-blkid/blkid/internal/probe"
	"github.com/siderolabs/go-blkid/blkid/internal/utils"
)

const sbSize = 512

// bootSector provides typed access to the FAT boot sector (little endian,
// mostly unaligned fields).
type bootSector []byte

func (bs bootSector) sectorSize() uint16  { return binary.LittleEndian.Uint16(bs[0x0b:]) }
func (bs bootSector) clusterSize() uint8  { return bs[0x0d] }
func (bs bootSector) reserved() uint16    { return binary.LittleEndian.Uint16(bs[0x0e:]) }
func (bs bootSector) fats() uint8         { return bs[0x10] }
func (bs bootSector) sectors() uint16     { return binary.LittleEndian.Uint16(bs[0x13:]) }
func (bs bootSector) media() uint8        { return bs[0x15] }
func (bs bootSector) fatLength() uint16   { return binary.LittleEndian.Uint16(bs[0x16:]) }
func (bs bootSector) totalSect() uint32   { return binary.LittleEndian.Uint32(bs[0x20:]) }
func (bs bootSector) fat32Length() uint32 { return binary.LittleEndian.Uint32(bs[0x24:]) }
func (bs bootSector) serno16() []byte     { return bs[0x27:0x2b] }
func (bs bootSector) label16() []byte     { return bs[0x2b:0x36] }
func (bs bootSector) serno32() []byte     { return bs[0x43:0x47] }
func (bs bootSector) label32() []byte     { return bs[0x47:0x52] }

func (bs bootSector) valid() bool {
	if bs.fats() == 0 {
		return false
	}

	if bs.reserved() == 0 {
		return false
	}

	if !(0xf8 <= bs.media() || bs.media() == 0xf0) {
		return false
	}

	if !utils.IsPowerOf2(bs.clusterSize()) {
		return false
	}

	if !utils.IsPowerOf2(bs.sectorSize()) {
		return false
	}

	if bs.sectorSize() < 512 || bs.sectorSize() > 4096 {
		return false
	}

	return true
}

// Info is the vfat descriptor.
var Info = &chain.Info{
	Name:  "vfat",
	Usage: chain.UsageFilesystem,
	Magics: []magic.Magic{
		{KBOff: 0, SBOff: 0x52, Value: []byte("MSWIN")},
		{KBOff: 0, SBOff: 0x52, Value: []byte("FAT32   ")},
		{KBOff: 0, SBOff: 0x36, Value: []byte("MSDOS")},
		{KBOff: 0, SBOff: 0x36, Value: []byte("FAT16   ")},
		{KBOff: 0, SBOff: 0x36, Value: []byte("FAT12   ")},
		{KBOff: 0, SBOff: 0x36, Value: []byte("FAT     ")},
	},
	Probe: func(pr chain.Prober, _ magic.Match) (*probe.Result, error) {
		buf, err := pr.Buffer(0, sbSize)
		if buf == nil || err != nil {
			return nil, err
		}

		bs := bootSector(buf)
		if !bs.valid() {
			return nil, nil //nolint:nilnil
		}

		sectorCount := uint32(bs.sectors())
		if sectorCount == 0 {
			sectorCount = bs.totalSect()
		}

		sectorSize := uint32(bs.sectorSize())

		res := &probe.Result{
			BlockSize:           sectorSize,
			FilesystemBlockSize: uint32(bs.clusterSize()) * sectorSize,
			ProbedSize:          uint64(sectorCount) * uint64(sectorSize),
		}

		isFAT32 := bs.fatLength() == 0 && bs.fat32Length() > 0

		var serno, label []byte

		if isFAT32 {
			res.Version = pointer.To("FAT32")
			serno, label = bs.serno32(), bs.label32()
		} else {
			res.SecType = pointer.To("msdos")
			serno, label = bs.serno16(), bs.label16()
		}

		res.UUIDRaw = pointer.To(fmt.Sprintf("%02X%02X-%02X%02X", serno[3], serno[2], serno[1], serno[0]))

		if lbl := strings.TrimRight(string(label), " "); lbl != "" && lbl != "NO NAME" {
			res.Label = pointer.To(lbl)
		}

		return res, nil
	},
}
