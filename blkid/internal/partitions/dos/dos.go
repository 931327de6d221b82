// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package dos recognizes MBR (dos) partition tables.
package dos

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/siderolabs/go-pointer"

	"github.com/siderolabs/go-blkid/blkid/internal/chain"
	"github.com/siderolabs/go-blkid/blkid/internal/magic"
	"github.com/siderolabs/go-blkid/blkid/internal/probe"
)

const (
	ptOffset     = 0x1be
	entrySize    = 16
	diskIDOffset = 0x1b8
)

// Partition types introducing an extended partition; logical partitions
// within are not enumerated here.
func isExtended(typeID byte) bool {
	return typeID == 0x05 || typeID == 0x0f || typeID == 0x85
}

// Info is the MBR descriptor.
var Info = &chain.Info{
	Name:  "dos",
	Usage: chain.UsageOther,
	Magics: []magic.Magic{
		{KBOff: 0, SBOff: 0x1fe, Value: []byte{0x55, 0xaa}},
	},
	Probe: func(pr chain.Prober, _ magic.Match) (*probe.Result, error) {
		buf, err := pr.Buffer(0, 512)
		if buf == nil || err != nil {
			return nil, err
		}

		// the boot signature is shared with FAT boot sectors
		for _, fat := range [][]byte{[]byte("MSWIN"), []byte("FAT32   ")} {
			if bytes.Equal(buf[0x52:0x52+len(fat)], fat) {
				return nil, nil //nolint:nilnil
			}
		}

		for _, fat := range [][]byte{[]byte("MSDOS"), []byte("FAT16   "), []byte("FAT12   "), []byte("FAT     ")} {
			if bytes.Equal(buf[0x36:0x36+len(fat)], fat) {
				return nil, nil //nolint:nilnil
			}
		}

		// all boot-indicator bytes must be 0 or 0x80
		for i := range 4 {
			if flag := buf[ptOffset+i*entrySize]; flag != 0 && flag != 0x80 {
				return nil, nil //nolint:nilnil
			}
		}

		// a protective MBR belongs to GPT
		for i := range 4 {
			if buf[ptOffset+i*entrySize+4] == 0xee {
				return nil, nil //nolint:nilnil
			}
		}

		// an MBR found within a zeroed-on-creation area was written later
		// and wins over the earlier signature
		pr.UseWiper(ptOffset, 512-ptOffset)

		sectorSize := uint64(pr.SectorSize())

		res := &probe.Result{
			UUIDRaw: pointer.To(fmt.Sprintf("%08x", binary.LittleEndian.Uint32(buf[diskIDOffset:]))),

			BlockSize: uint32(sectorSize),
		}

		for i := range 4 {
			entry := buf[ptOffset+i*entrySize : ptOffset+(i+1)*entrySize]

			typeID := entry[4]
			start := uint64(binary.LittleEndian.Uint32(entry[8:]))
			size := uint64(binary.LittleEndian.Uint32(entry[12:]))

			if typeID == 0 || size == 0 || isExtended(typeID) {
				continue
			}

			res.Parts = append(res.Parts, probe.Partition{
				TypeID: pointer.To(typeID),

				Index: uint(i + 1),

				Offset: start * sectorSize,
				Size:   size * sectorSize,
			})
		}

		return res, nil
	},
}
