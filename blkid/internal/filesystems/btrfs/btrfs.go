// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package btrfs recognizes btrfs filesystems.
package btrfs

import (
	"encoding/binary"

	"github.com/google/uuid"
	"github.com/siderolabs/go-pointer"

	"github.com/siderolabs/go-blkid/blkid/internal/chain"
	"github.com/siderolabs/go-blkid/blkid/internal/magic"
	"github.com/siderolabs/go-blkid/blkid/internal/probe"
	"github.com/siderolabs/go-blkid/blkid/internal/utils"
)

const (
	sbOffset = 0x10000
	sbSize   = 0x1000
)

// superBlock provides typed access to the on-disk superblock (little endian),
// relative to the 64 KiB superblock offset.
type superBlock []byte

func (sb superBlock) fsid() []byte       { return sb[0x20:0x30] }
func (sb superBlock) totalBytes() uint64 { return binary.LittleEndian.Uint64(sb[0x70:]) }
func (sb superBlock) sectorSize() uint32 { return binary.LittleEndian.Uint32(sb[0x90:]) }
func (sb superBlock) nodeSize() uint32   { return binary.LittleEndian.Uint32(sb[0x94:]) }
func (sb superBlock) label() []byte      { return sb[0x12b : 0x12b+256] }

// Info is the btrfs descriptor.
var Info = &chain.Info{
	Name:    "btrfs",
	Usage:   chain.UsageFilesystem,
	MinSize: 1024 * 1024,
	Magics: []magic.Magic{
		{KBOff: 64, SBOff: 0x40, Value: []byte("_BHRfS_M")},
	},
	Probe: func(pr chain.Prober, _ magic.Match) (*probe.Result, error) {
		buf, err := pr.Buffer(sbOffset, sbSize)
		if buf == nil || err != nil {
			return nil, err
		}

		sb := superBlock(buf)

		fsUUID, err := uuid.FromBytes(sb.fsid())
		if err != nil {
			return nil, err
		}

		res := &probe.Result{
			UUID: &fsUUID,

			BlockSize:           sb.sectorSize(),
			FilesystemBlockSize: sb.nodeSize(),
			ProbedSize:          sb.totalBytes(),
		}

		if lbl := sb.label(); lbl[0] != 0 {
			res.Label = pointer.To(utils.CString(lbl))
		}

		return res, nil
	},
}
