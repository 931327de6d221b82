// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package xfs recognizes XFS filesystems.
package xfs

import (
	"encoding/binary"

	"github.com/google/uuid"
	"github.com/siderolabs/go-pointer"

	"github.com/siderolabs/go-blkid/blkid/internal/chain"
	"github.com/siderolabs/go-blkid/blkid/internal/magic"
	"github.com/siderolabs/go-blkid/blkid/internal/probe"
	"github.com/siderolabs/go-blkid/blkid/internal/utils"
)

const sbSize = 512

// superBlock provides typed access to the on-disk superblock (big endian).
type superBlock []byte

func (sb superBlock) blockSize() uint32  { return binary.BigEndian.Uint32(sb[0x4:]) }
func (sb superBlock) dBlocks() uint64    { return binary.BigEndian.Uint64(sb[0x8:]) }
func (sb superBlock) uuid() []byte       { return sb[0x20:0x30] }
func (sb superBlock) sectSize() uint16   { return binary.BigEndian.Uint16(sb[0x66:]) }
func (sb superBlock) inodeSize() uint16  { return binary.BigEndian.Uint16(sb[0x68:]) }
func (sb superBlock) fName() []byte      { return sb[0x6c:0x78] }

func (sb superBlock) valid() bool {
	if bs := sb.blockSize(); !utils.IsPowerOf2(bs) || bs < 512 || bs > 65536 {
		return false
	}

	if ss := sb.sectSize(); !utils.IsPowerOf2(ss) || ss < 512 || ss > 32768 {
		return false
	}

	if is := sb.inodeSize(); !utils.IsPowerOf2(uint32(is)) || is < 256 || is > 2048 {
		return false
	}

	return true
}

// Info is the xfs descriptor.
var Info = &chain.Info{
	Name:  "xfs",
	Usage: chain.UsageFilesystem,
	Magics: []magic.Magic{
		{KBOff: 0, SBOff: 0, Value: []byte("XFSB")},
	},
	Probe: func(pr chain.Prober, _ magic.Match) (*probe.Result, error) {
		buf, err := pr.Buffer(0, sbSize)
		if buf == nil || err != nil {
			return nil, err
		}

		sb := superBlock(buf)
		if !sb.valid() {
			return nil, nil //nolint:nilnil
		}

		fsUUID, err := uuid.FromBytes(sb.uuid())
		if err != nil {
			return nil, err
		}

		res := &probe.Result{
			UUID: &fsUUID,

			BlockSize:           uint32(sb.sectSize()),
			FilesystemBlockSize: sb.blockSize(),
			ProbedSize:          sb.dBlocks() * uint64(sb.blockSize()),
		}

		if lbl := sb.fName(); lbl[0] != 0 {
			res.Label = pointer.To(utils.CString(lbl))
		}

		return res, nil
	},
}
