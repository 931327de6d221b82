// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package ext recognizes ext2/ext3/ext4 filesystems.
package ext

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
	sbOffset = 0x400
	sbSize   = 1024
)

// Feature flags.
//
//nolint:stylecheck,revive
const (
	EXT2_FEATURE_RO_COMPAT_SPARSE_SUPER = 0x0001
	EXT2_FEATURE_RO_COMPAT_LARGE_FILE   = 0x0002
	EXT2_FEATURE_RO_COMPAT_BTREE_DIR    = 0x0004
	EXT2_FEATURE_INCOMPAT_FILETYPE      = 0x0002
	EXT2_FEATURE_INCOMPAT_META_BG       = 0x0010

	EXT3_FEATURE_COMPAT_HAS_JOURNAL   = 0x0004
	EXT3_FEATURE_INCOMPAT_RECOVER     = 0x0004
	EXT3_FEATURE_INCOMPAT_JOURNAL_DEV = 0x0008

	EXT4_FEATURE_INCOMPAT_64BIT          = 0x0080
	EXT4_FEATURE_RO_COMPAT_METADATA_CSUM = 0x0400

	EXT2_FEATURE_RO_COMPAT_SUPP        = EXT2_FEATURE_RO_COMPAT_SPARSE_SUPER | EXT2_FEATURE_RO_COMPAT_LARGE_FILE | EXT2_FEATURE_RO_COMPAT_BTREE_DIR
	EXT2_FEATURE_INCOMPAT_SUPP         = EXT2_FEATURE_INCOMPAT_FILETYPE | EXT2_FEATURE_INCOMPAT_META_BG
	EXT2_FEATURE_INCOMPAT_UNSUPPORTED  = ^uint32(EXT2_FEATURE_INCOMPAT_SUPP)
	EXT2_FEATURE_RO_COMPAT_UNSUPPORTED = ^uint32(EXT2_FEATURE_RO_COMPAT_SUPP)

	EXT3_FEATURE_INCOMPAT_SUPP         = EXT2_FEATURE_INCOMPAT_FILETYPE | EXT3_FEATURE_INCOMPAT_RECOVER | EXT2_FEATURE_INCOMPAT_META_BG
	EXT3_FEATURE_INCOMPAT_UNSUPPORTED  = ^uint32(EXT3_FEATURE_INCOMPAT_SUPP)
	EXT3_FEATURE_RO_COMPAT_UNSUPPORTED = ^uint32(EXT2_FEATURE_RO_COMPAT_SUPP)
)

var extMagic = magic.Magic{
	KBOff: 1,
	SBOff: 0x38,
	Value: []byte("\123\357"),
}

// superBlock provides typed access to the on-disk superblock (little endian).
type superBlock []byte

func (sb superBlock) blocksCount() uint64   { return uint64(binary.LittleEndian.Uint32(sb[0x4:])) }
func (sb superBlock) blocksCountHi() uint64 { return uint64(binary.LittleEndian.Uint32(sb[0x150:])) }
func (sb superBlock) logBlockSize() uint32  { return binary.LittleEndian.Uint32(sb[0x18:]) }
func (sb superBlock) featureCompat() uint32 { return binary.LittleEndian.Uint32(sb[0x5c:]) }
func (sb superBlock) featureIncompat() uint32 {
	return binary.LittleEndian.Uint32(sb[0x60:])
}
func (sb superBlock) featureROCompat() uint32 {
	return binary.LittleEndian.Uint32(sb[0x64:])
}
func (sb superBlock) uuid() []byte       { return sb[0x68:0x78] }
func (sb superBlock) volumeName() []byte { return sb[0x78:0x88] }
func (sb superBlock) checksum() uint32   { return binary.LittleEndian.Uint32(sb[0x3fc:]) }

func (sb superBlock) blockSize() uint32 {
	return 1024 << sb.logBlockSize()
}

func (sb superBlock) filesystemSize() uint64 {
	blocks := sb.blocksCount()

	if sb.featureIncompat()&EXT4_FEATURE_INCOMPAT_64BIT != 0 {
		blocks |= sb.blocksCountHi() << 32
	}

	return blocks * uint64(sb.blockSize())
}

// Descriptors for the ext family, most specific first.
var (
	Ext4 = &chain.Info{
		Name:    "ext4",
		Usage:   chain.UsageFilesystem,
		Magics:  []magic.Magic{extMagic},
		MinSize: 256 * 1024,
		Probe: func(pr chain.Prober, _ magic.Match) (*probe.Result, error) {
			sb, err := readSuperblock(pr)
			if sb == nil || err != nil {
				return nil, err
			}

			if sb.featureIncompat()&EXT3_FEATURE_INCOMPAT_JOURNAL_DEV != 0 {
				return nil, nil //nolint:nilnil
			}

			// ext4 requires at least one feature ext3 does not understand
			if sb.featureROCompat()&EXT3_FEATURE_RO_COMPAT_UNSUPPORTED == 0 &&
				sb.featureIncompat()&EXT3_FEATURE_INCOMPAT_UNSUPPORTED == 0 {
				return nil, nil //nolint:nilnil
			}

			return buildResult(sb)
		},
	}

	Ext3 = &chain.Info{
		Name:    "ext3",
		Usage:   chain.UsageFilesystem,
		Magics:  []magic.Magic{extMagic},
		MinSize: 256 * 1024,
		Probe: func(pr chain.Prober, _ magic.Match) (*probe.Result, error) {
			sb, err := readSuperblock(pr)
			if sb == nil || err != nil {
				return nil, err
			}

			if sb.featureCompat()&EXT3_FEATURE_COMPAT_HAS_JOURNAL == 0 {
				return nil, nil //nolint:nilnil
			}

			if sb.featureROCompat()&EXT3_FEATURE_RO_COMPAT_UNSUPPORTED != 0 ||
				sb.featureIncompat()&EXT3_FEATURE_INCOMPAT_UNSUPPORTED != 0 {
				return nil, nil //nolint:nilnil
			}

			return buildResult(sb)
		},
	}

	Ext2 = &chain.Info{
		Name:    "ext2",
		Usage:   chain.UsageFilesystem,
		Magics:  []magic.Magic{extMagic},
		MinSize: 256 * 1024,
		Probe: func(pr chain.Prober, _ magic.Match) (*probe.Result, error) {
			sb, err := readSuperblock(pr)
			if sb == nil || err != nil {
				return nil, err
			}

			if sb.featureCompat()&EXT3_FEATURE_COMPAT_HAS_JOURNAL != 0 {
				return nil, nil //nolint:nilnil
			}

			if sb.featureROCompat()&EXT2_FEATURE_RO_COMPAT_UNSUPPORTED != 0 ||
				sb.featureIncompat()&EXT2_FEATURE_INCOMPAT_UNSUPPORTED != 0 {
				return nil, nil //nolint:nilnil
			}

			return buildResult(sb)
		},
	}
)

func readSuperblock(pr chain.Prober) (superBlock, error) {
	buf, err := pr.Buffer(sbOffset, sbSize)
	if buf == nil || err != nil {
		return nil, err
	}

	sb := superBlock(buf)

	if sb.featureROCompat()&EXT4_FEATURE_RO_COMPAT_METADATA_CSUM != 0 {
		csum := utils.CRC32c(buf[:1020])

		if !pr.VerifyCsum(uint64(csum), uint64(sb.checksum())) {
			return nil, nil
		}
	}

	return sb, nil
}

func buildResult(sb superBlock) (*probe.Result, error) {
	fsUUID, err := uuid.FromBytes(sb.uuid())
	if err != nil {
		return nil, err
	}

	res := &probe.Result{
		UUID: &fsUUID,

		BlockSize:           sb.blockSize(),
		FilesystemBlockSize: sb.blockSize(),
		ProbedSize:          sb.filesystemSize(),
	}

	if lbl := sb.volumeName(); lbl[0] != 0 {
		res.Label = pointer.To(utils.CString(lbl))
	}

	return res, nil
}
