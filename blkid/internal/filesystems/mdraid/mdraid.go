// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package mdraid recognizes Linux MD RAID members.
package mdraid

import (
	"bytes"

	"github.com/google/uuid"
	"github.com/lunixbochs/struc"
	"github.com/siderolabs/go-pointer"

	"github.com/siderolabs/go-blkid/blkid/internal/chain"
	"github.com/siderolabs/go-blkid/blkid/internal/magic"
	"github.com/siderolabs/go-blkid/blkid/internal/probe"
	"github.com/siderolabs/go-blkid/blkid/internal/utils"
)

// https://raid.wiki.kernel.org/index.php/RAID_superblock_formats
var mdMagic = []byte{0xfc, 0x4e, 0x2b, 0xa9} // 0xa92b4efc little endian

// sb1 is the prefix of the version-1 superblock (little endian).
type sb1 struct {
	Magic        uint32 `struc:"uint32,little"`
	MajorVersion uint32 `struc:"uint32,little"`
	FeatureMap   uint32 `struc:"uint32,little"`
	Pad0         uint32 `struc:"uint32,little"`
	SetUUID      []byte `struc:"[16]byte"`
	SetName      []byte `struc:"[32]byte"`
}

const sb1Size = 4*4 + 16 + 32

// sb0 is the prefix of the version-0.90 superblock (little endian).
type sb0 struct {
	Magic        uint32 `struc:"uint32,little"`
	MajorVersion uint32 `struc:"uint32,little"`
	MinorVersion uint32 `struc:"uint32,little"`
	PatchVersion uint32 `struc:"uint32,little"`
	GValidWords  uint32 `struc:"uint32,little"`
	SetUUID0     uint32 `struc:"uint32,little"`
	CTime        uint32 `struc:"uint32,little"`
	Level        uint32 `struc:"uint32,little"`
	Size         uint32 `struc:"uint32,little"`
	NrDisks      uint32 `struc:"uint32,little"`
	RaidDisks    uint32 `struc:"uint32,little"`
	MdMinor      uint32 `struc:"uint32,little"`
	NotPersist   uint32 `struc:"uint32,little"`
	SetUUID1     uint32 `struc:"uint32,little"`
	SetUUID2     uint32 `struc:"uint32,little"`
	SetUUID3     uint32 `struc:"uint32,little"`
}

const sb0Size = 16 * 4

// Info is the MD RAID member descriptor.
//
// The superblock location depends on the metadata version, so detection is
// done entirely in the probe callback.
var Info = &chain.Info{
	Name:    "linux_raid_member",
	Usage:   chain.UsageRAID,
	MinSize: 64 * 1024,
	Probe: func(pr chain.Prober, _ magic.Match) (*probe.Result, error) {
		if pr.IsCDROM() {
			return nil, nil //nolint:nilnil
		}

		// v1.1 at offset 0, v1.2 at 4 KiB
		for _, loc := range []struct {
			off     uint64
			version string
		}{
			{0, "1.1"},
			{4096, "1.2"},
		} {
			res, err := probeV1(pr, loc.off, loc.version)
			if res != nil || err != nil {
				return res, err
			}
		}

		// v0.90 lives in the last 64 KiB aligned block
		size := pr.Size()
		if size < 0x10000*2 {
			return nil, nil //nolint:nilnil
		}

		return probeV0(pr, (size&^uint64(0x10000-1))-0x10000)
	},
}

func probeV1(pr chain.Prober, off uint64, version string) (*probe.Result, error) {
	buf, err := pr.Buffer(off, sb1Size)
	if buf == nil || err != nil {
		return nil, err
	}

	if !bytes.Equal(buf[:4], mdMagic) {
		return nil, nil //nolint:nilnil
	}

	var sb sb1
	if err := struc.Unpack(bytes.NewReader(buf), &sb); err != nil {
		return nil, err
	}

	if sb.MajorVersion != 1 {
		return nil, nil //nolint:nilnil
	}

	setUUID, err := uuid.FromBytes(sb.SetUUID)
	if err != nil {
		return nil, err
	}

	res := &probe.Result{
		UUID:    &setUUID,
		Version: pointer.To(version),
	}

	if sb.SetName[0] != 0 {
		res.Label = pointer.To(utils.CString(sb.SetName))
	}

	return res, nil
}

func probeV0(pr chain.Prober, off uint64) (*probe.Result, error) {
	buf, err := pr.Buffer(off, sb0Size)
	if buf == nil || err != nil {
		return nil, err
	}

	if !bytes.Equal(buf[:4], mdMagic) {
		return nil, nil //nolint:nilnil
	}

	var sb sb0
	if err := struc.Unpack(bytes.NewReader(buf), &sb); err != nil {
		return nil, err
	}

	if sb.MajorVersion != 0 {
		return nil, nil //nolint:nilnil
	}

	raw := make([]byte, 0, 16)
	for _, w := range []uint32{sb.SetUUID0, sb.SetUUID1, sb.SetUUID2, sb.SetUUID3} {
		raw = append(raw, byte(w>>24), byte(w>>16), byte(w>>8), byte(w))
	}

	setUUID, err := uuid.FromBytes(raw)
	if err != nil {
		return nil, err
	}

	return &probe.Result{
		UUID:    &setUUID,
		Version: pointer.To("0.90"),
	}, nil
}
