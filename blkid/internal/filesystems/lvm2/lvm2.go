// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package lvm2 recognizes LVM2 physical volumes.
package lvm2

import (
	"encoding/binary"

	"github.com/siderolabs/go-pointer"

	"github.com/siderolabs/go-blkid/blkid/internal/chain"
	"github.com/siderolabs/go-blkid/blkid/internal/magic"
	"github.com/siderolabs/go-blkid/blkid/internal/probe"
)

const (
	labelSize = 512 + 32 + 32

	// pvcreate zeroes the first 8 KiB of the device.
	wipeSize = 8 * 1024
)

// The label may sit in any of the first four sectors; in practice it is
// written to the second one.
var lvmMagics = []magic.Magic{
	{KBOff: 0, SBOff: 0x018, Value: []byte("LVM2 001")},
	{KBOff: 0, SBOff: 0x218, Value: []byte("LVM2 001")},
	{KBOff: 1, SBOff: 0x018, Value: []byte("LVM2 001")},
	{KBOff: 1, SBOff: 0x218, Value: []byte("LVM2 001")},
}

// Info is the LVM2 PV descriptor.
var Info = &chain.Info{
	Name:   "LVM2_member",
	Usage:  chain.UsageRAID,
	Magics: lvmMagics,
	Probe: func(pr chain.Prober, mag magic.Match) (*probe.Result, error) {
		// the label header starts at the sector boundary 0x18 before the magic
		labelOff := mag.Offset - 0x18

		buf, err := pr.Buffer(labelOff, labelSize)
		if buf == nil || err != nil {
			return nil, err
		}

		if string(buf[:8]) != "LABELONE" {
			return nil, nil //nolint:nilnil
		}

		// offset of the PV header, relative to the label header
		pvOff := binary.LittleEndian.Uint32(buf[20:])
		if int(pvOff)+40 > len(buf) {
			return nil, nil //nolint:nilnil
		}

		rawUUID := string(buf[pvOff : pvOff+32])
		dashed := rawUUID[:6] + "-" + rawUUID[6:10] + "-" + rawUUID[10:14] +
			"-" + rawUUID[14:18] + "-" + rawUUID[18:22] +
			"-" + rawUUID[22:26] + "-" + rawUUID[26:]

		pvSize := binary.LittleEndian.Uint64(buf[pvOff+32:])

		pr.SetWiper(0, wipeSize)

		return &probe.Result{
			UUIDRaw:    pointer.To(dashed),
			ProbedSize: pvSize,
		}, nil
	},
}
