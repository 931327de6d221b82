// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package iso9660 recognizes ISO9660 filesystems (with Joliet extensions).
package iso9660

import (
	"bytes"
	"encoding/binary"
	"strings"

	"github.com/siderolabs/go-pointer"
	"golang.org/x/text/encoding/unicode"

	"github.com/siderolabs/go-blkid/blkid/internal/chain"
	"github.com/siderolabs/go-blkid/blkid/internal/magic"
	"github.com/siderolabs/go-blkid/blkid/internal/probe"
)

const (
	superblockOffset = 0x8000
	sectorSize       = 2048
	maxDescriptors   = 32

	vdBootRecord = 0
	vdPrimary    = 1
	vdSupplement = 2
	vdEnd        = 255
)

// Info is the iso9660 descriptor.
var Info = &chain.Info{
	Name:     "iso9660",
	Usage:    chain.UsageFilesystem,
	Tolerant: true,
	Magics: []magic.Magic{
		{KBOff: 32, SBOff: 1, Value: []byte("CD001")},
	},
	Probe: func(pr chain.Prober, _ magic.Match) (*probe.Result, error) {
		res := &probe.Result{
			BlockSize:           sectorSize,
			FilesystemBlockSize: sectorSize,
		}

		var primaryLabel []byte

		for i := range maxDescriptors {
			buf, err := pr.Buffer(superblockOffset+uint64(i)*sectorSize, sectorSize)
			if buf == nil || err != nil {
				break
			}

			if string(buf[1:6]) != "CD001" {
				break
			}

			switch buf[0] {
			case vdPrimary:
				primaryLabel = buf[40:72]

				spaceSize := binary.LittleEndian.Uint32(buf[80:])
				logicalSize := binary.LittleEndian.Uint16(buf[128:])

				res.ProbedSize = uint64(spaceSize) * uint64(logicalSize)

			case vdSupplement:
				// Joliet SVD: UCS-2 label, preferred over the primary one
				if esc := buf[88:91]; bytes.Equal(esc, []byte{0x25, 0x2f, 0x40}) ||
					bytes.Equal(esc, []byte{0x25, 0x2f, 0x43}) ||
					bytes.Equal(esc, []byte{0x25, 0x2f, 0x45}) {
					dec := unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM).NewDecoder()

					if label, err := dec.Bytes(buf[40:72]); err == nil {
						res.Label = pointer.To(strings.TrimRight(string(label), " \x00"))
					}
				}

			}

			if buf[0] == vdEnd {
				break
			}
		}

		if res.ProbedSize == 0 {
			return nil, nil //nolint:nilnil
		}

		if res.Label == nil && primaryLabel != nil {
			res.Label = pointer.To(strings.TrimRight(string(primaryLabel), " "))
		}

		return res, nil
	},
}
