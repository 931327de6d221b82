// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package squashfs recognizes squashfs filesystems.
package squashfs

import (
	"encoding/binary"
	"fmt"

	"github.com/siderolabs/go-pointer"

	"github.com/siderolabs/go-blkid/blkid/internal/chain"
	"github.com/siderolabs/go-blkid/blkid/internal/magic"
	"github.com/siderolabs/go-blkid/blkid/internal/probe"
)

const sbSize = 48

// Info is the squashfs descriptor (version 4, little endian).
var Info = &chain.Info{
	Name:  "squashfs",
	Usage: chain.UsageFilesystem,
	Magics: []magic.Magic{
		{KBOff: 0, SBOff: 0, Value: []byte("hsqs")},
	},
	Probe: func(pr chain.Prober, _ magic.Match) (*probe.Result, error) {
		buf, err := pr.Buffer(0, sbSize)
		if buf == nil || err != nil {
			return nil, err
		}

		verMajor := binary.LittleEndian.Uint16(buf[28:])
		verMinor := binary.LittleEndian.Uint16(buf[30:])

		if verMajor < 4 {
			return nil, nil //nolint:nilnil
		}

		return &probe.Result{
			Version: pointer.To(fmt.Sprintf("%d.%d", verMajor, verMinor)),

			BlockSize:           binary.LittleEndian.Uint32(buf[12:]),
			FilesystemBlockSize: binary.LittleEndian.Uint32(buf[12:]),
			ProbedSize:          binary.LittleEndian.Uint64(buf[40:]),
		}, nil
	},
}
