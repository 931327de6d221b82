// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package luks recognizes LUKS1/LUKS2 encrypted volumes.
package luks

import (
	"bytes"
	"strconv"

	"github.com/google/uuid"
	"github.com/lunixbochs/struc"
	"github.com/siderolabs/go-pointer"

	"github.com/siderolabs/go-blkid/blkid/internal/chain"
	"github.com/siderolabs/go-blkid/blkid/internal/magic"
	"github.com/siderolabs/go-blkid/blkid/internal/probe"
	"github.com/siderolabs/go-blkid/blkid/internal/utils"
)

const hdrSize = 208

// hdr covers the common prefix of the LUKS1 and LUKS2 binary headers
// (big endian). The label field is meaningful for version 2 only.
type hdr struct {
	Magic   []byte `struc:"[6]byte"`
	Version uint16 `struc:"uint16,big"`
	Pad0    []byte `struc:"[16]byte"`
	Label   []byte `struc:"[48]byte"`
	Pad1    []byte `struc:"[96]byte"`
	UUID    []byte `struc:"[40]byte"`
}

// Info is the LUKS descriptor.
var Info = &chain.Info{
	Name:  "crypto_LUKS",
	Usage: chain.UsageCrypto,
	Magics: []magic.Magic{
		{KBOff: 0, SBOff: 0, Value: []byte("LUKS\xba\xbe")},
	},
	Probe: func(pr chain.Prober, _ magic.Match) (*probe.Result, error) {
		buf, err := pr.Buffer(0, hdrSize)
		if buf == nil || err != nil {
			return nil, err
		}

		var h hdr
		if err := struc.Unpack(bytes.NewReader(buf), &h); err != nil {
			return nil, err
		}

		if h.Version != 1 && h.Version != 2 {
			return nil, nil //nolint:nilnil
		}

		res := &probe.Result{
			Version: pointer.To(strconv.Itoa(int(h.Version))),
		}

		if uuidStr := utils.CString(h.UUID); uuidStr != "" {
			if volUUID, err := uuid.Parse(uuidStr); err == nil {
				res.UUID = pointer.To(volUUID)
			}
		}

		if h.Version == 2 && h.Label[0] != 0 {
			res.Label = pointer.To(utils.CString(h.Label))
		}

		return res, nil
	},
}
