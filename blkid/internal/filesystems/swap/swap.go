// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package swap recognizes Linux swap areas.
package swap

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

const (
	headerOffset = 1024
	headerSize   = 3*4 + 16 + 16
	magicLen     = 10
)

// header is the swap header version 1, located right after the bootbits page
// prefix (little endian).
type header struct {
	Version    uint32 `struc:"uint32,little"`
	LastPage   uint32 `struc:"uint32,little"`
	NrBadPages uint32 `struc:"uint32,little"`
	UUID       []byte `struc:"[16]byte"`
	Volume     []byte `struc:"[16]byte"`
}

// The signature sits 10 bytes short of the end of the first page, one
// candidate slot per supported page size.
func swapMagics(value string) []magic.Magic {
	var magics []magic.Magic

	for _, pageKiB := range []int64{4, 8, 16, 32, 64} {
		magics = append(magics, magic.Magic{
			KBOff: pageKiB - 1,
			SBOff: 1024 - magicLen,
			Value: []byte(value),
		})
	}

	return magics
}

// Info is the swap-area descriptor.
var Info = &chain.Info{
	Name:    "swap",
	Usage:   chain.UsageOther,
	MinSize: 10 * 4096,
	Magics:  append(swapMagics("SWAPSPACE2"), swapMagics("SWAP-SPACE")...),
	Probe: func(pr chain.Prober, mag magic.Match) (*probe.Result, error) {
		pageSize := mag.Offset + magicLen

		if bytes.Equal(mag.Magic.Value, []byte("SWAP-SPACE")) {
			// v0 swap area carries no metadata
			return &probe.Result{
				Version:             pointer.To("0"),
				BlockSize:           uint32(pageSize),
				FilesystemBlockSize: uint32(pageSize),
			}, nil
		}

		buf, err := pr.Buffer(headerOffset, headerSize)
		if buf == nil || err != nil {
			return nil, err
		}

		var hdr header
		if err := struc.Unpack(bytes.NewReader(buf), &hdr); err != nil {
			return nil, err
		}

		if hdr.Version != 1 {
			return nil, nil //nolint:nilnil
		}

		res := &probe.Result{
			Version:             pointer.To("1"),
			BlockSize:           uint32(pageSize),
			FilesystemBlockSize: uint32(pageSize),
			ProbedSize:          uint64(hdr.LastPage+1) * pageSize,
		}

		if swapUUID, err := uuid.FromBytes(hdr.UUID); err == nil && swapUUID != (uuid.UUID{}) {
			res.UUID = &swapUUID
		}

		if hdr.Volume[0] != 0 {
			res.Label = pointer.To(utils.CString(hdr.Volume))
		}

		return res, nil
	},
}
