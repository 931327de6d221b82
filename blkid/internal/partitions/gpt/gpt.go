// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package gpt recognizes GPT partition tables.
package gpt

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"slices"

	"github.com/google/uuid"
	"github.com/siderolabs/go-pointer"
	"golang.org/x/text/encoding/unicode"

	"github.com/siderolabs/go-blkid/blkid/internal/chain"
	"github.com/siderolabs/go-blkid/blkid/internal/magic"
	"github.com/siderolabs/go-blkid/blkid/internal/probe"
)

const (
	headerSignature = "EFI PART"
	headerSize      = 92
	entrySize       = 128
	maxEntries      = 128

	primaryLBA = 1
)

// header provides typed access to the GPT header (little endian).
type header []byte

func (h header) signature() []byte      { return h[0:8] }
func (h header) headerSize() uint32     { return binary.LittleEndian.Uint32(h[12:]) }
func (h header) crc() uint32            { return binary.LittleEndian.Uint32(h[16:]) }
func (h header) myLBA() uint64          { return binary.LittleEndian.Uint64(h[24:]) }
func (h header) firstUsableLBA() uint64 { return binary.LittleEndian.Uint64(h[40:]) }
func (h header) lastUsableLBA() uint64  { return binary.LittleEndian.Uint64(h[48:]) }
func (h header) diskGUID() []byte       { return h[56:72] }
func (h header) entriesLBA() uint64     { return binary.LittleEndian.Uint64(h[72:]) }
func (h header) numEntries() uint32     { return binary.LittleEndian.Uint32(h[80:]) }
func (h header) entrySize() uint32      { return binary.LittleEndian.Uint32(h[84:]) }
func (h header) entriesCRC() uint32     { return binary.LittleEndian.Uint32(h[88:]) }

func (h header) calculateChecksum() uint32 {
	b := slices.Clone(h[:headerSize])

	b[16] = 0
	b[17] = 0
	b[18] = 0
	b[19] = 0

	return crc32.ChecksumIEEE(b)
}

// guidToUUID converts a mixed-endian GPT GUID to a big-endian UUID.
func guidToUUID(g []byte) []byte {
	return append(
		[]byte{
			g[3], g[2], g[1], g[0],
			g[5], g[4],
			g[7], g[6],
			g[8], g[9],
		},
		g[10:16]...,
	)
}

// Info is the GPT descriptor.
//
// The header location depends on the sector size, so detection is done in the
// probe callback; the backup header at the last LBA is used when the primary
// one is damaged.
var Info = &chain.Info{
	Name:  "gpt",
	Usage: chain.UsageOther,
	Probe: func(pr chain.Prober, _ magic.Match) (*probe.Result, error) {
		sectorSize := uint64(pr.SectorSize())
		if sectorSize == 0 || pr.Size() < sectorSize*3 {
			return nil, nil //nolint:nilnil
		}

		lastLBA := pr.Size()/sectorSize - 1

		hdr, entries, err := readHeader(pr, primaryLBA, lastLBA)
		if err != nil {
			return nil, err
		}

		if hdr == nil {
			hdr, entries, err = readHeader(pr, lastLBA, lastLBA)
			if err != nil {
				return nil, err
			}
		}

		if hdr == nil {
			return nil, nil //nolint:nilnil
		}

		pr.SetMagic(hdr.myLBA()*sectorSize, []byte(headerSignature))

		ptUUID, err := uuid.FromBytes(guidToUUID(hdr.diskGUID()))
		if err != nil {
			return nil, err
		}

		res := &probe.Result{
			UUID: &ptUUID,

			BlockSize:  uint32(sectorSize),
			ProbedSize: (hdr.lastUsableLBA() - hdr.firstUsableLBA() + 1) * sectorSize,
		}

		zeroGUID := make([]byte, 16)
		utf16 := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)

		for i, entry := range entries {
			partIdx := uint(i + 1)

			startLBA := binary.LittleEndian.Uint64(entry[32:])
			endLBA := binary.LittleEndian.Uint64(entry[40:])

			if startLBA < hdr.firstUsableLBA() || endLBA > hdr.lastUsableLBA() {
				continue
			}

			if bytes.Equal(entry[0:16], zeroGUID) {
				continue
			}

			typeUUID, err := uuid.FromBytes(guidToUUID(entry[0:16]))
			if err != nil {
				return nil, err
			}

			partUUID, err := uuid.FromBytes(guidToUUID(entry[16:32]))
			if err != nil {
				return nil, err
			}

			name, err := utf16.NewDecoder().Bytes(entry[56:entrySize])
			if err != nil {
				return nil, err
			}

			name = bytes.TrimRight(name, "\x00")

			res.Parts = append(res.Parts, probe.Partition{
				UUID:     &partUUID,
				TypeUUID: &typeUUID,
				Label:    pointer.To(string(name)),

				Index: partIdx,

				Offset: startLBA * sectorSize,
				Size:   (endLBA - startLBA + 1) * sectorSize,
			})
		}

		return res, nil
	},
}

// readHeader reads and sanity-checks a GPT header and its partition entries.
// A nil header with a nil error means the header is absent or damaged.
func readHeader(pr chain.Prober, lba, lastLBA uint64) (header, [][]byte, error) {
	sectorSize := uint64(pr.SectorSize())

	buf, err := pr.Buffer(lba*sectorSize, sectorSize)
	if buf == nil || err != nil {
		return nil, nil, err
	}

	hdr := header(buf)

	if !bytes.Equal(hdr.signature(), []byte(headerSignature)) {
		return nil, nil, nil
	}

	if hs := hdr.headerSize(); hs < headerSize || uint64(hs) > sectorSize {
		return nil, nil, nil
	}

	if !pr.VerifyCsum(uint64(hdr.crc()), uint64(hdr.calculateChecksum())) {
		return nil, nil, nil
	}

	if hdr.myLBA() != lba {
		return nil, nil, nil
	}

	if hdr.lastUsableLBA() < hdr.firstUsableLBA() ||
		hdr.firstUsableLBA() > lastLBA || hdr.lastUsableLBA() > lastLBA {
		return nil, nil, nil
	}

	// the header itself must be outside the usable range
	if hdr.firstUsableLBA() < lba && lba < hdr.lastUsableLBA() {
		return nil, nil, nil
	}

	if hdr.entrySize() != entrySize {
		return nil, nil, nil
	}

	numEntries := hdr.numEntries()
	if numEntries == 0 || numEntries > maxEntries {
		return nil, nil, nil
	}

	entriesBuf, err := pr.Buffer(hdr.entriesLBA()*sectorSize, uint64(numEntries)*entrySize)
	if entriesBuf == nil || err != nil {
		return nil, nil, err
	}

	if crc32.ChecksumIEEE(entriesBuf) != hdr.entriesCRC() {
		return nil, nil, nil
	}

	entries := make([][]byte, numEntries)
	for i := range entries {
		entries[i] = entriesBuf[i*entrySize : (i+1)*entrySize]
	}

	return hdr, entries, nil
}
