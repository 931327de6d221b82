// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

//go:build linux

package blkid

import (
	"golang.org/x/sys/unix"
)

// The begin and the end of the device are read heavily (superblocks, backup
// GPT headers, MD RAID superblocks), so ~2 MiB windows are mapped there; for
// random access in the middle of the device 1 MiB windows are used.
const (
	mmapBeginSize = 2 * 1024 * 1024
	mmapEndSize   = 2 * 1024 * 1024
	mmapMidSize   = 1024 * 1024
)

func (p *Prober) mmapBuffer(realOff, length uint64) (*bufinfo, error) {
	pageSize := uint64(unix.Getpagesize())
	alignDown := func(off uint64) uint64 { return off &^ (pageSize - 1) }

	end := p.off + p.size

	var mapOff, mapLen uint64

	switch {
	case realOff == 0 || realOff+length < mmapBeginSize:
		// begin of the device
		mapOff = 0
		mapLen = min(mmapBeginSize, end)
	case realOff > end-min(end, mmapEndSize):
		// end of the device
		mapOff = alignDown(end - min(end, mmapEndSize))
		mapLen = end - mapOff
	default:
		// middle of the device
		mapOff = alignDown(realOff)
		mapLen = max(realOff+length-mapOff, mmapMidSize)

		if mapOff+mapLen > end {
			mapLen = end - mapOff
		}
	}

	if mapOff > realOff || mapOff+mapLen < realOff+length {
		// the window policy cannot cover the request
		return nil, nil
	}

	data, err := unix.Mmap(int(p.f.Fd()), int64(mapOff), int(mapLen), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, err
	}

	return &bufinfo{
		data: data,

		off:    mapOff,
		length: mapLen,

		mmapped: true,
	}, nil
}

func (p *Prober) munmapBuffer(bf *bufinfo) error {
	return unix.Munmap(bf.data)
}
