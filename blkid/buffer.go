// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package blkid

import (
	"fmt"

	"go.uber.org/zap"
)

// bufinfo is a cached byte range of the device; off and len are absolute
// device offsets. Ranges are never split or merged.
type bufinfo struct {
	data []byte

	off, length uint64

	mmapped bool
}

// Buffer returns length bytes at the given offset within the probing window.
//
// The request is satisfied from the first cached range that fully contains it;
// on a miss a new range is read (or memory-mapped) from the device. A nil
// slice with a nil error means the request escapes the probing window.
//
// The returned slice is read-only and valid until the cache is reset.
func (p *Prober) Buffer(off, length uint64) ([]byte, error) {
	if p.size == 0 || length == 0 {
		return nil, fmt.Errorf("invalid buffer request: probing window %d bytes, requested %d bytes", p.size, length)
	}

	realOff := p.off + off

	if p.off+p.size < realOff+length {
		// request out of the probing window
		return nil, nil
	}

	if p.parent != nil &&
		p.parent.devNo == p.devNo &&
		p.parent.off <= p.off &&
		p.parent.off+p.parent.size >= p.off+p.size {
		// a clone pointing into the parent's window: use the parent's cache;
		// both offsets are from the beginning of the device
		return p.parent.Buffer(p.off+off-p.parent.off, length)
	}

	for _, bf := range p.buffers {
		if realOff >= bf.off && realOff+length <= bf.off+bf.length {
			return bf.data[realOff-bf.off : realOff-bf.off+length], nil
		}
	}

	bf, err := p.allocBuffer(realOff, length)
	if err != nil {
		return nil, err
	}

	p.buffers = append(p.buffers, bf)

	return bf.data[realOff-bf.off : realOff-bf.off+length], nil
}

func (p *Prober) allocBuffer(realOff, length uint64) (*bufinfo, error) {
	if p.f == nil {
		return nil, ErrNoDevice
	}

	if !p.charDev {
		if bf, err := p.mmapBuffer(realOff, length); err == nil && bf != nil {
			return bf, nil
		}

		// fall through to plain reads when mmap is unavailable
	}

	return p.readBuffer(realOff, length)
}

func (p *Prober) readBuffer(realOff, length uint64) (*bufinfo, error) {
	bf := &bufinfo{
		data: make([]byte, length),

		off:    realOff,
		length: length,
	}

	if _, err := p.f.ReadAt(bf.data, int64(realOff)); err != nil {
		return nil, fmt.Errorf("error reading %d bytes at offset %d: %w", length, realOff, err)
	}

	return bf, nil
}

// resetBuffers drops the whole cache, unmapping memory-mapped ranges.
func (p *Prober) resetBuffers() {
	for _, bf := range p.buffers {
		if bf.mmapped {
			if err := p.munmapBuffer(bf); err != nil {
				p.logger.Debug("failed to unmap buffer", zap.Error(err))
			}
		}
	}

	p.buffers = nil
}
