// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package blkid

// SetDimension moves the probing window without rebinding the device; the
// buffer cache is invalidated.
//
// It is used to probe a sub-range of the device, e.g. a partition of a disk
// image.
func (p *Prober) SetDimension(off, size uint64) {
	p.off = off
	p.size = size

	p.tinyDev = p.size <= tinyDevSize && !p.charDev

	p.resetBuffers()
}

// Dimension returns the probing window.
func (p *Prober) Dimension() (off, size uint64) {
	return p.off, p.size
}
