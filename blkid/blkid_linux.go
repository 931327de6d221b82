// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

//go:build linux

package blkid

import (
	"fmt"
	"os"
	"syscall"
	"unsafe"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/siderolabs/go-blkid/block"
)

// NewFromPath opens the device or image and returns a prober bound to it.
//
// The file is owned by the prober and closed by Close (or by the next
// SetDevice call).
func NewFromPath(path string, opts ...Option) (*Prober, error) {
	p := New(opts...)

	flags := os.O_RDONLY
	if p.openRW {
		flags = os.O_RDWR
	}

	f, err := os.OpenFile(path, flags|unix.O_CLOEXEC|unix.O_NONBLOCK, 0)
	if err != nil {
		return nil, err
	}

	if err := p.SetDevice(f, 0, 0); err != nil {
		f.Close() //nolint:errcheck

		return nil, err
	}

	p.privateFd = true

	return p, nil
}

// SetDevice assigns the device to the prober, resets the buffers and the
// current probing.
//
// Zero size means "to the end of the device/file"; the probing window must lie
// wholly within the device.
func (p *Prober) SetDevice(f *os.File, off, size uint64) error {
	p.Reset()
	p.resetBuffers()

	if p.privateFd && p.f != nil {
		p.f.Close() //nolint:errcheck
	}

	p.privateFd = false
	p.tinyDev = false
	p.cdromDev = false
	p.noScanDev = false
	p.charDev = false
	p.blockDev = false
	p.probFlags = 0
	p.f = f
	p.off = off
	p.size = 0
	p.devNo = 0
	p.diskDevNo = 0
	p.sectorSz = 0
	p.setWiper(0, 0)

	// disable read-ahead, probing is random access
	unix.Fadvise(int(f.Fd()), 0, 0, unix.FADV_RANDOM) //nolint:errcheck // best-effort

	st, err := f.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat: %w", err)
	}

	sysStat := st.Sys().(*syscall.Stat_t) //nolint:errcheck,forcetypeassert // we know it's a syscall.Stat_t

	var devSize uint64

	switch sysStat.Mode & unix.S_IFMT {
	case unix.S_IFBLK:
		p.blockDev = true
		p.devNo = sysStat.Rdev

		dev := block.NewFromFile(f)

		if devSize, err = dev.GetSize(); err != nil {
			return fmt.Errorf("failed to get block device size: %w", err)
		}

		p.sectorSz = dev.GetSectorSize()

		if p.diskDevNo, err = dev.GetWholeDiskDevNo(); err != nil {
			// sysfs may be unavailable (containers); degrade to "whole disk"
			p.diskDevNo = p.devNo
		}
	case unix.S_IFCHR:
		// UBI volumes are character devices
		p.charDev = true
		p.devNo = sysStat.Rdev
		devSize = 1
	case unix.S_IFREG:
		devSize = uint64(st.Size())
	default:
		return fmt.Errorf("unsupported file type: %s", st.Mode().Type())
	}

	p.size = size
	if p.size == 0 {
		p.size = devSize

		if off > 0 {
			if off > devSize {
				return fmt.Errorf("probing offset %d is beyond the device size %d", off, devSize)
			}

			p.size = devSize - off
		}
	}

	if p.off+p.size > devSize {
		return fmt.Errorf("probing area [%d, %d) is bigger than the device (%d bytes)", p.off, p.off+p.size, devSize)
	}

	if p.size <= tinyDevSize && !p.charDev {
		p.tinyDev = true
	}

	if p.blockDev {
		dev := block.NewFromFile(f)

		if private, err := dev.IsPrivateDeviceMapper(); err == nil && private {
			p.logger.Debug("ignoring private device-mapper device")

			p.noScanDev = true
		}

		if !p.noScanDev && !p.tinyDev && p.IsWholeDisk() && dev.IsCD() {
			p.cdromDev = true
		}
	}

	p.logger.Debug("ready for low-probing",
		zap.Uint64("offset", p.off),
		zap.Uint64("size", p.size),
	)

	return nil
}

// wholeDiskProber lazily opens a prober for the whole disk the probed
// partition belongs to. It returns nil for whole disks and regular files.
func (p *Prober) wholeDiskProber() (*Prober, error) {
	if p.devNo == 0 || p.IsWholeDisk() {
		return nil, nil
	}

	if p.parent != nil {
		return p.parent.wholeDiskProber()
	}

	if p.diskProber != nil && p.diskProber.devNo != p.diskDevNo {
		// the disk prober belongs to another disk
		p.diskProber.Close() //nolint:errcheck
		p.diskProber = nil
	}

	if p.diskProber == nil {
		path, err := block.DevPath(p.diskDevNo)
		if err != nil {
			return nil, err
		}

		dp, err := NewFromPath(path, WithLogger(p.logger), WithConfig(p.conf))
		if err != nil {
			return nil, err
		}

		p.diskProber = dp
	}

	return p.diskProber, nil
}

// partitionPosition returns the byte offset and size of the probed partition
// device within its whole disk.
func (p *Prober) partitionPosition() (start, size uint64, err error) {
	return block.NewFromFile(p.f).PartitionPosition()
}

func (p *Prober) readTopology() (*topology, error) {
	topo := &topology{}

	for _, probe := range []struct {
		dst   *uint64
		ioctl uintptr
	}{
		{&topo.logicalSectorSize, unix.BLKSSZGET},
		{&topo.physicalSectorSize, unix.BLKPBSZGET},
		{&topo.minimumIOSize, unix.BLKIOMIN},
		{&topo.optimalIOSize, unix.BLKIOOPT},
		{&topo.alignmentOffset, unix.BLKALIGNOFF},
	} {
		var val int

		if _, _, errno := unix.Syscall(unix.SYS_IOCTL, p.f.Fd(), probe.ioctl, uintptr(unsafe.Pointer(&val))); errno != 0 {
			continue
		}

		if val > 0 {
			*probe.dst = uint64(val)
		}
	}

	if topo.logicalSectorSize == 0 && topo.physicalSectorSize == 0 {
		return nil, nil //nolint:nilnil
	}

	return topo, nil
}
