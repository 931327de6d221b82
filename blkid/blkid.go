// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package blkid implements low-level probing of block devices and disk images:
// filesystem types, RAID membership, partition tables, labels and UUIDs are
// recognized directly from on-device bytes.
//
// The probing routines are grouped into chains (superblocks, topology,
// partitions). A Prober is driven in a loop:
//
//	pr, err := blkid.NewFromPath("/dev/sda1")
//	...
//	for {
//		ok, err := pr.DoProbe()
//		if err != nil || !ok {
//			break
//		}
//
//		for _, v := range pr.Values() {
//			fmt.Printf("%s=%s\n", v.Name, v)
//		}
//	}
//
// DoSafeprobe gathers the first result of every enabled chain instead and
// reports ambivalent results (two intolerant signatures on one device).
package blkid

import (
	"errors"
	"os"

	"go.uber.org/zap"

	"github.com/siderolabs/go-blkid/blkid/internal/chain"
)

// Common errors.
var (
	// ErrAmbivalent is returned by DoSafeprobe when more than one intolerant
	// signature is detected on the device.
	ErrAmbivalent = errors.New("ambivalent probing result detected")

	// ErrNoDevice is returned when probing is attempted with no device assigned.
	ErrNoDevice = errors.New("no device assigned to the prober")
)

// Usage classes of signature descriptors, re-exported for filtering.
type Usage = chain.Usage

// Usage classes.
const (
	UsageFilesystem = chain.UsageFilesystem
	UsageRAID       = chain.UsageRAID
	UsageCrypto     = chain.UsageCrypto
	UsageOther      = chain.UsageOther
)

// Superblocks chain flags.
const (
	SublksLabel   = chain.SublksLabel
	SublksUUID    = chain.SublksUUID
	SublksType    = chain.SublksType
	SublksSectype = chain.SublksSectype
	SublksUsage   = chain.SublksUsage
	SublksVersion = chain.SublksVersion
	SublksMagic   = chain.SublksMagic
	SublksBadCsum = chain.SublksBadCsum

	SublksDefault = chain.SublksDefault
)

// Partitions chain flags.
const (
	PartsEntryDetails = chain.PartsEntryDetails
	PartsMagic        = chain.PartsMagic

	PartsDefault = chain.PartsDefault
)

// Prober probes a single device or image through the configured chains.
//
// A Prober must not be used from more than one goroutine at a time.
type Prober struct {
	logger *zap.Logger
	conf   *Config

	f *os.File

	devNo     uint64
	diskDevNo uint64
	sectorSz  uint

	// probing window
	off, size uint64

	chains [chain.NumChains]chainState
	cur    *chainState

	probFlags uint

	buffers []*bufinfo
	values  []*Value

	parent     *Prober
	diskProber *Prober

	wipeOff, wipeSize uint64
	wipeChain         *chainState

	privateFd bool
	openRW    bool
	charDev   bool
	blockDev  bool
	tinyDev   bool
	cdromDev  bool
	noScanDev bool
}

// tiny devices (floppy-sized) get special treatment in safeprobe
const tinyDevSize = 1440 * 1024

// Probing flags.
const (
	// probeFlagIgnorePT suppresses partition-table results after a RAID
	// signature won the superblocks chain (RAID1 members expose the table
	// of the array).
	probeFlagIgnorePT uint = 1 << iota
)

// Option configures a Prober.
type Option func(*Prober)

// WithLogger sets the logger for the prober.
func WithLogger(logger *zap.Logger) Option {
	return func(p *Prober) {
		p.logger = logger
	}
}

// WithConfig binds a configuration snapshot instead of reading the default
// configuration file.
func WithConfig(conf *Config) Option {
	return func(p *Prober) {
		p.conf = conf
	}
}

// WithWriteAccess makes NewFromPath open the device read-write, which is
// required for DoWipe.
func WithWriteAccess() Option {
	return func(p *Prober) {
		p.openRW = true
	}
}

// New returns a prober with no device assigned.
func New(opts ...Option) *Prober {
	p := &Prober{
		logger: zap.NewNop(),
	}

	for _, opt := range opts {
		opt(p)
	}

	if p.conf == nil {
		p.conf, _ = ReadConfig() //nolint:errcheck // built-in defaults on failure
	}

	for i := range p.chains {
		drv := chainDrivers[i]

		p.chains[i] = chainState{
			driver:  drv,
			enabled: drv.dfltEnabled(),
			flags:   drv.dfltFlags(),
			idx:     -1,
		}
	}

	if p.conf != nil && len(p.conf.ProbeOff) > 0 {
		p.filterTypes(chain.Superblocks, FilterNotIn, p.conf.ProbeOff) //nolint:errcheck // chain supports filtering
	}

	return p
}

// Close releases the buffers, the results and, if the prober owns it, the
// device file.
func (p *Prober) Close() error {
	for i := range p.chains {
		p.chains[i].driver.freeData(p, &p.chains[i])
	}

	p.resetBuffers()
	p.values = nil

	if p.diskProber != nil {
		p.diskProber.Close() //nolint:errcheck

		p.diskProber = nil
	}

	if p.privateFd && p.f != nil {
		err := p.f.Close()
		p.f = nil

		return err
	}

	return nil
}

// Reset zeroes probing results and resets the current probing position.
//
// Filters and the assigned device are kept.
func (p *Prober) Reset() {
	p.values = nil
	p.setWiper(0, 0)

	p.cur = nil

	for i := range p.chains {
		p.chains[i].idx = -1
	}
}

// Clone returns a prober sharing the device, the probing window and the
// configuration with the parent.
//
// As long as the clone's window is covered by the parent's, buffer reads are
// forwarded to the parent's cache. The clone never owns the file descriptor.
func (p *Prober) Clone() *Prober {
	clone := New(WithLogger(p.logger), WithConfig(p.conf))

	clone.f = p.f
	clone.off = p.off
	clone.size = p.size
	clone.devNo = p.devNo
	clone.diskDevNo = p.diskDevNo
	clone.sectorSz = p.sectorSz
	clone.charDev = p.charDev
	clone.blockDev = p.blockDev
	clone.tinyDev = p.tinyDev
	clone.cdromDev = p.cdromDev
	clone.noScanDev = p.noScanDev
	clone.parent = p

	return clone
}

// DevNo returns the device number, or 0 for regular files.
func (p *Prober) DevNo() uint64 {
	return p.devNo
}

// Size returns the size of the probing window in bytes.
func (p *Prober) Size() uint64 {
	return p.size
}

// Offset returns the offset of the probing window in bytes.
func (p *Prober) Offset() uint64 {
	return p.off
}

// SectorSize returns the logical sector size of the device.
func (p *Prober) SectorSize() uint {
	if p.sectorSz == 0 {
		return 512
	}

	return p.sectorSz
}

// IsTiny reports a floppy-sized device.
func (p *Prober) IsTiny() bool {
	return p.tinyDev
}

// IsCDROM reports a CD-ROM device.
func (p *Prober) IsCDROM() bool {
	return p.cdromDev
}

// IsWholeDisk reports whether the device is a whole disk rather than a
// partition.
func (p *Prober) IsWholeDisk() bool {
	if p.devNo == 0 {
		return false
	}

	return p.devNo == p.diskDevNo
}

// Logger returns the prober's logger.
func (p *Prober) Logger() *zap.Logger {
	return p.logger
}

// Config returns the bound configuration snapshot.
func (p *Prober) Config() *Config {
	return p.conf
}

var _ chain.Prober = (*Prober)(nil)
