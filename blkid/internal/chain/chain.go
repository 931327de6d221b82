// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package chain defines the contract between the probing engine and the
// signature descriptors grouped into probing chains.
package chain

import (
	"go.uber.org/zap"

	"github.com/siderolabs/go-blkid/blkid/internal/magic"
	"github.com/siderolabs/go-blkid/blkid/internal/probe"
)

// ID identifies a probing chain.
//
// The integer value of an ID must equal the position of the chain in the
// prober's chain array; the iteration driver advances between chains by
// indexing with ID+1.
type ID int

// Chain identifiers, in probing order.
const (
	Superblocks ID = iota
	Topology
	Partitions

	NumChains
)

// Usage classifies a signature descriptor.
type Usage uint32

// Usage classes.
const (
	UsageFilesystem Usage = 1 << iota
	UsageRAID
	UsageCrypto
	UsageOther
)

// String returns the value of the USAGE tag for the usage class.
func (u Usage) String() string {
	switch {
	case u&UsageFilesystem != 0:
		return "filesystem"
	case u&UsageRAID != 0:
		return "raid"
	case u&UsageCrypto != 0:
		return "crypto"
	default:
		return "other"
	}
}

// Superblocks chain flags.
const (
	SublksLabel uint = 1 << iota
	SublksUUID
	SublksType
	SublksSectype
	SublksUsage
	SublksVersion
	SublksMagic
	SublksBadCsum

	SublksDefault = SublksLabel | SublksUUID | SublksType | SublksSectype | SublksUsage | SublksVersion
)

// Partitions chain flags.
const (
	PartsEntryDetails uint = 1 << iota
	PartsMagic

	PartsDefault = PartsEntryDetails
)

// Info describes one signature recognizer within a chain.
type Info struct {
	// Name is the TYPE (superblocks) or PTTYPE (partitions) value.
	Name string

	// Usage class of the format.
	Usage Usage

	// Tolerant descriptors may legitimately coexist with another signature
	// on the same device and do not count towards ambivalence.
	Tolerant bool

	// MinSize is the minimal device size for the format, in bytes.
	MinSize uint64

	// Magics lists the known signatures; empty means the probe callback
	// does all the detection itself.
	Magics []magic.Magic

	// Probe inspects the device after a signature matched. A nil result
	// with a nil error means "not this format after all".
	Probe func(Prober, magic.Match) (*probe.Result, error)
}

// Prober is the capability set the engine provides to descriptors.
type Prober interface {
	magic.Reader

	// Size of the probing window in bytes.
	Size() uint64

	// SectorSize is the logical sector size of the device.
	SectorSize() uint

	// IsTiny reports a very small device (floppy-sized); some formats are
	// not probed on tiny devices.
	IsTiny() bool

	// IsCDROM reports a CD-ROM device; RAID membership is not probed on
	// CD-ROMs as the last sectors are often unreadable.
	IsCDROM() bool

	// SetMagic reports the signature position for descriptors which do the
	// detection themselves (no Magics declared); the engine records it as
	// SBMAGIC/PTMAGIC when the chain flags ask for it.
	SetMagic(off uint64, magicBytes []byte)

	// VerifyCsum reports whether the match should be accepted. A mismatch
	// is accepted only when the chain opted into bad-checksum results, in
	// which case the SBBADCSUM value is set.
	VerifyCsum(csum, expected uint64) bool

	// SetWiper declares that the detected format zeroes the given region
	// of the device when it is created.
	SetWiper(off, size uint64)

	// UseWiper discards a previously detected signature if the given
	// region falls wholly within its declared wipe area.
	UseWiper(off, size uint64)

	// Logger for debug output.
	Logger() *zap.Logger
}
