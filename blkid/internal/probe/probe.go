// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package probe defines the result types shared by all signature descriptors.
package probe

import "github.com/google/uuid"

// Result is a successful descriptor probe.
type Result struct {
	// UUID is the filesystem/volume DCE UUID, if any.
	UUID *uuid.UUID

	// UUIDRaw is a pre-formatted identifier for formats whose IDs are not
	// DCE UUIDs (e.g. the 32-bit MBR disk ID or an LVM2 PV UUID).
	UUIDRaw *string

	Label   *string
	SecType *string
	Version *string

	BlockSize           uint32
	FilesystemBlockSize uint32
	ProbedSize          uint64

	// Parts is set by partition-table descriptors only.
	Parts []Partition
}

// Partition is a single entry of a detected partition table.
type Partition struct {
	// UUID is the unique partition GUID (GPT only).
	UUID *uuid.UUID

	// TypeUUID is the partition type GUID (GPT only).
	TypeUUID *uuid.UUID

	// TypeID is the one-byte partition type (MBR only).
	TypeID *uint8

	// Label is the partition name (GPT only).
	Label *string

	// Index is the 1-based position in the partition table.
	Index uint

	// Offset and Size are in bytes from the start of the probing window.
	Offset uint64
	Size   uint64
}
