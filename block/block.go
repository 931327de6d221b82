// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package block provides access to Linux block device properties via ioctls
// and sysfs.
package block

import "os"

// DefaultBlockSize is the default block size in bytes.
const DefaultBlockSize = 512

// Device wraps blockdevice operations.
type Device struct {
	f *os.File

	devNo uint64

	ownedFile bool
}

// NewFromFile returns a new Device from the specified file.
func NewFromFile(f *os.File) *Device {
	return &Device{f: f}
}

// File returns the underlying file.
func (d *Device) File() *os.File {
	return d.f
}

// Close the device.
func (d *Device) Close() error {
	if d.ownedFile {
		return d.f.Close()
	}

	return nil
}
