// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

//go:build !linux

package blkid

import (
	"errors"
	"os"
)

// ErrUnsupported is returned on non-Linux platforms.
var ErrUnsupported = errors.New("blkid is not supported on this platform")

// NewFromPath is not implemented on this platform.
func NewFromPath(_ string, _ ...Option) (*Prober, error) {
	return nil, ErrUnsupported
}

// SetDevice is not implemented on this platform.
func (p *Prober) SetDevice(_ *os.File, _, _ uint64) error {
	return ErrUnsupported
}

func (p *Prober) wholeDiskProber() (*Prober, error) {
	return nil, nil
}

func (p *Prober) partitionPosition() (uint64, uint64, error) {
	return 0, 0, ErrUnsupported
}

func (p *Prober) readTopology() (*topology, error) {
	return nil, nil //nolint:nilnil
}
