// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package magic implements signature detection for block devices and disk images.
package magic

import "bytes"

// Magic defines a filesystem/volume manager/partition table signature.
//
// The byte offset of the signature within the probing window is
// ((KBOff + SBOff>>10) << 10) + (SBOff & 0x3ff): KBOff selects a 1 KiB slot,
// SBOff is relative to the start of that slot and may itself overflow into
// further slots (SBOff >> 10 is added to KBOff).
type Magic struct {
	// Value to search for; an empty value matches always.
	Value []byte

	// KBOff is the kibibyte offset of the signature slot.
	KBOff int64

	// SBOff is the offset relative to the start of the KBOff slot.
	SBOff int64
}

// SlotOffset returns the offset of the 1 KiB window the signature lives in.
func (m *Magic) SlotOffset() uint64 {
	return uint64(m.KBOff+m.SBOff>>10) << 10
}

// Offset returns the byte offset of the signature within the probing window.
func (m *Magic) Offset() uint64 {
	return m.SlotOffset() + uint64(m.SBOff&0x3ff)
}

// Match is a successfully detected signature.
type Match struct {
	// Magic that matched; nil when the descriptor declares no signatures.
	Magic *Magic

	// Offset of the signature within the probing window.
	Offset uint64
}

// Reader provides window-relative access to cached device bytes.
type Reader interface {
	// Buffer returns length bytes at the given offset within the probing
	// window. A nil slice with a nil error means the request cannot be
	// satisfied (out of the probing window).
	Buffer(off, length uint64) ([]byte, error)
}

const slotSize = 1024

// Detect checks the signature list against the device, one 1 KiB slot read per
// signature.
//
// It returns a Match and true if any signature is found, or if the list is
// empty (the descriptor's probe callback has to do all the work then). It
// returns false when signatures are declared but none of them matches.
func Detect(r Reader, magics []Magic) (Match, bool, error) {
	if len(magics) == 0 {
		return Match{}, true, nil
	}

	for i := range magics {
		mag := &magics[i]

		buf, err := r.Buffer(mag.SlotOffset(), slotSize)
		if err != nil {
			return Match{}, false, err
		}

		if buf == nil {
			continue
		}

		inSlot := mag.SBOff & 0x3ff
		if inSlot+int64(len(mag.Value)) > int64(len(buf)) {
			continue
		}

		if bytes.Equal(buf[inSlot:inSlot+int64(len(mag.Value))], mag.Value) {
			return Match{Magic: mag, Offset: mag.Offset()}, true, nil
		}
	}

	return Match{}, false, nil
}
