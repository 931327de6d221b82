// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package magic_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/siderolabs/go-blkid/blkid/internal/magic"
)

type sliceReader []byte

func (r sliceReader) Buffer(off, length uint64) ([]byte, error) {
	if off+length > uint64(len(r)) {
		return nil, nil
	}

	return r[off : off+length], nil
}

func TestOffsets(t *testing.T) {
	// the ext superblock magic: second kilobyte, offset 0x38 within it
	m := magic.Magic{KBOff: 1, SBOff: 0x38, Value: []byte{0x53, 0xef}}

	assert.EqualValues(t, 1024, m.SlotOffset())
	assert.EqualValues(t, 1080, m.Offset())

	// the swap signature 10 bytes short of the end of a 4 KiB page: fourth
	// 1 KiB slot, 1014 bytes into it
	m = magic.Magic{KBOff: 3, SBOff: 1024 - 10, Value: []byte("SWAPSPACE2")}

	assert.EqualValues(t, 3072, m.SlotOffset())
	assert.EqualValues(t, 4086, m.Offset())

	m = magic.Magic{KBOff: 0, SBOff: 0x1fe, Value: []byte{0x55, 0xaa}}

	assert.EqualValues(t, 0, m.SlotOffset())
	assert.EqualValues(t, 510, m.Offset())
}

func TestDetect(t *testing.T) {
	dev := make(sliceReader, 8192)
	copy(dev[1080:], []byte{0x53, 0xef})

	magics := []magic.Magic{
		{KBOff: 0, SBOff: 0, Value: []byte("XFSB")},
		{KBOff: 1, SBOff: 0x38, Value: []byte{0x53, 0xef}},
	}

	match, ok, err := magic.Detect(dev, magics)
	require.NoError(t, err)
	require.True(t, ok)

	assert.EqualValues(t, 1080, match.Offset)
	assert.Equal(t, []byte{0x53, 0xef}, match.Magic.Value)
}

func TestDetectNone(t *testing.T) {
	dev := make(sliceReader, 8192)

	_, ok, err := magic.Detect(dev, []magic.Magic{
		{KBOff: 0, SBOff: 0, Value: []byte("XFSB")},
	})
	require.NoError(t, err)
	assert.False(t, ok)
}

// A descriptor with no signatures matches unconditionally; the probe callback
// does the work then.
func TestDetectNoMagics(t *testing.T) {
	dev := make(sliceReader, 8192)

	match, ok, err := magic.Detect(dev, nil)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Nil(t, match.Magic)
}

// Out-of-range slots are skipped, not errors: a signature for a larger
// device simply cannot match on a small one.
func TestDetectShortDevice(t *testing.T) {
	dev := make(sliceReader, 2048)

	_, ok, err := magic.Detect(dev, []magic.Magic{
		{KBOff: 64, SBOff: 0x40, Value: []byte("_BHRfS_M")},
	})
	require.NoError(t, err)
	assert.False(t, ok)
}
