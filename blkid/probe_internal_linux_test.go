// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

//go:build linux

package blkid

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/siderolabs/go-blkid/blkid/internal/chain"
)

// The iteration driver indexes the chain array with ID+1, so a chain's ID
// must equal its registry position.
func TestChainRegistryOrder(t *testing.T) {
	for i, drv := range chainDrivers {
		assert.EqualValues(t, i, drv.id(), "chain %q", drv.name())
	}

	assert.Len(t, chainDrivers, int(chain.NumChains))
}

func testImage(t *testing.T, size int64) *os.File {
	t.Helper()

	rawImage := filepath.Join(t.TempDir(), "image.raw")

	f, err := os.Create(rawImage)
	require.NoError(t, err)

	require.NoError(t, f.Truncate(size))

	t.Cleanup(func() { f.Close() }) //nolint:errcheck

	return f
}

func TestBufferCache(t *testing.T) {
	f := testImage(t, 4*1024*1024)

	_, err := f.WriteAt([]byte("signature"), 2048)
	require.NoError(t, err)

	p := New()
	require.NoError(t, p.SetDevice(f, 0, 0))

	t.Cleanup(func() { assert.NoError(t, p.Close()) })

	// zero-length request
	_, err = p.Buffer(0, 0)
	assert.Error(t, err)

	// out of the probing window
	buf, err := p.Buffer(4*1024*1024, 512)
	require.NoError(t, err)
	assert.Nil(t, buf)

	buf, err = p.Buffer(2048, 9)
	require.NoError(t, err)
	assert.Equal(t, []byte("signature"), buf)

	allocated := len(p.buffers)
	require.NotZero(t, allocated)

	// every cached range fully contains the request it served
	for _, bf := range p.buffers {
		assert.LessOrEqual(t, bf.off, uint64(2048))
		assert.GreaterOrEqual(t, bf.off+bf.length, uint64(2048+9))
	}

	// a subrange is served from the cache
	buf, err = p.Buffer(2052, 5)
	require.NoError(t, err)
	assert.Equal(t, []byte("ature"), buf)
	assert.Len(t, p.buffers, allocated)
}

func TestBufferZeroWindow(t *testing.T) {
	p := New()

	_, err := p.Buffer(0, 512)
	assert.Error(t, err)
}

func TestCloneForwardsToParent(t *testing.T) {
	f := testImage(t, 4*1024*1024)

	_, err := f.WriteAt([]byte("parent data"), 1024)
	require.NoError(t, err)

	p := New()
	require.NoError(t, p.SetDevice(f, 0, 0))

	t.Cleanup(func() { assert.NoError(t, p.Close()) })

	clone := p.Clone()

	buf, err := clone.Buffer(1024, 11)
	require.NoError(t, err)
	assert.Equal(t, []byte("parent data"), buf)

	// the clone holds no buffers of its own
	assert.Empty(t, clone.buffers)
	assert.NotEmpty(t, p.buffers)
}

func TestFilterTouchResetsPosition(t *testing.T) {
	f := testImage(t, 4*1024*1024)

	p := New()
	require.NoError(t, p.SetDevice(f, 0, 0))

	t.Cleanup(func() { assert.NoError(t, p.Close()) })

	ok, err := p.DoProbe()
	require.NoError(t, err)
	require.False(t, ok)

	// probing is exhausted now; touching the filter restarts it
	require.NoError(t, p.FilterSuperblocksType(FilterNotIn, []string{"swap"}))

	assert.Nil(t, p.cur)

	for i := range p.chains {
		assert.Equal(t, -1, p.chains[i].idx)
	}
}

func TestChainIdxBounds(t *testing.T) {
	f := testImage(t, 4*1024*1024)

	p := New()
	require.NoError(t, p.SetDevice(f, 0, 0))

	t.Cleanup(func() { assert.NoError(t, p.Close()) })

	p.EnablePartitions(true)
	p.EnableTopology(true)

	for {
		ok, err := p.DoProbe()
		require.NoError(t, err)

		for i := range p.chains {
			st := &p.chains[i]

			assert.GreaterOrEqual(t, st.idx, -1)
			assert.Less(t, st.idx, len(st.driver.infos()))
		}

		if !ok {
			break
		}
	}
}

func TestResetIdempotence(t *testing.T) {
	f := testImage(t, 4*1024*1024)

	p := New()
	require.NoError(t, p.SetDevice(f, 0, 0))

	t.Cleanup(func() { assert.NoError(t, p.Close()) })

	_, err := p.DoProbe()
	require.NoError(t, err)

	p.Reset()

	valuesAfterOne := p.values
	curAfterOne := p.cur
	idxAfterOne := make([]int, len(p.chains))

	for i := range p.chains {
		idxAfterOne[i] = p.chains[i].idx
	}

	p.Reset()

	assert.Equal(t, valuesAfterOne, p.values)
	assert.Equal(t, curAfterOne, p.cur)

	for i := range p.chains {
		assert.Equal(t, idxAfterOne[i], p.chains[i].idx)
	}
}

func TestValueNameUniqueness(t *testing.T) {
	p := New()

	p.cur = &p.chains[0]

	p.setStringValue("TYPE", "ext4")
	p.setStringValue("TYPE", "xfs")

	require.Len(t, p.values, 1)
	assert.Equal(t, "xfs", p.values[0].String())

	// string length includes the terminator, binary length does not
	p.setStringValue("LABEL", "boot")
	p.setValue("SBMAGIC", []byte{0x53, 0xef})

	label, ok := p.LookupValue("LABEL")
	require.True(t, ok)
	assert.Equal(t, 5, label.Size())

	mag, ok := p.LookupValue("SBMAGIC")
	require.True(t, ok)
	assert.Equal(t, 2, mag.Size())
}

func TestStepBackWithoutProbe(t *testing.T) {
	p := New()

	assert.Error(t, p.StepBack())
}
