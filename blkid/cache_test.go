// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package blkid_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/siderolabs/go-blkid/blkid"
)

func TestCacheRoundTrip(t *testing.T) {
	tmpDir := t.TempDir()
	cacheFile := filepath.Join(tmpDir, "blkid.tab")

	// devices must exist for GC to keep them
	devA := filepath.Join(tmpDir, "sda1")
	devB := filepath.Join(tmpDir, "sdb1")

	require.NoError(t, os.WriteFile(devA, nil, 0o644))
	require.NoError(t, os.WriteFile(devB, nil, 0o644))

	c, err := blkid.OpenCache(cacheFile)
	require.NoError(t, err)

	assert.Empty(t, c.Entries())

	c.Update(&blkid.CacheEntry{
		Name:  devA,
		DevNo: 0x801,
		Time:  time.Unix(1700000000, 500000000),
		Pri:   10,
		Tags: []blkid.CacheTag{
			{Name: "TYPE", Value: "ext4"},
			{Name: "LABEL", Value: "root disk"},
			{Name: "UUID", Value: "8a0e6e3c-57b4-4f2f-97e1-b2fd5a4655b4"},
		},
	})

	c.Update(&blkid.CacheEntry{
		Name:  devB,
		DevNo: 0x811,
		Time:  time.Unix(1700000001, 0),
		Tags: []blkid.CacheTag{
			{Name: "TYPE", Value: "swap"},
		},
	})

	require.NoError(t, c.Save())

	reread, err := blkid.OpenCache(cacheFile)
	require.NoError(t, err)

	require.Len(t, reread.Entries(), 2)

	entry, ok := reread.Lookup(devA)
	require.True(t, ok)

	assert.EqualValues(t, 0x801, entry.DevNo)
	assert.Equal(t, int64(1700000000), entry.Time.Unix())
	assert.Equal(t, 10, entry.Pri)

	label, ok := entry.Tag("LABEL")
	require.True(t, ok)
	assert.Equal(t, "root disk", label)

	byTag, ok := reread.FindByTag("TYPE", "swap")
	require.True(t, ok)
	assert.Equal(t, devB, byTag.Name)
}

func TestCacheGC(t *testing.T) {
	tmpDir := t.TempDir()
	cacheFile := filepath.Join(tmpDir, "blkid.tab")

	devA := filepath.Join(tmpDir, "sda1")
	require.NoError(t, os.WriteFile(devA, nil, 0o644))

	c, err := blkid.OpenCache(cacheFile)
	require.NoError(t, err)

	c.Update(&blkid.CacheEntry{Name: devA, DevNo: 0x801})
	c.Update(&blkid.CacheEntry{Name: filepath.Join(tmpDir, "vanished"), DevNo: 0x802})

	require.NoError(t, c.Save())

	reread, err := blkid.OpenCache(cacheFile)
	require.NoError(t, err)
	require.Len(t, reread.Entries(), 2)

	reread.GC()

	require.Len(t, reread.Entries(), 1)
	assert.Equal(t, devA, reread.Entries()[0].Name)

	// the deletion marked the cache dirty; Save persists it
	require.NoError(t, reread.Save())

	final, err := blkid.OpenCache(cacheFile)
	require.NoError(t, err)
	assert.Len(t, final.Entries(), 1)
}

func TestCacheSkipsMalformedLines(t *testing.T) {
	cacheFile := filepath.Join(t.TempDir(), "blkid.tab")

	require.NoError(t, os.WriteFile(cacheFile, []byte(
		"/dev/sda1 DEVNO=8:1 TIME=1700000000.123 PRI=0 TYPE=ext4\n"+
			"/dev/sdb1 TYPE=ext4\n"+ // mandatory fields missing
			"garbage\n",
	), 0o644))

	c, err := blkid.OpenCache(cacheFile)
	require.NoError(t, err)

	require.Len(t, c.Entries(), 1)
	assert.Equal(t, "/dev/sda1", c.Entries()[0].Name)

	fsType, ok := c.Entries()[0].Tag("TYPE")
	require.True(t, ok)
	assert.Equal(t, "ext4", fsType)
}
