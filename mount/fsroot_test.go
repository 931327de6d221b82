// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package mount_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/siderolabs/go-blkid/mount"
)

func mountinfoTable(t *testing.T, mi string) *mount.Table {
	t.Helper()

	tb := mount.NewTable(mount.WithTableLogger(zaptest.NewLogger(t)))
	require.NoError(t, tb.ParseMountinfo(strings.NewReader(mi), "mountinfo"))

	return tb
}

func fstabEntry(t *testing.T, line string) *mount.Entry {
	t.Helper()

	tb := mount.NewTable()
	require.NoError(t, tb.ParseFstab(strings.NewReader(line), "fstab"))
	require.Equal(t, 1, tb.NumEntries())

	return tb.Entries()[0]
}

func TestGetFsRootBind(t *testing.T) {
	tb := mountinfoTable(t,
		"20 17 8:1 / /mnt/data rw - ext4 /dev/sda1 rw\n")

	e := fstabEntry(t, "/mnt/data/dir /dst none bind 0 0")

	srcFs, fsroot := tb.GetFsRoot(e, true)

	require.NotNil(t, srcFs)
	assert.Equal(t, "/dev/sda1", srcFs.SrcPath())
	assert.Equal(t, "/dir", fsroot)
}

func TestGetFsRootBindNested(t *testing.T) {
	// the bind source resides on a mount which itself has a non-root
	// fs-root; the final root composes both
	tb := mountinfoTable(t,
		"20 17 8:1 /anydir /mnt/test rw - ext4 /dev/sdc rw\n")

	e := fstabEntry(t, "/mnt/test/foo /mnt/test2 none bind 0 0")

	srcFs, fsroot := tb.GetFsRoot(e, true)

	require.NotNil(t, srcFs)
	assert.Equal(t, "/anydir/foo", fsroot)
}

func TestGetFsRootBtrfsSubvol(t *testing.T) {
	tb := mountinfoTable(t,
		"30 17 8:3 /subv /mnt rw - btrfs /dev/sda3 rw,subvolid=256,subvol=/subv\n")

	e := fstabEntry(t, "/dev/sda3 /mnt btrfs subvolid=256 0 0")

	srcFs, fsroot := tb.GetFsRoot(e, false)

	assert.Nil(t, srcFs)
	assert.Equal(t, "/subv", fsroot)
}

func TestGetFsRootPlain(t *testing.T) {
	tb := mountinfoTable(t,
		"20 17 8:1 / /mnt rw - ext4 /dev/sda1 rw\n")

	e := fstabEntry(t, "/dev/sda9 /data ext4 defaults 0 0")

	srcFs, fsroot := tb.GetFsRoot(e, false)

	assert.Nil(t, srcFs)
	assert.Equal(t, "/", fsroot)
}

func TestIsFsMountedBind(t *testing.T) {
	tb := mountinfoTable(t,
		"20 17 8:1 / /mnt/data rw - ext4 /dev/sda1 rw\n"+
			"21 17 8:1 /dir /dst rw - ext4 /dev/sda1 rw\n")

	mounted := fstabEntry(t, "/mnt/data/dir /dst none bind 0 0")
	assert.True(t, tb.IsFsMounted(mounted))

	// same source, different target
	elsewhere := fstabEntry(t, "/mnt/data/dir /elsewhere none bind 0 0")
	assert.False(t, tb.IsFsMounted(elsewhere))

	// same target, different fs-root expectation
	otherDir := fstabEntry(t, "/mnt/data/other /dst none bind 0 0")
	assert.False(t, tb.IsFsMounted(otherDir))
}

func TestIsFsMountedPlain(t *testing.T) {
	tb := mountinfoTable(t,
		"20 17 8:1 / /boot rw - vfat /dev/sda1 rw\n")

	mounted := fstabEntry(t, "/dev/sda1 /boot vfat umask=0077 0 2")
	assert.True(t, tb.IsFsMounted(mounted))

	notMounted := fstabEntry(t, "/dev/sda2 /data ext4 defaults 0 0")
	assert.False(t, tb.IsFsMounted(notMounted))
}

func TestIsFsMountedSkipsSwap(t *testing.T) {
	tb := mountinfoTable(t,
		"20 17 8:1 / /boot rw - vfat /dev/sda1 rw\n")

	swap := fstabEntry(t, "/dev/sdd1 none swap sw 0 0")
	assert.False(t, tb.IsFsMounted(swap))
}

func TestIsFsMountedEmptyTable(t *testing.T) {
	tb := mount.NewTable()

	e := fstabEntry(t, "/dev/sda1 /boot vfat defaults 0 0")
	assert.False(t, tb.IsFsMounted(e))
}
