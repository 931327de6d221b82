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

func TestFindTarget(t *testing.T) {
	tb := mount.NewTable(mount.WithTableLogger(zaptest.NewLogger(t)))
	require.NoError(t, tb.ParseMountinfo(strings.NewReader(
		"23 17 0:21 / /home rw,relatime shared:1 - ext4 /dev/sda2 rw\n",
	), "mountinfo"))

	e, ok := tb.FindTarget("/home", mount.IterBackward)
	require.True(t, ok)
	assert.Equal(t, "/dev/sda2", e.SrcPath())

	_, ok = tb.FindTarget("/hom", mount.IterBackward)
	assert.False(t, ok)

	_, ok = tb.FindTarget("", mount.IterBackward)
	assert.False(t, ok)
}

func TestFindTargetDirection(t *testing.T) {
	// /mnt is mounted twice; backward iteration returns the most recent
	// mount first
	mi := "30 17 8:3 / /mnt rw - ext4 /dev/sda3 rw\n" +
		"31 17 8:4 / /mnt rw - xfs /dev/sda4 rw\n"

	tb := mount.NewTable()
	require.NoError(t, tb.ParseMountinfo(strings.NewReader(mi), "mountinfo"))

	e, ok := tb.FindTarget("/mnt", mount.IterBackward)
	require.True(t, ok)
	assert.Equal(t, "/dev/sda4", e.SrcPath())

	e, ok = tb.FindTarget("/mnt", mount.IterForward)
	require.True(t, ok)
	assert.Equal(t, "/dev/sda3", e.SrcPath())
}

func TestFindMountpoint(t *testing.T) {
	tb := parseMountinfo(t)

	e, ok := tb.FindMountpoint("/home/alice/x", mount.IterBackward)
	require.True(t, ok)
	assert.Equal(t, "/home", e.Target)

	e, ok = tb.FindMountpoint("/home/shared/docs/report", mount.IterBackward)
	require.True(t, ok)
	assert.Equal(t, "/home/shared", e.Target)

	// ascends all the way to the root filesystem
	e, ok = tb.FindMountpoint("/var/log/syslog", mount.IterBackward)
	require.True(t, ok)
	assert.Equal(t, "/", e.Target)

	_, ok = tb.FindMountpoint("relative/path", mount.IterBackward)
	assert.False(t, ok)
}

func TestFindSrcpath(t *testing.T) {
	tb := parseMountinfo(t)

	e, ok := tb.FindSrcpath("/dev/sda1", mount.IterForward)
	require.True(t, ok)
	assert.Equal(t, "/home/shared", e.Target)

	_, ok = tb.FindSrcpath("/dev/nope", mount.IterForward)
	assert.False(t, ok)
}

func TestFindTagAndSource(t *testing.T) {
	tb := parseFstab(t)

	e, ok := tb.FindTag("UUID", "8a0e6e3c-57b4-4f2f-97e1-b2fd5a4655b4", mount.IterForward)
	require.True(t, ok)
	assert.Equal(t, "/", e.Target)

	// FindSource dispatches on the spec format
	e, ok = tb.FindSource("LABEL=boot", mount.IterForward)
	require.True(t, ok)
	assert.Equal(t, "/boot", e.Target)

	e, ok = tb.FindSource("/dev/sdc1", mount.IterForward)
	require.True(t, ok)
	assert.Equal(t, "/srv/data", e.Target)

	_, ok = tb.FindTag("LABEL", "nope", mount.IterForward)
	assert.False(t, ok)
}

func TestFindDevno(t *testing.T) {
	tb := parseMountinfo(t)

	e, ok := tb.FindDevno(8<<8|1, mount.IterBackward)
	require.True(t, ok)
	assert.Equal(t, "/home/shared", e.Target)

	_, ok = tb.FindDevno(0xdead, mount.IterBackward)
	assert.False(t, ok)
}

func TestFindPair(t *testing.T) {
	tb := parseMountinfo(t)

	e, ok := tb.FindPair("/dev/sda2", "/home", mount.IterForward)
	require.True(t, ok)
	assert.Equal(t, 23, e.ID)

	_, ok = tb.FindPair("/dev/sda2", "/boot", mount.IterForward)
	assert.False(t, ok)
}

func TestFindTargetWithOption(t *testing.T) {
	mi := "30 17 8:3 / /mnt rw - btrfs /dev/sda3 rw,subvolid=256,subvol=/subv\n" +
		"31 17 8:3 /other /mnt2 rw - btrfs /dev/sda3 rw,subvolid=257,subvol=/other\n"

	tb := mount.NewTable()
	require.NoError(t, tb.ParseMountinfo(strings.NewReader(mi), "mountinfo"))

	e, ok := tb.FindTargetWithOption("/mnt", "subvolid", "256", mount.IterBackward)
	require.True(t, ok)
	assert.Equal(t, 30, e.ID)

	_, ok = tb.FindTargetWithOption("/mnt", "subvolid", "999", mount.IterBackward)
	assert.False(t, ok)

	// empty value matches any
	e, ok = tb.FindTargetWithOption("/mnt2", "subvol", "", mount.IterBackward)
	require.True(t, ok)
	assert.Equal(t, 31, e.ID)
}

func TestOptionValue(t *testing.T) {
	e := &mount.Entry{
		Options: "rw,errors=remount-ro,subvol=/data",
	}

	v, ok := e.OptionValue("errors")
	require.True(t, ok)
	assert.Equal(t, "remount-ro", v)

	v, ok = e.OptionValue("rw")
	require.True(t, ok)
	assert.Empty(t, v)

	_, ok = e.OptionValue("ro")
	assert.False(t, ok)

	assert.True(t, e.HasOption("subvol"))
}
