// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package mount_test

import (
	"strings"
	"testing"

	"github.com/siderolabs/gen/xslices"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/siderolabs/go-blkid/mount"
)

const sampleFstab = `
# /etc/fstab: static file system information.
#
# <file system> <mount point> <type> <options> <dump> <pass>

UUID=8a0e6e3c-57b4-4f2f-97e1-b2fd5a4655b4 / ext4 errors=remount-ro 0 1
LABEL=boot /boot vfat umask=0077 0 2

# media
/dev/sdb1 /mnt/backup\040disk ext4 defaults,noauto 0 0
/dev/sdc1 /srv/data xfs defaults
proc /proc proc defaults 0 0
/dev/sdd1 none swap sw 0 0
`

func parseFstab(t *testing.T, opts ...mount.TableOption) *mount.Table {
	t.Helper()

	tb := mount.NewTable(append(opts, mount.WithTableLogger(zaptest.NewLogger(t)))...)
	require.NoError(t, tb.ParseFstab(strings.NewReader(sampleFstab), "fstab"))

	return tb
}

func TestParseFstab(t *testing.T) {
	tb := parseFstab(t)

	require.Equal(t, 6, tb.NumEntries())

	entries := tb.Entries()

	name, value, ok := entries[0].Tag()
	require.True(t, ok)
	assert.Equal(t, "UUID", name)
	assert.Equal(t, "8a0e6e3c-57b4-4f2f-97e1-b2fd5a4655b4", value)
	assert.Equal(t, "/", entries[0].Target)
	assert.Equal(t, "ext4", entries[0].FSType)
	assert.Equal(t, 1, entries[0].Passno)

	assert.Equal(t, "LABEL", entries[1].Source[:5])

	// octal escapes are decoded
	assert.Equal(t, "/mnt/backup disk", entries[2].Target)
	assert.Equal(t, "/dev/sdb1", entries[2].SrcPath())

	// freq/passno are optional
	assert.Equal(t, 0, entries[3].Freq)

	assert.True(t, entries[4].IsPseudoFS())
	assert.True(t, entries[5].IsSwapArea())
}

func TestParseFstabComments(t *testing.T) {
	tb := parseFstab(t, mount.WithComments())

	assert.Contains(t, tb.IntroComment(), "static file system information")

	entries := tb.Entries()

	assert.Contains(t, entries[2].Comment, "# media")
	assert.Empty(t, entries[1].Comment)
}

func TestParseFstabErrCallback(t *testing.T) {
	var (
		badLines []int
		lastErr  error
	)

	tb := mount.NewTable(mount.WithErrCallback(func(_ string, line int, err error) error {
		badLines = append(badLines, line)
		lastErr = err

		return nil // recoverable
	}))

	input := "/dev/sda1 /mnt\n/dev/sda2 /mnt2 ext4 defaults 0 0\n"

	require.NoError(t, tb.ParseFstab(strings.NewReader(input), "fstab"))

	assert.Equal(t, []int{1}, badLines)
	assert.Error(t, lastErr)
	assert.Equal(t, 1, tb.NumEntries())
}

const sampleMountinfo = `23 17 0:21 / /home rw,relatime shared:1 - ext4 /dev/sda2 rw,errors=remount-ro
24 23 8:1 /subdir /home/shared rw,relatime shared:2 master:1 - ext4 /dev/sda1 rw
25 17 0:22 / /proc rw,nosuid,nodev,noexec - proc proc rw
26 17 8:16 / /mnt/with\040space rw - xfs /dev/sdb rw
17 16 8:2 / / rw,relatime - ext4 /dev/root rw
`

func parseMountinfo(t *testing.T) *mount.Table {
	t.Helper()

	tb := mount.NewTable(mount.WithTableLogger(zaptest.NewLogger(t)))
	require.NoError(t, tb.ParseMountinfo(strings.NewReader(sampleMountinfo), "mountinfo"))

	return tb
}

func TestParseMountinfo(t *testing.T) {
	tb := parseMountinfo(t)

	require.Equal(t, 5, tb.NumEntries())
	assert.True(t, tb.IsMountinfo())

	entries := tb.Entries()

	assert.Equal(t, 23, entries[0].ID)
	assert.Equal(t, 17, entries[0].ParentID)
	assert.EqualValues(t, 21, entries[0].DevNo&0xff)
	assert.Equal(t, "/", entries[0].Root)
	assert.Equal(t, "/home", entries[0].Target)
	assert.Equal(t, "ext4", entries[0].FSType)
	assert.Equal(t, "/dev/sda2", entries[0].SrcPath())
	assert.Equal(t, "shared:1", entries[0].OptionalFields)
	assert.Equal(t, "rw,relatime,rw,errors=remount-ro", entries[0].Options)

	// multiple optional fields
	assert.Equal(t, "shared:2 master:1", entries[1].OptionalFields)
	assert.Equal(t, "/subdir", entries[1].Root)

	// no optional fields at all
	assert.Equal(t, "", entries[2].OptionalFields)

	// escaped mount point
	assert.Equal(t, "/mnt/with space", entries[3].Target)
}

func TestParseMountinfoMalformed(t *testing.T) {
	calls := 0

	tb := mount.NewTable(mount.WithErrCallback(func(_ string, _ int, _ error) error {
		calls++

		return nil
	}))

	input := "23 17 0:21 / /home rw,relatime shared:1 ext4 /dev/sda2 rw\n" + // no separator
		"24 23 8:1 / /boot rw - vfat /dev/sda1 rw\n"

	require.NoError(t, tb.ParseMountinfo(strings.NewReader(input), "mountinfo"))

	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, tb.NumEntries())
}

func TestRootFSAndChildren(t *testing.T) {
	tb := parseMountinfo(t)

	root, ok := tb.RootFS()
	require.True(t, ok)
	assert.Equal(t, "/", root.Target)

	it := tb.NewIter(mount.IterForward)

	var children []string

	for {
		child, ok := tb.NextChild(it, root)
		if !ok {
			break
		}

		children = append(children, child.Target)
	}

	assert.Equal(t, []string{"/home", "/proc", "/mnt/with space"}, children)
}

func TestUniqFS(t *testing.T) {
	tb := parseMountinfo(t)

	// deduplicate by filesystem type, keeping the first of each kind
	tb.UniqFS(true, func(a, b *mount.Entry) int {
		if a.FSType == b.FSType {
			return 0
		}

		return 1
	})

	targets := xslices.Map(tb.Entries(), func(e *mount.Entry) string { return e.Target })

	// relative order of the survivors is preserved
	assert.Equal(t, []string{"/home", "/proc", "/mnt/with space"}, targets)
}
