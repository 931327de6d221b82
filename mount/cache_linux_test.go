// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

//go:build linux

package mount_test

import (
	"bytes"
	_ "embed"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/siderolabs/go-blkid/mount"
)

//go:embed testdata/ext4.img.zst
var ext4Image []byte

func ext4Device(t *testing.T) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "sda1")

	out, err := os.Create(path)
	require.NoError(t, err)

	zr, err := zstd.NewReader(bytes.NewReader(ext4Image))
	require.NoError(t, err)

	_, err = io.Copy(out, zr)
	require.NoError(t, err)

	require.NoError(t, out.Close())

	return path
}

func TestCacheResolvePath(t *testing.T) {
	tmpDir := t.TempDir()

	target := filepath.Join(tmpDir, "real")
	require.NoError(t, os.WriteFile(target, nil, 0o644))

	link := filepath.Join(tmpDir, "link")
	require.NoError(t, os.Symlink(target, link))

	c := mount.NewCache(mount.WithCacheLogger(zaptest.NewLogger(t)))

	resolved, ok := c.ResolvePath(link)
	require.True(t, ok)

	expected, err := filepath.EvalSymlinks(target)
	require.NoError(t, err)

	assert.Equal(t, expected, resolved)

	_, ok = c.ResolvePath(filepath.Join(tmpDir, "missing"))
	assert.False(t, ok)
}

func TestCacheReadTags(t *testing.T) {
	dev := ext4Device(t)

	c := mount.NewCache(mount.WithCacheLogger(zaptest.NewLogger(t)))

	tags, err := c.ReadTags(dev)
	require.NoError(t, err)

	assert.True(t, c.DeviceHasTag(dev, "TYPE", "ext4"))
	assert.True(t, c.DeviceHasTag(dev, "LABEL", "extlabel"))
	assert.NotEmpty(t, tags)
}

// A table holding tagged sources is searched by reading the tags off the
// device itself.
func TestFindSrcpathByDeviceTags(t *testing.T) {
	dev := ext4Device(t)

	tb := mount.NewTable(mount.WithTableLogger(zaptest.NewLogger(t)))
	require.NoError(t, tb.ParseFstab(strings.NewReader(
		"LABEL=extlabel /data ext4 defaults 0 0\n",
	), "fstab"))

	tb.SetCache(mount.NewCache(mount.WithCacheLogger(zaptest.NewLogger(t))))

	e, ok := tb.FindSrcpath(dev, mount.IterForward)
	require.True(t, ok)
	assert.Equal(t, "/data", e.Target)
}
