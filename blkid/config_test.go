// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package blkid_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/siderolabs/go-blkid/blkid"
)

func TestReadConfig(t *testing.T) {
	configFile := filepath.Join(t.TempDir(), "blkid.conf")

	require.NoError(t, os.WriteFile(configFile, []byte(`
# comment line
SEND_UEVENT=yes
CACHE_FILE=/var/run/blkid.tab
EVALUATE=udev,scan
PROBE_OFF=minix,bfs
`), 0o644))

	t.Setenv(blkid.EnvConfig, configFile)

	conf, err := blkid.ReadConfig()
	require.NoError(t, err)

	assert.True(t, conf.SendUevent)
	assert.Equal(t, "/var/run/blkid.tab", conf.CacheFile)
	assert.Equal(t, []blkid.EvalMethod{blkid.EvalUdev, blkid.EvalScan}, conf.Evaluate)
	assert.Equal(t, []string{"minix", "bfs"}, conf.ProbeOff)
}

func TestReadConfigMissing(t *testing.T) {
	t.Setenv(blkid.EnvConfig, filepath.Join(t.TempDir(), "does-not-exist.conf"))

	conf, err := blkid.ReadConfig()
	require.NoError(t, err)

	assert.True(t, conf.SendUevent)
	assert.NotEmpty(t, conf.CacheFile)
	assert.Equal(t, []blkid.EvalMethod{blkid.EvalUdev, blkid.EvalScan}, conf.Evaluate)
	assert.Empty(t, conf.ProbeOff)
}

func TestReadConfigMalformed(t *testing.T) {
	configFile := filepath.Join(t.TempDir(), "blkid.conf")

	require.NoError(t, os.WriteFile(configFile, []byte("EVALUATE=frobnicate\n"), 0o644))

	t.Setenv(blkid.EnvConfig, configFile)

	_, err := blkid.ReadConfig()
	assert.Error(t, err)
}
