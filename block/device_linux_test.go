// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

//go:build linux

package block

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestParseDevNo(t *testing.T) {
	devNo, err := parseDevNo("8:1\n")
	require.NoError(t, err)
	assert.Equal(t, unix.Mkdev(8, 1), devNo)

	devNo, err = parseDevNo("259:12")
	require.NoError(t, err)
	assert.Equal(t, unix.Mkdev(259, 12), devNo)

	_, err = parseDevNo("garbage")
	assert.Error(t, err)

	_, err = parseDevNo("8:x")
	assert.Error(t, err)
}

func TestDevPathUnknown(t *testing.T) {
	_, err := DevPath(unix.Mkdev(0, 0))
	assert.Error(t, err)
}
