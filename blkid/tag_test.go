// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package blkid_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/siderolabs/go-blkid/blkid"
)

func TestParseTagString(t *testing.T) {
	for _, test := range []struct {
		spec string

		expectedName  string
		expectedValue string
		expectError   bool
	}{
		{spec: "LABEL=rootfs", expectedName: "LABEL", expectedValue: "rootfs"},
		{spec: "UUID=6014-3962", expectedName: "UUID", expectedValue: "6014-3962"},
		{spec: `LABEL="my disk"`, expectedName: "LABEL", expectedValue: "my disk"},
		{spec: `LABEL="quote \" inside"`, expectedName: "LABEL", expectedValue: `quote " inside`},
		{spec: "PARTUUID=", expectedName: "PARTUUID", expectedValue: ""},
		{spec: "/dev/sda1", expectError: true},
		{spec: "label=rootfs", expectError: true},
		{spec: `LABEL="unbalanced`, expectError: true},
		{spec: `LABEL="a" b`, expectError: true},
		{spec: "=value", expectError: true},
		{spec: "1ABEL=x", expectError: true},
	} {
		t.Run(test.spec, func(t *testing.T) {
			name, value, err := blkid.ParseTagString(test.spec)

			if test.expectError {
				require.Error(t, err)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, test.expectedName, name)
			assert.Equal(t, test.expectedValue, value)
		})
	}
}

func TestValidTagName(t *testing.T) {
	assert.True(t, blkid.ValidTagName("LABEL"))
	assert.True(t, blkid.ValidTagName("SEC_TYPE"))
	assert.True(t, blkid.ValidTagName("ID1"))

	assert.False(t, blkid.ValidTagName(""))
	assert.False(t, blkid.ValidTagName("Label"))
	assert.False(t, blkid.ValidTagName("2ND"))
	assert.False(t, blkid.ValidTagName("NAME-X"))
}
