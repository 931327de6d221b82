// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

//go:build linux

package mount

import (
	"encoding/binary"
	"fmt"
	"os"
	"unsafe"

	"golang.org/x/sys/unix"
)

// btrfs tree search for the "default" dir item in the root tree directory;
// its location objectid is the default subvolume ID.
const (
	btrfsIocTreeSearch = 0xd0009411 // _IOWR(0x94, 17, struct btrfs_ioctl_search_args)

	btrfsRootTreeObjectID    = 1
	btrfsRootTreeDirObjectID = 6
	btrfsDirItemKey          = 84

	btrfsSearchHeaderSize = 32 // transid, objectid, offset u64 + type, len u32
	btrfsDirItemSize      = 30 // disk key (17) + transid u64 + data_len, name_len u16 + type u8
)

type btrfsSearchArgs struct {
	// struct btrfs_ioctl_search_key
	treeID                 uint64
	minObjectID            uint64
	maxObjectID            uint64
	minOffset, maxOffset   uint64
	minTransID, maxTransID uint64
	minType, maxType       uint32
	nrItems                uint32
	_                      [9]uint32

	buf [3992]byte
}

// btrfsDefaultSubvolID queries the default subvolume ID of the btrfs
// filesystem mounted at path.
//
// The tree search may fail on older kernels; callers degrade gracefully.
func btrfsDefaultSubvolID(path string) (uint64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}

	defer f.Close() //nolint:errcheck

	args := &btrfsSearchArgs{
		treeID:      btrfsRootTreeObjectID,
		minObjectID: btrfsRootTreeDirObjectID,
		maxObjectID: btrfsRootTreeDirObjectID,
		maxOffset:   ^uint64(0),
		maxTransID:  ^uint64(0),
		minType:     btrfsDirItemKey,
		maxType:     btrfsDirItemKey,
		nrItems:     1,
	}

	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, f.Fd(), btrfsIocTreeSearch, uintptr(unsafe.Pointer(args))); errno != 0 {
		return 0, errno
	}

	if args.nrItems == 0 {
		return 0, fmt.Errorf("no default subvolume dir item found")
	}

	buf := args.buf[:]
	if len(buf) < btrfsSearchHeaderSize+btrfsDirItemSize {
		return 0, fmt.Errorf("short search result")
	}

	item := buf[btrfsSearchHeaderSize:]

	// struct btrfs_dir_item: the location disk key is packed
	objectID := binary.LittleEndian.Uint64(item[0:])
	nameLen := binary.LittleEndian.Uint16(item[27:])

	name := item[btrfsDirItemSize : btrfsDirItemSize+int(nameLen)]
	if string(name) != "default" {
		return 0, fmt.Errorf("unexpected dir item %q", string(name))
	}

	return objectID, nil
}
