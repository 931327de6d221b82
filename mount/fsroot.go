// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package mount

import (
	"os"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// stripMountpoint derives the fs-root from a source path and its mount point.
func stripMountpoint(path, mnt string) string {
	p := path

	if len(mnt) > 1 {
		p = path[len(mnt):]
	}

	if p == "" {
		return "/"
	}

	return p
}

// GetFsRoot derives the fs-root that the kernel will report in mountinfo
// after the given fstab entry is mounted: "/" except for bind mounts and
// btrfs subvolumes.
//
// For bind mounts the entry of the source filesystem within tb is returned
// too; tb has to be a mountinfo table.
func (t *Table) GetFsRoot(e *Entry, bindMount bool) (srcFs *Entry, fsroot string) {
	t.logger.Debug("lookup fs-root", zap.String("source", e.Source))

	if bindMount {
		return t.bindFsRoot(e)
	}

	if fstype := e.FSType; fstype == "btrfs" || fstype == "auto" {
		if root, ok := t.btrfsFsRoot(e); ok {
			return nil, root
		}
	}

	return nil, "/"
}

func (t *Table) bindFsRoot(e *Entry) (*Entry, string) {
	src := e.Source

	if t.cache != nil {
		if resolved, ok := t.cache.ResolveSpec(e.Source); ok {
			src = resolved
		}
	}

	mntFs, ok := t.FindMountpoint(src, IterBackward)
	if !ok {
		// not even the root fs found: no fs-root expectation
		return nil, ""
	}

	root := stripMountpoint(src, mntFs.Target)

	srcFs, ok := t.FindTarget(mntFs.Target, IterBackward)
	if !ok {
		return nil, root
	}

	// the bind source may itself sit on a btrfs subvolume or another bind
	// mount; the final root composes both
	if srcRoot := srcFs.Root; srcRoot != "" && !strings.HasPrefix(root, srcRoot) {
		if root == "/" {
			root = srcRoot
		} else {
			root = srcRoot + root
		}
	}

	return srcFs, root
}

// btrfsFsRoot resolves the subvolume path for a btrfs fstab entry: the
// subvol= value of the mountinfo entry with the same target and subvolid,
// querying the kernel for the default subvolume ID when the fstab entry
// specifies neither.
func (t *Table) btrfsFsRoot(e *Entry) (string, bool) {
	var vol string

	if subvolID, ok := e.OptionValue("subvolid"); ok {
		f, found := t.findTargetWithSubvolID(e, subvolID)
		if !found {
			return "", false
		}

		vol, _ = f.OptionValue("subvol")
	} else if vol, ok = e.OptionValue("subvol"); !ok {
		// no subvolid and no subvol: the volume may have a default
		// subvolume defined; only kernels >= 4.2 report subvolid
		defaultID, err := btrfsDefaultSubvolID(e.Target)
		if err != nil {
			t.logger.Debug("no default btrfs subvolume", zap.Error(err))

			return "", false
		}

		f, found := t.findTargetWithSubvolID(e, strconv.FormatUint(defaultID, 10))
		if !found {
			return "", false
		}

		vol, _ = f.OptionValue("subvol")
	}

	if vol == "" {
		return "", false
	}

	if !strings.HasPrefix(vol, "/") {
		vol = "/" + vol
	}

	return vol, true
}

func (t *Table) findTargetWithSubvolID(e *Entry, subvolID string) (*Entry, bool) {
	target := e.Target

	if t.cache != nil {
		if resolved, ok := t.cache.ResolvePath(target); ok {
			target = resolved
		}
	}

	return t.FindTargetWithOption(target, "subvolid", subvolID, IterBackward)
}

// IsFsMounted checks whether the fstab entry is already mounted according to
// the mountinfo table t. Swap areas and pseudo filesystems are skipped.
//
// Sources are compared by path, by device number and through loop-device
// backing files; for bind mounts and btrfs subvolumes the expected fs-root is
// compared too. This is designed for "mount -a".
func (t *Table) IsFsMounted(fstabFs *Entry) bool {
	t.logger.Debug("is fs mounted",
		zap.String("source", fstabFs.Source),
		zap.String("target", fstabFs.Target),
	)

	if fstabFs.IsSwapArea() || fstabFs.IsPseudoFS() || t.IsEmpty() {
		return false
	}

	var (
		src  string
		root string
	)

	if t.IsMountinfo() {
		rootFs, fsroot := t.GetFsRoot(fstabFs, fstabFs.HasOption("bind"))
		root = fsroot

		if rootFs != nil {
			src = rootFs.SrcPath()
		}
	}

	if src == "" {
		src = fstabFs.Source
	}

	if src != "" && t.cache != nil && !fstabFs.IsPseudoFS() {
		if resolved, ok := t.cache.ResolveSpec(src); ok {
			src = resolved
		}
	}

	var devno uint64

	if src != "" && root != "" {
		devno = fstabFs.DevNo

		if devno == 0 {
			var st unix.Stat_t

			if err := unix.Stat(src, &st); err == nil && st.Mode&unix.S_IFMT == unix.S_IFBLK {
				devno = st.Rdev
			}
		}
	}

	tgt := fstabFs.Target

	if tgt == "" || src == "" {
		return false
	}

	var xtgt string

	it := t.NewIter(IterForward)
	for e, ok := it.Next(); ok; e, ok = it.Next() {
		eq := e.streqSrcPath(src)

		if !eq && devno != 0 && e.DevNo == devno {
			eq = true
		}

		if !eq {
			// the source may be the backing file of a loop device
			if !strings.HasPrefix(e.SrcPath(), "/dev/loop") {
				continue
			}

			var (
				offset    uint64
				hasOffset bool
			)

			if val, ok := fstabFs.OptionValue("offset"); ok {
				parsed, err := strconv.ParseUint(val, 10, 64)
				if err != nil {
					t.logger.Debug("failed to parse the offset= option", zap.String("value", val))

					continue
				}

				offset, hasOffset = parsed, true
			}

			if !loopdevIsUsed(e.SrcPath(), src, offset, hasOffset) {
				continue
			}
		}

		if root != "" {
			if e.Root != root {
				continue
			}
		}

		// compare targets, canonicalizing at most once
		if e.streqTarget(tgt) {
			return true
		}

		if xtgt == "" && t.cache != nil {
			xtgt, _ = t.cache.ResolvePath(tgt)
		}

		if xtgt != "" && e.streqTarget(xtgt) {
			return true
		}
	}

	return false
}

// loopdevIsUsed reports whether the loop device is backed by the given file
// (at the given offset, when the fstab entry specifies one), according to
// sysfs.
func loopdevIsUsed(loopdev, backingFile string, offset uint64, checkOffset bool) bool {
	name := strings.TrimPrefix(loopdev, "/dev/")
	if strings.ContainsRune(name, '/') {
		return false
	}

	backing, err := os.ReadFile("/sys/block/" + name + "/loop/backing_file")
	if err != nil {
		return false
	}

	if strings.TrimSpace(string(backing)) != backingFile {
		return false
	}

	if checkOffset {
		loopOffset, err := os.ReadFile("/sys/block/" + name + "/loop/offset")
		if err != nil {
			return false
		}

		if strings.TrimSpace(string(loopOffset)) != strconv.FormatUint(offset, 10) {
			return false
		}
	}

	return true
}
