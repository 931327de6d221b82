// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package mount

import (
	"errors"
	"io/fs"
	"path"
	"strings"

	"go.uber.org/zap"

	"github.com/siderolabs/go-blkid/blkid"
)

// FindTarget looks an entry up by mount point.
//
// Three passes: the native target, the canonicalized path against native
// targets, and the canonicalized path against canonicalized targets. The
// second and third passes need an attached cache.
func (t *Table) FindTarget(target string, direction Direction) (*Entry, bool) {
	if target == "" {
		return nil, false
	}

	t.logger.Debug("lookup target", zap.String("path", target))

	// native target
	it := t.NewIter(direction)
	for e, ok := it.Next(); ok; e, ok = it.Next() {
		if e.streqTarget(target) {
			return e, true
		}
	}

	if t.cache == nil {
		return nil, false
	}

	cn, ok := t.cache.ResolvePath(target)
	if !ok {
		return nil, false
	}

	// canonicalized path against native targets; mountinfo targets are
	// already canonicalized by the kernel
	it.Reset()
	for e, ok := it.Next(); ok; e, ok = it.Next() {
		if e.streqTarget(cn) {
			return e, true
		}
	}

	// canonicalized path against canonicalized targets; "/" always matches
	// and would short-circuit the search, swap and pseudo filesystems have
	// no real mount point
	it.Reset()
	for e, ok := it.Next(); ok; e, ok = it.Next() {
		if e.Target == "" || e.Target == "/" || e.IsSwapArea() || e.IsPseudoFS() {
			continue
		}

		if p, ok := t.cache.ResolvePath(e.Target); ok && p == cn {
			return e, true
		}
	}

	return nil, false
}

// FindSrcpath looks an entry up by source path.
//
// Four passes: the native path, the canonicalized path against native
// sources, device tags read from the path against entry tags, and the
// canonicalized path against canonicalized sources. All but the first pass
// need an attached cache.
func (t *Table) FindSrcpath(srcpath string, direction Direction) (*Entry, bool) {
	if srcpath == "" {
		return nil, false
	}

	t.logger.Debug("lookup srcpath", zap.String("path", srcpath))

	ntags := 0

	// native paths
	it := t.NewIter(direction)
	for e, ok := it.Next(); ok; e, ok = it.Next() {
		if e.streqSrcPath(srcpath) {
			return e, true
		}

		if _, _, isTag := e.Tag(); isTag {
			ntags++
		}
	}

	if t.cache == nil {
		return nil, false
	}

	cn, ok := t.cache.ResolvePath(srcpath)
	if !ok {
		return nil, false
	}

	// canonicalized path against native sources
	if ntags < t.NumEntries() {
		it.Reset()
		for e, ok := it.Next(); ok; e, ok = it.Next() {
			if e.streqSrcPath(cn) {
				return e, true
			}
		}
	}

	// evaluated tags
	if ntags > 0 {
		tags, err := t.cache.ReadTags(cn)

		it.Reset()

		switch {
		case err == nil:
			// the device tags are known: compare entry tags against them
			for e, ok := it.Next(); ok; e, ok = it.Next() {
				name, value, isTag := e.Tag()
				if !isTag {
					continue
				}

				if tagsContain(tags, name, value) {
					return e, true
				}
			}
		case errors.Is(err, fs.ErrPermission):
			// the device is inaccessible: evaluate every table tag through
			// udev symlinks instead (expensive with a huge fstab)
			for e, ok := it.Next(); ok; e, ok = it.Next() {
				name, value, isTag := e.Tag()
				if !isTag {
					continue
				}

				if p, ok := t.cache.ResolveTag(name, value); ok && p == cn {
					return e, true
				}
			}
		}
	}

	// canonicalized path against canonicalized sources
	it.Reset()
	for e, ok := it.Next(); ok; e, ok = it.Next() {
		if e.IsNetFS() || e.IsPseudoFS() {
			continue
		}

		p := e.SrcPath()
		if p == "" {
			continue
		}

		if cp, ok := t.cache.ResolvePath(p); ok && cp == cn {
			return e, true
		}
	}

	return nil, false
}

func tagsContain(tags []blkid.CacheTag, name, value string) bool {
	for _, tag := range tags {
		if tag.Name == name && tag.Value == value {
			return true
		}
	}

	return false
}

// FindTag looks an entry up by tag; when no entry carries the literal tag,
// the tag is evaluated to a device name and FindSrcpath is used.
func (t *Table) FindTag(tag, value string, direction Direction) (*Entry, bool) {
	if tag == "" {
		return nil, false
	}

	t.logger.Debug("lookup tag", zap.String("tag", tag), zap.String("value", value))

	it := t.NewIter(direction)
	for e, ok := it.Next(); ok; e, ok = it.Next() {
		if name, val, isTag := e.Tag(); isTag && name == tag && val == value {
			return e, true
		}
	}

	if t.cache != nil {
		if path, ok := t.cache.ResolveTag(tag, value); ok {
			return t.FindSrcpath(path, direction)
		}
	}

	return nil, false
}

// FindSource looks an entry up by source: a "TAG=VALUE" spec dispatches to
// FindTag, anything else to FindSrcpath.
func (t *Table) FindSource(source string, direction Direction) (*Entry, bool) {
	if name, value, err := blkid.ParseTagString(source); err == nil && blkid.ValidTagName(name) {
		return t.FindTag(name, value, direction)
	}

	return t.FindSrcpath(source, direction)
}

// FindPair looks an entry up by source and target together; every entry is
// fully evaluated (tags, canonicalized paths), which makes this the most
// expensive lookup.
func (t *Table) FindPair(source, target string, direction Direction) (*Entry, bool) {
	if source == "" || target == "" {
		return nil, false
	}

	t.logger.Debug("lookup pair", zap.String("source", source), zap.String("target", target))

	it := t.NewIter(direction)
	for e, ok := it.Next(); ok; e, ok = it.Next() {
		if e.MatchTarget(target, t.cache) && e.MatchSource(source, t.cache) {
			return e, true
		}
	}

	return nil, false
}

// FindDevno looks a mountinfo entry up by device number.
//
// Note that zero is a valid device number for the root pseudo filesystems.
func (t *Table) FindDevno(devno uint64, direction Direction) (*Entry, bool) {
	it := t.NewIter(direction)
	for e, ok := it.Next(); ok; e, ok = it.Next() {
		if e.DevNo == devno {
			return e, true
		}
	}

	return nil, false
}

// FindMountpoint returns the entry of the filesystem the path resides on,
// peeling path components until a mount point matches; the root filesystem is
// the fallback.
func (t *Table) FindMountpoint(p string, direction Direction) (*Entry, bool) {
	if p == "" || !strings.HasPrefix(p, "/") {
		return nil, false
	}

	t.logger.Debug("lookup mountpoint", zap.String("path", p))

	mnt := path.Clean(p)

	for mnt != "/" {
		if e, ok := t.FindTarget(mnt, direction); ok {
			return e, true
		}

		mnt = path.Dir(mnt)
	}

	return t.FindTarget("/", direction)
}

// FindTargetWithOption looks an entry up by target and mount option; only
// native targets are compared, no canonicalization is done.
func (t *Table) FindTargetWithOption(target, option, value string, direction Direction) (*Entry, bool) {
	if target == "" || option == "" {
		return nil, false
	}

	it := t.NewIter(direction)
	for e, ok := it.Next(); ok; e, ok = it.Next() {
		if !e.streqTarget(target) {
			continue
		}

		optval, ok := e.OptionValue(option)
		if !ok {
			continue
		}

		if value == "" || optval == value {
			return e, true
		}
	}

	return nil, false
}
