// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package mount

import (
	"slices"
	"strings"

	"github.com/siderolabs/go-blkid/blkid"
)

// Entry is one filesystem line of a mount table.
type Entry struct {
	// Source is the device, spec (LABEL=..., UUID=...) or pseudo-fs source;
	// empty or "none" means no source.
	Source string

	// tag is the parsed TAG=VALUE source, if any
	tagName, tagValue string

	// Target is the mount point.
	Target string

	// FSType is the filesystem type.
	FSType string

	// Options is the merged option string.
	Options string

	// VFSOptions are the per-mount options (mountinfo field 6).
	VFSOptions string

	// FSOptions are the per-superblock options (mountinfo tail).
	FSOptions string

	// UserOptions are userspace mount options.
	UserOptions string

	// Freq and Passno are the dump(8) and fsck(8) fstab fields.
	Freq   int
	Passno int

	// mountinfo-only fields
	ID             int
	ParentID       int
	DevNo          uint64
	Root           string
	OptionalFields string

	// Comment attached to the entry (with comment parsing enabled).
	Comment string
}

// SetSource assigns the source and re-parses the TAG=VALUE spec.
func (e *Entry) SetSource(source string) {
	e.Source = source
	e.tagName, e.tagValue = "", ""

	if name, value, err := blkid.ParseTagString(source); err == nil && blkid.ValidTagName(name) {
		e.tagName, e.tagValue = name, value
	}
}

// Tag returns the tag of a TAG=VALUE source.
func (e *Entry) Tag() (name, value string, ok bool) {
	return e.tagName, e.tagValue, e.tagName != ""
}

// SrcPath returns the source path, or an empty string when the source is a
// tag or a pseudo-fs marker.
func (e *Entry) SrcPath() string {
	if e.tagName != "" || e.Source == "none" {
		return ""
	}

	return e.Source
}

// streqSrcPath compares the entry source path with the given path; "none" and
// an empty source are equivalent (pseudo filesystems).
func (e *Entry) streqSrcPath(path string) bool {
	if path == "none" {
		path = ""
	}

	return e.SrcPath() == path
}

// streqTarget compares the entry target with the given path.
func (e *Entry) streqTarget(path string) bool {
	return e.Target != "" && e.Target == path
}

// IsSwapArea reports a swap entry.
func (e *Entry) IsSwapArea() bool {
	return e.FSType == "swap"
}

// pseudofs types never backed by a block device.
var pseudoFSTypes = []string{
	"anon_inodefs", "autofs", "bdev", "bpf", "binfmt_misc", "cgroup", "cgroup2",
	"configfs", "cpuset", "debugfs", "devfs", "devpts", "devtmpfs", "dlmfs",
	"efivarfs", "fusectl", "fuse.gvfsd-fuse", "hugetlbfs", "mqueue", "nfsd",
	"overlay", "pipefs", "proc", "pstore", "ramfs", "rootfs", "rpc_pipefs",
	"securityfs", "selinuxfs", "sockfs", "spufs", "sysfs", "tmpfs", "tracefs",
}

// IsPseudoFS reports a kernel pseudo filesystem.
func (e *Entry) IsPseudoFS() bool {
	return slices.Contains(pseudoFSTypes, e.FSType)
}

// network filesystem types.
var netFSTypes = []string{
	"afs", "ceph", "cifs", "coda", "fuse.curlftpfs", "fuse.sshfs", "ncpfs",
	"nfs", "nfs4", "smb3", "smbfs",
}

// IsNetFS reports a network filesystem.
func (e *Entry) IsNetFS() bool {
	return slices.Contains(netFSTypes, e.FSType)
}

// IsKernel reports an entry that came from the kernel (mountinfo).
func (e *Entry) IsKernel() bool {
	return e.ID != 0
}

// HasOption reports whether the option is present in any of the option
// strings.
func (e *Entry) HasOption(name string) bool {
	_, ok := e.OptionValue(name)

	return ok
}

// OptionValue looks the option up in the merged, VFS, FS and user option
// strings; the value is empty for valueless options.
func (e *Entry) OptionValue(name string) (string, bool) {
	for _, optstr := range []string{e.Options, e.VFSOptions, e.FSOptions, e.UserOptions} {
		if value, ok := optionValue(optstr, name); ok {
			return value, ok
		}
	}

	return "", false
}

func optionValue(optstr, name string) (string, bool) {
	for _, opt := range strings.Split(optstr, ",") {
		optName, value, _ := strings.Cut(opt, "=")
		if optName == name {
			return value, true
		}
	}

	return "", false
}

// MatchSource compares the entry source with the given source: literally,
// as a tag, and canonicalized through the cache.
func (e *Entry) MatchSource(source string, cache *Cache) bool {
	if e.Source == source {
		return true
	}

	// tag spec vs entry tag
	if name, value, err := blkid.ParseTagString(source); err == nil {
		if e.tagName == name && e.tagValue == value {
			return true
		}

		// evaluate the spec tag and compare to the entry source path
		if cache != nil {
			if path, ok := cache.ResolveTag(name, value); ok && e.streqSrcPath(path) {
				return true
			}
		}

		return false
	}

	if cache == nil {
		return false
	}

	cn, ok := cache.ResolvePath(source)
	if !ok {
		return false
	}

	if e.streqSrcPath(cn) {
		return true
	}

	// entry tag vs evaluated source path tags
	if e.tagName != "" {
		if path, ok := cache.ResolveTag(e.tagName, e.tagValue); ok && path == cn {
			return true
		}
	}

	if p := e.SrcPath(); p != "" {
		if cp, ok := cache.ResolvePath(p); ok && cp == cn {
			return true
		}
	}

	return false
}

// MatchTarget compares the entry target with the given path, canonicalizing
// both through the cache when the literal comparison fails.
func (e *Entry) MatchTarget(target string, cache *Cache) bool {
	if e.streqTarget(target) {
		return true
	}

	if cache == nil {
		return false
	}

	cn, ok := cache.ResolvePath(target)
	if ok && e.streqTarget(cn) {
		return true
	}

	if e.Target != "" {
		if ct, ok := cache.ResolvePath(e.Target); ok && ct == cn {
			return true
		}
	}

	return false
}
