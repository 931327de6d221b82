// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package mount

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/siderolabs/go-blkid/blkid"
)

// Cache memoizes path canonicalization and device tag lookups.
//
// A cache may be shared between tables; it is not synchronized internally, the
// caller owns the locking.
type Cache struct {
	logger *zap.Logger

	conf *blkid.Config

	paths map[string]string

	// tags memoizes per-device probing results; a nil slice records a
	// probe that found no values
	tags map[string][]blkid.CacheTag

	// tagErrs memoizes failed probes
	tagErrs map[string]error
}

// CacheOpt configures a Cache.
type CacheOpt func(*Cache)

// WithCacheLogger sets the logger for the cache.
func WithCacheLogger(logger *zap.Logger) CacheOpt {
	return func(c *Cache) {
		c.logger = logger
	}
}

// WithCacheConfig binds a blkid configuration snapshot (used for the tag
// evaluation method list).
func WithCacheConfig(conf *blkid.Config) CacheOpt {
	return func(c *Cache) {
		c.conf = conf
	}
}

// NewCache returns an empty cache.
func NewCache(opts ...CacheOpt) *Cache {
	c := &Cache{
		logger:  zap.NewNop(),
		paths:   map[string]string{},
		tags:    map[string][]blkid.CacheTag{},
		tagErrs: map[string]error{},
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.conf == nil {
		c.conf, _ = blkid.ReadConfig() //nolint:errcheck // built-in defaults on failure
	}

	if c.conf == nil {
		c.conf = blkid.DefaultConfig()
	}

	return c
}

// ResolvePath canonicalizes the path (absolute, symlinks resolved), memoizing
// the result.
func (c *Cache) ResolvePath(path string) (string, bool) {
	if cn, ok := c.paths[path]; ok {
		return cn, cn != ""
	}

	cn, err := canonicalize(path)
	if err != nil {
		c.paths[path] = ""

		return "", false
	}

	c.paths[path] = cn

	return cn, true
}

func canonicalize(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}

	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", err
	}

	return resolved, nil
}

// udev-maintained symlink directories per tag.
var udevTagDirs = map[string]string{
	"UUID":      "/dev/disk/by-uuid",
	"LABEL":     "/dev/disk/by-label",
	"PARTUUID":  "/dev/disk/by-partuuid",
	"PARTLABEL": "/dev/disk/by-partlabel",
}

// ResolveTag evaluates a TAG=VALUE spec to a device path using the configured
// evaluation methods (udev symlinks, then the blkid device cache).
func (c *Cache) ResolveTag(tag, value string) (string, bool) {
	for _, method := range c.conf.Evaluate {
		switch method {
		case blkid.EvalUdev:
			dir, ok := udevTagDirs[tag]
			if !ok {
				continue
			}

			link := filepath.Join(dir, encodeUdevName(value))

			if cn, err := canonicalize(link); err == nil {
				return cn, true
			}
		case blkid.EvalScan:
			cache, err := blkid.OpenCache("", blkid.WithCacheLogger(c.logger))
			if err != nil {
				continue
			}

			if entry, ok := cache.FindByTag(tag, value); ok {
				if _, err := os.Stat(entry.Name); err == nil {
					return entry.Name, true
				}
			}
		}
	}

	c.logger.Debug("tag not resolved", zap.String("tag", tag), zap.String("value", value))

	return "", false
}

// encodeUdevName escapes the characters udev escapes in by-label symlink
// names.
func encodeUdevName(s string) string {
	var sb strings.Builder

	for i := range len(s) {
		c := s[i]

		if c == '/' || c == ' ' || c == '\\' {
			fmt.Fprintf(&sb, `\x%02x`, c)

			continue
		}

		sb.WriteByte(c)
	}

	return sb.String()
}

// ResolveSpec canonicalizes a source spec: TAG=VALUE specs are evaluated to a
// device path, anything else is canonicalized as a path.
func (c *Cache) ResolveSpec(spec string) (string, bool) {
	if name, value, err := blkid.ParseTagString(spec); err == nil && blkid.ValidTagName(name) {
		return c.ResolveTag(name, value)
	}

	return c.ResolvePath(spec)
}

// ReadTags probes the device and returns its tags (TYPE, LABEL, UUID, ...),
// memoizing the result.
func (c *Cache) ReadTags(devpath string) ([]blkid.CacheTag, error) {
	if tags, ok := c.tags[devpath]; ok {
		return tags, nil
	}

	if err, ok := c.tagErrs[devpath]; ok {
		return nil, err
	}

	tags, err := readDeviceTags(devpath, c.logger, c.conf)
	if err != nil {
		c.tagErrs[devpath] = err

		return nil, err
	}

	c.tags[devpath] = tags

	return tags, nil
}

func readDeviceTags(devpath string, logger *zap.Logger, conf *blkid.Config) ([]blkid.CacheTag, error) {
	pr, err := blkid.NewFromPath(devpath, blkid.WithLogger(logger), blkid.WithConfig(conf))
	if err != nil {
		return nil, err
	}

	defer pr.Close() //nolint:errcheck

	pr.EnablePartitions(true)

	if _, err := pr.DoSafeprobe(); err != nil {
		return nil, err
	}

	var tags []blkid.CacheTag

	for _, v := range pr.Values() {
		tags = append(tags, blkid.CacheTag{Name: v.Name, Value: v.String()})
	}

	return tags, nil
}

// DeviceHasTag reports whether the device carries the tag.
func (c *Cache) DeviceHasTag(devpath, tag, value string) bool {
	tags, err := c.ReadTags(devpath)
	if err != nil {
		return false
	}

	return tagsContain(tags, tag, value)
}
