// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package blkid

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// Cache is the persistent device cache: one line per device in the historical
// tab format,
//
//	<DEVICE> DEVNO=<major:minor> TIME=<secs.frac> PRI=<n> TAG=VALUE ...
//
// allowing devices to be located by label or UUID without read access to the
// raw devices.
type Cache struct {
	logger *zap.Logger

	path string

	entries []*CacheEntry

	changed bool
}

// CacheEntry describes one cached device.
type CacheEntry struct {
	// Name is the device path.
	Name string

	// DevNo is the device number.
	DevNo uint64

	// Time is the last probing time.
	Time time.Time

	// Pri is the priority of the device for tag resolution; higher wins.
	Pri int

	// Tags are the probing results (TYPE, LABEL, UUID, ...).
	Tags []CacheTag
}

// CacheTag is one NAME=value pair of a cache entry.
type CacheTag struct {
	Name  string
	Value string
}

// Tag returns the value of the named tag.
func (e *CacheEntry) Tag(name string) (string, bool) {
	for _, tag := range e.Tags {
		if tag.Name == name {
			return tag.Value, true
		}
	}

	return "", false
}

// CacheOption configures a Cache.
type CacheOption func(*Cache)

// WithCacheLogger sets the logger for the cache.
func WithCacheLogger(logger *zap.Logger) CacheOption {
	return func(c *Cache) {
		c.logger = logger
	}
}

// OpenCache reads the device cache from the given path.
//
// An empty path means the default location: the BLKID_FILE environment
// override, then the configuration CACHE_FILE, then the built-in default. A
// missing file yields an empty cache.
func OpenCache(path string, opts ...CacheOption) (*Cache, error) {
	c := &Cache{
		logger: zap.NewNop(),
		path:   path,
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.path == "" {
		c.path = os.Getenv(EnvCacheFile)
	}

	if c.path == "" {
		if conf, err := ReadConfig(); err == nil && conf.CacheFile != "" {
			c.path = conf.CacheFile
		} else {
			c.path = DefaultCacheFilename()
		}
	}

	f, err := os.Open(c.path)
	if err != nil {
		if os.IsNotExist(err) {
			return c, nil
		}

		return nil, err
	}

	defer f.Close() //nolint:errcheck

	scanner := bufio.NewScanner(f)

	for line := 1; scanner.Scan(); line++ {
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}

		entry, err := parseCacheLine(text)
		if err != nil {
			c.logger.Debug("skipping malformed cache line",
				zap.Int("line", line),
				zap.Error(err),
			)

			continue
		}

		c.entries = append(c.entries, entry)
	}

	return c, scanner.Err()
}

func parseCacheLine(line string) (*CacheEntry, error) {
	name, rest, ok := strings.Cut(line, " ")
	if !ok {
		return nil, fmt.Errorf("no tags on cache line %q", line)
	}

	entry := &CacheEntry{Name: name}

	var haveDevNo, haveTime, havePri bool

	for _, field := range splitCacheFields(rest) {
		tag, value, err := ParseTagString(field)
		if err != nil {
			return nil, err
		}

		switch tag {
		case "DEVNO":
			major, minor, ok := strings.Cut(value, ":")
			if !ok {
				return nil, fmt.Errorf("malformed DEVNO %q", value)
			}

			majorN, err := strconv.ParseUint(major, 10, 32)
			if err != nil {
				return nil, err
			}

			minorN, err := strconv.ParseUint(minor, 10, 32)
			if err != nil {
				return nil, err
			}

			entry.DevNo = unix.Mkdev(uint32(majorN), uint32(minorN))
			haveDevNo = true
		case "TIME":
			secs, frac, _ := strings.Cut(value, ".")

			secsN, err := strconv.ParseInt(secs, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("malformed TIME %q", value)
			}

			var nsec int64

			if frac != "" {
				fracN, err := strconv.ParseInt((frac + "000000000")[:9], 10, 64)
				if err != nil {
					return nil, fmt.Errorf("malformed TIME %q", value)
				}

				nsec = fracN
			}

			entry.Time = time.Unix(secsN, nsec)
			haveTime = true
		case "PRI":
			pri, err := strconv.Atoi(value)
			if err != nil {
				return nil, fmt.Errorf("malformed PRI %q", value)
			}

			entry.Pri = pri
			havePri = true
		default:
			entry.Tags = append(entry.Tags, CacheTag{Name: tag, Value: value})
		}
	}

	if !haveDevNo || !haveTime || !havePri {
		return nil, fmt.Errorf("mandatory DEVNO/TIME/PRI missing on cache line %q", line)
	}

	return entry, nil
}

// splitCacheFields splits on spaces outside of double quotes.
func splitCacheFields(s string) []string {
	var (
		fields  []string
		sb      strings.Builder
		quoted  bool
		escaped bool
	)

	flush := func() {
		if sb.Len() > 0 {
			fields = append(fields, sb.String())
			sb.Reset()
		}
	}

	for i := range len(s) {
		c := s[i]

		switch {
		case escaped:
			sb.WriteByte(c)

			escaped = false
		case quoted && c == '\\':
			sb.WriteByte(c)

			escaped = true
		case c == '"':
			sb.WriteByte(c)

			quoted = !quoted
		case c == ' ' && !quoted:
			flush()
		default:
			sb.WriteByte(c)
		}
	}

	flush()

	return fields
}

// Entries returns the cached devices in file order.
func (c *Cache) Entries() []*CacheEntry {
	return c.entries
}

// Lookup returns the cache entry for the device path.
func (c *Cache) Lookup(name string) (*CacheEntry, bool) {
	for _, entry := range c.entries {
		if entry.Name == name {
			return entry, true
		}
	}

	return nil, false
}

// FindByTag returns the highest-priority device carrying the tag.
func (c *Cache) FindByTag(tag, value string) (*CacheEntry, bool) {
	var best *CacheEntry

	for _, entry := range c.entries {
		if v, ok := entry.Tag(tag); ok && v == value {
			if best == nil || entry.Pri > best.Pri {
				best = entry
			}
		}
	}

	return best, best != nil
}

// Update replaces (or adds) the entry for a device and marks the cache dirty.
func (c *Cache) Update(entry *CacheEntry) {
	if entry.Time.IsZero() {
		entry.Time = time.Now()
	}

	c.changed = true

	for i, old := range c.entries {
		if old.Name == entry.Name {
			c.entries[i] = entry

			return
		}
	}

	c.entries = append(c.entries, entry)
}

// GC drops entries whose devices no longer exist.
func (c *Cache) GC() {
	kept := c.entries[:0]

	for _, entry := range c.entries {
		if _, err := os.Stat(entry.Name); err != nil {
			c.logger.Debug("dropping vanished device", zap.String("name", entry.Name))

			c.changed = true

			continue
		}

		kept = append(kept, entry)
	}

	c.entries = kept
}

// Save atomically rewrites the cache file if it changed.
func (c *Cache) Save() error {
	if !c.changed {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(c.path), filepath.Base(c.path)+".tmp")
	if err != nil {
		return err
	}

	defer os.Remove(tmp.Name()) //nolint:errcheck

	w := bufio.NewWriter(tmp)

	for _, entry := range c.entries {
		fmt.Fprintf(w, "%s DEVNO=%d:%d TIME=%d.%03d PRI=%d",
			entry.Name,
			unix.Major(entry.DevNo), unix.Minor(entry.DevNo),
			entry.Time.Unix(), entry.Time.Nanosecond()/1000000,
			entry.Pri,
		)

		for _, tag := range entry.Tags {
			fmt.Fprintf(w, " %s=%s", tag.Name, quoteTagValue(tag.Value))
		}

		fmt.Fprintln(w)
	}

	if err := w.Flush(); err != nil {
		tmp.Close() //nolint:errcheck

		return err
	}

	if err := tmp.Close(); err != nil {
		return err
	}

	if err := os.Rename(tmp.Name(), c.path); err != nil {
		return err
	}

	c.changed = false

	return nil
}
