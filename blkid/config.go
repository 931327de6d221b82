// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package blkid

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// Configuration file location and environment overrides.
const (
	// DefaultConfigFile is read when BLKID_CONF is not set.
	DefaultConfigFile = "/etc/blkid.conf"

	// EnvConfig overrides the configuration file path.
	EnvConfig = "BLKID_CONF"

	// EnvCacheFile overrides the cache file path.
	EnvCacheFile = "BLKID_FILE"

	// EnvDebug enables debug output in the CLI front-ends.
	EnvDebug = "BLKID_DEBUG"
)

// Default cache file locations.
const (
	defaultCacheFile    = "/run/blkid/blkid.tab"
	defaultCacheFileOld = "/etc/blkid.tab"
)

// EvalMethod is a way to evaluate LABEL=/UUID= specs into device names.
type EvalMethod int

// Evaluation methods.
const (
	// EvalUdev resolves tags via /dev/disk/by-* symlinks.
	EvalUdev EvalMethod = iota + 1

	// EvalScan resolves tags by scanning the device cache.
	EvalScan
)

// Config is an immutable snapshot of the library configuration.
//
// Re-reads produce a new snapshot; probers and caches hold references.
type Config struct {
	// CacheFile is the device cache location.
	CacheFile string

	// Evaluate lists the tag evaluation methods, in order.
	Evaluate []EvalMethod

	// SendUevent controls whether a uevent is sent when a device tag is
	// verified by the evaluation code.
	SendUevent bool

	// ProbeOff lists superblock types never probed.
	ProbeOff []string
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() *Config {
	return &Config{
		CacheFile:  DefaultCacheFilename(),
		Evaluate:   []EvalMethod{EvalUdev, EvalScan},
		SendUevent: true,
	}
}

// DefaultCacheFilename returns the runtime cache location when /run is
// available, the legacy /etc location otherwise.
func DefaultCacheFilename() string {
	if st, err := os.Stat("/run/blkid"); err == nil && st.IsDir() {
		return defaultCacheFile
	}

	return defaultCacheFileOld
}

// ReadConfig reads the configuration file (honoring the BLKID_CONF override)
// and returns a snapshot; a missing file yields the built-in defaults.
func ReadConfig() (*Config, error) {
	path := os.Getenv(EnvConfig)
	if path == "" {
		path = DefaultConfigFile
	}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}

		return nil, err
	}

	defer f.Close() //nolint:errcheck

	return parseConfig(f)
}

func parseConfig(f *os.File) (*Config, error) {
	conf := &Config{}

	uevent := -1

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return nil, fmt.Errorf("%s: malformed line %q", f.Name(), line)
		}

		switch key {
		case "SEND_UEVENT":
			if strings.EqualFold(value, "yes") {
				uevent = 1
			} else if value != "" {
				uevent = 0
			}
		case "CACHE_FILE":
			conf.CacheFile = value
		case "EVALUATE":
			for _, method := range strings.Split(value, ",") {
				switch method {
				case "udev":
					conf.Evaluate = append(conf.Evaluate, EvalUdev)
				case "scan":
					conf.Evaluate = append(conf.Evaluate, EvalScan)
				default:
					return nil, fmt.Errorf("%s: unknown evaluation method %q", f.Name(), method)
				}
			}
		case "PROBE_OFF":
			conf.ProbeOff = strings.Split(value, ",")
		default:
			return nil, fmt.Errorf("%s: unknown option %q", f.Name(), key)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	if len(conf.Evaluate) == 0 {
		conf.Evaluate = []EvalMethod{EvalUdev, EvalScan}
	}

	if conf.CacheFile == "" {
		conf.CacheFile = DefaultCacheFilename()
	}

	conf.SendUevent = uevent != 0

	return conf, nil
}
