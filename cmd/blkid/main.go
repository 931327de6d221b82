// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Command blkid probes block devices and disk images for filesystem and
// partition-table signatures.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/docker/go-units"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/siderolabs/go-blkid/blkid"
)

// Exit codes.
const (
	exitSuccess    = 0
	exitNotFound   = 2
	exitUsage      = 4
	exitAmbivalent = 8
)

var cmdFlags struct {
	matchTypes []string
	wipe       bool
	dryRun     bool
	verbose    bool
}

var rootCmd = &cobra.Command{
	Use:           "blkid <device>...",
	Short:         "probe block devices for filesystem and partition-table signatures",
	Args:          cobra.MinimumNArgs(1),
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true

		logger := zap.NewNop()

		if os.Getenv(blkid.EnvDebug) != "" || cmdFlags.verbose {
			devLogger, err := zap.NewDevelopment()
			if err != nil {
				return err
			}

			logger = devLogger
		}

		found := false

		for _, devname := range args {
			ok, err := probeOne(devname, logger)
			if err != nil {
				return err
			}

			found = found || ok
		}

		if !found {
			return errNotFound
		}

		return nil
	},
}

var errNotFound = errors.New("no signatures detected")

func probeOne(devname string, logger *zap.Logger) (bool, error) {
	opts := []blkid.Option{blkid.WithLogger(logger)}

	if cmdFlags.wipe && !cmdFlags.dryRun {
		opts = append(opts, blkid.WithWriteAccess())
	}

	pr, err := blkid.NewFromPath(devname, opts...)
	if err != nil {
		return false, err
	}

	defer pr.Close() //nolint:errcheck

	pr.EnablePartitions(true)

	if len(cmdFlags.matchTypes) > 0 {
		if err := pr.FilterSuperblocksType(blkid.FilterOnlyIn, cmdFlags.matchTypes); err != nil {
			return false, err
		}
	}

	if cmdFlags.verbose {
		fmt.Printf("%s: size %s, sector size %d\n",
			devname, units.HumanSize(float64(pr.Size())), pr.SectorSize())
	}

	if cmdFlags.wipe {
		return wipeAll(pr, devname)
	}

	sbFlags := blkid.SublksDefault | blkid.SublksMagic

	pr.SetSuperblocksFlags(sbFlags)
	pr.SetPartitionsFlags(blkid.PartsDefault | blkid.PartsMagic)

	ok, err := pr.DoSafeprobe()
	if err != nil {
		return false, err
	}

	if !ok {
		return false, nil
	}

	fmt.Printf("%s:", devname)

	for _, v := range pr.Values() {
		fmt.Printf(" %s=%q", v.Name, v.String())
	}

	fmt.Println()

	return true, nil
}

// wipeAll erases every detected signature, stepping back after each wipe to
// catch backup superblocks.
func wipeAll(pr *blkid.Prober, devname string) (bool, error) {
	pr.SetSuperblocksFlags(blkid.SublksDefault | blkid.SublksMagic)
	pr.SetPartitionsFlags(blkid.PartsDefault | blkid.PartsMagic)

	wiped := false

	for {
		ok, err := pr.DoProbe()
		if err != nil {
			return wiped, err
		}

		if !ok {
			return wiped, nil
		}

		if v, found := pr.LookupValue("TYPE"); found {
			fmt.Printf("%s: wiping %s signature\n", devname, v)
		} else if v, found := pr.LookupValue("PTTYPE"); found {
			fmt.Printf("%s: wiping %s partition table\n", devname, v)
		}

		if err := pr.DoWipe(cmdFlags.dryRun); err != nil {
			return wiped, err
		}

		wiped = true
	}
}

func main() {
	rootCmd.Flags().StringSliceVarP(&cmdFlags.matchTypes, "match-types", "t", nil, "restrict probing to the listed superblock types")
	rootCmd.Flags().BoolVarP(&cmdFlags.wipe, "wipe", "w", false, "erase all detected signatures")
	rootCmd.Flags().BoolVarP(&cmdFlags.dryRun, "dry-run", "n", false, "with --wipe, report what would be erased")
	rootCmd.Flags().BoolVarP(&cmdFlags.verbose, "verbose", "v", false, "verbose output")

	err := rootCmd.Execute()

	switch {
	case err == nil:
		os.Exit(exitSuccess)
	case errors.Is(err, errNotFound):
		os.Exit(exitNotFound)
	case errors.Is(err, blkid.ErrAmbivalent):
		fmt.Fprintln(os.Stderr, "ambivalent probing result")
		os.Exit(exitAmbivalent)
	default:
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitUsage)
	}
}
