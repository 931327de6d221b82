// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package blkid

import (
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/siderolabs/go-blkid/blkid/internal/chain"
)

func (p *Prober) probeStart() {
	p.cur = nil
	p.probFlags = 0
	p.setWiper(0, 0)
}

func (p *Prober) probeEnd() {
	p.cur = nil
	p.probFlags = 0
	p.setWiper(0, 0)
}

// DoProbe calls probing functions in all enabled chains and stores the result
// from a single probing function per call; it has to be called in a loop to
// collect results from all of them.
//
// It returns true when a result was produced and false when all chains are
// exhausted. The probing position is reset by Reset and by the filter
// functions.
func (p *Prober) DoProbe() (bool, error) {
	if p.f == nil {
		return false, ErrNoDevice
	}

	if p.noScanDev {
		return false, nil
	}

	for {
		chn := p.cur

		switch {
		case chn == nil:
			p.probeStart()

			chn = &p.chains[0]
			p.cur = chn
		case !chn.enabled || chn.idx+1 == len(chn.driver.infos()) || chn.idx == -1:
			// advance to the next chain only when the previous probing
			// produced nothing and the current chain is disabled, fully
			// walked, or bailed out right at the start
			next := chn.driver.id() + 1

			if next >= chain.NumChains {
				p.probeEnd()

				return false, nil
			}

			chn = &p.chains[next]
			p.cur = chn
		}

		chn.binary = false

		p.logger.Debug("chain probe",
			zap.String("chain", chn.driver.name()),
			zap.Bool("enabled", chn.enabled),
			zap.Int("idx", chn.idx),
		)

		if !chn.enabled {
			continue
		}

		ok, err := chn.driver.probe(p, chn)
		if err != nil {
			return false, err
		}

		if ok {
			return true, nil
		}
	}
}

// DoSafeprobe gathers the first probing result of every enabled chain and
// checks for ambivalent results (e.g. more filesystems on the same device);
// ErrAmbivalent is returned in that case and the offending chain's values are
// discarded.
//
// It returns true when at least one chain produced a result.
func (p *Prober) DoSafeprobe() (bool, error) {
	if p.f == nil {
		return false, ErrNoDevice
	}

	if p.noScanDev {
		return false, nil
	}

	p.probeStart()
	defer p.probeEnd()

	count := 0

	for i := range p.chains {
		chn := &p.chains[i]

		p.cur = chn
		chn.binary = false

		if !chn.enabled {
			continue
		}

		chn.idx = -1

		ok, err := chn.driver.safeprobe(p, chn)

		chn.idx = -1

		if err != nil {
			return false, err
		}

		if ok {
			count++
		}
	}

	return count > 0, nil
}

// DoFullprobe gathers the first probing result of every enabled chain, like
// DoSafeprobe, but does not check for collisions between results.
func (p *Prober) DoFullprobe() (bool, error) {
	if p.f == nil {
		return false, ErrNoDevice
	}

	if p.noScanDev {
		return false, nil
	}

	p.probeStart()
	defer p.probeEnd()

	count := 0

	for i := range p.chains {
		chn := &p.chains[i]

		p.cur = chn
		chn.binary = false

		if !chn.enabled {
			continue
		}

		chn.idx = -1

		ok, err := chn.driver.probe(p, chn)

		chn.idx = -1

		if err != nil {
			return false, err
		}

		if ok {
			count++
		}
	}

	return count > 0, nil
}

// StepBack moves the probing position one step back, so the next DoProbe call
// invokes the previously used probing function again.
//
// This is necessary after the device was modified according to the current
// probing result (e.g. the detected signature was erased): retrying the same
// descriptor exposes backup superblocks. The buffer cache is invalidated.
func (p *Prober) StepBack() error {
	chn := p.cur
	if chn == nil {
		return fmt.Errorf("no active probing chain to step back")
	}

	p.resetBuffers()

	if chn.idx >= 0 {
		chn.idx--

		p.logger.Debug("step back",
			zap.String("chain", chn.driver.name()),
			zap.Int("idx", chn.idx),
		)
	}

	if chn.idx == -1 {
		// DoProbe advances to the next chain when the current index is -1,
		// so the chain pointer has to move to the previous chain
		if id := chn.driver.id(); id > 1 {
			p.cur = &p.chains[id-1]
		} else {
			p.cur = nil
		}

		p.setWiper(0, 0)
	}

	return nil
}

// wipe length is clamped to a sane upper bound
const maxWipeLen = 8192

// DoWipe erases the signature detected by the last DoProbe call: the magic
// bytes are overwritten with zeros. The device has to be open for writing and
// the SublksMagic (or PartsMagic) chain flag enabled.
//
// After a successful wipe the prober steps one descriptor back, so the next
// DoProbe call retries the same probing function (which should fail now,
// exposing backup superblocks, if any).
func (p *Prober) DoWipe(dryRun bool) error {
	chn := p.cur
	if chn == nil {
		return fmt.Errorf("no active probing chain to wipe")
	}

	var offName, magName string

	switch chn.driver.id() {
	case chain.Superblocks:
		offName, magName = "SBMAGIC_OFFSET", "SBMAGIC"
	case chain.Partitions:
		offName, magName = "PTMAGIC_OFFSET", "PTMAGIC"
	default:
		return nil
	}

	offVal, ok := p.LookupValue(offName)
	if !ok {
		return nil
	}

	magVal, ok := p.LookupValue(magName)
	if !ok || magVal.Size() == 0 {
		return nil
	}

	offset, err := strconv.ParseUint(offVal.String(), 10, 64)
	if err != nil {
		return fmt.Errorf("malformed %s value: %w", offName, err)
	}

	length := min(magVal.Size(), maxWipeLen)

	p.logger.Debug("do wipe",
		zap.Uint64("offset", offset),
		zap.Int("length", length),
		zap.String("chain", chn.driver.name()),
		zap.Bool("dry_run", dryRun),
	)

	if dryRun {
		return nil
	}

	if _, err := p.f.WriteAt(make([]byte, length), int64(offset)); err != nil {
		return fmt.Errorf("error wiping %d bytes at offset %d: %w", length, offset, err)
	}

	if err := p.f.Sync(); err != nil {
		return fmt.Errorf("error syncing the device: %w", err)
	}

	return p.StepBack()
}
