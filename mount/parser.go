// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package mount

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// ErrCallback is invoked for every parse error; returning an error aborts
// parsing, the default policy treats every parse error as recoverable.
type ErrCallback func(filename string, line int, err error) error

// WithErrCallback installs a parse-error callback.
func WithErrCallback(cb ErrCallback) TableOption {
	return func(t *Table) {
		t.errCallback = cb
	}
}

// unescapeOctal decodes the \ooo escapes used in fstab and mountinfo for
// spaces, tabs and backslashes.
func unescapeOctal(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}

	var sb strings.Builder

	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+3 < len(s) {
			if n, err := strconv.ParseUint(s[i+1:i+4], 8, 8); err == nil {
				sb.WriteByte(byte(n))

				i += 3

				continue
			}
		}

		sb.WriteByte(s[i])
	}

	return sb.String()
}

// ParseFstab reads an fstab/mtab stream into the table: six whitespace
// separated columns, octal escapes in the source, target and options, freq
// and passno optional.
func (t *Table) ParseFstab(r io.Reader, filename string) error {
	scanner := bufio.NewScanner(r)

	var comment strings.Builder

	sawEntry := false

	for lineNo := 1; scanner.Scan(); lineNo++ {
		line := strings.TrimSpace(scanner.Text())

		if line == "" || strings.HasPrefix(line, "#") {
			if t.commentsEnabled {
				comment.WriteString(line)
				comment.WriteString("\n")
			}

			continue
		}

		e, err := parseFstabLine(line)
		if err != nil {
			if t.errCallback != nil {
				if cbErr := t.errCallback(filename, lineNo, err); cbErr != nil {
					return cbErr
				}
			}

			t.logger.Debug("ignoring malformed fstab line",
				zap.String("file", filename),
				zap.Int("line", lineNo),
				zap.Error(err),
			)

			continue
		}

		if t.commentsEnabled {
			if !sawEntry {
				t.introComment = comment.String()
			} else {
				e.Comment = comment.String()
			}

			comment.Reset()
		}

		sawEntry = true

		t.Add(e)
	}

	if t.commentsEnabled {
		t.trailingComment = comment.String()
	}

	return scanner.Err()
}

func parseFstabLine(line string) (*Entry, error) {
	fields := strings.Fields(line)
	if len(fields) < 4 {
		return nil, fmt.Errorf("expected at least 4 fields, got %d", len(fields))
	}

	e := &Entry{
		Target:  unescapeOctal(fields[1]),
		FSType:  fields[2],
		Options: unescapeOctal(fields[3]),
	}

	e.SetSource(unescapeOctal(fields[0]))

	if len(fields) > 4 {
		freq, err := strconv.Atoi(fields[4])
		if err != nil {
			return nil, fmt.Errorf("malformed freq field %q", fields[4])
		}

		e.Freq = freq
	}

	if len(fields) > 5 {
		passno, err := strconv.Atoi(fields[5])
		if err != nil {
			return nil, fmt.Errorf("malformed passno field %q", fields[5])
		}

		e.Passno = passno
	}

	return e, nil
}

// ParseMountinfo reads a /proc/<pid>/mountinfo stream into the table:
//
//	36 35 98:0 /mnt1 /mnt2 rw,noatime master:1 - ext3 /dev/root rw,errors=continue
//	(1)(2)(3)   (4)   (5)      (6)      (7)   (8) (9)   (10)         (11)
//
// with zero or more optional fields (7) terminated by the "-" separator (8).
func (t *Table) ParseMountinfo(r io.Reader, filename string) error {
	scanner := bufio.NewScanner(r)

	for lineNo := 1; scanner.Scan(); lineNo++ {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}

		e, err := parseMountinfoLine(line)
		if err != nil {
			if t.errCallback != nil {
				if cbErr := t.errCallback(filename, lineNo, err); cbErr != nil {
					return cbErr
				}
			}

			t.logger.Debug("ignoring malformed mountinfo line",
				zap.String("file", filename),
				zap.Int("line", lineNo),
				zap.Error(err),
			)

			continue
		}

		t.Add(e)
	}

	return scanner.Err()
}

func parseMountinfoLine(line string) (*Entry, error) {
	fields := strings.Split(line, " ")
	if len(fields) < 10 {
		return nil, fmt.Errorf("expected at least 10 fields, got %d", len(fields))
	}

	id, err := strconv.Atoi(fields[0])
	if err != nil {
		return nil, fmt.Errorf("malformed mount ID %q", fields[0])
	}

	parentID, err := strconv.Atoi(fields[1])
	if err != nil {
		return nil, fmt.Errorf("malformed parent ID %q", fields[1])
	}

	major, minor, ok := strings.Cut(fields[2], ":")
	if !ok {
		return nil, fmt.Errorf("malformed major:minor pair %q", fields[2])
	}

	majorN, err := strconv.ParseUint(major, 10, 32)
	if err != nil {
		return nil, fmt.Errorf("malformed major number %q", major)
	}

	minorN, err := strconv.ParseUint(minor, 10, 32)
	if err != nil {
		return nil, fmt.Errorf("malformed minor number %q", minor)
	}

	e := &Entry{
		ID:       id,
		ParentID: parentID,
		DevNo:    unix.Mkdev(uint32(majorN), uint32(minorN)),

		Root:       unescapeOctal(fields[3]),
		Target:     unescapeOctal(fields[4]),
		VFSOptions: fields[5],
	}

	// optional fields up to the "-" separator; unknown ones are ignored
	i := 6
	for ; i < len(fields) && fields[i] != "-"; i++ {
		if e.OptionalFields == "" {
			e.OptionalFields = fields[i]
		} else {
			e.OptionalFields += " " + fields[i]
		}
	}

	if i == len(fields) {
		return nil, fmt.Errorf("missing the optional-fields separator")
	}

	// a space in the last field (cifs shares on old kernels) would add
	// fields; they are ignored
	if i+3 >= len(fields) {
		return nil, fmt.Errorf("not enough fields after the separator")
	}

	e.FSType = fields[i+1]
	e.FSOptions = fields[i+3]

	e.SetSource(unescapeOctal(fields[i+2]))

	switch {
	case e.VFSOptions == "":
		e.Options = e.FSOptions
	case e.FSOptions == "":
		e.Options = e.VFSOptions
	default:
		e.Options = e.VFSOptions + "," + e.FSOptions
	}

	return e, nil
}

// ParseFstabFile reads an fstab/mtab file into the table.
func (t *Table) ParseFstabFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}

	defer f.Close() //nolint:errcheck

	return t.ParseFstab(f, path)
}

// ParseMountinfoFile reads a mountinfo file into the table.
func (t *Table) ParseMountinfoFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}

	defer f.Close() //nolint:errcheck

	return t.ParseMountinfo(f, path)
}

// Self returns the mount table of the current process.
func Self(opts ...TableOption) (*Table, error) {
	t := NewTable(opts...)

	if err := t.ParseMountinfoFile("/proc/self/mountinfo"); err != nil {
		return nil, err
	}

	return t, nil
}
