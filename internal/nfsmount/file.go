package nfsmount

import (
	"fmt"
	"io"

	billy "github.com/go-git/go-billy/v5"
)

// propertyFile is a property value held in memory. Writable files buffer
// every WRITE RPC and hand the final bytes to commit on Close.
type propertyFile struct {
	name     string
	buf      []byte
	pos      int64
	readOnly bool
	// dirty is set by Write, or up front for a file that is being
	// created. Truncate alone never sets it: NFS SETATTR(size=0) arrives
	// as Truncate+Close ahead of the WRITEs, and committing then would
	// erase the stored value.
	dirty  bool
	commit func(content []byte) error
}

func (f *propertyFile) Name() string { return f.name }

func (f *propertyFile) Read(p []byte) (int, error) {
	if f.pos >= int64(len(f.buf)) {
		return 0, io.EOF
	}
	n := copy(p, f.buf[f.pos:])
	f.pos += int64(n)
	if f.pos >= int64(len(f.buf)) {
		return n, io.EOF
	}
	return n, nil
}

func (f *propertyFile) ReadAt(p []byte, off int64) (int, error) {
	if off >= int64(len(f.buf)) {
		return 0, io.EOF
	}
	n := copy(p, f.buf[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (f *propertyFile) Seek(offset int64, whence int) (int64, error) {
	var pos int64
	switch whence {
	case io.SeekStart:
		pos = offset
	case io.SeekCurrent:
		pos = f.pos + offset
	case io.SeekEnd:
		pos = int64(len(f.buf)) + offset
	default:
		return f.pos, fmt.Errorf("seek %s: invalid whence %d", f.name, whence)
	}
	f.pos = max(pos, 0)
	return f.pos, nil
}

func (f *propertyFile) Write(p []byte) (int, error) {
	if f.readOnly {
		return 0, errReadOnly
	}
	f.grow(f.pos + int64(len(p)))
	n := copy(f.buf[f.pos:], p)
	f.pos += int64(n)
	f.dirty = true
	return n, nil
}

func (f *propertyFile) Truncate(size int64) error {
	if f.readOnly {
		return errReadOnly
	}
	if size < int64(len(f.buf)) {
		f.buf = f.buf[:size]
		return nil
	}
	f.grow(size)
	return nil
}

func (f *propertyFile) grow(size int64) {
	if size <= int64(len(f.buf)) {
		return
	}
	grown := make([]byte, size)
	copy(grown, f.buf)
	f.buf = grown
}

// Close commits the buffered value when the file was written or created.
func (f *propertyFile) Close() error {
	if !f.dirty || f.commit == nil {
		return nil
	}
	f.dirty = false
	if err := f.commit(f.buf); err != nil {
		return fmt.Errorf("commit %s: %w", f.name, err)
	}
	return nil
}

func (f *propertyFile) Lock() error   { return nil }
func (f *propertyFile) Unlock() error { return nil }

var _ billy.File = (*propertyFile)(nil)
