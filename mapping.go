// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package pe

import (
	"os"

	mmap "github.com/edsrzf/mmap-go"

	"github.com/sohsatoh/readpe/internal/log"
)

// Option is the bitset of recognized options for Open. Unknown bits are
// ignored, matching the C original's pe_options_e.
type Option uint32

const (
	// OpenRW requests a read/write mapping (MAP_SHARED); the default is a
	// read-only, copy-on-write mapping.
	OpenRW Option = 1 << iota

	// NoCloseFD retains the underlying file descriptor, wrapped as an
	// *os.File, after the mapping is established. Without it the
	// descriptor is closed once mmap has a hold on the pages.
	NoCloseFD
)

// mapping is the lowest-level component: a byte range backed by a file,
// plus the one primitive every structural read is guarded by.
type mapping struct {
	data mmap.MMap
}

// newMapping opens path, validates it is a regular file, and establishes a
// mapping covering it in full. On any failure, everything already
// acquired (descriptor, partial mapping) is released before returning.
//
// The returned *os.File is non-nil only when NoCloseFD was requested; the
// caller (Context.Open) is responsible for retaining or discarding it.
func newMapping(path string, opts Option, logger *log.Helper) (*mapping, *os.File, error) {
	flag := os.O_RDONLY
	if opts&OpenRW != 0 {
		flag = os.O_RDWR
	}

	f, err := os.OpenFile(path, flag, 0)
	if err != nil {
		logger.Errorf("open %s failed: %v", path, err)
		return nil, nil, newError(OpenFailed, err)
	}

	info, err := f.Stat()
	if err != nil {
		logger.Errorf("fstat %s failed: %v", path, err)
		f.Close()
		return nil, nil, newError(FstatFailed, err)
	}

	if !info.Mode().IsRegular() {
		logger.Errorf("%s is not a regular file", path)
		f.Close()
		return nil, nil, newError(NotAFile, nil)
	}

	mmapFlag := mmap.RDONLY
	if opts&OpenRW != 0 {
		mmapFlag = mmap.RDWR
	}

	data, err := mmap.Map(f, mmapFlag, 0)
	if err != nil {
		logger.Errorf("mmap %s failed: %v", path, err)
		f.Close()
		return nil, nil, newError(MmapFailed, err)
	}

	// The C original advises the kernel MADV_SEQUENTIAL here and ignores
	// failure (advisory only). mmap-go does not expose a madvise hook, so
	// there is nothing to call; the mapping is otherwise fully established
	// at this point.

	logger.Debugf("mapped %s (%d bytes)", path, len(data))

	m := &mapping{data: data}

	if opts&NoCloseFD != 0 {
		return m, f, nil
	}

	if err := f.Close(); err != nil {
		logger.Errorf("close %s failed after mapping: %v", path, err)
		data.Unmap()
		return nil, nil, newError(CloseFailed, err)
	}
	return m, nil, nil
}

// isLoaded reports whether the mapping covers a non-empty byte range.
func (m *mapping) isLoaded() bool {
	return m != nil && len(m.data) > 0
}

// fileSize is the size in bytes of the mapped range.
func (m *mapping) fileSize() uint64 {
	if m == nil {
		return 0
	}
	return uint64(len(m.data))
}

// contains is the central resource-safety primitive: it reports whether
// [offset, offset+length) lies wholly inside the mapping. Arithmetic is
// done in uint64 to avoid the overflow that attacker-controlled offsets
// and lengths could otherwise trigger.
func (m *mapping) contains(offset, length uint64) bool {
	if m == nil {
		return false
	}
	size := uint64(len(m.data))
	end := offset + length
	if end < offset {
		// overflow
		return false
	}
	return offset <= size && end <= size
}

// slice returns the bytes in [offset, offset+length), assuming contains
// has already been checked by the caller.
func (m *mapping) slice(offset, length uint64) []byte {
	return m.data[offset : offset+length]
}

// unmap releases the mapping. It is safe to call on a nil or already
// unmapped mapping.
func (m *mapping) unmap() error {
	if m == nil || m.data == nil {
		return nil
	}
	err := m.data.Unmap()
	m.data = nil
	if err != nil {
		return newError(MunmapFailed, err)
	}
	return nil
}
