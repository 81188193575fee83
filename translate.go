// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package pe

import (
	"bytes"
	"encoding/binary"
)

// decodeDataDirectory decodes a single DataDirectory from a
// dataDirectorySize-length slice. The caller is responsible for the
// bounds check; this never runs against unvalidated input.
func decodeDataDirectory(b []byte) DataDirectory {
	var dd DataDirectory
	_ = binary.Read(bytes.NewReader(b), binary.LittleEndian, &dd)
	return dd
}

// RVAToSection returns the section whose virtual range contains rva. The
// comparison is deliberately inclusive of VirtualAddress+VirtualSize:
// some linkers emit a zero-length trailing section or round VirtualSize
// down such that the very last valid RVA in a section sits exactly on the
// boundary, and the C original treats that boundary as still inside the
// section. RVAToOffset and OffsetToRVA use a strict, half-open range
// instead; the asymmetry is inherited as-is rather than reconciled (see
// the design notes on this package).
func (c *Context) RVAToSection(rva uint32) (ImageSectionHeader, bool) {
	for _, off := range c.parsed.sectionOffsets {
		hdr, ok := c.readSectionHeader(off)
		if !ok {
			continue
		}
		start := hdr.VirtualAddress
		end := hdr.VirtualAddress + hdr.VirtualSize
		if rva >= start && rva <= end {
			return hdr, true
		}
	}
	return ImageSectionHeader{}, false
}

// RVAToOffset translates a relative virtual address into a raw file
// offset. It is a direct port of the C original's pe_rva2ofs: rva 0
// always maps to offset 0; a section whose declared VirtualSize is zero
// is sized by SizeOfRawData instead for the purpose of the containment
// test; if no section's half-open [VirtualAddress, VirtualAddress+size)
// range contains rva and exactly one section exists, that section is
// used anyway (packed or hand-built images often carry an unreliable
// VirtualSize, and a single candidate is the only thing left to guess
// from); and if nothing matches at all, rva is returned unchanged rather
// than reporting failure, mirroring pe_rva2ofs always returning a value.
func (c *Context) RVAToOffset(rva uint32) (uint64, bool) {
	if rva == 0 {
		return 0, true
	}

	sections := c.Sections()
	rvaVal := uint64(rva)

	if len(sections) == 0 {
		return rvaVal, true
	}

	for _, hdr := range sections {
		sectionSize := uint64(hdr.VirtualSize)
		if sectionSize == 0 {
			sectionSize = uint64(hdr.SizeOfRawData)
		}
		start := uint64(hdr.VirtualAddress)
		if start <= rvaVal && start+sectionSize > rvaVal {
			return rvaVal - start + uint64(hdr.PointerToRawData), true
		}
	}

	if len(sections) == 1 {
		hdr := sections[0]
		c.logger.Warnf("RVAToOffset: rva %#x outside the declared VirtualSize of the only section %q; using single-section fallback", rva, sectionNameString(hdr))
		return rvaVal - uint64(hdr.VirtualAddress) + uint64(hdr.PointerToRawData), true
	}

	return rvaVal, true
}

// OffsetToRVA is the inverse of RVAToOffset: it locates the section whose
// raw-file range [PointerToRawData, PointerToRawData+SizeOfRawData)
// contains offset and translates back to a virtual address. Like
// RVAToOffset it uses a strict half-open range with no single-section
// fallback in the reverse direction, matching the C original.
func (c *Context) OffsetToRVA(offset uint64) (uint32, bool) {
	for _, hdr := range c.Sections() {
		start := uint64(hdr.PointerToRawData)
		end := start + uint64(hdr.SizeOfRawData)
		if offset >= start && offset < end {
			return hdr.VirtualAddress + uint32(offset-start), true
		}
	}
	return 0, false
}
