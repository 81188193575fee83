// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package pe

import (
	"bytes"
	"encoding/binary"
	"errors"
)

// sectionNameSize is the fixed width of the on-disk section name field.
const sectionNameSize = 8

// ImageSectionHeader describes a named contiguous region of the image
// with its virtual and raw-file placement.
type ImageSectionHeader struct {
	Name                 [sectionNameSize]byte `json:"name"`
	VirtualSize          uint32                `json:"virtual_size"`
	VirtualAddress       uint32                `json:"virtual_address"`
	SizeOfRawData        uint32                `json:"size_of_raw_data"`
	PointerToRawData     uint32                `json:"pointer_to_raw_data"`
	PointerToRelocations uint32                `json:"pointer_to_relocations"`
	PointerToLineNumbers uint32                `json:"pointer_to_line_numbers"`
	NumberOfRelocations  uint16                `json:"number_of_relocations"`
	NumberOfLineNumbers  uint16                `json:"number_of_line_numbers"`
	Characteristics      uint32                `json:"characteristics"`
}

var sectionHeaderSize = uint64(binary.Size(ImageSectionHeader{}))

// parseSections computes the section offset (spec steps 6 and 8). The
// offset into the section table is derived from the COFF header's
// *declared* SizeOfOptionalHeader, not the known variant length, so it
// matches whatever is actually on disk even when the two disagree.
func (c *Context) parseSections() error {
	if c.parsed.numSections > MaxSections {
		return newError(TooManySections, nil)
	}

	if c.parsed.numSections == 0 {
		return nil
	}

	base := c.parsed.signatureOffset + 4 + coffHeaderSize +
		uint64(c.parsed.coffHeader.SizeOfOptionalHeader)
	offsets := make([]uint64, c.parsed.numSections)
	for i := range offsets {
		offsets[i] = base + uint64(i)*sectionHeaderSize
	}
	c.parsed.sectionOffsets = offsets
	return nil
}

// readSectionHeader bounds-checks and decodes the section header at
// offset. Go cannot follow the C original's pattern of dereferencing a
// pointer that was never range-checked against the mapping: an
// out-of-range offset here is reported rather than read.
func (c *Context) readSectionHeader(offset uint64) (ImageSectionHeader, bool) {
	if !c.mapping.contains(offset, sectionHeaderSize) {
		return ImageSectionHeader{}, false
	}
	var hdr ImageSectionHeader
	buf := bytes.NewReader(c.mapping.slice(offset, sectionHeaderSize))
	if err := binary.Read(buf, binary.LittleEndian, &hdr); err != nil {
		return ImageSectionHeader{}, false
	}
	return hdr, true
}

// errSectionNameBufferTooSmall mirrors the C original's assertion
// guarding section_name's output buffer precondition; Go expresses a
// programmer-error precondition check as a panic on an undersized
// buffer, the same role the C assert plays.
var errSectionNameBufferTooSmall = errors.New("pe: section name buffer must be at least 9 bytes")

// SectionName copies the (possibly non-NUL-terminated) 8-byte on-disk
// name into buf, NUL-terminating it. buf must be at least 9 bytes.
func SectionName(section ImageSectionHeader, buf []byte) (string, error) {
	if len(buf) < sectionNameSize+1 {
		panic(errSectionNameBufferTooSmall)
	}
	n := copy(buf, section.Name[:])
	buf[n] = 0
	end := n
	for i, b := range buf[:n] {
		if b == 0 {
			end = i
			break
		}
	}
	return string(buf[:end]), nil
}

// SectionsCount returns the number of sections recorded at parse time.
func (c *Context) SectionsCount() uint16 {
	return c.parsed.numSections
}

// SectionByName performs a linear scan for a section whose fixed 8-byte
// name field matches name, returning the first match.
func (c *Context) SectionByName(name string) (ImageSectionHeader, bool) {
	for _, off := range c.parsed.sectionOffsets {
		hdr, ok := c.readSectionHeader(off)
		if !ok {
			continue
		}
		if sectionNameString(hdr) == name {
			return hdr, true
		}
	}
	return ImageSectionHeader{}, false
}

// Sections returns every section header, skipping any whose recorded
// offset no longer fits inside the mapping.
func (c *Context) Sections() []ImageSectionHeader {
	out := make([]ImageSectionHeader, 0, len(c.parsed.sectionOffsets))
	for _, off := range c.parsed.sectionOffsets {
		if hdr, ok := c.readSectionHeader(off); ok {
			out = append(out, hdr)
		}
	}
	return out
}

func sectionNameString(hdr ImageSectionHeader) string {
	n := sectionNameSize
	for i, b := range hdr.Name {
		if b == 0 {
			n = i
			break
		}
	}
	return string(hdr.Name[:n])
}
